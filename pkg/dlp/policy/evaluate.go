package policy

import (
	"go.uber.org/zap"

	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/state"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/types"
)

// StopScope controls how far a stop-on-match policy reaches.
type StopScope string

const (
	// StopScopePolicy stops further rules within the matched policy only;
	// lower-priority policies still evaluate.
	StopScopePolicy StopScope = "policy"
	// StopScopeGlobal stops evaluation across all remaining policies.
	StopScopeGlobal StopScope = "global"
)

// RuleMatch is one rule that matched during evaluation.
type RuleMatch struct {
	PolicyID   string
	PolicyName string
	Rule       *CompiledRule
}

// Evaluator decides which rules match an event and its classification.
type Evaluator struct {
	tracker   *state.Tracker
	stopScope StopScope
	logger    *zap.Logger
}

// NewEvaluator creates an evaluator backed by the given frequency tracker.
func NewEvaluator(tracker *state.Tracker, stopScope StopScope, logger *zap.Logger) *Evaluator {
	if stopScope != StopScopeGlobal {
		stopScope = StopScopePolicy
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{tracker: tracker, stopScope: stopScope, logger: logger}
}

// Evaluate walks the set's policies in descending priority and each
// policy's rules in declared order, returning every match. A policy with
// stop_on_match stops after its first matching rule; whether that also
// stops lower-priority policies depends on the configured stop scope.
func (e *Evaluator) Evaluate(set *Set, event *types.Event, cls *types.ClassificationResult) []RuleMatch {
	if set == nil {
		return nil
	}

	var matches []RuleMatch

	for _, pol := range set.Policies {
		if !pol.Enabled {
			continue
		}

		input := &EvalInput{
			Event:          event,
			Classification: cls,
			Tracker:        e.tracker,
			PolicyID:       pol.ID,
		}

		stopped := false
		for _, rule := range pol.Rules {
			input.RuleID = rule.ID
			if !rule.Condition.evaluate(input) {
				continue
			}

			matches = append(matches, RuleMatch{
				PolicyID:   pol.ID,
				PolicyName: pol.Name,
				Rule:       rule,
			})
			e.logger.Debug("rule matched",
				zap.String("event_id", event.ID),
				zap.String("policy_id", pol.ID),
				zap.String("rule_id", rule.ID))

			if pol.StopOnMatch {
				stopped = true
				break
			}
		}

		if stopped && e.stopScope == StopScopeGlobal {
			break
		}
	}

	return matches
}
