package action

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/policy"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/types"
)

// Notifier hands an alert off to an external notification channel. The
// hand-off is fire-and-forget: delivery retries are the notifier's
// responsibility, never the pipeline's.
type Notifier interface {
	Notify(ctx context.Context, alert *types.Alert, params map[string]string) error
}

// Dispatcher executes the ordered action list of matched rules and
// produces the auditable alert for each.
type Dispatcher struct {
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewDispatcher creates a dispatcher. notifier may be nil when no
// external notification channel is configured.
func NewDispatcher(notifier Notifier, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{notifier: notifier, logger: logger, now: time.Now}
}

// Dispatch runs every action of one matched rule in declared order and
// returns the resulting alert. Block and quarantine record an advisory
// decision for the external enforcement point; log, alert, and notify
// always succeed locally.
func (d *Dispatcher) Dispatch(ctx context.Context, event *types.Event, cls *types.ClassificationResult, match policy.RuleMatch) *types.Alert {
	alert := &types.Alert{
		ID:            uuid.New().String(),
		EventID:       event.ID,
		PolicyID:      match.PolicyID,
		RuleID:        match.Rule.ID,
		Severity:      match.Rule.Severity,
		MatchedLabels: cls.LabelNames(),
		CreatedAt:     d.now(),
	}

	var pending []map[string]string
	for _, act := range match.Rule.Actions {
		if act.Type == types.ActionNotify {
			if d.notifier != nil {
				pending = append(pending, act.Parameters)
			} else {
				d.logger.Debug("no notifier configured, notification recorded only",
					zap.String("event_id", event.ID))
			}
			alert.ActionsTaken = append(alert.ActionsTaken, types.ActionOutcome{Type: act.Type, Outcome: types.OutcomeDispatched})
			continue
		}
		alert.ActionsTaken = append(alert.ActionsTaken, d.execute(ctx, alert, event, act))
	}

	// Hand-offs happen after the whole action list ran, so the payload
	// always carries the complete actions_taken even when notify is not
	// the last action in the rule.
	for _, params := range pending {
		d.send(*alert, params)
	}

	return alert
}

// send hands one alert snapshot to the notifier in the background.
func (d *Dispatcher) send(alert types.Alert, params map[string]string) {
	go func() {
		notifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := d.notifier.Notify(notifyCtx, &alert, params); err != nil {
			d.logger.Error("notification hand-off failed",
				zap.String("alert_id", alert.ID),
				zap.Error(err))
		}
	}()
}

// execute performs one synchronous action. The action set is closed and
// compilation rejects unknown types, so adding a kind is a compile-time
// change; notify is asynchronous and handled in Dispatch.
func (d *Dispatcher) execute(ctx context.Context, alert *types.Alert, event *types.Event, act policy.CompiledAction) types.ActionOutcome {
	switch act.Type {
	case types.ActionLog:
		d.logger.Info("policy action: log",
			zap.String("event_id", event.ID),
			zap.String("policy_id", alert.PolicyID),
			zap.String("rule_id", alert.RuleID),
			zap.String("severity", string(alert.Severity)))
		return types.ActionOutcome{Type: act.Type, Outcome: types.OutcomeLogged}

	case types.ActionAlert:
		d.logger.Warn("policy action: alert",
			zap.String("event_id", event.ID),
			zap.String("policy_id", alert.PolicyID),
			zap.String("rule_id", alert.RuleID),
			zap.Strings("labels", alert.MatchedLabels))
		return types.ActionOutcome{Type: act.Type, Outcome: types.OutcomeAlerted}

	case types.ActionBlock, types.ActionQuarantine:
		// The engine only decides; the endpoint enforcement point applies
		// the block or quarantine.
		d.logger.Warn("policy action: advisory enforcement decision",
			zap.String("action", string(act.Type)),
			zap.String("event_id", event.ID),
			zap.String("policy_id", alert.PolicyID),
			zap.String("rule_id", alert.RuleID))
		return types.ActionOutcome{Type: act.Type, Outcome: types.OutcomeAdvisory}
	}

	return types.ActionOutcome{Type: act.Type, Outcome: types.OutcomeFailed}
}
