package policy

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/types"
)

// CompiledPolicy is a policy with every regex and condition tree compiled.
// Per-event evaluation only walks pre-built structures.
type CompiledPolicy struct {
	ID          string
	Name        string
	Version     string
	Enabled     bool
	Priority    int
	StopOnMatch bool
	Rules       []*CompiledRule
}

// CompiledRule is one compiled rule with its ordered action list.
type CompiledRule struct {
	ID        string
	Name      string
	Severity  types.Severity
	Condition Condition
	Actions   []CompiledAction
}

// CompiledAction is a validated action declaration.
type CompiledAction struct {
	Type       types.ActionType
	Parameters map[string]string
}

// Compile validates and compiles a single policy document. Any defect in
// the document fails the whole policy with a PolicyCompileError.
func Compile(doc *Document) (*CompiledPolicy, error) {
	if doc.ID == "" {
		return nil, &types.PolicyCompileError{PolicyID: doc.Name, Err: errors.New("missing policy id")}
	}
	if doc.Name == "" {
		return nil, &types.PolicyCompileError{PolicyID: doc.ID, Err: errors.New("missing policy name")}
	}
	if len(doc.Rules) == 0 {
		return nil, &types.PolicyCompileError{PolicyID: doc.ID, Err: errors.New("policy has no rules")}
	}

	compiled := &CompiledPolicy{
		ID:          doc.ID,
		Name:        doc.Name,
		Version:     doc.Version,
		Enabled:     doc.IsEnabled(),
		Priority:    doc.Priority,
		StopOnMatch: doc.StopOnMatch,
	}

	for i := range doc.Rules {
		cr, err := compileRule(doc.ID, &doc.Rules[i])
		if err != nil {
			return nil, err
		}
		compiled.Rules = append(compiled.Rules, cr)
	}

	return compiled, nil
}

func compileRule(policyID string, rule *RuleDocument) (*CompiledRule, error) {
	if rule.ID == "" {
		return nil, &types.PolicyCompileError{PolicyID: policyID, Err: errors.New("rule missing id")}
	}

	severity := types.Severity(rule.Severity)
	if rule.Severity == "" {
		severity = types.SeverityMedium
	} else if !types.ValidSeverity(severity) {
		return nil, &types.PolicyCompileError{
			PolicyID: policyID,
			RuleID:   rule.ID,
			Err:      fmt.Errorf("unknown severity %q", rule.Severity),
		}
	}

	cond, err := compileCondition(policyID, rule.ID, &rule.Condition)
	if err != nil {
		return nil, err
	}

	if len(rule.Actions) == 0 {
		return nil, &types.PolicyCompileError{PolicyID: policyID, RuleID: rule.ID, Err: errors.New("rule has no actions")}
	}

	actions := make([]CompiledAction, 0, len(rule.Actions))
	for _, a := range rule.Actions {
		at := types.ActionType(a.Type)
		if !types.ValidActionType(at) {
			return nil, &types.PolicyCompileError{
				PolicyID: policyID,
				RuleID:   rule.ID,
				Err:      fmt.Errorf("unknown action type %q", a.Type),
			}
		}
		actions = append(actions, CompiledAction{Type: at, Parameters: a.Parameters})
	}

	return &CompiledRule{
		ID:        rule.ID,
		Name:      rule.Name,
		Severity:  severity,
		Condition: cond,
		Actions:   actions,
	}, nil
}

func compileCondition(policyID, ruleID string, doc *ConditionDocument) (Condition, error) {
	switch {
	case doc.Op != "":
		return compileComposite(policyID, ruleID, doc)
	case doc.Window != "" || doc.Match != nil:
		return compileFrequency(policyID, ruleID, doc)
	case doc.Operator != "":
		return compileLeaf(policyID, ruleID, doc)
	default:
		return nil, &types.PolicyCompileError{
			PolicyID: policyID,
			RuleID:   ruleID,
			Err:      errors.New("condition is neither composite, frequency, nor leaf"),
		}
	}
}

func compileComposite(policyID, ruleID string, doc *ConditionDocument) (Condition, error) {
	var op compositeOp
	switch doc.Op {
	case "AND", "and", "all":
		op = opAnd
	case "OR", "or", "any":
		op = opOr
	case "NOT", "not":
		op = opNot
	default:
		return nil, &types.PolicyCompileError{
			PolicyID: policyID,
			RuleID:   ruleID,
			Err:      fmt.Errorf("unknown composite op %q", doc.Op),
		}
	}

	if len(doc.Children) == 0 {
		return nil, &types.PolicyCompileError{
			PolicyID: policyID,
			RuleID:   ruleID,
			Err:      fmt.Errorf("composite %s has no children", doc.Op),
		}
	}
	if op == opNot && len(doc.Children) != 1 {
		return nil, &types.PolicyCompileError{
			PolicyID: policyID,
			RuleID:   ruleID,
			Err:      fmt.Errorf("NOT takes exactly one child, got %d", len(doc.Children)),
		}
	}

	children := make([]Condition, 0, len(doc.Children))
	for i := range doc.Children {
		child, err := compileCondition(policyID, ruleID, &doc.Children[i])
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	return &compositeCondition{op: op, children: children}, nil
}

func compileFrequency(policyID, ruleID string, doc *ConditionDocument) (Condition, error) {
	if doc.Match == nil {
		return nil, &types.PolicyCompileError{
			PolicyID: policyID,
			RuleID:   ruleID,
			Err:      errors.New("frequency condition missing match sub-condition"),
		}
	}

	window, err := time.ParseDuration(doc.Window)
	if err != nil || window <= 0 {
		return nil, &types.PolicyCompileError{
			PolicyID: policyID,
			RuleID:   ruleID,
			Err:      fmt.Errorf("invalid frequency window %q", doc.Window),
		}
	}
	if doc.Threshold < 0 {
		return nil, &types.PolicyCompileError{
			PolicyID: policyID,
			RuleID:   ruleID,
			Err:      fmt.Errorf("negative frequency threshold %d", doc.Threshold),
		}
	}

	sub, err := compileCondition(policyID, ruleID, doc.Match)
	if err != nil {
		return nil, err
	}

	return &frequencyCondition{
		sub:       sub,
		window:    window,
		threshold: doc.Threshold,
		distinct:  doc.Distinct,
	}, nil
}

func compileLeaf(policyID, ruleID string, doc *ConditionDocument) (Condition, error) {
	op, ok := leafOps[doc.Operator]
	if !ok {
		return nil, &types.PolicyCompileError{
			PolicyID: policyID,
			RuleID:   ruleID,
			Err:      fmt.Errorf("unknown operator %q", doc.Operator),
		}
	}

	if doc.Field == "" {
		return nil, &types.PolicyCompileError{
			PolicyID: policyID,
			RuleID:   ruleID,
			Err:      errors.New("leaf condition missing field"),
		}
	}

	leaf := &leafCondition{field: doc.Field, op: op, value: doc.Value}

	if op == opRegex {
		pattern, ok := doc.Value.(string)
		if !ok {
			return nil, &types.PolicyCompileError{
				PolicyID: policyID,
				RuleID:   ruleID,
				Err:      errors.New("regex operator requires a string value"),
			}
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, &types.PolicyCompileError{
				PolicyID: policyID,
				RuleID:   ruleID,
				Err:      fmt.Errorf("invalid regex %q: %w", pattern, err),
			}
		}
		leaf.re = re
	}

	return leaf, nil
}
