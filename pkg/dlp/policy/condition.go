package policy

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/patterns"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/state"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/types"
)

// EvalInput is everything a condition tree can read while evaluating one
// event. Conditions never mutate the event or classification; only
// frequency conditions touch the tracker.
type EvalInput struct {
	Event          *types.Event
	Classification *types.ClassificationResult
	Tracker        *state.Tracker
	PolicyID       string
	RuleID         string
}

// Condition is one compiled node of a rule's condition tree.
type Condition interface {
	evaluate(in *EvalInput) bool
}

type compositeOp int

const (
	opAnd compositeOp = iota
	opOr
	opNot
)

type compositeCondition struct {
	op       compositeOp
	children []Condition
}

// evaluate short-circuits: AND stops at the first false child, OR at the
// first true one.
func (c *compositeCondition) evaluate(in *EvalInput) bool {
	switch c.op {
	case opAnd:
		for _, child := range c.children {
			if !child.evaluate(in) {
				return false
			}
		}
		return true
	case opOr:
		for _, child := range c.children {
			if child.evaluate(in) {
				return true
			}
		}
		return false
	case opNot:
		return !c.children[0].evaluate(in)
	}
	return false
}

type leafOp int

const (
	opEquals leafOp = iota
	opNotEquals
	opGreaterThan
	opGreaterEqual
	opLessThan
	opLessEqual
	opContains
	opNotContains
	opIn
	opNotIn
	opRegex
	opExists
	opNotExists
	opChecksumValid
)

var leafOps = map[string]leafOp{
	"equals":         opEquals,
	"not_equals":     opNotEquals,
	"greater_than":   opGreaterThan,
	"greater_equal":  opGreaterEqual,
	"less_than":      opLessThan,
	"less_equal":     opLessEqual,
	"contains":       opContains,
	"not_contains":   opNotContains,
	"in":             opIn,
	"not_in":         opNotIn,
	"regex":          opRegex,
	"exists":         opExists,
	"not_exists":     opNotExists,
	"checksum_valid": opChecksumValid,
}

type leafCondition struct {
	field string
	op    leafOp
	value any
	// re is compiled once at policy load; evaluation never re-parses.
	re *regexp.Regexp
}

// evaluate resolves the field and applies the operator. An unknown field
// resolves to the distinguished absent value: equality and containment
// are false, exists is false, negated forms are true. Unexpected shapes
// behave the same way; evaluation never raises.
func (l *leafCondition) evaluate(in *EvalInput) bool {
	val, present := resolveField(in, l.field)

	switch l.op {
	case opExists:
		return present
	case opNotExists:
		return !present
	}

	if !present {
		switch l.op {
		case opNotEquals, opNotContains, opNotIn:
			return true
		}
		return false
	}

	switch l.op {
	case opEquals:
		return equalValues(val, l.value)
	case opNotEquals:
		return !equalValues(val, l.value)
	case opGreaterThan, opGreaterEqual, opLessThan, opLessEqual:
		a, aok := toFloat(val)
		b, bok := toFloat(l.value)
		if !aok || !bok {
			return false
		}
		switch l.op {
		case opGreaterThan:
			return a > b
		case opGreaterEqual:
			return a >= b
		case opLessThan:
			return a < b
		default:
			return a <= b
		}
	case opContains:
		return containsValue(val, l.value)
	case opNotContains:
		return !containsValue(val, l.value)
	case opIn:
		return inList(val, l.value)
	case opNotIn:
		return !inList(val, l.value)
	case opRegex:
		s, ok := toString(val)
		return ok && l.re.MatchString(s)
	case opChecksumValid:
		s, ok := toString(val)
		if !ok {
			return false
		}
		digits := strings.NewReplacer("-", "", " ", "").Replace(s)
		return patterns.Luhn(digits)
	}

	return false
}

// frequencyCondition matches when the count of events satisfying the
// sub-condition for this subject within the window exceeds the threshold.
// The counter is keyed by (subject, policy, rule) and only incremented
// when the sub-condition matches the current event.
type frequencyCondition struct {
	sub       Condition
	window    time.Duration
	threshold int
	distinct  string
}

func (f *frequencyCondition) evaluate(in *EvalInput) bool {
	if in.Tracker == nil {
		return false
	}
	if !f.sub.evaluate(in) {
		return false
	}

	distinctValue := ""
	if f.distinct != "" {
		if v, ok := resolveField(in, f.distinct); ok {
			distinctValue, _ = toString(v)
		}
	}

	key := state.Key(in.Event.Subject, in.PolicyID, in.RuleID)
	count := in.Tracker.RecordAndCount(key, in.Event.Timestamp, f.window, distinctValue, f.distinct != "")
	return count > f.threshold
}

// resolveField looks up a dotted path against the event, its metadata, or
// the classification result. The second return value is false for unknown
// paths and missing metadata keys.
func resolveField(in *EvalInput, path string) (any, bool) {
	head, rest, _ := strings.Cut(path, ".")

	switch head {
	case "event":
		if rest == "" {
			return nil, false
		}
		return resolveEventField(in.Event, rest)
	case "metadata":
		if rest == "" || in.Event.Metadata == nil {
			return nil, false
		}
		v, ok := in.Event.Metadata[rest]
		return v, ok
	case "classification":
		return resolveClassificationField(in.Classification, rest)
	default:
		// Bare field names address the event directly.
		return resolveEventField(in.Event, path)
	}
}

func resolveEventField(ev *types.Event, path string) (any, bool) {
	switch path {
	case "id", "identifier", "event_id":
		return ev.ID, true
	case "subject":
		return ev.Subject, true
	case "kind", "type":
		return string(ev.Kind), true
	case "content":
		if ev.Content == "" {
			return nil, false
		}
		return ev.Content, true
	case "content_ref":
		if ev.ContentRef == "" {
			return nil, false
		}
		return ev.ContentRef, true
	case "timestamp":
		return ev.Timestamp.Format(time.RFC3339Nano), true
	}

	return nil, false
}

func resolveClassificationField(cls *types.ClassificationResult, path string) (any, bool) {
	if cls == nil {
		return nil, false
	}

	switch path {
	case "labels":
		return cls.LabelNames(), true
	case "score", "confidence", "aggregate_confidence":
		return cls.AggregateConfidence, true
	case "fingerprint":
		return cls.Fingerprint, true
	case "truncated":
		return cls.Truncated, true
	case "incomplete":
		return cls.Incomplete, true
	}

	// labels.<NAME> resolves to that label's confidence.
	if name, ok := strings.CutPrefix(path, "labels."); ok {
		for _, l := range cls.Labels {
			if l.Name == name {
				return l.Confidence, true
			}
		}
		return nil, false
	}

	return nil, false
}

// equalValues compares across the narrow set of shapes field resolution
// can produce: strings, numbers, and bools.
func equalValues(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	if ab, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			return ab == bb
		}
	}
	as, aok := toString(a)
	bs, bok := toString(b)
	return aok && bok && as == bs
}

// containsValue handles both substring containment and list membership of
// the condition value in the resolved field.
func containsValue(val, needle any) bool {
	switch v := val.(type) {
	case string:
		s, ok := toString(needle)
		return ok && strings.Contains(v, s)
	case []string:
		for _, item := range v {
			if equalValues(item, needle) {
				return true
			}
		}
	case []any:
		for _, item := range v {
			if equalValues(item, needle) {
				return true
			}
		}
	}
	return false
}

// inList reports whether val is a member of the condition's list value.
func inList(val, list any) bool {
	items, ok := list.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if equalValues(val, item) {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func toString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case bool:
		return strconv.FormatBool(s), true
	case float64, float32, int, int64, uint64:
		return fmt.Sprint(s), true
	}
	return "", false
}
