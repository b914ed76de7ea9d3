package types

import (
	"time"
)

// EventKind identifies the sensor channel an event originated from.
type EventKind string

const (
	EventKindFile      EventKind = "file"
	EventKindClipboard EventKind = "clipboard"
	EventKindUSB       EventKind = "usb"
	EventKindNetwork   EventKind = "network"
)

// ValidEventKind reports whether k is one of the supported channels.
func ValidEventKind(k EventKind) bool {
	switch k {
	case EventKindFile, EventKindClipboard, EventKindUSB, EventKindNetwork:
		return true
	}
	return false
}

// Severity represents the severity assigned to a rule or alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ValidSeverity reports whether s is a known severity level.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// SeverityRank orders severities for escalation comparisons. Unknown
// severities rank below low.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// MaxSeverity returns the higher-ranked of a and b.
func MaxSeverity(a, b Severity) Severity {
	if SeverityRank(b) > SeverityRank(a) {
		return b
	}
	return a
}

// DetectionMethod identifies which detection technique produced a label.
type DetectionMethod string

const (
	MethodPattern     DetectionMethod = "pattern"
	MethodChecksum    DetectionMethod = "checksum"
	MethodEntropy     DetectionMethod = "entropy"
	MethodFingerprint DetectionMethod = "fingerprint"
)

// Built-in sensitive data labels. Policies reference these by name; custom
// detectors may introduce additional labels.
const (
	LabelPAN         = "PAN"
	LabelSSN         = "SSN"
	LabelEmail       = "EMAIL"
	LabelPhone       = "PHONE"
	LabelAPIKey      = "API_KEY"
	LabelSecret      = "SECRET"
	LabelHighEntropy = "HIGH_ENTROPY"
	LabelKnownDoc    = "KNOWN_SENSITIVE_DOC"
)

// Event is a single observation reported by an endpoint sensor. Events are
// immutable once submitted; timestamps reflect when the endpoint observed
// the activity, not arrival order.
type Event struct {
	ID         string            `json:"identifier"`
	Subject    string            `json:"subject"`
	Kind       EventKind         `json:"kind"`
	Content    string            `json:"content,omitempty"`
	ContentRef string            `json:"content_ref,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// HasContent reports whether inline content was provided.
func (e *Event) HasContent() bool {
	return e.Content != ""
}

// Match is a single detector hit within scanned content.
type Match struct {
	Label      string          `json:"label"`
	Value      string          `json:"value"`
	StartPos   int             `json:"start_pos"`
	EndPos     int             `json:"end_pos"`
	Confidence float64         `json:"confidence"`
	Method     DetectionMethod `json:"method"`
}

// LabelScore is one aggregated (label, confidence, method) tuple in a
// classification result.
type LabelScore struct {
	Name       string          `json:"name"`
	Confidence float64         `json:"confidence"`
	Method     DetectionMethod `json:"method"`
}

// ClassificationResult is the immutable output of classifying one event's
// content. Exactly one result exists per event.
type ClassificationResult struct {
	Labels              []LabelScore `json:"labels"`
	AggregateConfidence float64      `json:"aggregate_confidence"`
	Fingerprint         string       `json:"fingerprint"`
	Truncated           bool         `json:"truncated"`
	// Incomplete is set when the per-event deadline expired before every
	// detector ran; labels found so far are still reported.
	Incomplete bool `json:"incomplete,omitempty"`
	// DetectorFailures lists detectors that errored during the scan. A
	// failed detector never clears matches already found by others.
	DetectorFailures []string `json:"detector_failures,omitempty"`
}

// HasLabel reports whether the result contains the named label.
func (c *ClassificationResult) HasLabel(name string) bool {
	for _, l := range c.Labels {
		if l.Name == name {
			return true
		}
	}
	return false
}

// LabelNames returns the label names in result order.
func (c *ClassificationResult) LabelNames() []string {
	names := make([]string, 0, len(c.Labels))
	for _, l := range c.Labels {
		names = append(names, l.Name)
	}
	return names
}

// ActionType enumerates the closed set of enforcement effects a rule can
// request. Adding a kind is a compile-time change in the dispatcher.
type ActionType string

const (
	ActionLog        ActionType = "log"
	ActionAlert      ActionType = "alert"
	ActionBlock      ActionType = "block"
	ActionQuarantine ActionType = "quarantine"
	ActionNotify     ActionType = "notify"
)

// ValidActionType reports whether t names a supported action.
func ValidActionType(t ActionType) bool {
	switch t {
	case ActionLog, ActionAlert, ActionBlock, ActionQuarantine, ActionNotify:
		return true
	}
	return false
}

// Action outcome values. Block and quarantine are advisory: the engine
// returns the decision and an external enforcement point applies it.
const (
	OutcomeLogged     = "logged"
	OutcomeAlerted    = "alerted"
	OutcomeAdvisory   = "advisory"
	OutcomeDispatched = "dispatched"
	OutcomeFailed     = "failed"
)

// ActionOutcome records the result of dispatching one action.
type ActionOutcome struct {
	Type    ActionType `json:"type"`
	Outcome string     `json:"outcome"`
}

// Alert is the auditable record produced when a rule matches. Alerts are
// append-only and immutable once created.
type Alert struct {
	ID            string          `json:"id"`
	EventID       string          `json:"event_id"`
	PolicyID      string          `json:"policy_id"`
	RuleID        string          `json:"rule_id"`
	Severity      Severity        `json:"severity"`
	MatchedLabels []string        `json:"matched_labels"`
	ActionsTaken  []ActionOutcome `json:"actions_taken"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Blocked reports whether any dispatched action requested a block or
// quarantine decision.
func (a *Alert) Blocked() bool {
	for _, out := range a.ActionsTaken {
		if (out.Type == ActionBlock || out.Type == ActionQuarantine) && out.Outcome == OutcomeAdvisory {
			return true
		}
	}
	return false
}
