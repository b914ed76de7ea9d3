package patterns

import (
	"regexp"
	"strings"

	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/types"
)

// Detector is the common capability all detection methods implement.
// Detect returns every hit found in content; an error aborts only this
// detector, never the scan as a whole.
type Detector interface {
	Name() string
	Label() string
	Method() types.DetectionMethod
	Detect(content string) ([]types.Match, error)
}

// Registry holds the detectors applied to every scan, in registration
// order.
type Registry struct {
	detectors []Detector
	byName    map[string]Detector
}

// NewRegistry creates a registry preloaded with the built-in detectors.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]Detector)}

	r.Register(NewCardDetector())
	r.Register(NewSSNDetector())
	r.Register(NewEmailDetector())
	r.Register(NewPhoneDetector())
	r.Register(NewCredentialDetector())
	r.Register(NewEntropyDetector(DefaultEntropyConfig()))

	return r
}

// NewEmptyRegistry creates a registry with no detectors registered.
func NewEmptyRegistry() *Registry {
	return &Registry{byName: make(map[string]Detector)}
}

// Register adds a detector. A detector with the same name replaces the
// previous registration in place.
func (r *Registry) Register(d Detector) {
	if _, ok := r.byName[d.Name()]; ok {
		for i, existing := range r.detectors {
			if existing.Name() == d.Name() {
				r.detectors[i] = d
				break
			}
		}
	} else {
		r.detectors = append(r.detectors, d)
	}
	r.byName[d.Name()] = d
}

// Get returns the named detector, or nil.
func (r *Registry) Get(name string) Detector {
	return r.byName[name]
}

// Detectors returns all registered detectors in registration order.
func (r *Registry) Detectors() []Detector {
	return r.detectors
}

// CardDetector finds payment-card-like digit groups and validates them
// with the Luhn checksum. Sequences that fail the checksum are kept with
// reduced confidence: partially redacted card numbers still matter, they
// are just weaker evidence.
type CardDetector struct {
	pattern *regexp.Regexp
}

// Confidence assigned to card-like sequences by checksum outcome. An
// invalid checksum down-weights, it never discards.
const (
	cardConfidenceValid   = 1.0
	cardConfidenceInvalid = 0.3
)

func NewCardDetector() *CardDetector {
	// 13-19 digits, optionally grouped by spaces or dashes, anchored on
	// the major issuer prefixes.
	pattern := regexp.MustCompile(`\b(?:4[0-9]{3}|5[1-5][0-9]{2}|3[47][0-9]{2}|6(?:011|5[0-9]{2}))(?:[-\s]?[0-9]{4}){2,3}(?:[-\s]?[0-9]{1,4})?\b`)
	return &CardDetector{pattern: pattern}
}

func (d *CardDetector) Name() string                  { return "card" }
func (d *CardDetector) Label() string                 { return types.LabelPAN }
func (d *CardDetector) Method() types.DetectionMethod { return types.MethodChecksum }

func (d *CardDetector) Detect(content string) ([]types.Match, error) {
	var matches []types.Match

	for _, loc := range d.pattern.FindAllStringIndex(content, -1) {
		value := content[loc[0]:loc[1]]
		digits := stripSeparators(value)
		if len(digits) < 13 || len(digits) > 19 {
			continue
		}

		confidence := cardConfidenceValid
		method := types.MethodChecksum
		if !Luhn(digits) {
			confidence = cardConfidenceInvalid
			method = types.MethodPattern
		}

		matches = append(matches, types.Match{
			Label:      d.Label(),
			Value:      value,
			StartPos:   loc[0],
			EndPos:     loc[1],
			Confidence: confidence,
			Method:     method,
		})
	}

	return matches, nil
}

// SSNDetector finds US Social Security Numbers.
type SSNDetector struct {
	pattern *regexp.Regexp
}

func NewSSNDetector() *SSNDetector {
	pattern := regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	return &SSNDetector{pattern: pattern}
}

func (d *SSNDetector) Name() string                  { return "ssn" }
func (d *SSNDetector) Label() string                 { return types.LabelSSN }
func (d *SSNDetector) Method() types.DetectionMethod { return types.MethodPattern }

func (d *SSNDetector) Detect(content string) ([]types.Match, error) {
	var matches []types.Match

	for _, loc := range d.pattern.FindAllStringIndex(content, -1) {
		value := content[loc[0]:loc[1]]
		digits := stripSeparators(value)
		if !plausibleSSN(digits) {
			continue
		}

		matches = append(matches, types.Match{
			Label:      d.Label(),
			Value:      value,
			StartPos:   loc[0],
			EndPos:     loc[1],
			Confidence: 0.9,
			Method:     types.MethodPattern,
		})
	}

	return matches, nil
}

// plausibleSSN filters area/group/serial values the SSA never issues.
func plausibleSSN(digits string) bool {
	if len(digits) != 9 {
		return false
	}
	area := digits[:3]
	if area == "000" || area == "666" || area[0] == '9' {
		return false
	}
	if digits[3:5] == "00" || digits[5:] == "0000" {
		return false
	}
	return true
}

// EmailDetector finds email address shapes.
type EmailDetector struct {
	pattern *regexp.Regexp
}

func NewEmailDetector() *EmailDetector {
	pattern := regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	return &EmailDetector{pattern: pattern}
}

func (d *EmailDetector) Name() string                  { return "email" }
func (d *EmailDetector) Label() string                 { return types.LabelEmail }
func (d *EmailDetector) Method() types.DetectionMethod { return types.MethodPattern }

func (d *EmailDetector) Detect(content string) ([]types.Match, error) {
	var matches []types.Match

	for _, loc := range d.pattern.FindAllStringIndex(content, -1) {
		matches = append(matches, types.Match{
			Label:      d.Label(),
			Value:      content[loc[0]:loc[1]],
			StartPos:   loc[0],
			EndPos:     loc[1],
			Confidence: 0.9,
			Method:     types.MethodPattern,
		})
	}

	return matches, nil
}

// PhoneDetector finds US and international phone number shapes.
type PhoneDetector struct {
	pattern *regexp.Regexp
}

func NewPhoneDetector() *PhoneDetector {
	pattern := regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?[0-9]{3}\)?[-.\s][0-9]{3}[-.\s]?[0-9]{4}\b`)
	return &PhoneDetector{pattern: pattern}
}

func (d *PhoneDetector) Name() string                  { return "phone" }
func (d *PhoneDetector) Label() string                 { return types.LabelPhone }
func (d *PhoneDetector) Method() types.DetectionMethod { return types.MethodPattern }

func (d *PhoneDetector) Detect(content string) ([]types.Match, error) {
	var matches []types.Match

	for _, loc := range d.pattern.FindAllStringIndex(content, -1) {
		value := content[loc[0]:loc[1]]
		confidence := 0.7
		if strings.Contains(value, "(") || strings.Contains(value, "-") {
			confidence = 0.8
		}

		matches = append(matches, types.Match{
			Label:      d.Label(),
			Value:      value,
			StartPos:   loc[0],
			EndPos:     loc[1],
			Confidence: confidence,
			Method:     types.MethodPattern,
		})
	}

	return matches, nil
}

// CredentialDetector finds credential-token prefixes and key/secret
// assignments.
type CredentialDetector struct {
	prefixes   *regexp.Regexp
	assignment *regexp.Regexp
}

func NewCredentialDetector() *CredentialDetector {
	// Well-known token prefixes: AWS access keys, GitHub tokens, Stripe
	// keys, Slack tokens.
	prefixes := regexp.MustCompile(`\b(?:AKIA[0-9A-Z]{16}|ghp_[A-Za-z0-9]{36}|gh[ours]_[A-Za-z0-9]{36}|sk_(?:live|test)_[A-Za-z0-9]{16,}|xox[bpoa]-[A-Za-z0-9-]{10,})\b`)
	assignment := regexp.MustCompile(`(?i)(?:api[_-]?key|secret|password|token)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-!@#$%^&*]{8,})["']?`)
	return &CredentialDetector{prefixes: prefixes, assignment: assignment}
}

func (d *CredentialDetector) Name() string                  { return "credential" }
func (d *CredentialDetector) Label() string                 { return types.LabelAPIKey }
func (d *CredentialDetector) Method() types.DetectionMethod { return types.MethodPattern }

func (d *CredentialDetector) Detect(content string) ([]types.Match, error) {
	var matches []types.Match

	for _, loc := range d.prefixes.FindAllStringIndex(content, -1) {
		matches = append(matches, types.Match{
			Label:      types.LabelAPIKey,
			Value:      content[loc[0]:loc[1]],
			StartPos:   loc[0],
			EndPos:     loc[1],
			Confidence: 0.95,
			Method:     types.MethodPattern,
		})
	}

	for _, loc := range d.assignment.FindAllStringIndex(content, -1) {
		matches = append(matches, types.Match{
			Label:      types.LabelSecret,
			Value:      content[loc[0]:loc[1]],
			StartPos:   loc[0],
			EndPos:     loc[1],
			Confidence: 0.8,
			Method:     types.MethodPattern,
		})
	}

	return matches, nil
}

func stripSeparators(s string) string {
	return strings.NewReplacer("-", "", " ", "", ".", "").Replace(s)
}
