package policy

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Document is the wire form of a policy as delivered by the policy
// repository. Policies are declarative: nothing here executes until the
// document is compiled.
type Document struct {
	ID          string         `yaml:"id" json:"id"`
	Name        string         `yaml:"name" json:"name"`
	Version     string         `yaml:"version" json:"version"`
	Enabled     *bool          `yaml:"enabled" json:"enabled"`
	Priority    int            `yaml:"priority" json:"priority"`
	StopOnMatch bool           `yaml:"stop_on_match" json:"stop_on_match"`
	Rules       []RuleDocument `yaml:"rules" json:"rules"`
}

// IsEnabled applies the default: a policy with no explicit enabled flag
// is enabled.
func (d *Document) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// RuleDocument is one rule within a policy document.
type RuleDocument struct {
	ID        string            `yaml:"id" json:"id"`
	Name      string            `yaml:"name" json:"name"`
	Severity  string            `yaml:"severity" json:"severity"`
	Condition ConditionDocument `yaml:"condition" json:"condition"`
	Actions   []ActionDocument  `yaml:"actions" json:"actions"`
}

// ConditionDocument is one node of the condition tree. A node is either a
// composite (op + children), a frequency condition (window + threshold +
// match), or a leaf (field + operator + value).
type ConditionDocument struct {
	// Composite form.
	Op       string              `yaml:"op" json:"op"`
	Children []ConditionDocument `yaml:"children" json:"children"`

	// Leaf form.
	Field    string `yaml:"field" json:"field"`
	Operator string `yaml:"operator" json:"operator"`
	Value    any    `yaml:"value" json:"value"`

	// Frequency form. Window is a duration string ("30s", "5m", "1h").
	Window    string             `yaml:"window" json:"window"`
	Threshold int                `yaml:"threshold" json:"threshold"`
	Distinct  string             `yaml:"distinct_field" json:"distinct_field"`
	Match     *ConditionDocument `yaml:"match" json:"match"`
}

// ActionDocument is one declared action. Declaring an action has no side
// effect; only dispatch does.
type ActionDocument struct {
	Type       string            `yaml:"type" json:"type"`
	Parameters map[string]string `yaml:"parameters" json:"parameters"`
}

// ParseDocument decodes a single YAML policy document. YAML is a strict
// superset of JSON, so JSON policy documents parse through the same path.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy document: %w", err)
	}
	return &doc, nil
}
