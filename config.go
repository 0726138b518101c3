package streamsync

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config aggregates the engine configuration. It is supplied at
// construction and immutable per engine instance.
type Config struct {
	// EventTime configures timestamp extraction and watermarking.
	EventTime EventTimeConfig `yaml:"eventTime"`

	// Window configures the windowing processor.
	Window WindowConfig `yaml:"window"`

	// LatePolicy decides what happens to late events.
	LatePolicy LateDataPolicy `yaml:"latePolicy"`

	// Rules is the initial CEP rule set. Rules may also be added and
	// removed at runtime through the CEP processor.
	Rules []CEPRule `yaml:"rules,omitempty"`
}

// DefaultConfig returns the default engine configuration: event-time
// mode with a 10s watermark delay, tumbling 60s windows, and the drop
// policy for late data.
func DefaultConfig() Config {
	return Config{
		EventTime:  DefaultEventTimeConfig(),
		Window:     DefaultWindowConfig(),
		LatePolicy: LateDataDrop,
	}
}

func (c *Config) applyDefaults() {
	if c.EventTime.EventTimeField == "" {
		c.EventTime.EventTimeField = "timestamp"
	}
	if c.Window.WindowSizeSeconds <= 0 {
		c.Window.WindowSizeSeconds = 60
	}
	if c.Window.SessionTimeoutSeconds <= 0 {
		c.Window.SessionTimeoutSeconds = 300
	}
	for i := range c.Rules {
		if c.Rules[i].WindowSeconds <= 0 {
			c.Rules[i].WindowSeconds = 300
		}
	}
}

// LoadConfig reads an engine configuration from a YAML file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes an engine configuration from YAML.
func ParseConfig(data []byte) (Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	config.applyDefaults()
	if err := validateRules(config.Rules); err != nil {
		return Config{}, err
	}
	return config, nil
}

// RuleSet is the declarative envelope for a CEP rule file.
type RuleSet struct {
	APIVersion string          `yaml:"apiVersion"`
	Kind       string          `yaml:"kind"`
	Metadata   RuleSetMetadata `yaml:"metadata"`
	Spec       RuleSetSpec     `yaml:"spec"`
}

// RuleSetMetadata labels a rule set.
type RuleSetMetadata struct {
	Name   string            `yaml:"name"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

// RuleSetSpec carries the rules themselves.
type RuleSetSpec struct {
	Rules []CEPRule `yaml:"rules"`
}

// LoadRules reads a declarative rule set from a YAML file.
func LoadRules(path string) ([]CEPRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes a declarative rule set. The document must be of
// kind RuleSet; each rule needs a ruleId and a non-empty pattern.
func ParseRules(data []byte) ([]CEPRule, error) {
	var set RuleSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if set.Kind != "" && set.Kind != "RuleSet" {
		return nil, fmt.Errorf("unexpected kind %q, want RuleSet", set.Kind)
	}
	if err := validateRules(set.Spec.Rules); err != nil {
		return nil, err
	}
	for i := range set.Spec.Rules {
		if set.Spec.Rules[i].WindowSeconds <= 0 {
			set.Spec.Rules[i].WindowSeconds = 300
		}
	}
	return set.Spec.Rules, nil
}

func validateRules(rules []CEPRule) error {
	seen := make(map[string]bool, len(rules))
	for i, rule := range rules {
		if rule.RuleID == "" {
			return fmt.Errorf("rule %d: ruleId is required", i)
		}
		if seen[rule.RuleID] {
			return fmt.Errorf("rule %d: duplicate ruleId %q", i, rule.RuleID)
		}
		seen[rule.RuleID] = true
		if len(rule.Pattern) == 0 {
			return fmt.Errorf("rule %q: pattern must not be empty", rule.RuleID)
		}
	}
	return nil
}

// ParseTimeMode parses a time mode name.
func ParseTimeMode(name string) (TimeMode, error) {
	switch name {
	case "event_time", "event":
		return TimeModeEvent, nil
	case "processing_time", "processing":
		return TimeModeProcessing, nil
	default:
		return TimeModeEvent, fmt.Errorf("unknown time mode: %q", name)
	}
}

// UnmarshalYAML decodes a time mode from its name.
func (m *TimeMode) UnmarshalYAML(unmarshal func(any) error) error {
	var name string
	if err := unmarshal(&name); err != nil {
		return err
	}
	parsed, err := ParseTimeMode(name)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalYAML encodes a time mode as its name.
func (m TimeMode) MarshalYAML() (any, error) {
	return m.String(), nil
}

// ParseLateDataPolicy parses a late-data policy name.
func ParseLateDataPolicy(name string) (LateDataPolicy, error) {
	switch name {
	case "drop":
		return LateDataDrop, nil
	case "side_output":
		return LateDataSideOutput, nil
	case "buffer":
		return LateDataBuffer, nil
	default:
		return LateDataDrop, fmt.Errorf("unknown late data policy: %q", name)
	}
}

// UnmarshalYAML decodes a late-data policy from its name.
func (p *LateDataPolicy) UnmarshalYAML(unmarshal func(any) error) error {
	var name string
	if err := unmarshal(&name); err != nil {
		return err
	}
	parsed, err := ParseLateDataPolicy(name)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalYAML encodes a late-data policy as its name.
func (p LateDataPolicy) MarshalYAML() (any, error) {
	return p.String(), nil
}

// ParseWindowType parses a window type name.
func ParseWindowType(name string) (WindowType, error) {
	switch name {
	case "tumbling":
		return WindowTumbling, nil
	case "sliding":
		return WindowSliding, nil
	case "session":
		return WindowSession, nil
	default:
		return WindowTumbling, fmt.Errorf("unknown window type: %q", name)
	}
}

// UnmarshalYAML decodes a window type from its name.
func (t *WindowType) UnmarshalYAML(unmarshal func(any) error) error {
	var name string
	if err := unmarshal(&name); err != nil {
		return err
	}
	parsed, err := ParseWindowType(name)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalYAML encodes a window type as its name.
func (t WindowType) MarshalYAML() (any, error) {
	return t.String(), nil
}
