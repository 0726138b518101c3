package streamsync

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleConfigYAML = `
eventTime:
  eventTimeField: ts
  watermarkDelaySeconds: 5
  maxOutOfOrdernessSeconds: 2
  mode: event_time
window:
  type: session
  windowSizeSeconds: 30
  sessionTimeoutSeconds: 120
  aggField: amount
  aggFuncs: [count, sum, avg]
latePolicy: side_output
rules:
  - ruleId: high-value
    name: high value orders
    pattern:
      - table: orders
        amount:
          op: ">"
          value: 1000
    enabled: true
    windowSeconds: 60
`

func TestParseConfig(t *testing.T) {
	config, err := ParseConfig([]byte(sampleConfigYAML))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	if config.EventTime.EventTimeField != "ts" {
		t.Errorf("eventTimeField = %q, want ts", config.EventTime.EventTimeField)
	}
	if config.EventTime.WatermarkDelaySeconds != 5 || config.EventTime.MaxOutOfOrdernessSeconds != 2 {
		t.Errorf("watermark settings = %d/%d, want 5/2",
			config.EventTime.WatermarkDelaySeconds, config.EventTime.MaxOutOfOrdernessSeconds)
	}
	if config.EventTime.Mode != TimeModeEvent {
		t.Errorf("mode = %v, want event_time", config.EventTime.Mode)
	}
	if config.Window.Type != WindowSession || config.Window.SessionTimeoutSeconds != 120 {
		t.Errorf("window = %v/%d, want session/120", config.Window.Type, config.Window.SessionTimeoutSeconds)
	}
	if len(config.Window.AggFuncs) != 3 || config.Window.AggFuncs[2] != AggMean {
		t.Errorf("aggFuncs = %v, want [count sum mean]", config.Window.AggFuncs)
	}
	if config.LatePolicy != LateDataSideOutput {
		t.Errorf("latePolicy = %v, want side_output", config.LatePolicy)
	}

	if len(config.Rules) != 1 {
		t.Fatalf("rules = %d, want 1", len(config.Rules))
	}
	rule := config.Rules[0]
	if rule.RuleID != "high-value" || !rule.Enabled || rule.WindowSeconds != 60 {
		t.Errorf("rule = %+v", rule)
	}
	if len(rule.Pattern) != 1 {
		t.Fatalf("pattern steps = %d, want 1", len(rule.Pattern))
	}
	if rule.Pattern[0]["table"] != "orders" {
		t.Errorf("pattern table = %v, want orders", rule.Pattern[0]["table"])
	}
}

func TestParseConfigDefaults(t *testing.T) {
	config, err := ParseConfig([]byte("window:\n  type: tumbling\n"))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if config.EventTime.EventTimeField != "timestamp" {
		t.Errorf("default eventTimeField = %q", config.EventTime.EventTimeField)
	}
	if config.Window.WindowSizeSeconds != 60 {
		t.Errorf("default window size = %d, want 60", config.Window.WindowSizeSeconds)
	}
	if config.LatePolicy != LateDataDrop {
		t.Errorf("default latePolicy = %v, want drop", config.LatePolicy)
	}
}

func TestParseConfigErrors(t *testing.T) {
	if _, err := ParseConfig([]byte("window: [not a map]")); err == nil {
		t.Error("malformed yaml should fail")
	}
	if _, err := ParseConfig([]byte("latePolicy: discard")); err == nil {
		t.Error("unknown late policy should fail")
	}
	if _, err := ParseConfig([]byte("window:\n  type: hopping")); err == nil {
		t.Error("unknown window type should fail")
	}
	if _, err := ParseConfig([]byte("rules:\n  - name: missing id\n    pattern:\n      - type: A")); err == nil {
		t.Error("rule without ruleId should fail")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleConfigYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if config.Window.Type != WindowSession {
		t.Errorf("window type = %v, want session", config.Window.Type)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}

const sampleRuleSetYAML = `
apiVersion: streamsync/v1
kind: RuleSet
metadata:
  name: fraud-rules
  labels:
    team: payments
spec:
  rules:
    - ruleId: rapid-retries
      name: rapid payment retries
      pattern:
        - type: payment_failed
        - type: payment_failed
        - type: payment_failed
      conditions:
        table: payments
      enabled: true
      windowSeconds: 120
    - ruleId: refund-after-order
      pattern:
        - type: order
        - type: refund
      enabled: true
`

func TestParseRules(t *testing.T) {
	rules, err := ParseRules([]byte(sampleRuleSetYAML))
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("rules = %d, want 2", len(rules))
	}
	if rules[0].RuleID != "rapid-retries" || len(rules[0].Pattern) != 3 {
		t.Errorf("rule 0 = %+v", rules[0])
	}
	if rules[0].Conditions["table"] != "payments" {
		t.Errorf("rule 0 conditions = %v", rules[0].Conditions)
	}
	// Unset windows get the default budget.
	if rules[1].WindowSeconds != 300 {
		t.Errorf("rule 1 windowSeconds = %d, want 300", rules[1].WindowSeconds)
	}
}

func TestParseRulesErrors(t *testing.T) {
	if _, err := ParseRules([]byte("kind: AlertPolicy")); err == nil {
		t.Error("wrong kind should fail")
	}

	duplicate := `
kind: RuleSet
spec:
  rules:
    - ruleId: r1
      pattern: [{type: A}]
    - ruleId: r1
      pattern: [{type: B}]
`
	if _, err := ParseRules([]byte(duplicate)); err == nil {
		t.Error("duplicate ruleId should fail")
	}

	emptyPattern := `
kind: RuleSet
spec:
  rules:
    - ruleId: r1
`
	if _, err := ParseRules([]byte(emptyPattern)); err == nil {
		t.Error("empty pattern should fail")
	}
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(sampleRuleSetYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if len(rules) != 2 {
		t.Errorf("rules = %d, want 2", len(rules))
	}
}

func TestEnumParsers(t *testing.T) {
	if mode, err := ParseTimeMode("processing"); err != nil || mode != TimeModeProcessing {
		t.Errorf("ParseTimeMode(processing) = %v, %v", mode, err)
	}
	if _, err := ParseTimeMode("ingest"); err == nil {
		t.Error("unknown time mode should fail")
	}
	if policy, err := ParseLateDataPolicy("buffer"); err != nil || policy != LateDataBuffer {
		t.Errorf("ParseLateDataPolicy(buffer) = %v, %v", policy, err)
	}
	if wt, err := ParseWindowType("sliding"); err != nil || wt != WindowSliding {
		t.Errorf("ParseWindowType(sliding) = %v, %v", wt, err)
	}
}
