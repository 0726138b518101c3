package streamsync

import (
	"testing"
	"time"
)

func loginFailureRule(window int64) CEPRule {
	return CEPRule{
		RuleID: "failed-logins",
		Name:   "repeated login failures",
		Pattern: []Condition{
			{"type": "login_failure"},
			{"type": "login_failure"},
			{"type": "login_failure"},
		},
		Enabled:       true,
		WindowSeconds: window,
	}
}

func TestAddAndRemoveRule(t *testing.T) {
	cep := NewCEPProcessor()

	if cep.AddRule(CEPRule{Name: "no id"}) {
		t.Error("rule without an id should be rejected")
	}
	if !cep.AddRule(loginFailureRule(60)) {
		t.Error("valid rule should be accepted")
	}

	// Re-adding the same id overwrites.
	overwrite := loginFailureRule(60)
	overwrite.Name = "renamed"
	if !cep.AddRule(overwrite) {
		t.Error("overwrite should be accepted")
	}
	rule, ok := cep.GetRule("failed-logins")
	if !ok || rule.Name != "renamed" {
		t.Errorf("stored rule = %q, %v; want renamed", rule.Name, ok)
	}
	if len(cep.Rules()) != 1 {
		t.Errorf("rules = %d, want 1", len(cep.Rules()))
	}

	if !cep.RemoveRule("failed-logins") {
		t.Error("removing an existing rule should succeed")
	}
	if cep.RemoveRule("failed-logins") {
		t.Error("removing an absent rule should fail")
	}
}

func TestPatternSequenceMatch(t *testing.T) {
	cep := NewCEPProcessor()
	cep.AddRule(CEPRule{
		RuleID: "a-then-b",
		Name:   "a then b",
		Pattern: []Condition{
			{"type": "A"},
			{"type": "B"},
		},
		Enabled:       true,
		WindowSeconds: 300,
	})

	if matches := cep.ProcessEvent(Event{"type": "A"}, 100); len(matches) != 0 {
		t.Errorf("partial sequence produced %d matches", len(matches))
	}

	matches := cep.ProcessEvent(Event{"type": "B"}, 101)
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	match := matches[0]
	if match.RuleID != "a-then-b" {
		t.Errorf("match ruleId = %q", match.RuleID)
	}
	if len(match.MatchedEvents) != 2 {
		t.Fatalf("matched %d events, want 2", len(match.MatchedEvents))
	}
	if match.MatchedEvents[0]["type"] != "A" || match.MatchedEvents[1]["type"] != "B" {
		t.Error("matched events out of order")
	}
	if match.Metadata["ruleName"] != "a then b" {
		t.Errorf("metadata ruleName = %v", match.Metadata["ruleName"])
	}

	// The sequence resets after a match.
	stats := cep.Statistics()
	if stats.ActivePatternStates != 0 {
		t.Errorf("activePatternStates = %d, want 0 after match", stats.ActivePatternStates)
	}
	if stats.PatternsMatched != 1 {
		t.Errorf("patternsMatched = %d, want 1", stats.PatternsMatched)
	}

	// The same pair matches again from scratch.
	cep.ProcessEvent(Event{"type": "A"}, 200)
	if matches := cep.ProcessEvent(Event{"type": "B"}, 201); len(matches) != 1 {
		t.Errorf("second pair produced %d matches, want 1", len(matches))
	}
}

func TestPatternTailMatch(t *testing.T) {
	cep := NewCEPProcessor()
	cep.AddRule(CEPRule{
		RuleID:  "b-only",
		Pattern: []Condition{{"type": "B"}},
		Enabled: true,
	})

	// Noise before the matching tail does not block the match.
	cep.ProcessEvent(Event{"type": "A"}, 100)
	cep.ProcessEvent(Event{"type": "C"}, 101)
	if matches := cep.ProcessEvent(Event{"type": "B"}, 102); len(matches) != 1 {
		t.Errorf("got %d matches, want 1", len(matches))
	}
}

func TestPatternWindowTimeout(t *testing.T) {
	cep := NewCEPProcessor()
	cep.AddRule(loginFailureRule(5))

	failure := Event{"type": "login_failure"}
	cep.ProcessEvent(failure, 100)
	cep.ProcessEvent(failure, 102)

	// The third failure arrives past the window: the stale partial
	// sequence is discarded first, so no match fires and the sequence
	// restarts at this event.
	if matches := cep.ProcessEvent(failure, 110); len(matches) != 0 {
		t.Errorf("timed-out sequence produced %d matches", len(matches))
	}
	if got := cep.Statistics().ActivePatternStates; got != 1 {
		t.Errorf("activePatternStates = %d, want 1", got)
	}

	// Three failures inside the window match.
	cep.ProcessEvent(failure, 111)
	if matches := cep.ProcessEvent(failure, 112); len(matches) != 1 {
		t.Errorf("in-window sequence produced %d matches, want 1", len(matches))
	}
}

func TestRuleGatingConditions(t *testing.T) {
	cep := NewCEPProcessor()
	cep.AddRule(CEPRule{
		RuleID:     "big-orders",
		Pattern:    []Condition{{"table": "orders"}, {"table": "orders"}},
		Conditions: Condition{"amount": map[string]any{"op": ">", "value": 100}},
		Enabled:    true,
	})

	// Events failing the gate are not tracked at all.
	cep.ProcessEvent(Event{"table": "orders", "amount": 50.0}, 1)
	cep.ProcessEvent(Event{"table": "orders", "amount": 150.0}, 2)
	cep.ProcessEvent(Event{"table": "orders", "amount": 60.0}, 3)
	matches := cep.ProcessEvent(Event{"table": "orders", "amount": 200.0}, 4)
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if matches[0].MatchedEvents[0]["amount"] != 150.0 {
		t.Error("gated-out event leaked into the sequence")
	}
}

func TestDisabledRule(t *testing.T) {
	cep := NewCEPProcessor()
	rule := loginFailureRule(60)
	rule.Enabled = false
	cep.AddRule(rule)

	for ts := int64(1); ts <= 5; ts++ {
		if matches := cep.ProcessEvent(Event{"type": "login_failure"}, ts); len(matches) != 0 {
			t.Fatal("disabled rule should never match")
		}
	}
}

func TestEvaluateCondition(t *testing.T) {
	event := Event{"type": "order", "amount": 150.0, "retries": int64(3)}

	tests := []struct {
		name      string
		condition Condition
		expected  bool
	}{
		{"literal equal", Condition{"type": "order"}, true},
		{"literal unequal", Condition{"type": "refund"}, false},
		{"missing field", Condition{"status": "open"}, false},
		{"numeric cross-type equal", Condition{"retries": 3}, true},
		{"gt true", Condition{"amount": map[string]any{"op": ">", "value": 100}}, true},
		{"gt false", Condition{"amount": map[string]any{"op": ">", "value": 200}}, false},
		{"lt", Condition{"amount": map[string]any{"op": "<", "value": 200}}, true},
		{"ge boundary", Condition{"amount": map[string]any{"op": ">=", "value": 150}}, true},
		{"le boundary", Condition{"amount": map[string]any{"op": "<=", "value": 150}}, true},
		{"eq op", Condition{"type": map[string]any{"op": "==", "value": "order"}}, true},
		{"ne op", Condition{"type": map[string]any{"op": "!=", "value": "refund"}}, true},
		{"ordered on non-numeric fails closed", Condition{"type": map[string]any{"op": ">", "value": "a"}}, false},
		{"unknown op fails closed", Condition{"amount": map[string]any{"op": "~", "value": 1}}, false},
		{"multi-field and", Condition{"type": "order", "amount": map[string]any{"op": ">", "value": 100}}, true},
	}

	for _, tc := range tests {
		if got := evaluateCondition(event, tc.condition); got != tc.expected {
			t.Errorf("%s: evaluateCondition = %v, want %v", tc.name, got, tc.expected)
		}
	}
}

func TestGetMatchesFilter(t *testing.T) {
	cep := NewCEPProcessor()
	cep.AddRule(CEPRule{RuleID: "r1", Pattern: []Condition{{"type": "A"}}, Enabled: true})
	cep.AddRule(CEPRule{RuleID: "r2", Pattern: []Condition{{"type": "B"}}, Enabled: true})

	cep.ProcessEvent(Event{"type": "A"}, 1)
	cep.ProcessEvent(Event{"type": "B"}, 2)
	cep.ProcessEvent(Event{"type": "A"}, 3)

	if got := len(cep.GetMatches("")); got != 3 {
		t.Errorf("all matches = %d, want 3", got)
	}
	if got := len(cep.GetMatches("r1")); got != 2 {
		t.Errorf("r1 matches = %d, want 2", got)
	}
	if got := len(cep.GetMatches("r2")); got != 1 {
		t.Errorf("r2 matches = %d, want 1", got)
	}
	if got := len(cep.GetMatches("unknown")); got != 0 {
		t.Errorf("unknown rule matches = %d, want 0", got)
	}
}

func TestCleanupOldMatches(t *testing.T) {
	cep := NewCEPProcessor()
	cep.AddRule(CEPRule{RuleID: "r1", Pattern: []Condition{{"type": "A"}}, Enabled: true})
	cep.ProcessEvent(Event{"type": "A"}, 1)

	if removed := cep.CleanupOldMatches(time.Hour); removed != 0 {
		t.Errorf("removed %d fresh matches, want 0", removed)
	}
	if removed := cep.CleanupOldMatches(-time.Second); removed != 1 {
		t.Errorf("removed %d matches, want 1", removed)
	}
	if got := cep.Statistics().MatchesStored; got != 0 {
		t.Errorf("matchesStored = %d, want 0", got)
	}
}

func TestMatchActions(t *testing.T) {
	cep := NewCEPProcessor()
	cep.AddRule(CEPRule{
		RuleID:  "noisy",
		Pattern: []Condition{{"type": "A"}},
		Actions: map[string]any{"log": "pattern seen", "alert": true},
		Enabled: true,
	})

	// Actions must not disturb match emission.
	if matches := cep.ProcessEvent(Event{"type": "A"}, 1); len(matches) != 1 {
		t.Errorf("got %d matches, want 1", len(matches))
	}
}
