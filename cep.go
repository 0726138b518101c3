package streamsync

import (
	"fmt"
	"math/rand"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Condition is a duck-typed predicate over event fields. Each entry maps
// a field name to either a literal to compare for equality, or a
// comparator of the form {"op": ">", "value": 100}. Supported operators:
// ==, !=, >, <, >=, <=. Ordered comparisons require both operands to be
// numeric and evaluate false otherwise. An event missing a referenced
// field fails the condition.
type Condition map[string]any

// CEPRule describes one multi-event pattern to detect.
type CEPRule struct {
	// RuleID uniquely identifies the rule. Adding a rule with an existing
	// id overwrites it.
	RuleID string `yaml:"ruleId" json:"ruleId"`

	// Name is a human-readable label carried into match metadata.
	Name string `yaml:"name" json:"name"`

	// Pattern is the ordered per-position condition list the event
	// sequence must satisfy.
	Pattern []Condition `yaml:"pattern" json:"pattern"`

	// Conditions gates which events the rule tracks at all. Empty means
	// every event qualifies.
	Conditions Condition `yaml:"conditions,omitempty" json:"conditions,omitempty"`

	// Actions are side-effect descriptors executed on a match. Recognized
	// keys: "log" (message logged at info) and "alert" (warning emitted).
	Actions map[string]any `yaml:"actions,omitempty" json:"actions,omitempty"`

	// Enabled toggles evaluation without removing the rule.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// WindowSeconds bounds how long a partial sequence may wait for its
	// next step before being reset.
	WindowSeconds int64 `yaml:"windowSeconds" json:"windowSeconds"`
}

// PatternMatch records one satisfied pattern.
type PatternMatch struct {
	MatchID       string         `json:"matchId"`
	RuleID        string         `json:"ruleId"`
	MatchedEvents []Event        `json:"matchedEvents"`
	MatchTime     time.Time      `json:"matchTime"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// patternState tracks the in-flight event sequence for one rule.
// Sequences are bounded by the rule's time budget, not by count: the
// whole sequence is dropped once WindowSeconds elapse without a match.
type patternState struct {
	ruleID        string
	sequence      []Event
	sequenceStart time.Time
	startUnix     int64
	currentStep   int
}

func (s *patternState) reset(eventTimestamp int64) {
	s.sequence = s.sequence[:0]
	s.sequenceStart = time.Now()
	s.startUnix = eventTimestamp
	s.currentStep = 0
}

// CEPStats is a snapshot of the processor's counters.
type CEPStats struct {
	RulesCount          int   `json:"rulesCount"`
	EventsProcessed     int64 `json:"eventsProcessed"`
	PatternsMatched     int64 `json:"patternsMatched"`
	MatchesStored       int   `json:"matchesCount"`
	ActivePatternStates int   `json:"activePatternStates"`
}

// CEPProcessor evaluates configured rules against the live event stream,
// maintaining a per-rule sliding event sequence and emitting pattern
// matches. Safe for concurrent use.
type CEPProcessor struct {
	logger zerolog.Logger

	mu     sync.Mutex
	rules  map[string]CEPRule
	states map[string]*patternState

	matchesMu sync.Mutex
	matches   []PatternMatch

	eventsProcessed int64
	patternsMatched int64
}

// NewCEPProcessor creates an empty rule evaluator.
func NewCEPProcessor() *CEPProcessor {
	return &CEPProcessor{
		logger: componentLogger("cep"),
		rules:  make(map[string]CEPRule),
		states: make(map[string]*patternState),
	}
}

// AddRule registers a rule. Returns false when the rule id is empty.
// Re-adding an existing id overwrites the stored rule; last write wins.
func (p *CEPProcessor) AddRule(rule CEPRule) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if rule.RuleID == "" {
		p.logger.Error().Msg("rule ID cannot be empty")
		return false
	}
	p.rules[rule.RuleID] = rule
	p.logger.Info().Str("ruleId", rule.RuleID).Str("name", rule.Name).Msg("CEP rule added")
	return true
}

// RemoveRule deletes a rule and its pattern state. Returns false when
// the rule is unknown.
func (p *CEPProcessor) RemoveRule(ruleID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.rules[ruleID]; !ok {
		p.logger.Warn().Str("ruleId", ruleID).Msg("rule not found")
		return false
	}
	delete(p.rules, ruleID)
	delete(p.states, ruleID)
	p.logger.Info().Str("ruleId", ruleID).Msg("CEP rule removed")
	return true
}

// GetRule returns the stored rule for the id.
func (p *CEPProcessor) GetRule(ruleID string) (CEPRule, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rule, ok := p.rules[ruleID]
	return rule, ok
}

// Rules returns every registered rule in unspecified order.
func (p *CEPProcessor) Rules() []CEPRule {
	p.mu.Lock()
	defer p.mu.Unlock()

	rules := make([]CEPRule, 0, len(p.rules))
	for _, rule := range p.rules {
		rules = append(rules, rule)
	}
	return rules
}

// ProcessEvent evaluates every enabled rule against the event and
// returns the pattern matches it completed. A zero eventTimestamp means
// now. For each rule: the gating conditions decide whether the event is
// tracked; a partial sequence older than the rule's window is reset
// before the event is appended; a satisfied pattern emits a match,
// executes the rule's actions, and resets the sequence.
func (p *CEPProcessor) ProcessEvent(event Event, eventTimestamp int64) []PatternMatch {
	if eventTimestamp == 0 {
		eventTimestamp = time.Now().Unix()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.eventsProcessed++

	var newMatches []PatternMatch
	for ruleID, rule := range p.rules {
		if !rule.Enabled {
			continue
		}
		if len(rule.Conditions) > 0 && !evaluateCondition(event, rule.Conditions) {
			continue
		}

		state, ok := p.states[ruleID]
		if !ok {
			state = &patternState{ruleID: ruleID}
			p.states[ruleID] = state
		}
		if len(state.sequence) == 0 {
			state.sequenceStart = time.Now()
			state.startUnix = eventTimestamp
		} else if rule.WindowSeconds > 0 && eventTimestamp-state.startUnix > rule.WindowSeconds {
			// Time budget elapsed: the stale partial sequence is discarded
			// before this event is considered.
			state.reset(eventTimestamp)
		}

		state.sequence = append(state.sequence, event)
		state.currentStep = len(state.sequence)

		if !matchPattern(state.sequence, rule.Pattern) {
			continue
		}

		match := PatternMatch{
			MatchID:       generateMatchID(),
			RuleID:        ruleID,
			MatchedEvents: cloneEvents(state.sequence),
			MatchTime:     time.Now(),
			Metadata: map[string]any{
				"ruleName": rule.Name,
				"pattern":  rule.Pattern,
			},
		}
		newMatches = append(newMatches, match)

		p.matchesMu.Lock()
		p.matches = append(p.matches, match)
		p.matchesMu.Unlock()

		p.patternsMatched++
		p.executeActions(rule, match)
		state.reset(eventTimestamp)
	}
	return newMatches
}

// GetMatches returns the stored match history, optionally filtered by
// rule id. An empty id returns everything.
func (p *CEPProcessor) GetMatches(ruleID string) []PatternMatch {
	p.matchesMu.Lock()
	defer p.matchesMu.Unlock()

	matches := make([]PatternMatch, 0, len(p.matches))
	for _, match := range p.matches {
		if ruleID == "" || match.RuleID == ruleID {
			matches = append(matches, match)
		}
	}
	return matches
}

// CleanupOldMatches evicts match history older than maxAge and returns
// the number of evicted matches.
func (p *CEPProcessor) CleanupOldMatches(maxAge time.Duration) int {
	p.matchesMu.Lock()
	defer p.matchesMu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	kept := p.matches[:0]
	removed := 0
	for _, match := range p.matches {
		if match.MatchTime.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, match)
	}
	p.matches = kept
	return removed
}

// Statistics returns a snapshot of the processor counters.
func (p *CEPProcessor) Statistics() CEPStats {
	p.mu.Lock()
	rules := len(p.rules)
	states := 0
	for _, state := range p.states {
		if len(state.sequence) > 0 {
			states++
		}
	}
	events := p.eventsProcessed
	matched := p.patternsMatched
	p.mu.Unlock()

	p.matchesMu.Lock()
	stored := len(p.matches)
	p.matchesMu.Unlock()

	return CEPStats{
		RulesCount:          rules,
		EventsProcessed:     events,
		PatternsMatched:     matched,
		MatchesStored:       stored,
		ActivePatternStates: states,
	}
}

// executeActions runs the rule's side-effect descriptors for a match.
func (p *CEPProcessor) executeActions(rule CEPRule, match PatternMatch) {
	if msg, ok := rule.Actions["log"].(string); ok {
		p.logger.Info().
			Str("ruleId", rule.RuleID).
			Str("matchId", match.MatchID).
			Msg(msg)
	}
	if _, ok := rule.Actions["alert"]; ok {
		p.logger.Warn().
			Str("ruleId", rule.RuleID).
			Str("matchId", match.MatchID).
			Msg("alert triggered for rule")
	}
}

// matchPattern reports whether the tail of the sequence satisfies the
// pattern's per-position conditions.
func matchPattern(events []Event, pattern []Condition) bool {
	if len(pattern) == 0 || len(events) < len(pattern) {
		return false
	}
	start := len(events) - len(pattern)
	for i, cond := range pattern {
		if !evaluateCondition(events[start+i], cond) {
			return false
		}
	}
	return true
}

// evaluateCondition checks every field predicate in the condition
// against the event. Ordered comparisons on non-numeric operands fail
// closed.
func evaluateCondition(event Event, condition Condition) bool {
	for field, expected := range condition {
		actual, ok := event[field]
		if !ok {
			return false
		}

		cmp, isCmp := comparatorOf(expected)
		if !isCmp {
			if !valuesEqual(actual, expected) {
				return false
			}
			continue
		}

		switch cmp.op {
		case "==":
			if !valuesEqual(actual, cmp.value) {
				return false
			}
		case "!=":
			if valuesEqual(actual, cmp.value) {
				return false
			}
		case ">", "<", ">=", "<=":
			a, aok := numericValue(actual)
			b, bok := numericValue(cmp.value)
			if !aok || !bok {
				return false
			}
			switch cmp.op {
			case ">":
				if a <= b {
					return false
				}
			case "<":
				if a >= b {
					return false
				}
			case ">=":
				if a < b {
					return false
				}
			case "<=":
				if a > b {
					return false
				}
			}
		default:
			return false
		}
	}
	return true
}

type comparator struct {
	op    string
	value any
}

// comparatorOf recognizes the {"op": ..., "value": ...} comparator form.
func comparatorOf(v any) (comparator, bool) {
	var m map[string]any
	switch val := v.(type) {
	case map[string]any:
		m = val
	case Condition:
		m = map[string]any(val)
	default:
		return comparator{}, false
	}
	op, ok := m["op"].(string)
	if !ok {
		return comparator{}, false
	}
	value, ok := m["value"]
	if !ok {
		return comparator{}, false
	}
	return comparator{op: op, value: value}, true
}

// valuesEqual compares two values, treating all numeric types as
// interchangeable the way JSON decoding does.
func valuesEqual(a, b any) bool {
	if an, aok := numericValue(a); aok {
		if bn, bok := numericValue(b); bok {
			return an == bn
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func generateMatchID() string {
	return fmt.Sprintf("match_%d_%04d", time.Now().UnixMilli(), rand.Intn(10000))
}
