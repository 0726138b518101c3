package streamsync

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// StateValue holds one keyed state entry together with its update
// metadata.
type StateValue struct {
	Value       any       `json:"value"`
	LastUpdated time.Time `json:"lastUpdated"`
	UpdateCount int64     `json:"updateCount"`
}

// StateSnapshot is a point-in-time, independently mutable copy of the
// full state mapping.
type StateSnapshot struct {
	States       map[string]StateValue `json:"states"`
	SnapshotTime time.Time             `json:"snapshotTime"`
	TotalKeys    int                   `json:"totalKeys"`
}

// StateStats is a snapshot of the processor's counters.
type StateStats struct {
	TotalKeys    int   `json:"totalKeys"`
	StateUpdates int64 `json:"stateUpdates"`
	StateGets    int64 `json:"stateGets"`
	StateClears  int64 `json:"stateClears"`
}

// UpdateFunc computes a new state value from the current value and the
// event that triggered the update. current is nil when the key is absent.
type UpdateFunc func(current any, event Event) any

// StatefulProcessor is a keyed in-process value store shared by windowing
// callbacks, CEP bookkeeping, and external accumulator logic. All
// operations are atomic with respect to each other; reads on missing keys
// are not errors. Safe for concurrent use.
type StatefulProcessor struct {
	logger zerolog.Logger

	mu      sync.Mutex
	states  map[string]StateValue
	updates int64
	gets    int64
	clears  int64
}

// NewStatefulProcessor creates an empty state store.
func NewStatefulProcessor() *StatefulProcessor {
	return &StatefulProcessor{
		logger: componentLogger("state"),
		states: make(map[string]StateValue),
	}
}

// GetState returns the value stored under key, or nil when absent.
// Reading never mutates the entry's update count.
func (p *StatefulProcessor) GetState(key string) any {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.states[key]
	if !ok {
		return nil
	}
	p.gets++
	return entry.Value
}

// GetStateValue returns the full entry for key, including its metadata.
func (p *StatefulProcessor) GetStateValue(key string) (StateValue, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.states[key]
	if !ok {
		return StateValue{}, false
	}
	p.gets++
	return entry, true
}

// UpdateState inserts or overwrites the value under key, bumping the
// entry's update count and timestamp.
func (p *StatefulProcessor) UpdateState(key string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.storeLocked(key, value)
}

// UpdateStateWithFunction reads the current value (nil when absent),
// applies fn, and stores the result. The read-compute-write sequence is
// atomic with respect to every other state operation.
func (p *StatefulProcessor) UpdateStateWithFunction(key string, fn UpdateFunc, event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var current any
	if entry, ok := p.states[key]; ok {
		current = entry.Value
	}
	p.storeLocked(key, fn(current, event))
}

func (p *StatefulProcessor) storeLocked(key string, value any) {
	entry, ok := p.states[key]
	if !ok {
		entry = StateValue{Value: value, LastUpdated: time.Now(), UpdateCount: 1}
	} else {
		entry.Value = value
		entry.LastUpdated = time.Now()
		entry.UpdateCount++
	}
	p.states[key] = entry
	p.updates++
}

// ClearState removes the entry under key. Returns false when the key is
// absent.
func (p *StatefulProcessor) ClearState(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.states[key]; !ok {
		return false
	}
	delete(p.states, key)
	p.clears++
	return true
}

// ClearAllStates removes every entry.
func (p *StatefulProcessor) ClearAllStates() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.states = make(map[string]StateValue)
	p.clears++
	p.logger.Info().Msg("all states cleared")
}

// HasKey reports whether key has a stored entry.
func (p *StatefulProcessor) HasKey(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.states[key]
	return ok
}

// Keys returns every stored key in unspecified order.
func (p *StatefulProcessor) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	keys := make([]string, 0, len(p.states))
	for key := range p.states {
		keys = append(keys, key)
	}
	return keys
}

// Snapshot returns a deep copy of the state mapping. Mutating the
// snapshot does not affect the live store.
func (p *StatefulProcessor) Snapshot() StateSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	states := make(map[string]StateValue, len(p.states))
	for key, entry := range p.states {
		entry.Value = cloneValue(entry.Value)
		states[key] = entry
	}
	return StateSnapshot{
		States:       states,
		SnapshotTime: time.Now(),
		TotalKeys:    len(states),
	}
}

// RestoreSnapshot replaces the state mapping wholesale with the
// snapshot's contents.
func (p *StatefulProcessor) RestoreSnapshot(snapshot StateSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	states := make(map[string]StateValue, len(snapshot.States))
	for key, entry := range snapshot.States {
		entry.Value = cloneValue(entry.Value)
		states[key] = entry
	}
	p.states = states
}

// CleanupOldStates removes every entry whose last update is older than
// maxAge. Returns the number of removed entries.
func (p *StatefulProcessor) CleanupOldStates(maxAge time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for key, entry := range p.states {
		if entry.LastUpdated.Before(cutoff) {
			delete(p.states, key)
			removed++
		}
	}
	if removed > 0 {
		p.logger.Info().Int("removed", removed).Msg("cleaned up old states")
	}
	return removed
}

// Statistics returns a snapshot of the store counters.
func (p *StatefulProcessor) Statistics() StateStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return StateStats{
		TotalKeys:    len(p.states),
		StateUpdates: p.updates,
		StateGets:    p.gets,
		StateClears:  p.clears,
	}
}
