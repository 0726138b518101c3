package streamsync

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EngineResult is the synchronous outcome of pushing one event through
// the engine: the windows the event closed, the pattern matches it
// completed, and the late-data disposition when the event fell behind
// the watermark.
type EngineResult struct {
	// Windows holds the results of windows closed by this event.
	Windows []WindowResult `json:"windows,omitempty"`

	// Matches holds the pattern matches completed by this event.
	Matches []PatternMatch `json:"matches,omitempty"`

	// Late is true when the event arrived behind the watermark beyond
	// the allowed out-of-orderness.
	Late bool `json:"late,omitempty"`

	// SideOutput carries the late event back to the caller under the
	// side-output policy; nil otherwise.
	SideOutput Event `json:"sideOutput,omitempty"`
}

// EngineStats aggregates the statistics of every component plus
// engine-level counters.
type EngineStats struct {
	EventsAccepted int64          `json:"eventsAccepted"`
	EventsLate     int64          `json:"eventsLate"`
	EventTime      EventTimeStats `json:"eventTime"`
	State          StateStats     `json:"state"`
	Windowing      WindowingStats `json:"windowing"`
	CEP            CEPStats       `json:"cep"`
}

// StreamEngine is the façade over the four processors: it timestamps
// each incoming event, advances the watermark, applies the late-data
// policy, and fans the event out to windowing and CEP. Window closures
// and pattern matches are returned synchronously from ProcessEvent;
// nothing runs in the background, so sparse streams need periodic
// Cleanup calls from the owner. Safe for concurrent use.
type StreamEngine struct {
	config Config
	logger zerolog.Logger

	eventTime *EventTimeProcessor
	state     *StatefulProcessor
	windowing *WindowingProcessor
	cep       *CEPProcessor

	// OnWindowClose, when set, is invoked for every closed window.
	OnWindowClose func(WindowResult)

	// OnPatternMatch, when set, is invoked for every pattern match.
	OnPatternMatch func(PatternMatch)

	hubMu sync.RWMutex
	hub   *StreamHub

	mu             sync.Mutex
	eventsAccepted int64
	eventsLate     int64
}

// NewStreamEngine creates an engine from the configuration, applying
// per-section defaults and registering the configured CEP rules.
func NewStreamEngine(config Config) *StreamEngine {
	config.applyDefaults()

	engine := &StreamEngine{
		config:    config,
		logger:    componentLogger("engine"),
		eventTime: NewEventTimeProcessor(config.EventTime),
		state:     NewStatefulProcessor(),
		windowing: NewWindowingProcessor(config.Window),
		cep:       NewCEPProcessor(),
	}
	for _, rule := range config.Rules {
		engine.cep.AddRule(rule)
	}
	return engine
}

// EventTime returns the engine's event-time processor.
func (e *StreamEngine) EventTime() *EventTimeProcessor { return e.eventTime }

// State returns the engine's keyed state store.
func (e *StreamEngine) State() *StatefulProcessor { return e.state }

// Windowing returns the engine's windowing processor.
func (e *StreamEngine) Windowing() *WindowingProcessor { return e.windowing }

// CEP returns the engine's pattern processor.
func (e *StreamEngine) CEP() *CEPProcessor { return e.cep }

// AttachHub publishes every window result and pattern match to the hub's
// subscribers in addition to returning them.
func (e *StreamEngine) AttachHub(hub *StreamHub) {
	e.hubMu.Lock()
	e.hub = hub
	e.hubMu.Unlock()
}

// ProcessEvent pushes one event through the engine. The event time is
// extracted, the watermark advanced, and late events are handled per the
// configured policy: dropped and buffered events stop here, side-output
// events are handed back in the result. On-time events fan out to
// windowing and CEP.
func (e *StreamEngine) ProcessEvent(event Event) EngineResult {
	eventTimestamp := e.eventTime.ExtractEventTime(event)
	watermark := e.eventTime.CalculateWatermark([]Event{event})

	if e.eventTime.IsLateEvent(event, watermark) {
		e.mu.Lock()
		e.eventsLate++
		e.mu.Unlock()

		result := EngineResult{Late: true}
		if e.eventTime.HandleLateData(event, e.config.LatePolicy) &&
			e.config.LatePolicy == LateDataSideOutput {
			result.SideOutput = event
		}
		return result
	}

	e.mu.Lock()
	e.eventsAccepted++
	e.mu.Unlock()

	result := EngineResult{
		Windows: e.windowing.ProcessEvent(event, eventTimestamp),
		Matches: e.cep.ProcessEvent(event, eventTimestamp),
	}
	e.publish(result)
	return result
}

// ProcessBatch pushes events through the engine in order, folding the
// per-event results together.
func (e *StreamEngine) ProcessBatch(events []Event) EngineResult {
	var combined EngineResult
	for _, event := range events {
		result := e.ProcessEvent(event)
		combined.Windows = append(combined.Windows, result.Windows...)
		combined.Matches = append(combined.Matches, result.Matches...)
		combined.Late = combined.Late || result.Late
	}
	return combined
}

func (e *StreamEngine) publish(result EngineResult) {
	e.hubMu.RLock()
	hub := e.hub
	e.hubMu.RUnlock()

	for _, window := range result.Windows {
		if e.OnWindowClose != nil {
			e.OnWindowClose(window)
		}
		if hub != nil {
			hub.PublishWindow(window)
		}
	}
	for _, match := range result.Matches {
		if e.OnPatternMatch != nil {
			e.OnPatternMatch(match)
		}
		if hub != nil {
			hub.PublishMatch(match)
		}
	}
}

// Cleanup runs every component's expiry pass: expired windows are closed
// and reaped, state entries and match history older than maxAge are
// evicted. Owners of sparse streams should call this periodically.
func (e *StreamEngine) Cleanup(maxAge time.Duration) {
	e.windowing.CleanupExpiredWindows()
	states := e.state.CleanupOldStates(maxAge)
	matches := e.cep.CleanupOldMatches(maxAge)
	e.logger.Debug().
		Int("statesRemoved", states).
		Int("matchesRemoved", matches).
		Msg("cleanup pass finished")
}

// Statistics returns an aggregate snapshot across all components.
func (e *StreamEngine) Statistics() EngineStats {
	e.mu.Lock()
	accepted := e.eventsAccepted
	late := e.eventsLate
	e.mu.Unlock()

	return EngineStats{
		EventsAccepted: accepted,
		EventsLate:     late,
		EventTime:      e.eventTime.Statistics(),
		State:          e.state.Statistics(),
		Windowing:      e.windowing.Statistics(),
		CEP:            e.cep.Statistics(),
	}
}
