package streamsync

import (
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TimeMode selects which notion of time drives watermark computation.
type TimeMode int

const (
	// TimeModeEvent uses the timestamp carried inside each event.
	TimeModeEvent TimeMode = iota
	// TimeModeProcessing uses the wall-clock time of arrival.
	TimeModeProcessing
)

// String returns the string representation of the time mode.
func (m TimeMode) String() string {
	switch m {
	case TimeModeEvent:
		return "event_time"
	case TimeModeProcessing:
		return "processing_time"
	default:
		return "unknown"
	}
}

// LateDataPolicy decides what happens to events that arrive behind the
// watermark.
type LateDataPolicy int

const (
	// LateDataDrop discards late events.
	LateDataDrop LateDataPolicy = iota
	// LateDataSideOutput hands late events back to the caller.
	LateDataSideOutput
	// LateDataBuffer retains late events in an internal buffer.
	LateDataBuffer
)

// String returns the string representation of the policy.
func (p LateDataPolicy) String() string {
	switch p {
	case LateDataDrop:
		return "drop"
	case LateDataSideOutput:
		return "side_output"
	case LateDataBuffer:
		return "buffer"
	default:
		return "unknown"
	}
}

// EventTimeConfig configures event-time extraction and watermarking.
type EventTimeConfig struct {
	// EventTimeField is the event field holding the unix-second timestamp.
	EventTimeField string `yaml:"eventTimeField" json:"eventTimeField"`

	// WatermarkDelaySeconds is subtracted from the maximum observed event
	// time when computing the watermark.
	WatermarkDelaySeconds int64 `yaml:"watermarkDelaySeconds" json:"watermarkDelaySeconds"`

	// MaxOutOfOrdernessSeconds is the slack allowed behind the watermark
	// before an event is classified late.
	MaxOutOfOrdernessSeconds int64 `yaml:"maxOutOfOrdernessSeconds" json:"maxOutOfOrdernessSeconds"`

	// Mode selects event time or processing time.
	Mode TimeMode `yaml:"mode" json:"mode"`
}

// DefaultEventTimeConfig returns the default event-time configuration.
func DefaultEventTimeConfig() EventTimeConfig {
	return EventTimeConfig{
		EventTimeField:           "timestamp",
		WatermarkDelaySeconds:    10,
		MaxOutOfOrdernessSeconds: 5,
		Mode:                     TimeModeEvent,
	}
}

// Watermark is the engine's estimate that no event with a smaller event
// time will arrive. Timestamp only ever advances.
type Watermark struct {
	// Timestamp is the watermark position in unix seconds of event time.
	Timestamp int64 `json:"timestamp"`
	// ProducedAt is the wall-clock instant the watermark was computed.
	ProducedAt time.Time `json:"producedAt"`
}

// EventTimeStats is a snapshot of the processor's counters.
type EventTimeStats struct {
	EventsProcessed int64  `json:"eventsProcessed"`
	LateEvents      int64  `json:"lateEvents"`
	EventsDropped   int64  `json:"eventsDropped"`
	EventsBuffered  int64  `json:"eventsBuffered"`
	LateBufferSize  int    `json:"lateEventBufferSize"`
	Watermark       int64  `json:"currentWatermark"`
	Mode            string `json:"timeMode"`
}

// EventTimeProcessor extracts event timestamps, maintains a monotonic
// watermark, and applies the configured late-data policy. Safe for
// concurrent use.
type EventTimeProcessor struct {
	config EventTimeConfig
	logger zerolog.Logger

	mu              sync.Mutex
	watermark       Watermark
	lateBuffer      []Event
	eventsProcessed int64
	lateEvents      int64
	eventsDropped   int64
	eventsBuffered  int64
}

// NewEventTimeProcessor creates a processor with the given configuration.
func NewEventTimeProcessor(config EventTimeConfig) *EventTimeProcessor {
	if config.EventTimeField == "" {
		config.EventTimeField = "timestamp"
	}
	return &EventTimeProcessor{
		config:    config,
		logger:    componentLogger("eventtime"),
		watermark: Watermark{Timestamp: 0, ProducedAt: time.Now()},
	}
}

// ExtractEventTime returns the logical timestamp of an event in unix
// seconds. In processing-time mode it is the current wall-clock time. In
// event-time mode the configured field is read; numeric values are used
// directly and strings are parsed as unix seconds. Extraction failures
// fall back to processing time with a warning, never an error.
func (p *EventTimeProcessor) ExtractEventTime(event Event) int64 {
	p.mu.Lock()
	p.eventsProcessed++
	p.mu.Unlock()
	return p.extractTime(event)
}

func (p *EventTimeProcessor) extractTime(event Event) int64 {
	if p.config.Mode == TimeModeProcessing {
		return time.Now().Unix()
	}

	if v, ok := event[p.config.EventTimeField]; ok {
		if n, ok := numericValue(v); ok {
			return int64(n)
		}
		if s, ok := v.(string); ok {
			if parsed, err := strconv.ParseInt(s, 10, 64); err == nil {
				return parsed
			}
			p.logger.Warn().
				Str("field", p.config.EventTimeField).
				Msg("could not parse event time field as number")
		}
	}

	p.logger.Warn().
		Str("field", p.config.EventTimeField).
		Msg("could not extract event time, using processing time")
	return time.Now().Unix()
}

// CalculateWatermark computes a watermark candidate from the maximum
// event time in the batch minus the configured delay, and stores it only
// if it advances the current watermark. The stored watermark never
// regresses. An empty batch returns the current watermark unchanged.
func (p *EventTimeProcessor) CalculateWatermark(recent []Event) Watermark {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(recent) == 0 {
		return p.watermark
	}

	var maxEventTime int64
	for _, event := range recent {
		if t := p.extractTime(event); t > maxEventTime {
			maxEventTime = t
		}
	}

	candidate := Watermark{
		Timestamp:  maxEventTime - p.config.WatermarkDelaySeconds,
		ProducedAt: time.Now(),
	}
	if candidate.Timestamp > p.watermark.Timestamp {
		p.watermark = candidate
	}
	return p.watermark
}

// CurrentWatermark returns the stored watermark.
func (p *EventTimeProcessor) CurrentWatermark() Watermark {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watermark
}

// IsLateEvent reports whether the event's time falls behind the watermark
// by more than the allowed out-of-orderness. An event exactly at the
// boundary is not late.
func (p *EventTimeProcessor) IsLateEvent(event Event, watermark Watermark) bool {
	eventTime := p.extractTime(event)
	return eventTime < watermark.Timestamp-p.config.MaxOutOfOrdernessSeconds
}

// HandleLateData applies the policy to a late event. Drop discards the
// event, side-output leaves delivery to the caller, buffer retains the
// event internally until drained. Returns false only when the event was
// discarded.
func (p *EventTimeProcessor) HandleLateData(event Event, policy LateDataPolicy) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lateEvents++

	switch policy {
	case LateDataDrop:
		p.eventsDropped++
		p.logger.Debug().Msg("dropping late event")
		return false

	case LateDataSideOutput:
		p.logger.Info().Msg("sending late event to side output")
		return true

	case LateDataBuffer:
		p.lateBuffer = append(p.lateBuffer, event)
		p.eventsBuffered++
		p.logger.Info().
			Int("bufferSize", len(p.lateBuffer)).
			Msg("buffering late event")
		return true
	}

	return false
}

// DrainLateBuffer returns the buffered late events and empties the
// buffer. The caller owns the returned slice.
func (p *EventTimeProcessor) DrainLateBuffer() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.lateBuffer) == 0 {
		return nil
	}
	drained := p.lateBuffer
	p.lateBuffer = nil
	return drained
}

// Statistics returns a snapshot of the processor counters.
func (p *EventTimeProcessor) Statistics() EventTimeStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return EventTimeStats{
		EventsProcessed: p.eventsProcessed,
		LateEvents:      p.lateEvents,
		EventsDropped:   p.eventsDropped,
		EventsBuffered:  p.eventsBuffered,
		LateBufferSize:  len(p.lateBuffer),
		Watermark:       p.watermark.Timestamp,
		Mode:            p.config.Mode.String(),
	}
}
