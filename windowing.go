package streamsync

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// WindowType defines how events are grouped into time windows.
type WindowType int

const (
	// WindowTumbling creates fixed-size, non-overlapping, contiguous windows.
	WindowTumbling WindowType = iota
	// WindowSliding creates overlapping windows, one opened per incoming
	// event at its aligned boundary.
	WindowSliding
	// WindowSession creates per-key windows extended by activity and
	// closed after an inactivity timeout.
	WindowSession
)

// String returns the string representation of the window type.
func (t WindowType) String() string {
	switch t {
	case WindowTumbling:
		return "tumbling"
	case WindowSliding:
		return "sliding"
	case WindowSession:
		return "session"
	default:
		return "unknown"
	}
}

// WindowConfig configures the windowing processor.
type WindowConfig struct {
	// Type selects tumbling, sliding, or session windows.
	Type WindowType `yaml:"type" json:"type"`

	// WindowSizeSeconds is the window length for tumbling and sliding
	// windows.
	WindowSizeSeconds int64 `yaml:"windowSizeSeconds" json:"windowSizeSeconds"`

	// SlideIntervalSeconds is the advance step for sliding windows.
	SlideIntervalSeconds int64 `yaml:"slideIntervalSeconds" json:"slideIntervalSeconds"`

	// SessionTimeoutSeconds is the inactivity gap closing a session window.
	SessionTimeoutSeconds int64 `yaml:"sessionTimeoutSeconds" json:"sessionTimeoutSeconds"`

	// AggField names the numeric event field fed to the aggregation
	// functions when a window closes.
	AggField string `yaml:"aggField" json:"aggField"`

	// AggFuncs are the aggregations computed into WindowResult.Aggregates.
	AggFuncs []AggFunc `yaml:"aggFuncs" json:"aggFuncs"`
}

// DefaultWindowConfig returns the default windowing configuration.
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		Type:                  WindowTumbling,
		WindowSizeSeconds:     60,
		SlideIntervalSeconds:  10,
		SessionTimeoutSeconds: 300,
	}
}

// Window is a live time window accumulating events. No event may be
// appended once Closed is true.
type Window struct {
	ID        string         `json:"id"`
	StartTime time.Time      `json:"startTime"`
	EndTime   time.Time      `json:"endTime"`
	Events    []Event        `json:"events"`
	Closed    bool           `json:"closed"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// WindowResult is the immutable projection of a closed window returned
// to the caller.
type WindowResult struct {
	WindowID   string             `json:"windowId"`
	Events     []Event            `json:"events"`
	EventCount int                `json:"eventCount"`
	StartTime  time.Time          `json:"startTime"`
	EndTime    time.Time          `json:"endTime"`
	Aggregates map[string]float64 `json:"aggregates,omitempty"`
}

// WindowingStats is a snapshot of the processor's counters.
type WindowingStats struct {
	WindowsCreated    int64  `json:"windowsCreated"`
	WindowsClosed     int64  `json:"windowsClosed"`
	EventsProcessed   int64  `json:"eventsProcessed"`
	ActiveWindows     int    `json:"activeWindows"`
	WindowType        string `json:"windowType"`
	WindowSizeSeconds int64  `json:"windowSizeSeconds"`
}

// WindowingProcessor assigns events to time windows and manages the
// window lifecycle: created, open, closed, reaped. Expiry is evaluated
// lazily on each incoming event and on explicit cleanup calls; there is
// no background timer. Safe for concurrent use.
type WindowingProcessor struct {
	config WindowConfig
	logger zerolog.Logger

	mu              sync.Mutex
	windows         map[string]*Window
	sessionWindows  map[string]string
	windowsCreated  int64
	windowsClosed   int64
	eventsProcessed int64
}

// NewWindowingProcessor creates a processor with the given configuration.
func NewWindowingProcessor(config WindowConfig) *WindowingProcessor {
	if config.WindowSizeSeconds <= 0 {
		config.WindowSizeSeconds = 60
	}
	if config.SessionTimeoutSeconds <= 0 {
		config.SessionTimeoutSeconds = 300
	}
	return &WindowingProcessor{
		config:         config,
		logger:         componentLogger("windowing"),
		windows:        make(map[string]*Window),
		sessionWindows: make(map[string]string),
	}
}

// CreateWindow opens a new window starting now and spanning the
// configured size, returning its id.
func (p *WindowingProcessor) CreateWindow() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.createWindowLocked().ID
}

func (p *WindowingProcessor) createWindowLocked() *Window {
	now := time.Now()
	window := &Window{
		ID:        generateWindowID(),
		StartTime: now,
		EndTime:   now.Add(time.Duration(p.config.WindowSizeSeconds) * time.Second),
	}
	p.windows[window.ID] = window
	p.windowsCreated++
	p.logger.Debug().Str("windowId", window.ID).Msg("window created")
	return window
}

// AddEvent appends an event to an open window. Returns false, with a
// warning logged, when the window is unknown or already closed.
func (p *WindowingProcessor) AddEvent(windowID string, event Event, eventTimestamp int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addEventLocked(windowID, event)
}

func (p *WindowingProcessor) addEventLocked(windowID string, event Event) bool {
	window, ok := p.windows[windowID]
	if !ok {
		p.logger.Warn().Str("windowId", windowID).Msg("window not found")
		return false
	}
	if window.Closed {
		p.logger.Warn().Str("windowId", windowID).Msg("cannot add event to closed window")
		return false
	}
	window.Events = append(window.Events, event)
	p.eventsProcessed++
	return true
}

// WindowedEvents returns a copy of the events collected in the window,
// or nil when the window is unknown.
func (p *WindowingProcessor) WindowedEvents(windowID string) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	window, ok := p.windows[windowID]
	if !ok {
		return nil
	}
	events := make([]Event, len(window.Events))
	copy(events, window.Events)
	return events
}

// CloseWindow marks the window closed with its end time set to now and
// returns the frozen projection. Closing an unknown or already closed
// window is a no-op returning an empty result.
func (p *WindowingProcessor) CloseWindow(windowID string) WindowResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	window, ok := p.windows[windowID]
	if !ok {
		p.logger.Warn().Str("windowId", windowID).Msg("window not found")
		return WindowResult{}
	}
	if window.Closed {
		p.logger.Warn().Str("windowId", windowID).Msg("window already closed")
		return WindowResult{}
	}
	window.EndTime = time.Now()
	return p.closeWindowLocked(window)
}

func (p *WindowingProcessor) closeWindowLocked(window *Window) WindowResult {
	window.Closed = true
	p.windowsClosed++

	result := WindowResult{
		WindowID:   window.ID,
		Events:     window.Events,
		EventCount: len(window.Events),
		StartTime:  window.StartTime,
		EndTime:    window.EndTime,
		Aggregates: computeAggregates(window.Events, p.config.AggField, p.config.AggFuncs),
	}
	p.logger.Debug().
		Str("windowId", window.ID).
		Int("events", result.EventCount).
		Msg("window closed")
	return result
}

// ActiveWindows returns the ids of all open windows.
func (p *WindowingProcessor) ActiveWindows() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	active := make([]string, 0, len(p.windows))
	for id, window := range p.windows {
		if !window.Closed {
			active = append(active, id)
		}
	}
	return active
}

// ProcessEvent routes an event into the window structure for the
// configured window type and returns the results of any windows that
// closed as a consequence. A zero eventTimestamp means now.
func (p *WindowingProcessor) ProcessEvent(event Event, eventTimestamp int64) []WindowResult {
	if eventTimestamp == 0 {
		eventTimestamp = time.Now().Unix()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.config.Type {
	case WindowTumbling:
		return p.processTumblingLocked(event, eventTimestamp)
	case WindowSliding:
		return p.processSlidingLocked(event, eventTimestamp)
	case WindowSession:
		return p.processSessionLocked(event, eventTimestamp)
	default:
		p.logger.Warn().Str("type", p.config.Type.String()).Msg("unknown window type")
		return nil
	}
}

// processTumblingLocked appends to the open window covering the event's
// aligned interval, closing any open window the event has moved past.
// Windows are non-overlapping and contiguous on size-aligned boundaries.
func (p *WindowingProcessor) processTumblingLocked(event Event, eventTimestamp int64) []WindowResult {
	var closed []WindowResult
	var target *Window

	for _, window := range p.windows {
		if window.Closed {
			continue
		}
		windowStart := window.StartTime.Unix()
		windowEnd := windowStart + p.config.WindowSizeSeconds
		switch {
		case eventTimestamp >= windowStart && eventTimestamp < windowEnd:
			target = window
		case eventTimestamp >= windowEnd:
			window.EndTime = time.Now()
			closed = append(closed, p.closeWindowLocked(window))
		}
	}

	if target == nil {
		target = p.createWindowLocked()
		target.StartTime = time.Unix(p.alignedWindowStart(eventTimestamp), 0)
		target.EndTime = target.StartTime.Add(time.Duration(p.config.WindowSizeSeconds) * time.Second)
	}

	p.addEventLocked(target.ID, event)
	return closed
}

// processSlidingLocked opens a new window per incoming event at the
// aligned boundary, so windows overlap in membership. The original
// engine behaves this way deliberately; overlapping results are
// coalesced downstream rather than deduplicated here.
func (p *WindowingProcessor) processSlidingLocked(event Event, eventTimestamp int64) []WindowResult {
	window := p.createWindowLocked()
	window.StartTime = time.Unix(p.alignedWindowStart(eventTimestamp), 0)
	window.EndTime = window.StartTime.Add(time.Duration(p.config.WindowSizeSeconds) * time.Second)
	p.addEventLocked(window.ID, event)

	var closed []WindowResult
	for _, other := range p.windows {
		if other.Closed || other.ID == window.ID {
			continue
		}
		if other.EndTime.Unix() < eventTimestamp {
			other.EndTime = time.Now()
			closed = append(closed, p.closeWindowLocked(other))
		}
	}
	return closed
}

// processSessionLocked groups events by session key, extending the key's
// window on activity and starting a fresh one after the inactivity
// timeout has passed.
func (p *WindowingProcessor) processSessionLocked(event Event, eventTimestamp int64) []WindowResult {
	key := sessionKey(event)
	timeout := time.Duration(p.config.SessionTimeoutSeconds) * time.Second

	if windowID, ok := p.sessionWindows[key]; ok {
		window, live := p.windows[windowID]
		if live && !window.Closed && eventTimestamp <= window.EndTime.Unix() {
			window.EndTime = time.Unix(eventTimestamp, 0).Add(timeout)
			p.addEventLocked(window.ID, event)
			return nil
		}
		delete(p.sessionWindows, key)
	}

	window := p.createWindowLocked()
	window.StartTime = time.Unix(eventTimestamp, 0)
	window.EndTime = window.StartTime.Add(timeout)
	p.sessionWindows[key] = window.ID
	p.addEventLocked(window.ID, event)
	return nil
}

// sessionKey derives the grouping key for session windows: the
// sessionId field, else userId, else a shared default.
func sessionKey(event Event) string {
	if id, ok := event.GetString("sessionId"); ok {
		return id
	}
	if id, ok := event.GetString("userId"); ok {
		return id
	}
	return "default"
}

// CleanupExpiredWindows closes every open window whose end time has
// passed, then evicts all closed windows and prunes dangling session-key
// references.
func (p *WindowingProcessor) CleanupExpiredWindows() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for id, window := range p.windows {
		if !window.Closed && window.EndTime.Before(now) {
			window.Closed = true
			p.windowsClosed++
		}
		if window.Closed {
			delete(p.windows, id)
		}
	}

	for key, windowID := range p.sessionWindows {
		if _, ok := p.windows[windowID]; !ok {
			delete(p.sessionWindows, key)
		}
	}
}

// Statistics returns a snapshot of the processor counters.
func (p *WindowingProcessor) Statistics() WindowingStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	active := 0
	for _, window := range p.windows {
		if !window.Closed {
			active++
		}
	}
	return WindowingStats{
		WindowsCreated:    p.windowsCreated,
		WindowsClosed:     p.windowsClosed,
		EventsProcessed:   p.eventsProcessed,
		ActiveWindows:     active,
		WindowType:        p.config.Type.String(),
		WindowSizeSeconds: p.config.WindowSizeSeconds,
	}
}

// alignedWindowStart floors the timestamp to the window-size boundary.
func (p *WindowingProcessor) alignedWindowStart(eventTimestamp int64) int64 {
	return (eventTimestamp / p.config.WindowSizeSeconds) * p.config.WindowSizeSeconds
}

func generateWindowID() string {
	return fmt.Sprintf("window_%d_%04d", time.Now().UnixMilli(), rand.Intn(10000))
}
