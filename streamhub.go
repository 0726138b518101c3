package streamsync

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// StreamHubConfig configures result streaming to subscribers.
type StreamHubConfig struct {
	// BufferSize is the channel buffer size per subscription.
	BufferSize int `yaml:"bufferSize"`

	// PingInterval is how often websocket clients are pinged.
	PingInterval time.Duration `yaml:"pingInterval"`

	// WriteTimeout bounds websocket writes.
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// DefaultStreamHubConfig returns default hub configuration.
func DefaultStreamHubConfig() StreamHubConfig {
	return StreamHubConfig{
		BufferSize:   1000,
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// StreamMessage is the JSON frame delivered to subscribers: either a
// closed-window result or a pattern match.
type StreamMessage struct {
	Kind   string        `json:"kind"` // "window", "match", "subscribed", "error"
	SubID  string        `json:"subId,omitempty"`
	Window *WindowResult `json:"window,omitempty"`
	Match  *PatternMatch `json:"match,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// HubSubscription is one live consumer of engine results.
type HubSubscription struct {
	ID      string
	ch      chan StreamMessage
	done    chan struct{}
	mu      sync.Mutex
	closed  bool
	created time.Time
}

// C returns the channel delivering stream messages.
func (s *HubSubscription) C() <-chan StreamMessage {
	return s.ch
}

// Close terminates the subscription.
func (s *HubSubscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	close(s.ch)
}

// StreamHub fans engine results out to subscribers over channels and,
// optionally, websocket connections. Publishing never blocks: a
// subscriber that cannot keep up loses messages, counted in Dropped.
type StreamHub struct {
	config StreamHubConfig

	mu   sync.RWMutex
	subs map[string]*HubSubscription

	dropped atomic.Int64
}

// NewStreamHub creates a hub.
func NewStreamHub(config StreamHubConfig) *StreamHub {
	if config.BufferSize <= 0 {
		config.BufferSize = 1000
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 30 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}
	return &StreamHub{
		config: config,
		subs:   make(map[string]*HubSubscription),
	}
}

// Subscribe registers a new subscription.
func (h *StreamHub) Subscribe() *HubSubscription {
	sub := &HubSubscription{
		ID:      uuid.NewString(),
		ch:      make(chan StreamMessage, h.config.BufferSize),
		done:    make(chan struct{}),
		created: time.Now(),
	}

	h.mu.Lock()
	h.subs[sub.ID] = sub
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes and closes a subscription.
func (h *StreamHub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()

	if ok {
		sub.Close()
	}
}

// PublishWindow delivers a closed-window result to every subscriber.
func (h *StreamHub) PublishWindow(result WindowResult) {
	h.publish(StreamMessage{Kind: "window", Window: &result})
}

// PublishMatch delivers a pattern match to every subscriber.
func (h *StreamHub) PublishMatch(match PatternMatch) {
	h.publish(StreamMessage{Kind: "match", Match: &match})
}

func (h *StreamHub) publish(msg StreamMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		msg.SubID = sub.ID
		select {
		case sub.ch <- msg:
		default:
			// Buffer full, drop the message
			h.dropped.Add(1)
		}
	}
}

// Count returns the number of active subscriptions.
func (h *StreamHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many messages were lost to slow subscribers.
func (h *StreamHub) Dropped() int64 {
	return h.dropped.Load()
}

// Close terminates every subscription.
func (h *StreamHub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*HubSubscription)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocketHandler returns an HTTP handler that upgrades the connection
// and forwards a fresh subscription's results as JSON frames until the
// client disconnects.
func (h *StreamHub) WebSocketHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer func() { _ = conn.Close() }()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sub := h.Subscribe()
		defer h.Unsubscribe(sub.ID)

		ack, _ := json.Marshal(StreamMessage{Kind: "subscribed", SubID: sub.ID})
		if err := conn.WriteMessage(websocket.TextMessage, ack); err != nil {
			return
		}

		// Drain client frames so pings and close frames are processed.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		h.forward(ctx, conn, sub)
	}
}

func (h *StreamHub) forward(ctx context.Context, conn *websocket.Conn, sub *HubSubscription) {
	ping := time.NewTicker(h.config.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.done:
			return
		case <-ping.C:
			deadline := time.Now().Add(h.config.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case msg, ok := <-sub.ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}
