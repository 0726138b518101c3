// Package streamsync provides the streaming event-processing core used
// by the surrounding replication pipeline: event-time semantics with
// watermarks and a late-data policy, time-windowed aggregation, durable
// keyed state, and complex multi-event pattern detection over a flow of
// change events.
//
// # Basic Usage
//
// Build an engine and push events through it:
//
//	engine := streamsync.NewStreamEngine(streamsync.Config{
//	    EventTime: streamsync.DefaultEventTimeConfig(),
//	    Window: streamsync.WindowConfig{
//	        Type:              streamsync.WindowTumbling,
//	        WindowSizeSeconds: 60,
//	    },
//	})
//
//	result := engine.ProcessEvent(streamsync.Event{
//	    "table":     "orders",
//	    "op":        "I",
//	    "amount":    41.5,
//	    "timestamp": time.Now().Unix(),
//	})
//	for _, window := range result.Windows {
//	    // window closed by this event
//	}
//	for _, match := range result.Matches {
//	    // pattern completed by this event
//	}
//
// Everything the engine reports happens synchronously inside
// ProcessEvent or an explicit Cleanup call; no goroutines or timers run
// in the background. Callers with sparse traffic should invoke Cleanup
// periodically.
//
// # Components
//
// The engine is a façade over four independently usable processors:
//
//   - EventTimeProcessor: timestamp extraction, monotonic watermarks,
//     late-event classification and policy.
//   - StatefulProcessor: keyed state with per-key update metadata and
//     snapshots.
//   - WindowingProcessor: tumbling, sliding, and session windows with
//     closed-window results and optional aggregation.
//   - CEPProcessor: rule-driven sequential pattern detection with
//     per-rule time budgets.
//
// # Integrations
//
//   - YAML configuration and declarative CEP rule files (LoadConfig,
//     LoadRules).
//   - Websocket fan-out of window results and pattern matches
//     (StreamHub).
//   - A change-log table poller as reference CDC input
//     (ChangelogSource).
//   - Prometheus metrics for all engine counters (EngineCollector).
package streamsync
