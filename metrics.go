package streamsync

import "github.com/prometheus/client_golang/prometheus"

// EngineCollector exposes a StreamEngine's counters as Prometheus
// metrics, reading a statistics snapshot at collect time.
type EngineCollector struct {
	engine *StreamEngine

	eventsAccepted  *prometheus.Desc
	eventsLate      *prometheus.Desc
	eventsDropped   *prometheus.Desc
	eventsBuffered  *prometheus.Desc
	lateBufferSize  *prometheus.Desc
	watermark       *prometheus.Desc
	windowsCreated  *prometheus.Desc
	windowsClosed   *prometheus.Desc
	activeWindows   *prometheus.Desc
	patternsMatched *prometheus.Desc
	cepRules        *prometheus.Desc
	stateKeys       *prometheus.Desc
}

// NewEngineCollector creates a collector for the engine.
func NewEngineCollector(engine *StreamEngine) *EngineCollector {
	return &EngineCollector{
		engine: engine,
		eventsAccepted: prometheus.NewDesc(
			"streamsync_events_accepted_total",
			"Events accepted by the engine", nil, nil),
		eventsLate: prometheus.NewDesc(
			"streamsync_events_late_total",
			"Events classified late", nil, nil),
		eventsDropped: prometheus.NewDesc(
			"streamsync_late_events_dropped_total",
			"Late events dropped by policy", nil, nil),
		eventsBuffered: prometheus.NewDesc(
			"streamsync_late_events_buffered_total",
			"Late events retained in the late buffer", nil, nil),
		lateBufferSize: prometheus.NewDesc(
			"streamsync_late_buffer_size",
			"Current late-event buffer size", nil, nil),
		watermark: prometheus.NewDesc(
			"streamsync_watermark_seconds",
			"Current watermark position in unix seconds", nil, nil),
		windowsCreated: prometheus.NewDesc(
			"streamsync_windows_created_total",
			"Windows created", nil, nil),
		windowsClosed: prometheus.NewDesc(
			"streamsync_windows_closed_total",
			"Windows closed", nil, nil),
		activeWindows: prometheus.NewDesc(
			"streamsync_active_windows",
			"Currently open windows", nil, nil),
		patternsMatched: prometheus.NewDesc(
			"streamsync_patterns_matched_total",
			"CEP patterns matched", nil, nil),
		cepRules: prometheus.NewDesc(
			"streamsync_cep_rules",
			"Registered CEP rules", nil, nil),
		stateKeys: prometheus.NewDesc(
			"streamsync_state_keys",
			"Keys in the state store", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *EngineCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.eventsAccepted
	ch <- c.eventsLate
	ch <- c.eventsDropped
	ch <- c.eventsBuffered
	ch <- c.lateBufferSize
	ch <- c.watermark
	ch <- c.windowsCreated
	ch <- c.windowsClosed
	ch <- c.activeWindows
	ch <- c.patternsMatched
	ch <- c.cepRules
	ch <- c.stateKeys
}

// Collect implements prometheus.Collector.
func (c *EngineCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.engine.Statistics()

	ch <- prometheus.MustNewConstMetric(c.eventsAccepted,
		prometheus.CounterValue, float64(stats.EventsAccepted))
	ch <- prometheus.MustNewConstMetric(c.eventsLate,
		prometheus.CounterValue, float64(stats.EventsLate))
	ch <- prometheus.MustNewConstMetric(c.eventsDropped,
		prometheus.CounterValue, float64(stats.EventTime.EventsDropped))
	ch <- prometheus.MustNewConstMetric(c.eventsBuffered,
		prometheus.CounterValue, float64(stats.EventTime.EventsBuffered))
	ch <- prometheus.MustNewConstMetric(c.lateBufferSize,
		prometheus.GaugeValue, float64(stats.EventTime.LateBufferSize))
	ch <- prometheus.MustNewConstMetric(c.watermark,
		prometheus.GaugeValue, float64(stats.EventTime.Watermark))
	ch <- prometheus.MustNewConstMetric(c.windowsCreated,
		prometheus.CounterValue, float64(stats.Windowing.WindowsCreated))
	ch <- prometheus.MustNewConstMetric(c.windowsClosed,
		prometheus.CounterValue, float64(stats.Windowing.WindowsClosed))
	ch <- prometheus.MustNewConstMetric(c.activeWindows,
		prometheus.GaugeValue, float64(stats.Windowing.ActiveWindows))
	ch <- prometheus.MustNewConstMetric(c.patternsMatched,
		prometheus.CounterValue, float64(stats.CEP.PatternsMatched))
	ch <- prometheus.MustNewConstMetric(c.cepRules,
		prometheus.GaugeValue, float64(stats.CEP.RulesCount))
	ch <- prometheus.MustNewConstMetric(c.stateKeys,
		prometheus.GaugeValue, float64(stats.State.TotalKeys))
}

// RegisterMetrics registers an engine collector with the registry.
func RegisterMetrics(registry prometheus.Registerer, engine *StreamEngine) error {
	return registry.Register(NewEngineCollector(engine))
}
