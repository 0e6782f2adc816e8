package session

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ccollicutt/logstream/pkg/producer"
)

// Metrics are per-source Prometheus counters. A nil *Metrics records
// nothing.
type Metrics struct {
	loadedBytes   *prometheus.CounterVec
	skippedBytes  *prometheus.CounterVec
	consumedBytes *prometheus.CounterVec
	droppedBytes  *prometheus.CounterVec
	parsedMsgs    *prometheus.CounterVec
	skippedMsgs   *prometheus.CounterVec
	parseErrors   *prometheus.CounterVec
	flushes       *prometheus.CounterVec
	sessionsEnded *prometheus.CounterVec
}

// NewMetrics registers the session counters on reg. A nil registerer
// returns nil metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logstream",
			Subsystem: "session",
			Name:      name,
			Help:      help,
		}, labels)
	}

	m := &Metrics{
		loadedBytes:   counter("loaded_bytes_total", "Bytes loaded from the source.", "source"),
		skippedBytes:  counter("skipped_bytes_total", "Bytes rejected by the source filter.", "source"),
		consumedBytes: counter("consumed_bytes_total", "Bytes consumed by the parser.", "source"),
		droppedBytes:  counter("dropped_bytes_total", "Bytes dropped to resynchronise after parse errors.", "source"),
		parsedMsgs:    counter("parsed_messages_total", "Records appended to the session.", "source"),
		skippedMsgs:   counter("skipped_messages_total", "Items parsed without producing a record.", "source"),
		parseErrors:   counter("parse_errors_total", "Recoverable parse errors.", "source"),
		flushes:       counter("flushes_total", "Session buffer flushes.", "source"),
		sessionsEnded: counter("ended_total", "Finished source sessions by end reason.", "source", "reason"),
	}
	reg.MustRegister(
		m.loadedBytes, m.skippedBytes, m.consumedBytes, m.droppedBytes,
		m.parsedMsgs, m.skippedMsgs, m.parseErrors, m.flushes, m.sessionsEnded,
	)
	return m
}

func (m *Metrics) fetched(src string, info producer.FetchInfo) {
	if m == nil {
		return
	}
	m.loadedBytes.WithLabelValues(src).Add(float64(info.NewlyLoadedBytes))
	m.skippedBytes.WithLabelValues(src).Add(float64(info.SkippedBytes))
}

func (m *Metrics) processed(src string, infos *producer.ParseOperationInfos) {
	if m == nil {
		return
	}
	m.consumedBytes.WithLabelValues(src).Add(float64(infos.Consumed))
	m.parsedMsgs.WithLabelValues(src).Add(float64(infos.ParsedMsgs))
	m.skippedMsgs.WithLabelValues(src).Add(float64(infos.SkippedMsgs))
}

func (m *Metrics) dropped(src string, n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.droppedBytes.WithLabelValues(src).Add(float64(n))
}

func (m *Metrics) parseError(src string) {
	if m == nil {
		return
	}
	m.parseErrors.WithLabelValues(src).Inc()
}

func (m *Metrics) flushed(src string) {
	if m == nil {
		return
	}
	m.flushes.WithLabelValues(src).Inc()
}

func (m *Metrics) ended(src string, reason EndReason) {
	if m == nil {
		return
	}
	m.sessionsEnded.WithLabelValues(src, string(reason)).Inc()
}
