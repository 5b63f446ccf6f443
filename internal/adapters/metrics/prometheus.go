package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/ports"
)

const (
	namespace = "viralforge"
	subsystem = "cache"
)

// SnapshotCollector bridges the cache client's metrics snapshot into
// Prometheus const metrics. Collect reads a single snapshot so every series
// in one scrape is taken at the same instant.
type SnapshotCollector struct {
	diagnostics ports.CacheDiagnostics

	descReady           *prometheus.Desc
	descState           *prometheus.Desc
	descUptime          *prometheus.Desc
	descRequests        *prometheus.Desc
	descHits            *prometheus.Desc
	descMisses          *prometheus.Desc
	descErrors          *prometheus.Desc
	descSlowOps         *prometheus.Desc
	descNotReady        *prometheus.Desc
	descRateDecisions   *prometheus.Desc
	descHitRate         *prometheus.Desc
	descErrorRate       *prometheus.Desc
	descLatency         *prometheus.Desc
	descCommands        *prometheus.Desc
	descCommandErrors   *prometheus.Desc
	descCompressionSave *prometheus.Desc
	descCompressionFail *prometheus.Desc
	descReconnects      *prometheus.Desc
	descReconnectStreak *prometheus.Desc
	descConnections     *prometheus.Desc
	descMemoryUsed      *prometheus.Desc
	descMemoryPeak      *prometheus.Desc
	descMemoryMax       *prometheus.Desc
	descPingLatency     *prometheus.Desc
}

func NewSnapshotCollector(diagnostics ports.CacheDiagnostics) *SnapshotCollector {
	name := func(n string) string { return prometheus.BuildFQName(namespace, subsystem, n) }
	return &SnapshotCollector{
		diagnostics: diagnostics,

		descReady:           prometheus.NewDesc(name("ready"), "Whether the cache client is READY.", nil, nil),
		descState:           prometheus.NewDesc(name("connection_state"), "Current connection state (1 for the active state).", []string{"state"}, nil),
		descUptime:          prometheus.NewDesc(name("uptime_seconds"), "Seconds since the client was constructed.", nil, nil),
		descRequests:        prometheus.NewDesc(name("requests_total"), "Commands executed.", nil, nil),
		descHits:            prometheus.NewDesc(name("hits_total"), "Cache read hits.", nil, nil),
		descMisses:          prometheus.NewDesc(name("misses_total"), "Cache read misses.", nil, nil),
		descErrors:          prometheus.NewDesc(name("errors_total"), "Command errors.", nil, nil),
		descSlowOps:         prometheus.NewDesc(name("slow_operations_total"), "Commands exceeding the slow-op threshold.", nil, nil),
		descNotReady:        prometheus.NewDesc(name("not_ready_rejections_total"), "Commands rejected because the client was not ready.", nil, nil),
		descRateDecisions:   prometheus.NewDesc(name("rate_limit_decisions_total"), "Rate limit decisions by outcome.", []string{"outcome"}, nil),
		descHitRate:         prometheus.NewDesc(name("hit_rate"), "Hits over reads since the last reset.", nil, nil),
		descErrorRate:       prometheus.NewDesc(name("error_rate"), "Errors over requests since the last reset.", nil, nil),
		descLatency:         prometheus.NewDesc(name("command_latency_ms"), "Command latency statistics over the sample ring.", []string{"stat"}, nil),
		descCommands:        prometheus.NewDesc(name("commands_total"), "Commands executed by name.", []string{"command"}, nil),
		descCommandErrors:   prometheus.NewDesc(name("command_errors_total"), "Command errors by classified kind.", []string{"kind"}, nil),
		descCompressionSave: prometheus.NewDesc(name("compression_saved_bytes_total"), "Bytes saved by envelope compression.", nil, nil),
		descCompressionFail: prometheus.NewDesc(name("compression_failures_total"), "Envelope compress/decompress failures.", nil, nil),
		descReconnects:      prometheus.NewDesc(name("reconnect_attempts_total"), "Reconnect attempts since start.", nil, nil),
		descReconnectStreak: prometheus.NewDesc(name("consecutive_reconnect_failures"), "Reconnect attempts since the last successful connect.", nil, nil),
		descConnections:     prometheus.NewDesc(name("connections_total"), "Successful connection establishments.", nil, nil),
		descMemoryUsed:      prometheus.NewDesc(name("memory_used_bytes"), "used_memory reported by the store.", nil, nil),
		descMemoryPeak:      prometheus.NewDesc(name("memory_peak_bytes"), "Peak used_memory observed.", nil, nil),
		descMemoryMax:       prometheus.NewDesc(name("memory_max_bytes"), "maxmemory reported by the store (0 when unlimited).", nil, nil),
		descPingLatency:     prometheus.NewDesc(name("last_ping_latency_ms"), "Latency of the last health ping.", nil, nil),
	}
}

func (c *SnapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.descReady
	ch <- c.descState
	ch <- c.descUptime
	ch <- c.descRequests
	ch <- c.descHits
	ch <- c.descMisses
	ch <- c.descErrors
	ch <- c.descSlowOps
	ch <- c.descNotReady
	ch <- c.descRateDecisions
	ch <- c.descHitRate
	ch <- c.descErrorRate
	ch <- c.descLatency
	ch <- c.descCommands
	ch <- c.descCommandErrors
	ch <- c.descCompressionSave
	ch <- c.descCompressionFail
	ch <- c.descReconnects
	ch <- c.descReconnectStreak
	ch <- c.descConnections
	ch <- c.descMemoryUsed
	ch <- c.descMemoryPeak
	ch <- c.descMemoryMax
	ch <- c.descPingLatency
}

func (c *SnapshotCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.diagnostics.Snapshot()

	ready := 0.0
	if c.diagnostics.IsReady() {
		ready = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.descReady, prometheus.GaugeValue, ready)
	ch <- prometheus.MustNewConstMetric(c.descState, prometheus.GaugeValue, 1, snap.State)
	ch <- prometheus.MustNewConstMetric(c.descUptime, prometheus.GaugeValue, float64(snap.UptimeSeconds))
	ch <- prometheus.MustNewConstMetric(c.descRequests, prometheus.CounterValue, float64(snap.Requests))
	ch <- prometheus.MustNewConstMetric(c.descHits, prometheus.CounterValue, float64(snap.Hits))
	ch <- prometheus.MustNewConstMetric(c.descMisses, prometheus.CounterValue, float64(snap.Misses))
	ch <- prometheus.MustNewConstMetric(c.descErrors, prometheus.CounterValue, float64(snap.Errors))
	ch <- prometheus.MustNewConstMetric(c.descSlowOps, prometheus.CounterValue, float64(snap.SlowOps))
	ch <- prometheus.MustNewConstMetric(c.descNotReady, prometheus.CounterValue, float64(snap.NotReadyRejects))

	ch <- prometheus.MustNewConstMetric(c.descRateDecisions, prometheus.CounterValue, float64(snap.RateLimitAllowed), "allowed")
	ch <- prometheus.MustNewConstMetric(c.descRateDecisions, prometheus.CounterValue, float64(snap.RateLimitBlocked), "blocked")
	ch <- prometheus.MustNewConstMetric(c.descRateDecisions, prometheus.CounterValue, float64(snap.RateLimitFailOpen), "fail_open")

	ch <- prometheus.MustNewConstMetric(c.descHitRate, prometheus.GaugeValue, snap.HitRate)
	ch <- prometheus.MustNewConstMetric(c.descErrorRate, prometheus.GaugeValue, snap.ErrorRate)

	ch <- prometheus.MustNewConstMetric(c.descLatency, prometheus.GaugeValue, snap.Latency.Min, "min")
	ch <- prometheus.MustNewConstMetric(c.descLatency, prometheus.GaugeValue, snap.Latency.Max, "max")
	ch <- prometheus.MustNewConstMetric(c.descLatency, prometheus.GaugeValue, snap.Latency.Avg, "avg")
	ch <- prometheus.MustNewConstMetric(c.descLatency, prometheus.GaugeValue, snap.Latency.P50, "p50")
	ch <- prometheus.MustNewConstMetric(c.descLatency, prometheus.GaugeValue, snap.Latency.P95, "p95")
	ch <- prometheus.MustNewConstMetric(c.descLatency, prometheus.GaugeValue, snap.Latency.P99, "p99")

	for command, count := range snap.PerCommand {
		ch <- prometheus.MustNewConstMetric(c.descCommands, prometheus.CounterValue, float64(count), command)
	}
	for kind, count := range snap.PerError {
		ch <- prometheus.MustNewConstMetric(c.descCommandErrors, prometheus.CounterValue, float64(count), kind)
	}

	ch <- prometheus.MustNewConstMetric(c.descCompressionSave, prometheus.CounterValue, float64(snap.CompressionSavedBytes))
	ch <- prometheus.MustNewConstMetric(c.descCompressionFail, prometheus.CounterValue, float64(snap.CompressionFailures))
	ch <- prometheus.MustNewConstMetric(c.descReconnects, prometheus.CounterValue, float64(snap.ReconnectAttempts))
	ch <- prometheus.MustNewConstMetric(c.descReconnectStreak, prometheus.GaugeValue, float64(snap.ConsecutiveReconnect))
	ch <- prometheus.MustNewConstMetric(c.descConnections, prometheus.CounterValue, float64(snap.Connections))
	ch <- prometheus.MustNewConstMetric(c.descMemoryUsed, prometheus.GaugeValue, float64(snap.MemoryUsedBytes))
	ch <- prometheus.MustNewConstMetric(c.descMemoryPeak, prometheus.GaugeValue, float64(snap.MemoryPeakBytes))
	ch <- prometheus.MustNewConstMetric(c.descMemoryMax, prometheus.GaugeValue, float64(snap.MemoryMaxBytes))
	ch <- prometheus.MustNewConstMetric(c.descPingLatency, prometheus.GaugeValue, float64(snap.LastPingLatencyMs))
}

// Exporter owns a private registry so this module's series never collide
// with another library's default-registry registrations.
type Exporter struct {
	registry *prometheus.Registry
}

func NewExporter(diagnostics ports.CacheDiagnostics) (*Exporter, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(NewSnapshotCollector(diagnostics)); err != nil {
		return nil, err
	}
	return &Exporter{registry: registry}, nil
}

func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
