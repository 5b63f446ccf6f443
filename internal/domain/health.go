package domain

import "time"

// HealthStatus is derived on demand from metrics and connection state.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "HEALTHY"
	HealthWarning  HealthStatus = "WARNING"
	HealthCritical HealthStatus = "CRITICAL"
)

type ComponentCheck struct {
	Name        string       `json:"name"`
	Status      HealthStatus `json:"status"`
	Detail      string       `json:"detail,omitempty"`
	LatencyMS   int64        `json:"latency_ms"`
	LastChecked time.Time    `json:"last_checked"`
}

// HealthReport is the service-level health payload served over HTTP.
type HealthReport struct {
	Status        HealthStatus              `json:"status"`
	Timestamp     time.Time                 `json:"timestamp"`
	UptimeSeconds int64                     `json:"uptime_seconds"`
	Version       string                    `json:"version"`
	Checks        map[string]ComponentCheck `json:"checks"`
}
