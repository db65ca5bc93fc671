package domain

import "time"

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency failed but the process can serve.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates a dependency timed out or the probe was cancelled.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of one dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for /readyz.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	GeneratedAt time.Time
}
