package handlers

import (
	"context"
	"net/http"
	"time"

	domain "github.com/khotaikhoan/storefront/internal/domain"
	"github.com/khotaikhoan/storefront/internal/platform/httpx"
)

// HealthReporter collects dependency status for readiness probes.
type HealthReporter interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// HealthHandlers serves /healthz and /readyz.
type HealthHandlers struct {
	reporter HealthReporter
	clock    func() time.Time
	started  time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthReporter sets the dependency reporter used by /readyz.
func WithHealthReporter(reporter HealthReporter) HealthOption {
	return func(h *HealthHandlers) {
		h.reporter = reporter
	}
}

// WithHealthClock overrides the time source.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs health handlers. Without a reporter /readyz always reports ok.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.started = h.clock()
	return h
}

// Healthz reports liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    domain.HealthStatusOK,
		"uptime":    now.Sub(h.started.UTC()).Round(time.Second).String(),
		"timestamp": now.Format(time.RFC3339),
	})
}

// Readyz probes dependencies; anything other than ok answers 503.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.clock().UTC()
	if h.reporter == nil {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"status":    domain.HealthStatusOK,
			"timestamp": now.Format(time.RFC3339),
		})
		return
	}

	report, err := h.reporter.Collect(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("health_unavailable", "unable to collect dependency health", http.StatusServiceUnavailable))
		return
	}

	checks := make(map[string]healthCheckPayload, len(report.Checks))
	for name, check := range report.Checks {
		checks[name] = healthCheckPayload{
			Status:    check.Status,
			Detail:    check.Detail,
			Error:     check.Error,
			LatencyMS: check.Latency.Milliseconds(),
		}
	}
	status := http.StatusOK
	if report.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	generated := report.GeneratedAt
	if generated.IsZero() {
		generated = now
	}
	httpx.WriteJSON(w, status, map[string]any{
		"status":    report.Status,
		"checks":    checks,
		"timestamp": generated.UTC().Format(time.RFC3339),
	})
}

type healthCheckPayload struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}
