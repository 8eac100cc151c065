package api

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"runtime"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/rankboard/pkg/metrics"
)

// HealthDependencies defines the interface for health checks.
type HealthDependencies interface {
	Healthy(ctx context.Context) error
}

// HealthHandler handles status and metrics requests.
type HealthHandler struct {
	deps    HealthDependencies
	metrics http.Handler
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(deps HealthDependencies) *HealthHandler {
	return &HealthHandler{
		deps:    deps,
		metrics: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}),
	}
}

type statusResponse struct {
	Healthy bool   `json:"healthy"`
	Memory  string `json:"memory"`
}

// HandleStatus handles GET /status. It answers 503 when the backing store
// does not respond.
func (h *HealthHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	used := math.Round(float64(mem.HeapAlloc)/1024/1024*100) / 100

	resp := statusResponse{
		Healthy: h.deps.Healthy(r.Context()) == nil,
		Memory:  fmt.Sprintf("%g MB", used),
	}
	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// HandleMetrics handles GET /metrics from the service's own registry.
func (h *HealthHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}
