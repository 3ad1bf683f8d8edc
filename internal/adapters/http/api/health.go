package api

import (
	"net/http"

	"github.com/okian/solcast/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthHandler serves the Prometheus exposition as the liveness probe.
type HealthHandler struct {
	metrics http.Handler
}

// NewHealthHandler serves g, or the service registry when g is nil.
func NewHealthHandler(g prometheus.Gatherer) *HealthHandler {
	if g == nil {
		g = metrics.GetRegistry()
	}
	return &HealthHandler{
		metrics: promhttp.HandlerFor(g, promhttp.HandlerOpts{
			ErrorHandling:     promhttp.ContinueOnError,
			EnableOpenMetrics: true,
		}),
	}
}

// HandleHealth handles GET /healthz requests.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}
	h.metrics.ServeHTTP(w, r)
}
