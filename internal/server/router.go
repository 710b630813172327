package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/guildrelay/guildrelay/common/httputil"
	"github.com/guildrelay/guildrelay/common/middleware"
)

// NewRouter constructs a ServeMux with the ops endpoints registered.
func NewRouter(h *HealthHandler) http.Handler {
	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("/healthz", httputil.MethodGuard(h.Health, http.MethodGet, http.MethodHead))
	mux.HandleFunc("/readyz", httputil.MethodGuard(h.Ready, http.MethodGet, http.MethodHead))

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
