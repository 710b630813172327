// Package server exposes the relay's operational HTTP endpoints.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/guildrelay/guildrelay/common/httputil"
	"github.com/guildrelay/guildrelay/common/messaging"
)

// ConnectionState reports whether the gateway session is live.
type ConnectionState interface {
	Connected() bool
}

// ConnectionStateFunc adapts a function to ConnectionState.
type ConnectionStateFunc func() bool

func (f ConnectionStateFunc) Connected() bool { return f() }

type HealthHandler struct {
	gateway ConnectionState
	bus     messaging.Client
	started time.Time
	now     func() time.Time
}

// NewHealthHandler builds the health handler. bus may be nil when the
// envelope mirror is disabled.
func NewHealthHandler(gateway ConnectionState, bus messaging.Client) *HealthHandler {
	return &HealthHandler{
		gateway: gateway,
		bus:     bus,
		started: time.Now(),
		now:     time.Now,
	}
}

// Health is the liveness probe. It only proves the process serves HTTP.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"uptime_seconds": int64(h.now().Sub(h.started).Seconds()),
	})
}

type readiness struct {
	Status  string                  `json:"status"`
	Gateway bool                    `json:"gateway_connected"`
	NATS    *messaging.HealthStatus `json:"nats,omitempty"`
}

// Ready returns 503 until the gateway is connected and, when configured, the
// message bus is reachable.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	resp := readiness{Status: "ready"}
	ready := true

	if h.gateway != nil {
		resp.Gateway = h.gateway.Connected()
	}
	if !resp.Gateway {
		ready = false
	}

	if h.bus != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		status := messaging.CheckClientHealth(ctx, h.bus)
		resp.NATS = &status
		if !status.Healthy() {
			ready = false
		}
	}

	code := http.StatusOK
	if !ready {
		resp.Status = "not_ready"
		code = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, code, resp)
}
