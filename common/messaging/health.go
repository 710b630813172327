package messaging

import (
	"context"
	"time"
)

// HealthSubject is probed by CheckClientHealth. Nobody answers on it; the
// round trip only proves the server is reachable.
const HealthSubject = "_HEALTH.guildrelay"

// HealthStatus describes a bus connection for /readyz.
type HealthStatus struct {
	Connected bool   `json:"connected"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Healthy reports whether the connection is usable.
func (s HealthStatus) Healthy() bool {
	return s.Connected && s.Error == ""
}

// CheckClientHealth verifies client is connected and measures a probe round
// trip. A probe error while still connected (no responders, timeout) is not
// treated as unhealthy.
func CheckClientHealth(ctx context.Context, client Client) HealthStatus {
	var status HealthStatus
	if client == nil {
		status.Error = "client is nil"
		return status
	}

	if !client.IsConnected() {
		status.Error = "not connected to message bus"
		return status
	}

	start := time.Now()
	_, _ = client.Request(ctx, HealthSubject, []byte("ping"), 2*time.Second)
	status.LatencyMS = time.Since(start).Milliseconds()
	status.Connected = client.IsConnected()
	if !status.Connected {
		status.Error = "connection lost during health probe"
	}
	return status
}
