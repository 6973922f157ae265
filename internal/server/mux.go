// Package server provides the HTTP surface of the mxlink daemon.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Health reports whether the sync loop is running. The zero value is
// not ready.
type Health struct {
	ready  atomic.Bool
	userID atomic.Value
}

// SetReady marks the daemon ready for userID.
func (h *Health) SetReady(userID string) {
	h.userID.Store(userID)
	h.ready.Store(true)
}

// SetNotReady marks the daemon as stopped or not yet started.
func (h *Health) SetNotReady() {
	h.ready.Store(false)
}

// MuxConfig holds dependencies for building the HTTP mux.
type MuxConfig struct {
	Gatherer prometheus.Gatherer
	Health   *Health
	Logger   *slog.Logger
}

// NewMux builds the HTTP mux with the Prometheus scrape endpoint and a
// health probe.
func NewMux(cfg MuxConfig) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{
		ErrorLog: slog.NewLogLogger(cfg.Logger.Handler(), slog.LevelError),
	}))
	mux.HandleFunc("GET /healthz", handleHealth(cfg.Health))

	return mux
}

type healthResponse struct {
	Status string `json:"status"`
	UserID string `json:"user_id,omitempty"`
}

func handleHealth(h *Health) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		resp := healthResponse{Status: "starting"}
		status := http.StatusServiceUnavailable

		if h.ready.Load() {
			resp.Status = "ok"
			status = http.StatusOK

			if id, ok := h.userID.Load().(string); ok {
				resp.UserID = id
			}
		}

		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
