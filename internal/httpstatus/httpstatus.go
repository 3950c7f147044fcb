// Package httpstatus serves the daemon's Prometheus scrape endpoint and a
// liveness probe on a single listener, alongside its primary work loop.
package httpstatus

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sio/guestsyncd/internal/logging"
	"github.com/sio/guestsyncd/internal/metrics"
)

// HealthFunc reports whether the daemon is ready to serve traffic. A
// non-nil error is rendered as the probe's failure reason.
type HealthFunc func() error

// Server is the status-plane HTTP listener.
type Server struct {
	httpServer *http.Server
}

// Start builds the mux and begins serving in the background. Passing an
// empty addr disables the listener entirely (nil Server, nil error).
func Start(addr string, health HealthFunc) (*Server, error) {
	if addr == "" {
		return nil, nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.PrometheusHandler())
	mux.HandleFunc("/healthz", healthzHandler(health))

	s := &Server{httpServer: &http.Server{Addr: addr, Handler: mux}}
	go func() {
		logging.Op().Info("status endpoint started", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error("status endpoint error", "error", err)
		}
	}()
	return s, nil
}

// Stop gracefully shuts down the listener, if one is running.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func healthzHandler(health HealthFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK
		reason := ""
		if health != nil {
			if err := health(); err != nil {
				status = "unavailable"
				code = http.StatusServiceUnavailable
				reason = err.Error()
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":     status,
			"reason":     reason,
			"uptime_sec": time.Since(metrics.StartTime()).Seconds(),
		})
	}
}
