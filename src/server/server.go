package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"
)

// HealthSource reports whether the monitoring loop is live.
type HealthSource interface {
	Running() bool
}

func newRouter(health HealthSource) *chi.Mux {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if !health.Running() {
			w.WriteHeader(http.StatusServiceUnavailable)
			if _, err := w.Write([]byte("starting")); err != nil {
				logger.WithError(err).Error("/health write error")
			}
			return
		}
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("/health write error")
		}
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Start runs the health/metrics server until the context is cancelled. The
// health endpoint turns 200 only once the monitoring loop is up, so an
// orchestrator never routes to a guardian that is not actually watching.
func Start(ctx context.Context, port string, health HealthSource) {
	r := newRouter(health)

	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		logger.Infof("Health server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Health server crashed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Health server shutdown error")
	}
}
