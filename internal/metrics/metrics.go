// Package metrics exposes Prometheus metrics for deployment runs.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Step outcomes.
const (
	StatusDeployed  = "deployed"
	StatusSimulated = "simulated"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

var (
	stepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldcoin_deploy_steps_total",
			Help: "Deployment steps by outcome",
		},
		[]string{"plan", "step", "status"},
	)

	stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldcoin_deploy_step_duration_seconds",
			Help:    "Time from artifact resolution to confirmed deployment",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"plan", "step"},
	)

	gasUsedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldcoin_deploy_gas_used_total",
			Help: "Gas used by confirmed contract creations",
		},
		[]string{"plan", "step"},
	)
)

// ObserveStep records the outcome of one plan step.
func ObserveStep(plan, step, status string, d time.Duration, gasUsed uint64) {
	stepsTotal.WithLabelValues(plan, step, status).Inc()
	if status == StatusSkipped {
		return
	}
	stepDuration.WithLabelValues(plan, step).Observe(d.Seconds())
	if gasUsed > 0 {
		gasUsedTotal.WithLabelValues(plan, step).Add(float64(gasUsed))
	}
}

// Handler returns the HTTP handler serving /metrics and /health.
func Handler() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Serve runs the metrics server until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
