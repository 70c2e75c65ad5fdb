package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bnema/fanout/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	selectionsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fanout",
		Subsystem: "selector",
		Name:      "selections_total",
		Help:      "Number of finalized identity selections",
	}, []string{"identity"})

	selectionWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fanout",
		Subsystem: "selector",
		Name:      "wait_seconds",
		Help:      "Time a caller waited for an identity rate window",
		Buckets:   []float64{0, 1, 5, 15, 30, 60, 120, 300},
	})

	outcomesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fanout",
		Subsystem: "dispatch",
		Name:      "outcomes_total",
		Help:      "Dispatch attempts by result",
	}, []string{"identity", "result"})

	dispatchesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fanout",
		Subsystem: "dispatch",
		Name:      "jobs_total",
		Help:      "Finished dispatch jobs by status",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(
		selectionsCounter,
		selectionWait,
		outcomesCounter,
		dispatchesCounter)
}

// ObserveSelection matches the rotation.Options.OnSelect signature.
func ObserveSelection(name domain.IdentityName, wait time.Duration) {
	selectionsCounter.WithLabelValues(string(name)).Inc()
	selectionWait.Observe(wait.Seconds())
}

func ObserveOutcome(outcome domain.Outcome) {
	result := "failure"
	if outcome.Succeeded {
		result = "success"
	}
	outcomesCounter.WithLabelValues(string(outcome.Identity), result).Inc()
}

func ObserveSummary(summary domain.Summary) {
	status := "completed"
	if summary.Canceled {
		status = "canceled"
	}
	dispatchesCounter.WithLabelValues(status).Inc()
}

// Serve exposes the default registry on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
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
		return server.Shutdown(shutdownCtx)
	}
}
