// Package metrics exposes run, task and phase counters for Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/msageha/conductor/internal/events"
	"github.com/msageha/conductor/internal/logging"
)

type Metrics struct {
	registry *prometheus.Registry

	runsTotal        *prometheus.CounterVec
	runDuration      prometheus.Histogram
	tasksTotal       *prometheus.CounterVec
	taskDuration     prometheus.Histogram
	riskScore        prometheus.Histogram
	phaseTransitions *prometheus.CounterVec
	escalationsTotal *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "conductor_runs_total",
			Help: "Finished runs by overall status",
		}, []string{"status", "dry_run"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "conductor_run_duration_seconds",
			Help:    "Wall time of a run from INTAKE to SHIP",
			Buckets: []float64{0.01, 0.1, 1, 10, 60, 300, 1800},
		}),
		tasksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "conductor_tasks_total",
			Help: "Leaf results by status",
		}, []string{"status"}),
		taskDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "conductor_task_duration_seconds",
			Help:    "Executor time per dispatched task",
			Buckets: []float64{0.01, 0.1, 1, 10, 60, 300, 1800},
		}),
		riskScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "conductor_task_risk_score",
			Help:    "Risk score assigned at review",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
		phaseTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "conductor_phase_transitions_total",
			Help: "Phase transitions by target phase",
		}, []string{"phase"}),
		escalationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "conductor_escalations_total",
			Help: "Escalations recorded in finished runs",
		}, []string{"unresolved"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe updates the collectors from one pipeline record.
func (m *Metrics) Observe(rec events.Record) {
	switch rec.Kind {
	case events.KindPhase:
		m.phaseTransitions.WithLabelValues(string(rec.Phase)).Inc()
	case events.KindTrace:
		tr := rec.Trace
		if tr == nil {
			return
		}
		m.runsTotal.WithLabelValues(string(tr.Status), strconv.FormatBool(tr.DryRun)).Inc()
		m.runDuration.Observe(tr.Duration.Seconds())
		for _, r := range tr.Results {
			m.tasksTotal.WithLabelValues(string(r.Status)).Inc()
			if r.Risk.Score > 0 {
				m.riskScore.Observe(float64(r.Risk.Score))
			}
			if r.Duration > 0 {
				m.taskDuration.Observe(r.Duration.Seconds())
			}
		}
		for _, e := range tr.Escalations {
			m.escalationsTotal.WithLabelValues(strconv.FormatBool(e.Unresolved)).Inc()
		}
	}
}

// Attach subscribes to phase and trace records on bus. The returned func
// unsubscribes.
func (m *Metrics) Attach(bus *events.Bus) func() {
	unsubPhase := bus.Subscribe(events.KindPhase, m.Observe)
	unsubTrace := bus.Subscribe(events.KindTrace, m.Observe)
	return func() {
		unsubPhase()
		unsubTrace()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *logging.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening addr=%s", addr)
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
