// Package observability — metrics.go
//
// Prometheus metrics for the proctriage daemon.
//
// Endpoint: GET /metrics on 127.0.0.1:9091 (configurable via
// config.ObservabilityConfig.MetricsAddr).
// Bind: loopback only — no external exposure.
//
// Metric naming convention: pt_<subsystem>_<name>_<unit>.
//
// All metrics are registered on a dedicated prometheus.Registry, not
// the default global one, so importing this package never collides
// with another instrumented library sharing the process.
//
// Cardinality control: pid is never used as a label (unbounded); the
// only label values are bounded enums (action kind, status, detector
// name).
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus descriptor the daemon records against.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Collector ──────────────────────────────────────────────────

	ScansTotal          prometheus.Counter
	ScanDurationSeconds prometheus.Histogram
	DeepScansTotal      prometheus.Counter
	ProcessesTracked    prometheus.Gauge

	// ─── Membrane (changepoint detectors) ──────────────────────────

	// ChangepointsDetectedTotal labels: detector (bocpd, imm, wasserstein)
	ChangepointsDetectedTotal *prometheus.CounterVec
	SafeModeActivationsTotal  prometheus.Counter

	// ─── Decision ───────────────────────────────────────────────────

	// ActionsRecommendedTotal labels: action
	ActionsRecommendedTotal *prometheus.CounterVec
	DROEpsilonCurrent       prometheus.Gauge
	MartingaleStopsTotal    prometheus.Counter

	// ─── Executor ───────────────────────────────────────────────────

	// ActionsExecutedTotal labels: status
	ActionsExecutedTotal   *prometheus.CounterVec
	ActionDurationSeconds  prometheus.Histogram
	LockWaitSeconds        prometheus.Histogram
	IntegrityViolationsTotal prometheus.Counter

	// ─── Signature feedback ─────────────────────────────────────────

	DisabledPatternsActive prometheus.Gauge
	FeedbackReceivedTotal  prometheus.Counter

	// ─── Self-update ────────────────────────────────────────────────

	// InstallsTotal labels: result
	InstallsTotal  *prometheus.CounterVec
	RollbacksTotal prometheus.Counter

	// ─── Agent ──────────────────────────────────────────────────────

	UptimeSeconds prometheus.Gauge

	startTime time.Time
}

// NewMetrics creates and registers every proctriage Prometheus metric
// on a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		ScansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pt", Subsystem: "collector", Name: "scans_total",
			Help: "Total quick-scan passes over /proc completed.",
		}),
		ScanDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pt", Subsystem: "collector", Name: "scan_duration_seconds",
			Help:    "Wall-clock duration of one full quick-scan pass.",
			Buckets: prometheus.DefBuckets,
		}),
		DeepScansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pt", Subsystem: "collector", Name: "deep_scans_total",
			Help: "Total deep-scan probes dispatched (BPF or /proc fallback).",
		}),
		ProcessesTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pt", Subsystem: "collector", Name: "processes_tracked",
			Help: "Current number of processes the collector holds state for.",
		}),

		ChangepointsDetectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pt", Subsystem: "membrane", Name: "changepoints_detected_total",
			Help: "Total changepoints flagged, by detector.",
		}, []string{"detector"}),
		SafeModeActivationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pt", Subsystem: "membrane", Name: "safe_mode_activations_total",
			Help: "Total times the composite membrane score crossed into safe mode.",
		}),

		ActionsRecommendedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pt", Subsystem: "decision", Name: "actions_recommended_total",
			Help: "Total actions recommended by the decision module, by action kind.",
		}, []string{"action"}),
		DROEpsilonCurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pt", Subsystem: "decision", Name: "dro_epsilon_current",
			Help: "DRO ambiguity radius used for the most recent decision batch.",
		}),
		MartingaleStopsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pt", Subsystem: "decision", Name: "martingale_stops_total",
			Help: "Total times the sequential martingale test triggered a stop.",
		}),

		ActionsExecutedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pt", Subsystem: "executor", Name: "actions_executed_total",
			Help: "Total plan actions executed, by terminal status.",
		}, []string{"status"}),
		ActionDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pt", Subsystem: "executor", Name: "action_duration_seconds",
			Help:    "Duration of one plan action's staged protocol.",
			Buckets: prometheus.DefBuckets,
		}),
		LockWaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pt", Subsystem: "executor", Name: "lock_wait_seconds",
			Help:    "Time spent waiting to acquire the host-wide action lock.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		IntegrityViolationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pt", Subsystem: "executor", Name: "integrity_violations_total",
			Help: "Total decisions rejected by the integrity kernel before execution.",
		}),

		DisabledPatternsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pt", Subsystem: "signature", Name: "disabled_patterns_active",
			Help: "Current number of patterns disabled by operator feedback.",
		}),
		FeedbackReceivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pt", Subsystem: "signature", Name: "feedback_received_total",
			Help: "Total feedback messages received over the signature socket.",
		}),

		InstallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pt", Subsystem: "update", Name: "installs_total",
			Help: "Total self-update install attempts, by result.",
		}, []string{"result"}),
		RollbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pt", Subsystem: "update", Name: "rollbacks_total",
			Help: "Total automatic or manual rollbacks performed.",
		}),

		UptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pt", Subsystem: "agent", Name: "uptime_seconds",
			Help: "Seconds since the daemon started.",
		}),
	}

	reg.MustRegister(
		m.ScansTotal,
		m.ScanDurationSeconds,
		m.DeepScansTotal,
		m.ProcessesTracked,
		m.ChangepointsDetectedTotal,
		m.SafeModeActivationsTotal,
		m.ActionsRecommendedTotal,
		m.DROEpsilonCurrent,
		m.MartingaleStopsTotal,
		m.ActionsExecutedTotal,
		m.ActionDurationSeconds,
		m.LockWaitSeconds,
		m.IntegrityViolationsTotal,
		m.DisabledPatternsActive,
		m.FeedbackReceivedTotal,
		m.InstallsTotal,
		m.RollbacksTotal,
		m.UptimeSeconds,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// ServeMetrics starts the Prometheus HTTP server on addr and blocks
// until ctx is cancelled or the server fails to start.
func (m *Metrics) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go m.updateUptime(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}

func (m *Metrics) updateUptime(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.UptimeSeconds.Set(time.Since(m.startTime).Seconds())
		case <-ctx.Done():
			return
		}
	}
}
