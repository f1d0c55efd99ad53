// Package metrics exposes Prometheus instrumentation for the decision
// pipeline and, optionally, serves the scrape endpoint.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder counts pipeline activity. All methods are safe for concurrent use.
type Recorder struct {
	cyclesTotal      *prometheus.CounterVec
	decisionsTotal   *prometheus.CounterVec
	notionalStaked   *prometheus.CounterVec
	modelProbability *prometheus.GaugeVec
	dailyRemaining   *prometheus.GaugeVec
	cycleDuration    prometheus.Histogram
}

// New registers the recorder's collectors on the default registry.
func New() *Recorder {
	return &Recorder{
		cyclesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weatheredge_cycles_total",
				Help: "Decision cycles evaluated, by outcome",
			},
			[]string{"outcome"},
		),
		decisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weatheredge_decisions_total",
				Help: "Sizing decisions produced, by station and reason",
			},
			[]string{"station", "accepted", "reason"},
		),
		notionalStaked: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weatheredge_notional_staked_dollars_total",
				Help: "Accepted notional, by station",
			},
			[]string{"station"},
		),
		modelProbability: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "weatheredge_model_probability",
				Help: "Latest model probability per market ticker",
			},
			[]string{"ticker"},
		),
		dailyRemaining: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "weatheredge_daily_budget_remaining_dollars",
				Help: "Remaining daily risk budget",
			},
			[]string{"day"},
		),
		cycleDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "weatheredge_cycle_duration_seconds",
				Help:    "Wall time of a full decision cycle",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// CycleEvaluated records a completed cycle and its duration.
func (r *Recorder) CycleEvaluated(outcome string, elapsed time.Duration) {
	r.cyclesTotal.WithLabelValues(outcome).Inc()
	r.cycleDuration.Observe(elapsed.Seconds())
}

// Decision records a final sizing decision.
func (r *Recorder) Decision(station, reason string, accepted bool, notional float64) {
	state := "false"
	if accepted {
		state = "true"
		r.notionalStaked.WithLabelValues(station).Add(notional)
	}
	if reason == "" {
		reason = "ok"
	}
	r.decisionsTotal.WithLabelValues(station, state, reason).Inc()
}

// ModelProbability records the latest model probability for a ticker.
func (r *Recorder) ModelProbability(ticker string, p float64) {
	r.modelProbability.WithLabelValues(ticker).Set(p)
}

// DailyRemaining records the remaining daily budget for a trading day.
func (r *Recorder) DailyRemaining(day string, remaining float64) {
	r.dailyRemaining.WithLabelValues(day).Set(remaining)
}

// Serve runs the /metrics endpoint until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
