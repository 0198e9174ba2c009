package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "spokehub"

// Recorder exports action and request metrics to Prometheus.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	reg        *prometheus.Registry
	actions    *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	inferences *prometheus.CounterVec
	requests   *prometheus.CounterVec
	latency    prometheus.Histogram
}

func NewRecorder() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Executed actions by type, integration and outcome.",
		}, []string{"action_type", "integration", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Action execution latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action_type", "integration"}),
		inferences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inferred_parameters_total",
			Help:      "Parameters filled by inference, by action type.",
		}, []string{"action_type"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Processed requests by overall status.",
		}, []string{"status"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end request latency.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
	r.reg.MustRegister(r.actions, r.duration, r.inferences, r.requests, r.latency)
	return r
}

func (r *Recorder) ObserveAction(m ActionMetrics) {
	if r == nil {
		return
	}
	status := "success"
	if !m.Success {
		status = "failure"
	}
	integration := m.Integration
	if integration == "" {
		integration = "none"
	}
	r.actions.WithLabelValues(m.ActionType, integration, status).Inc()
	r.duration.WithLabelValues(m.ActionType, integration).Observe(m.End.Sub(m.Start).Seconds())
	if n := len(m.Inferred); n > 0 {
		r.inferences.WithLabelValues(m.ActionType).Add(float64(n))
	}
}

func (r *Recorder) ObserveRequest(m RequestMetrics) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(m.Status).Inc()
	r.latency.Observe(m.End.Sub(m.Start).Seconds())
}

func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, r *Recorder, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	log.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
