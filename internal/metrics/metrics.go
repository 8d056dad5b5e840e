// Package metrics provides Prometheus metrics for labtree.
//
// Every Recorder owns its registry so tests and multiple sessions never share
// global collectors. All methods are safe on a nil *Recorder.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Recorder struct {
	registry *prometheus.Registry

	remoteCalls   *prometheus.CounterVec
	remoteLatency *prometheus.HistogramVec
	resolutions   *prometheus.CounterVec
	inFlight      prometheus.Gauge
	cacheOps      *prometheus.CounterVec
	transfers     *prometheus.CounterVec
	transferBytes *prometheus.CounterVec
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Recorder{
		registry: registry,
		remoteCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labtree_remote_calls_total",
				Help: "Remote API calls by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		remoteLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "labtree_remote_call_duration_seconds",
				Help:    "Remote API call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labtree_resolutions_total",
				Help: "Node expansion outcomes by node kind",
			},
			[]string{"kind", "outcome"},
		),
		inFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "labtree_resolutions_in_flight",
				Help: "Node resolutions currently running on background workers",
			},
		),
		cacheOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labtree_cache_operations_total",
				Help: "Snapshot store operations by outcome",
			},
			[]string{"op", "outcome"},
		),
		transfers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labtree_transfers_total",
				Help: "File view, download and upload actions by outcome",
			},
			[]string{"type", "outcome"},
		),
		transferBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labtree_transfer_bytes_total",
				Help: "Bytes moved by file actions",
			},
			[]string{"type"},
		),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) RecordRemoteCall(op, outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	r.remoteCalls.WithLabelValues(op, outcome).Inc()
	r.remoteLatency.WithLabelValues(op).Observe(duration.Seconds())
}

func (r *Recorder) RecordResolution(kind, outcome string) {
	if r == nil {
		return
	}
	r.resolutions.WithLabelValues(kind, outcome).Inc()
}

func (r *Recorder) ResolutionStarted() {
	if r == nil {
		return
	}
	r.inFlight.Inc()
}

func (r *Recorder) ResolutionFinished() {
	if r == nil {
		return
	}
	r.inFlight.Dec()
}

func (r *Recorder) RecordCache(op, outcome string) {
	if r == nil {
		return
	}
	r.cacheOps.WithLabelValues(op, outcome).Inc()
}

func (r *Recorder) RecordTransfer(kind string, bytes int64, success bool) {
	if r == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "error"
	}
	r.transfers.WithLabelValues(kind, outcome).Inc()
	if success && bytes > 0 {
		r.transferBytes.WithLabelValues(kind).Add(float64(bytes))
	}
}

// Handler returns the Prometheus metrics HTTP handler for this recorder.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, r *Recorder, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	logger.Info("metrics endpoint listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
