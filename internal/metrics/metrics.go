// Package metrics records Prometheus counters for authentication attempts,
// the bucket region cache and rotation phases.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the collectors. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	authAttempts     *prometheus.CounterVec
	authDuration     prometheus.Histogram
	regionLookups    *prometheus.CounterVec
	rotationSteps    *prometheus.CounterVec
	rotationDuration *prometheus.HistogramVec
	keypairDuration  prometheus.Histogram
}

// NewRecorder creates a Recorder backed by its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		authAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailbroker_auth_attempts_total",
				Help: "Total number of authentication attempts by outcome",
			},
			[]string{"outcome"},
		),
		authDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mailbroker_auth_duration_seconds",
				Help:    "Duration of authentication attempts in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
		regionLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailbroker_region_cache_lookups_total",
				Help: "Bucket region lookups by cache result",
			},
			[]string{"result"},
		),
		rotationSteps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailbroker_rotation_steps_total",
				Help: "Rotation phase invocations by step and outcome",
			},
			[]string{"step", "outcome"},
		),
		rotationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailbroker_rotation_step_duration_seconds",
				Help:    "Duration of rotation phases in seconds",
				Buckets: []float64{0.1, 1, 5, 30, 60, 120, 300},
			},
			[]string{"step"},
		),
		keypairDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mailbroker_keypair_generation_seconds",
				Help:    "Duration of RSA keypair generation in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 30, 120},
			},
		),
	}

	r.registry.MustRegister(
		r.authAttempts,
		r.authDuration,
		r.regionLookups,
		r.rotationSteps,
		r.rotationDuration,
		r.keypairDuration,
	)
	return r
}

// RecordAuth records an authentication attempt outcome: success,
// unauthorized or error.
func (r *Recorder) RecordAuth(outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.authAttempts.WithLabelValues(outcome).Inc()
	r.authDuration.Observe(elapsed.Seconds())
}

// RecordRegionLookup records a region cache hit or miss.
func (r *Recorder) RecordRegionLookup(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.regionLookups.WithLabelValues(result).Inc()
}

// RecordRotationStep records a completed rotation phase.
func (r *Recorder) RecordRotationStep(step, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.rotationSteps.WithLabelValues(step, outcome).Inc()
	r.rotationDuration.WithLabelValues(step).Observe(elapsed.Seconds())
}

// RecordKeypairGeneration records how long key generation took.
func (r *Recorder) RecordKeypairGeneration(elapsed time.Duration) {
	if r == nil {
		return
	}
	r.keypairDuration.Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry returns the underlying registry for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
