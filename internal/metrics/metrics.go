// Package metrics exposes daemon run statistics to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voxline/internal/pipeline"
)

const (
	OutcomeOK        = "ok"
	OutcomeNoSpeech  = "no_speech"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)

type Metrics struct {
	Runs          *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	CapturedAudio prometheus.Histogram
	ReplyBytes    prometheus.Histogram

	registry *prometheus.Registry
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxline_runs_total",
			Help: "Pipeline runs by outcome",
		}, []string{"outcome"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxline_run_duration_seconds",
			Help:    "Wall time of successful runs, capture included",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
		}),
		CapturedAudio: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxline_captured_audio_seconds",
			Help:    "Length of captured audio per run",
			Buckets: prometheus.LinearBuckets(1, 1, 15),
		}),
		ReplyBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxline_reply_bytes",
			Help:    "Size of generated replies",
			Buckets: prometheus.ExponentialBuckets(16, 2, 10),
		}),
		registry: reg,
	}
}

// Observe records the outcome of one run.
func (m *Metrics) Observe(res pipeline.Result, sourceRate int, err error) {
	m.Runs.WithLabelValues(Outcome(err)).Inc()

	if res.Captured > 0 && sourceRate > 0 {
		m.CapturedAudio.Observe(float64(res.Captured) / float64(sourceRate))
	}
	if err == nil {
		m.RunDuration.Observe(res.Duration.Seconds())
		m.ReplyBytes.Observe(float64(len(res.Reply)))
	}
}

func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, pipeline.ErrNoSpeech):
		return OutcomeNoSpeech
	case errors.Is(err, pipeline.ErrCancelled):
		return OutcomeCancelled
	default:
		return OutcomeError
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve blocks serving /metrics on addr.
func (m *Metrics) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return srv.ListenAndServe()
}
