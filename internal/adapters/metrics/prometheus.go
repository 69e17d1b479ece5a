// Package metrics expõe as métricas do rate limiter no Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quatrix/rate-limit/internal/core/ports"
)

const namespace = "ratelimit"

// Recorder implementa ports.Recorder com contadores e um histograma por chave de operação.
type Recorder struct {
	Checks   *prometheus.CounterVec
	Errors   *prometheus.CounterVec
	LockWait *prometheus.HistogramVec
}

var _ ports.Recorder = (*Recorder)(nil)

// NewRecorder cria e registra as métricas em reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	return &Recorder{
		Checks: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checks_total",
				Help:      "Total rate limit checks by key and outcome",
			},
			[]string{"key", "allowed"},
		),
		Errors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total rate limit checks that failed, by error kind",
			},
			[]string{"key", "kind"},
		),
		LockWait: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lock_wait_seconds",
				Help:      "Time spent acquiring the per-key lock",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1, 5},
			},
			[]string{"key"},
		),
	}
}

func (r *Recorder) ObserveCheck(key string, allowed bool) {
	r.Checks.WithLabelValues(key, strconv.FormatBool(allowed)).Inc()
}

func (r *Recorder) ObserveError(key, kind string) {
	r.Errors.WithLabelValues(key, kind).Inc()
}

func (r *Recorder) ObserveLockWait(key string, wait time.Duration) {
	r.LockWait.WithLabelValues(key).Observe(wait.Seconds())
}
