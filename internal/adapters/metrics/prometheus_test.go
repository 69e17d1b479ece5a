package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.ObserveCheck("login", true)
	r.ObserveCheck("login", true)
	r.ObserveCheck("login", false)
	r.ObserveError("login", "lock_timeout")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Checks.WithLabelValues("login", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Checks.WithLabelValues("login", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Errors.WithLabelValues("login", "lock_timeout")))
}

func TestRecorder_LockWait(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.ObserveLockWait("login", 3*time.Millisecond)
	r.ObserveLockWait("login", 2*time.Second)

	families, err := reg.Gather()
	require.NoError(t, err)

	hist := findHistogram(families, "ratelimit_lock_wait_seconds", "login")
	require.NotNil(t, hist, "expected lock wait histogram for key=login")
	assert.Equal(t, uint64(2), hist.GetSampleCount())
	assert.InDelta(t, 2.003, hist.GetSampleSum(), 1e-9)
}

func TestRecorder_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRecorder(reg)
	assert.Panics(t, func() { NewRecorder(reg) }, "duplicate registration must fail loudly")
}

func findHistogram(families []*dto.MetricFamily, name, key string) *dto.Histogram {
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "key" && lp.GetValue() == key {
					return m.GetHistogram()
				}
			}
		}
	}
	return nil
}
