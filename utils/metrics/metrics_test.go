package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPipelineMetrics("test", reg)

	m.ObserveCycle(time.Second)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Cycles))

	m.QuoteResult("uni", true)
	m.QuoteResult("uni", false)
	m.QuoteResult("uni", false)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Quotes.WithLabelValues("uni", "ok")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Quotes.WithLabelValues("uni", "failed")))

	m.Outcome("executed")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Outcomes.WithLabelValues("executed")))

	m.SetFee(30e9, 2e9)
	assert.Equal(t, float64(30e9), testutil.ToFloat64(m.MaxFeePerGas))

	m.ObserveRelay("accepted", 10*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(m.RelayLatency))
}

func TestNilPipelineMetrics(t *testing.T) {
	var m *PipelineMetrics
	assert.NotPanics(t, func() {
		m.ObserveCycle(time.Second)
		m.QuoteResult("uni", true)
		m.Outcome("failed")
		m.ObserveRelay("error", time.Second)
		m.SetFee(1, 1)
	})
}

func TestCacheGaugesAndHandler(t *testing.T) {
	reg := NewRegistry()
	RegisterCacheGauges("test", reg, func() int { return 7 }, func() uint64 { return 3 })

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "test_dedupe_entries 7")
	assert.Contains(t, string(body), "test_dedupe_rejections_total 3")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestGatheredFamilies(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPipelineMetrics("test", reg)
	m.ObserveCycle(250 * time.Millisecond)
	m.ObserveCycle(500 * time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}

	cycles, ok := byName["test_cycles_total"]
	require.True(t, ok)
	assert.Equal(t, dto.MetricType_COUNTER, cycles.GetType())
	assert.Equal(t, float64(2), cycles.GetMetric()[0].GetCounter().GetValue())

	duration, ok := byName["test_cycle_duration_seconds"]
	require.True(t, ok)
	assert.Equal(t, dto.MetricType_HISTOGRAM, duration.GetType())
	hist := duration.GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(2), hist.GetSampleCount())
	assert.InDelta(t, 0.75, hist.GetSampleSum(), 1e-9)
}
