package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ObserveStage(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveStage("job-analysis", true, 2*time.Second)
	m.ObserveStage("job-analysis", false, time.Second)
	m.ObserveStage("company-research", true, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.stageRuns.WithLabelValues("job-analysis", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stageRuns.WithLabelValues("job-analysis", StatusError)))
	assert.Equal(t, 2, testutil.CollectAndCount(m.stageDuration))
}

func TestMetrics_Rebuild(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveRebuild(true, 12)
	assert.Equal(t, 12.0, testutil.ToFloat64(m.chunks))
	m.ObserveRebuild(false, 0)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rebuilds.WithLabelValues(StatusError)))
	m.ObserveDispose()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.chunks))

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "resume_index_rebuilds_total")
	assert.Contains(t, names, "resume_index_chunks")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveStage("job-analysis", true, time.Second)
		m.ObserveRebuild(true, 1)
		m.ObserveDispose()
	})
}
