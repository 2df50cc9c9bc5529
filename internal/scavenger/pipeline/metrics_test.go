package pipeline

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scavenger/internal/scavenger/l3correlate"
	"github.com/banshee-data/scavenger/internal/scavenger/l6identity"
)

func TestNewMetrics_PreregistersLabels(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	assert.Equal(t, 3, promtestutil.CollectAndCount(m.Windows))
	assert.Equal(t, len(l6identity.Outcomes), promtestutil.CollectAndCount(m.Decisions))
	assert.Equal(t, 2, promtestutil.CollectAndCount(m.GroupErrors))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "second registration on the same registry must fail")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()
	var m *Metrics
	m.batch(3)
	m.window(l3correlate.Kept)
	m.groups(1)
	m.decision(l6identity.OutcomeNew)
	m.groupErrors(stageResolve, 2)
}
