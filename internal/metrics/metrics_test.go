package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterWithIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector()
	require.NoError(t, c.RegisterWith(reg))
	// A second registration of the same collector's metrics must not error.
	require.NoError(t, c.RegisterWith(reg))
}

func TestCollectorGaugesReflectUpdates(t *testing.T) {
	c := NewCollector()
	c.StacksProcessed.Add(3)
	c.ActiveWorkers.Set(2)
	c.JobQueueDepth.Set(5)

	var m dto.Metric
	require.NoError(t, c.StacksProcessed.Write(&m))
	assert.Equal(t, float64(3), m.GetCounter().GetValue())

	require.NoError(t, c.ActiveWorkers.Write(&m))
	assert.Equal(t, float64(2), m.GetGauge().GetValue())

	require.NoError(t, c.JobQueueDepth.Write(&m))
	assert.Equal(t, float64(5), m.GetGauge().GetValue())
}
