package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.DispatchTransitions.WithLabelValues("delivered").Add(2)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.DispatchTransitions.WithLabelValues("delivered")))

	n, err := testutil.GatherAndCount(reg, "notification_dispatch_transitions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNew_DoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}
