package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("users:finalize-deletion").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("users:finalize-deletion").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("users:finalize-deletion", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("users:finalize-deletion", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("users:finalize-deletion")))
}

func TestAddFinalizedIgnoresNonPositive(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddFinalized(0)
	m.AddFinalized(-2)
	m.AddFinalized(3)
	require.Equal(t, 3.0, testutil.ToFloat64(m.finalized))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	require.NoError(t, m.Track("x").End(nil))
	m.AddFinalized(5)
}
