package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLatencyWindowSnapshot(t *testing.T) {
	w := newLatencyWindow(8)
	w.observe(StageResponder, 500)
	w.observe(StageResponder, 700)
	w.observe(StageResponder, 900)
	w.countOutcome("fallback")
	w.countOutcome("fallback")
	w.countOutcome("reply")

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	snap := w.snapshot(now)
	require.Equal(t, now, snap.GeneratedAt)
	require.Equal(t, 8, snap.WindowSize)
	require.Len(t, snap.Stages, 1)

	s := snap.Stages[0]
	require.Equal(t, StageResponder, s.Stage)
	require.Equal(t, 3, s.Samples)
	require.Equal(t, 900.0, s.LastMS)
	require.Equal(t, 700.0, s.AvgMS)
	require.Equal(t, 700.0, s.P50MS)
	require.Greater(t, s.P95MS, 700.0)
	require.LessOrEqual(t, s.P95MS, 900.0)
	require.Equal(t, 2500.0, s.BudgetP95MS)
	require.False(t, s.OverBudget)

	require.Equal(t, []OutcomeCount{
		{Outcome: "fallback", Count: 2},
		{Outcome: "reply", Count: 1},
	}, snap.Outcomes)
}

func TestLatencyWindowKeepsMostRecentSamples(t *testing.T) {
	w := newLatencyWindow(2)
	w.observe(StageTurnTotal, 100)
	w.observe(StageTurnTotal, 5000)
	w.observe(StageTurnTotal, 4000)

	snap := w.snapshot(time.Now())
	require.Len(t, snap.Stages, 1)
	s := snap.Stages[0]
	require.Equal(t, 2, s.Samples)
	require.Equal(t, 4000.0, s.LastMS)
	require.Equal(t, 4500.0, s.AvgMS)
	require.True(t, s.OverBudget)
}

func TestLatencyWindowIgnoresInvalidSamples(t *testing.T) {
	w := newLatencyWindow(4)
	w.observe("", 10)
	w.observe(StageTurnTotal, -1)
	w.countOutcome("")
	snap := w.snapshot(time.Now())
	require.Empty(t, snap.Stages)
	require.Empty(t, snap.Outcomes)
}

func TestPercentile(t *testing.T) {
	require.Equal(t, 0.0, percentile(nil, 0.5))
	require.Equal(t, 1.0, percentile([]float64{1, 2, 3}, 0))
	require.Equal(t, 3.0, percentile([]float64{1, 2, 3}, 1))
	require.Equal(t, 2.0, percentile([]float64{1, 2, 3}, 0.5))
	require.InDelta(t, 2.9, percentile([]float64{1, 2, 3}, 0.95), 1e-9)
}

func TestMetricsObserveTurn(t *testing.T) {
	m := NewMetrics("test_observability")
	m.ObserveTurn("reply", 1200*time.Millisecond)
	m.ObserveResponderLatency(800 * time.Millisecond)

	snap := m.SnapshotTurnStages()
	require.Len(t, snap.Stages, 2)
	require.Equal(t, StageResponder, snap.Stages[0].Stage)
	require.Equal(t, StageTurnTotal, snap.Stages[1].Stage)
	require.Equal(t, []OutcomeCount{{Outcome: "reply", Count: 1}}, snap.Outcomes)
	require.NotNil(t, m.Handler())
}
