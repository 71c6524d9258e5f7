package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsRecordMissUpdatesCountersAndAverage(t *testing.T) {
	m := newMetrics()
	m.recordMiss(1000, 10)
	m.recordMiss(2000, 20)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Count)
	assert.Equal(t, int64(2), snap.CacheMisses)
	assert.Equal(t, int64(20), snap.LastMs)
	assert.InDelta(t, 15.0, snap.AvgMs, 1e-9)
}

func TestMetricsRecordHitReportsZeroLatencySample(t *testing.T) {
	m := newMetrics()
	m.recordHit(1000)

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.CacheHits)
	assert.Equal(t, int64(0), snap.LastMs)
}

func TestMetricsWindowPrunesSamplesOlderThan60s(t *testing.T) {
	m := newMetrics()
	m.recordMiss(0, 5)
	m.recordMiss(61_000, 5)

	snap := m.Snapshot()
	assert.Len(t, m.window, 1)
	assert.InDelta(t, 1.0/60.0, snap.QPS1m, 1e-9)
}

func TestMetricsP50P95(t *testing.T) {
	m := newMetrics()
	for i, ms := range []int64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100} {
		m.recordMiss(int64(i), ms)
	}
	snap := m.Snapshot()
	assert.Greater(t, snap.P95Ms, snap.P50Ms)
}
