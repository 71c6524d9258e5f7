package fusion

import (
	"sort"
	"sync"
)

// latencyPoint is one (timestamp, latencyMs) sample in the rolling window.
type latencyPoint struct {
	ts int64
	ms int64
}

// Metrics tracks fusion search call volume, cache effectiveness, and a
// rolling 60-second latency window used to derive p50/p95/qps, grounded on
// original_source's Metrics struct and its search_fusion update sequence.
type Metrics struct {
	mu sync.Mutex

	count       int64
	cacheHits   int64
	cacheMisses int64
	lastMs      int64
	avgMs       float64
	p50Ms       float64
	p95Ms       float64
	qps1m       float64

	window []latencyPoint
}

func newMetrics() *Metrics { return &Metrics{} }

// recordHit accounts for a cache hit, which always reports a 0ms latency
// sample into the rolling window (per original_source's search_fusion).
func (m *Metrics) recordHit(now int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count++
	m.cacheHits++
	m.lastMs = 0
	m.pushSample(now, 0)
}

// recordMiss accounts for a cache miss that actually computed results,
// taking tookMs milliseconds.
func (m *Metrics) recordMiss(now, tookMs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count++
	m.cacheMisses++
	m.lastMs = tookMs
	prev := m.count - 1
	m.avgMs = (m.avgMs*float64(prev) + float64(tookMs)) / float64(m.count)
	m.pushSample(now, tookMs)
}

// pushSample appends (now, ms) to the window, prunes samples older than 60s,
// and recomputes p50/p95/qps_1m. Caller must hold mu.
func (m *Metrics) pushSample(now, ms int64) {
	m.window = append(m.window, latencyPoint{ts: now, ms: ms})
	cutoff := now - 60_000
	i := 0
	for i < len(m.window) && m.window[i].ts < cutoff {
		i++
	}
	if i > 0 {
		m.window = m.window[i:]
	}

	lat := make([]int64, len(m.window))
	for i, p := range m.window {
		lat[i] = p.ms
	}
	sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })
	if len(lat) > 0 {
		p50 := int(float64(len(lat)) * 0.5)
		p95 := int(float64(len(lat)) * 0.95)
		if p95 >= len(lat) {
			p95 = len(lat) - 1
		}
		m.p50Ms = float64(lat[p50])
		m.p95Ms = float64(lat[p95])
	}
	m.qps1m = float64(len(m.window)) / 60.0
}

// Snapshot is a point-in-time, JSON-friendly copy of Metrics for the status
// endpoint and the JSON /metrics endpoint.
type Snapshot struct {
	Count       int64   `json:"count"`
	CacheHits   int64   `json:"cache_hits"`
	CacheMisses int64   `json:"cache_misses"`
	LastMs      int64   `json:"last_ms"`
	AvgMs       float64 `json:"avg_ms"`
	P50Ms       float64 `json:"p50Ms"`
	P95Ms       float64 `json:"p95Ms"`
	QPS1m       float64 `json:"qps_1m"`
}

// Snapshot returns a copy of the current metrics.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Count:       m.count,
		CacheHits:   m.cacheHits,
		CacheMisses: m.cacheMisses,
		LastMs:      m.lastMs,
		AvgMs:       m.avgMs,
		P50Ms:       m.p50Ms,
		P95Ms:       m.p95Ms,
		QPS1m:       m.qps1m,
	}
}
