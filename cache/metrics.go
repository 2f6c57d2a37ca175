package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// defaultLatencyWindow bounds how many recent hit/set latencies are retained
// for the rolling averages.
const defaultLatencyWindow = 1000

// Metrics aggregates cache operation counters in-process. It makes no
// external calls; the admin stats endpoint serializes a Snapshot of it.
type Metrics struct {
	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
	errors  atomic.Int64
	clears  atomic.Int64

	mu           sync.Mutex
	hitLatencies *latencyWindow
	setLatencies *latencyWindow
}

// MetricsSnapshot is a point-in-time view of the collector.
type MetricsSnapshot struct {
	Hits            int64   `json:"hits"`
	Misses          int64   `json:"misses"`
	Sets            int64   `json:"sets"`
	Deletes         int64   `json:"deletes"`
	Errors          int64   `json:"errors"`
	Clears          int64   `json:"clears"`
	HitRate         float64 `json:"hit_rate"`
	AvgHitLatencyMs float64 `json:"avg_hit_latency_ms"`
	AvgSetLatencyMs float64 `json:"avg_set_latency_ms"`
}

// NewMetrics creates a collector retaining at most window latency samples per
// operation kind.
func NewMetrics(window int) *Metrics {
	if window <= 0 {
		window = defaultLatencyWindow
	}
	return &Metrics{
		hitLatencies: newLatencyWindow(window),
		setLatencies: newLatencyWindow(window),
	}
}

// RecordHit records a successful read and its latency.
func (m *Metrics) RecordHit(d time.Duration) {
	m.hits.Add(1)
	m.mu.Lock()
	m.hitLatencies.add(d)
	m.mu.Unlock()
}

// RecordMiss records a read that found nothing usable.
func (m *Metrics) RecordMiss() {
	m.misses.Add(1)
}

// RecordSet records a write and its latency.
func (m *Metrics) RecordSet(d time.Duration) {
	m.sets.Add(1)
	m.mu.Lock()
	m.setLatencies.add(d)
	m.mu.Unlock()
}

// RecordDelete records a deletion.
func (m *Metrics) RecordDelete() {
	m.deletes.Add(1)
}

// RecordError records a swallowed storage error.
func (m *Metrics) RecordError() {
	m.errors.Add(1)
}

// RecordClear records an administrative full clear.
func (m *Metrics) RecordClear() {
	m.clears.Add(1)
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (m *Metrics) HitRate() float64 {
	hits := m.hits.Load()
	total := hits + m.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Snapshot returns a consistent-enough copy for serving over the admin API.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	avgHit := m.hitLatencies.average()
	avgSet := m.setLatencies.average()
	m.mu.Unlock()

	return MetricsSnapshot{
		Hits:            m.hits.Load(),
		Misses:          m.misses.Load(),
		Sets:            m.sets.Load(),
		Deletes:         m.deletes.Load(),
		Errors:          m.errors.Load(),
		Clears:          m.clears.Load(),
		HitRate:         m.HitRate(),
		AvgHitLatencyMs: float64(avgHit) / float64(time.Millisecond),
		AvgSetLatencyMs: float64(avgSet) / float64(time.Millisecond),
	}
}

// Reset zeroes all counters and latency windows. Test and administrative
// paths only.
func (m *Metrics) Reset() {
	m.hits.Store(0)
	m.misses.Store(0)
	m.sets.Store(0)
	m.deletes.Store(0)
	m.errors.Store(0)
	m.clears.Store(0)

	m.mu.Lock()
	m.hitLatencies.reset()
	m.setLatencies.reset()
	m.mu.Unlock()
}

// latencyWindow is a fixed-size ring of duration samples. Callers hold the
// Metrics mutex.
type latencyWindow struct {
	samples []time.Duration
	next    int
	filled  bool
}

func newLatencyWindow(size int) *latencyWindow {
	return &latencyWindow{samples: make([]time.Duration, size)}
}

func (w *latencyWindow) add(d time.Duration) {
	w.samples[w.next] = d
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.filled = true
	}
}

func (w *latencyWindow) average() time.Duration {
	count := w.next
	if w.filled {
		count = len(w.samples)
	}
	if count == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < count; i++ {
		sum += w.samples[i]
	}
	return sum / time.Duration(count)
}

func (w *latencyWindow) reset() {
	w.next = 0
	w.filled = false
}
