// Package buffer provides a fixed-size window of recent latency samples.
package buffer

import (
	"math"
	"sort"
	"sync"
	"time"
)

// LatencyWindow is a thread-safe circular buffer that keeps the most recent
// durations up to a specified capacity. When the window is full, the oldest
// sample is overwritten.
//
// It backs the p50/p99 evaluation latency reported by the stats endpoint.
type LatencyWindow struct {
	samples  []time.Duration
	next     int
	full     bool
	capacity int
	mu       sync.RWMutex
}

// NewLatencyWindow creates a new LatencyWindow with the specified capacity.
// The capacity must be greater than 0; if not, it defaults to 1.
func NewLatencyWindow(capacity int) *LatencyWindow {
	if capacity <= 0 {
		capacity = 1
	}
	return &LatencyWindow{
		samples:  make([]time.Duration, capacity),
		capacity: capacity,
	}
}

// Add records a sample, discarding the oldest one if the window is full.
func (w *LatencyWindow) Add(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples[w.next] = d
	w.next = (w.next + 1) % w.capacity
	if w.next == 0 {
		w.full = true
	}
}

// Snapshot returns a copy of the samples, oldest first.
func (w *LatencyWindow) Snapshot() []time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if !w.full {
		if w.next == 0 {
			return nil
		}
		out := make([]time.Duration, w.next)
		copy(out, w.samples[:w.next])
		return out
	}

	out := make([]time.Duration, 0, w.capacity)
	out = append(out, w.samples[w.next:]...)
	out = append(out, w.samples[:w.next]...)
	return out
}

// Percentile returns the nearest-rank percentile (0 < p <= 100) of the
// current samples, or 0 if the window is empty.
func (w *LatencyWindow) Percentile(p float64) time.Duration {
	samples := w.Snapshot()
	if len(samples) == 0 {
		return 0
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	rank := int(math.Ceil(p/100*float64(len(samples)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(samples) {
		rank = len(samples) - 1
	}
	return samples[rank]
}

// Clear removes all samples.
func (w *LatencyWindow) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.next = 0
	w.full = false
}

// Len returns the current number of samples.
func (w *LatencyWindow) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.full {
		return w.capacity
	}
	return w.next
}

// Cap returns the capacity of the window.
func (w *LatencyWindow) Cap() int {
	return w.capacity
}
