package utils

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps the most recent duration samples in a fixed-size ring
// and computes percentiles over them.
type LatencyTracker struct {
	mu     sync.RWMutex
	ring   []time.Duration
	next   int
	filled bool
}

// NewLatencyTracker creates a tracker holding up to maxSize samples.
func NewLatencyTracker(maxSize int) *LatencyTracker {
	if maxSize <= 0 {
		maxSize = 512
	}
	return &LatencyTracker{ring: make([]time.Duration, maxSize)}
}

// Observe records a new duration, overwriting the oldest sample once full.
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ring[l.next] = d
	l.next++
	if l.next == len(l.ring) {
		l.next = 0
		l.filled = true
	}
}

// Count returns the number of samples currently held.
func (l *LatencyTracker) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.filled {
		return len(l.ring)
	}
	return l.next
}

// Percentile returns the p-th percentile (0-100) duration, or zero when no
// samples have been observed.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	l.mu.RLock()
	n := l.next
	if l.filled {
		n = len(l.ring)
	}
	if n == 0 {
		l.mu.RUnlock()
		return 0
	}
	sorted := append([]time.Duration(nil), l.ring[:n]...)
	l.mu.RUnlock()

	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	index := int((p / 100.0) * float64(len(sorted)-1))
	return sorted[index]
}
