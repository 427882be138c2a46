// SPDX-License-Identifier: MIT
// Package rate keeps a bounded history of rate estimates and exposes a
// median display rate that isolated misdetections cannot drag.
package rate

import (
	"sort"
	"sync"

	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/analysis"
	"gonum.org/v1/gonum/stat"
)

// DefaultHistorySize is the number of accepted estimates kept per channel.
const DefaultHistorySize = 20

// Sample is one accepted estimate in a channel's history.
type Sample struct {
	Timestamp string         `json:"timestamp" parquet:"timestamp"`
	Value     float64        `json:"value" parquet:"value"`
	SNR       float64        `json:"snr" parquet:"snr"`
	Quality   analysis.Label `json:"quality" parquet:"quality"`
}

// Tracker is a fixed-capacity ring of rate samples for one channel.
type Tracker struct {
	band analysis.Band

	mu    sync.RWMutex
	ring  []Sample
	next  int
	count int
}

// NewTracker creates a tracker that accepts rates within band's per-minute
// bounds. size <= 0 selects DefaultHistorySize.
func NewTracker(band analysis.Band, size int) *Tracker {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &Tracker{band: band, ring: make([]Sample, size)}
}

// Update appends s if its value is finite and within the physiological
// bound, evicting the oldest sample when full. It reports whether s was
// accepted.
func (t *Tracker) Update(s Sample) bool {
	if !t.band.ContainsRate(s.Value) {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ring[t.next] = s
	t.next = (t.next + 1) % len(t.ring)
	if t.count < len(t.ring) {
		t.count++
	}
	return true
}

// DisplayRate returns the median of the in-bound history. ok is false when
// the history holds no valid value.
func (t *Tracker) DisplayRate() (rate float64, ok bool) {
	return MedianRate(t.Samples(), t.band)
}

// Samples returns the history oldest first.
func (t *Tracker) Samples() []Sample {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.samplesLocked()
}

// Len returns the number of samples held.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// Reset drops all history.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.ring)
	t.next, t.count = 0, 0
}

func (t *Tracker) samplesLocked() []Sample {
	out := make([]Sample, 0, t.count)
	start := (t.next - t.count + len(t.ring)) % len(t.ring)
	for i := range t.count {
		out = append(out, t.ring[(start+i)%len(t.ring)])
	}
	return out
}

// median of sorted values; even lengths average the middle pair.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return stat.Mean(sorted[n/2-1:n/2+1], nil)
}

// MedianRate returns the median of the samples whose value lies inside
// band. ok is false when none do.
func MedianRate(samples []Sample, band analysis.Band) (rate float64, ok bool) {
	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		if band.ContainsRate(s.Value) {
			values = append(values, s.Value)
		}
	}
	if len(values) == 0 {
		return 0, false
	}
	sort.Float64s(values)
	return median(values), true
}
