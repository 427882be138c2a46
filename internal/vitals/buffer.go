// SPDX-License-Identifier: MIT
package vitals

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// normalizedClamp bounds the robust z-scores kept in the normalized view.
const normalizedClamp = 3.0

// SampleBuffer holds one channel's history in three parallel views. raw and
// filtered always have equal length; normalized is derived from filtered.
// The buffer is capped and drops the oldest samples on overflow.
type SampleBuffer struct {
	limit      int
	raw        []float64
	filtered   []float64
	normalized []float64
}

// NewSampleBuffer creates a buffer retaining at most limit samples.
func NewSampleBuffer(limit int) *SampleBuffer {
	return &SampleBuffer{
		limit:      limit,
		raw:        make([]float64, 0, limit),
		filtered:   make([]float64, 0, limit),
		normalized: make([]float64, 0, limit),
	}
}

// Append adds equal-length raw and filtered segments, trims to the cap and
// recomputes the normalized view. It returns how many samples were dropped.
func (b *SampleBuffer) Append(raw, filtered []float64) int {
	if len(raw) != len(filtered) {
		panic("vitals: SampleBuffer.Append with unequal segment lengths")
	}
	b.raw = append(b.raw, raw...)
	b.filtered = append(b.filtered, filtered...)

	dropped := 0
	if over := len(b.raw) - b.limit; over > 0 {
		b.raw = trimFront(b.raw, over)
		b.filtered = trimFront(b.filtered, over)
		dropped = over
	}
	b.normalized = robustNormalize(b.normalized[:0], b.filtered)
	return dropped
}

// Len returns the number of retained samples.
func (b *SampleBuffer) Len() int {
	return len(b.raw)
}

// Raw, Filtered and Normalized return copies of the last n samples of each
// view; n <= 0 or n > Len returns everything.
func (b *SampleBuffer) Raw(n int) []float64        { return tailCopy(b.raw, n) }
func (b *SampleBuffer) Filtered(n int) []float64   { return tailCopy(b.filtered, n) }
func (b *SampleBuffer) Normalized(n int) []float64 { return tailCopy(b.normalized, n) }

// Reset empties every view, keeping the allocated capacity.
func (b *SampleBuffer) Reset() {
	b.raw = b.raw[:0]
	b.filtered = b.filtered[:0]
	b.normalized = b.normalized[:0]
}

// trimFront drops the first n elements in place so the backing array is
// reused instead of growing without bound.
func trimFront(xs []float64, n int) []float64 {
	m := copy(xs, xs[n:])
	return xs[:m]
}

func tailCopy(xs []float64, n int) []float64 {
	if n <= 0 || n > len(xs) {
		n = len(xs)
	}
	out := make([]float64, n)
	copy(out, xs[len(xs)-n:])
	return out
}

// robustNormalize writes (x - median) / IQR, clamped to ±3, into dst.
// A zero IQR falls back to centring only.
func robustNormalize(dst, xs []float64) []float64 {
	if len(xs) == 0 {
		return dst
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	median := stat.Quantile(0.5, stat.LinInterp, sorted, nil)
	iqr := stat.Quantile(0.75, stat.LinInterp, sorted, nil) - stat.Quantile(0.25, stat.LinInterp, sorted, nil)
	if !(iqr > 0) || math.IsInf(iqr, 0) {
		iqr = 1
	}
	for _, x := range xs {
		z := (x - median) / iqr
		dst = append(dst, math.Max(-normalizedClamp, math.Min(normalizedClamp, z)))
	}
	return dst
}

// movingAverage smooths xs with a centred window of width w, shrinking the
// window at the edges.
func movingAverage(xs []float64, w int) []float64 {
	out := make([]float64, len(xs))
	if w <= 1 {
		copy(out, xs)
		return out
	}
	half := w / 2
	for i := range xs {
		lo, hi := max(0, i-half), min(len(xs), i+half+1)
		out[i] = stat.Mean(xs[lo:hi], nil)
	}
	return out
}

// displayShape smooths and normalizes a display slice for plotting.
func displayShape(xs []float64, smoothing int) []float64 {
	if len(xs) == 0 {
		return []float64{}
	}
	return robustNormalize(make([]float64, 0, len(xs)), movingAverage(xs, smoothing))
}
