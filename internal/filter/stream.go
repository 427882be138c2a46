// SPDX-License-Identifier: MIT
package filter

import (
	"fmt"
	"math"
)

// Stream applies a designed filter sample by sample, running each
// second-order section in transposed direct-form II. Sections and their
// delay lines live in fixed arrays inside the value, so copying a Stream
// copies its full state.
//
// A Stream is owned by a single caller; it is not safe for concurrent use.
type Stream struct {
	sections [MaxOrder]biquad
	n        int // sections in use

	last      float64 // last finite output
	sanitized int     // non-finite inputs/outputs replaced since Reset
}

type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
	z1, z2     float64
	dc         float64 // H(1)
}

// NewStream builds a Stream for c. Every section must be normalized
// (A[0] == 1) and stable, and there may be at most MaxOrder of them.
func NewStream(c Coefficients) (*Stream, error) {
	n := len(c.Sections)
	if n == 0 || n > MaxOrder {
		return nil, fmt.Errorf("%w: unsupported section count %d", ErrInvalidFilterSpec, n)
	}

	s := &Stream{n: n}
	for i, sec := range c.Sections {
		if sec.A[0] != 1 {
			return nil, fmt.Errorf("%w: section %d is not normalized (A[0] == %v)", ErrInvalidFilterSpec, i, sec.A[0])
		}
		if !sec.Stable() {
			return nil, fmt.Errorf("%w: section %d is unstable", ErrInvalidFilterSpec, i)
		}
		dc, _ := sec.dcGain()
		s.sections[i] = biquad{
			b0: sec.B[0], b1: sec.B[1], b2: sec.B[2],
			a1: sec.A[1], a2: sec.A[2],
			dc: dc,
		}
	}
	return s, nil
}

// Order returns the total delay line length.
func (s *Stream) Order() int {
	return 2 * s.n
}

// Sanitized returns how many samples were coerced to the last stable output
// since the last Reset.
func (s *Stream) Sanitized() int {
	return s.sanitized
}

// Reset zeroes the delay lines and the sanitization bookkeeping.
func (s *Stream) Reset() {
	s.clearDelay()
	s.last = 0
	s.sanitized = 0
}

func (s *Stream) clearDelay() {
	for i := range s.n {
		s.sections[i].z1, s.sections[i].z2 = 0, 0
	}
}

// Prime loads every delay line with the steady state for a constant input
// x0. Calling it before the first sample suppresses the step transient a
// non-zero baseline would otherwise cause. Non-finite x0 is ignored.
func (s *Stream) Prime(x0 float64) {
	if !finite(x0) {
		return
	}
	u := x0
	for i := range s.n {
		q := &s.sections[i]
		y := q.dc * u
		q.z2 = q.b2*u - q.a2*y
		q.z1 = q.b1*u - q.a1*y + q.z2
		u = y
	}
}

// ProcessSample filters one sample through the cascade.
//
// A non-finite input leaves the state untouched; a non-finite output resets
// the delay lines. Both return the last finite output instead.
func (s *Stream) ProcessSample(x float64) float64 {
	if !finite(x) {
		s.sanitized++
		return s.last
	}

	y := x
	for i := range s.n {
		q := &s.sections[i]
		out := q.b0*y + q.z1
		q.z1 = q.b1*y - q.a1*out + q.z2
		q.z2 = q.b2*y - q.a2*out
		y = out
	}
	if !finite(y) {
		s.sanitized++
		s.clearDelay()
		return s.last
	}

	s.last = y
	return y
}

// ProcessSignal filters xs in order, carrying state across calls.
func (s *Stream) ProcessSignal(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = s.ProcessSample(x)
	}
	return out
}

// ApplyZeroPhase filters xs forward and then backward, cancelling the phase
// delay. It works on a copy of the coefficients with fresh state and never
// touches the receiver's delay line.
func (s *Stream) ApplyZeroPhase(xs []float64) []float64 {
	out := make([]float64, len(xs))
	copy(out, xs)
	if len(out) == 0 {
		return out
	}

	scratch := *s
	pass := func() {
		scratch.Reset()
		scratch.Prime(out[0])
		for i, x := range out {
			out[i] = scratch.ProcessSample(x)
		}
		reverse(out)
	}
	pass()
	pass()
	return out
}

func reverse(xs []float64) {
	for i, j := 0, len(xs)-1; i < j; i, j = i+1, j-1 {
		xs[i], xs[j] = xs[j], xs[i]
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
