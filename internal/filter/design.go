// SPDX-License-Identifier: MIT
/*
Package filter designs and runs the IIR band-pass filters that isolate the
cardiac and respiratory components of the inferred waveforms.

Design follows the classic analog-first route:

 1. Butterworth low-pass prototype of the requested order (unit cutoff).
 2. Low-pass to band-pass frequency transform around the pre-warped
    geometric centre of the pass-band.
 3. Bilinear transform s = (z-1)/(z+1) to the discrete domain.

The resulting transfer function has order 2*order. It is realized as a
cascade of order second-order sections, one per conjugate pole pair, each
carrying one zero at z = 1 and one at z = -1.
*/
package filter

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
)

// Supported prototype orders. Band-pass designs double the order, so the
// largest cascade has MaxOrder sections.
const (
	MinOrder = 2
	MaxOrder = 4
)

// ErrInvalidFilterSpec is returned when cutoffs, sample rate or order
// cannot produce a stable band-pass design.
var ErrInvalidFilterSpec = errors.New("filter: invalid filter spec")

// Design returns band-pass coefficients whose -3 dB edges sit at lowHz and
// highHz for a signal sampled at sampleRate. order is the Butterworth
// prototype order and must be an even value in [MinOrder, MaxOrder].
func Design(lowHz, highHz, sampleRate float64, order int) (Coefficients, error) {
	if err := validate(lowHz, highHz, sampleRate, order); err != nil {
		return Coefficients{}, err
	}

	// Pre-warp the edges for the bilinear map with unit constant.
	wLow := math.Tan(math.Pi * lowHz / sampleRate)
	wHigh := math.Tan(math.Pi * highHz / sampleRate)
	w0 := math.Sqrt(wLow * wHigh)
	bw := wHigh - wLow

	poles := bandPassPoles(prototypePoles(order), w0, bw)

	// Under s = (z-1)/(z+1) every analog pole q contributes
	// (1-q)(z - zq)/(z+1). The N zeros at s=0 land on z=1 and the N zeros at
	// infinity on z=-1, so each conjugate pair {q, q*} becomes
	//
	//	bw/|1-q|^2 * (1 - z^-2) / (1 - 2Re(zq)z^-1 + |zq|^2 z^-2).
	//
	// Band-pass poles are never real for even orders, so exactly half of
	// them lie in the upper half-plane.
	c := Coefficients{Sections: make([]Section, 0, order)}
	for _, q := range poles {
		if imag(q) <= 0 {
			continue
		}
		zq := (1 + q) / (1 - q)
		d := cmplx.Abs(1 - q)
		g := bw / (d * d)
		r := cmplx.Abs(zq)
		c.Sections = append(c.Sections, Section{
			B: [3]float64{g, 0, -g},
			A: [3]float64{1, -2 * real(zq), r * r},
		})
	}
	if len(c.Sections) != order {
		return Coefficients{}, fmt.Errorf("%w: got %d conjugate pole pairs, want %d", ErrInvalidFilterSpec, len(c.Sections), order)
	}

	for i, sec := range c.Sections {
		if !sec.Stable() {
			p1, p2 := sec.Poles()
			return Coefficients{}, fmt.Errorf("%w: section %d has poles at |z|=%.6f, %.6f",
				ErrInvalidFilterSpec, i, cmplx.Abs(p1), cmplx.Abs(p2))
		}
	}
	return c, nil
}

func validate(lowHz, highHz, sampleRate float64, order int) error {
	switch {
	case !(sampleRate > 0) || math.IsInf(sampleRate, 0):
		return fmt.Errorf("%w: sample rate must be positive, got %v", ErrInvalidFilterSpec, sampleRate)
	case !(lowHz > 0) || !(highHz > 0):
		return fmt.Errorf("%w: cutoffs must be positive, got %v-%v Hz", ErrInvalidFilterSpec, lowHz, highHz)
	case lowHz >= highHz:
		return fmt.Errorf("%w: low cutoff %v Hz must be below high cutoff %v Hz", ErrInvalidFilterSpec, lowHz, highHz)
	case highHz >= sampleRate/2:
		return fmt.Errorf("%w: high cutoff %v Hz must be below Nyquist %v Hz", ErrInvalidFilterSpec, highHz, sampleRate/2)
	case order < MinOrder || order > MaxOrder || order%2 != 0:
		return fmt.Errorf("%w: order must be even in [%d, %d], got %d", ErrInvalidFilterSpec, MinOrder, MaxOrder, order)
	}
	return nil
}

// prototypePoles returns the left half-plane Butterworth poles on the unit
// circle at angles pi(2k+1)/(2n) measured from the imaginary axis.
func prototypePoles(n int) []complex128 {
	poles := make([]complex128, n)
	for k := range n {
		theta := math.Pi * float64(2*k+1) / float64(2*n)
		poles[k] = complex(-math.Sin(theta), math.Cos(theta))
	}
	return poles
}

// bandPassPoles maps each prototype pole p to the two roots of
// s^2 - p*bw*s + w0^2 = 0.
func bandPassPoles(proto []complex128, w0, bw float64) []complex128 {
	out := make([]complex128, 0, 2*len(proto))
	for _, p := range proto {
		half := p * complex(bw/2, 0)
		d := cmplx.Sqrt(half*half - complex(w0*w0, 0))
		out = append(out, half+d, half-d)
	}
	return out
}
