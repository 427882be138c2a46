// SPDX-License-Identifier: MIT
package filter

import (
	"math"
	"math/cmplx"
)

// Section is one second-order stage
//
//	H(z) = (B[0] + B[1]z^-1 + B[2]z^-2) / (A[0] + A[1]z^-1 + A[2]z^-2)
//
// with A[0] normalized to 1.
type Section struct {
	B [3]float64 `json:"b"`
	A [3]float64 `json:"a"`
}

// Poles returns the two roots of z^2 + A[1]z + A[2].
func (s Section) Poles() (complex128, complex128) {
	half := complex(-s.A[1]/2, 0)
	d := cmplx.Sqrt(half*half - complex(s.A[2], 0))
	return half + d, half - d
}

// Stable reports whether both poles lie strictly inside the unit circle.
func (s Section) Stable() bool {
	if s.A[0] != 1 {
		return false
	}
	p1, p2 := s.Poles()
	return cmplx.Abs(p1) < 1 && cmplx.Abs(p2) < 1
}

func (s Section) response(w float64) complex128 {
	z1 := cmplx.Exp(complex(0, -w))
	z2 := z1 * z1
	num := complex(s.B[0], 0) + complex(s.B[1], 0)*z1 + complex(s.B[2], 0)*z2
	den := complex(s.A[0], 0) + complex(s.A[1], 0)*z1 + complex(s.A[2], 0)*z2
	return num / den
}

// dcGain returns H(1), or false when a pole sits on z = 1.
func (s Section) dcGain() (float64, bool) {
	den := s.A[0] + s.A[1] + s.A[2]
	if den == 0 {
		return 0, false
	}
	return (s.B[0] + s.B[1] + s.B[2]) / den, true
}

// Coefficients is a discrete filter realized as a cascade of second-order
// sections, applied in order.
type Coefficients struct {
	Sections []Section `json:"sections"`
}

// Order returns the order of the discrete filter (total delay line length).
func (c Coefficients) Order() int {
	return 2 * len(c.Sections)
}

// Poles returns the poles of every section, two per section.
func (c Coefficients) Poles() []complex128 {
	poles := make([]complex128, 0, c.Order())
	for _, s := range c.Sections {
		p1, p2 := s.Poles()
		poles = append(poles, p1, p2)
	}
	return poles
}

// Stable reports whether the cascade is non-empty and every section is
// stable.
func (c Coefficients) Stable() bool {
	if len(c.Sections) == 0 {
		return false
	}
	for _, s := range c.Sections {
		if !s.Stable() {
			return false
		}
	}
	return true
}

// Magnitude evaluates |H| at freqHz for a signal sampled at sampleRate.
func (c Coefficients) Magnitude(freqHz, sampleRate float64) float64 {
	w := 2 * math.Pi * freqHz / sampleRate
	h := complex(1, 0)
	for _, s := range c.Sections {
		h *= s.response(w)
	}
	if cmplx.IsNaN(h) || cmplx.IsInf(h) {
		return math.Inf(1)
	}
	return cmplx.Abs(h)
}
