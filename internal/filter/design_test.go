// SPDX-License-Identifier: MIT
package filter

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"testing"

	"gonum.org/v1/gonum/mat"
)

const testSampleRate = 30.0

func TestDesignStability(t *testing.T) {
	bands := []struct {
		low, high, fs float64
	}{
		{0.6, 3.3, 30},
		{0.1, 0.54, 30},
		{0.7, 4.0, 30},
		{0.5, 2.5, 25},
		{1.0, 10.0, 60},
		{0.2, 0.8, 15},
		{2.0, 14.0, 30},
		// Narrow bands far below Nyquist put the poles close to z = 1.
		{0.05, 0.2, 120},
		{0.1, 0.54, 120},
		{0.6, 3.3, 120},
		{0.1, 0.2, 60},
		{0.05, 0.54, 60},
		{0.05, 0.2, 10},
	}

	for _, band := range bands {
		for _, order := range []int{2, 4} {
			name := fmt.Sprintf("%.2f-%.2fHz@%.0f/order%d", band.low, band.high, band.fs, order)
			t.Run(name, func(t *testing.T) {
				c, err := Design(band.low, band.high, band.fs, order)
				if err != nil {
					t.Fatalf("Design returned error: %v", err)
				}
				if len(c.Sections) != order || c.Order() != 2*order {
					t.Errorf("got %d sections (order %d), want %d (order %d)", len(c.Sections), c.Order(), order, 2*order)
				}
				for i, sec := range c.Sections {
					if sec.A[0] != 1 {
						t.Errorf("section %d: A[0] = %v, want 1", i, sec.A[0])
					}
				}
				if !c.Stable() {
					t.Errorf("filter reported unstable, poles: %v", c.Poles())
				}

				s, err := NewStream(c)
				if err != nil {
					t.Fatalf("NewStream: %v", err)
				}
				peak, tail := impulseResponse(s, 20000)
				if math.IsNaN(peak) || peak > 10 {
					t.Errorf("impulse response unbounded: peak %v", peak)
				}
				if tail > 1e-6 {
					t.Errorf("impulse response has not decayed after 20000 samples: |h| = %v", tail)
				}
			})
		}
	}
}

// impulseResponse returns the peak magnitude of an n-sample impulse response
// and the peak over its final tenth.
func impulseResponse(s *Stream, n int) (peak, tail float64) {
	for i := range n {
		x := 0.0
		if i == 0 {
			x = 1
		}
		y := s.ProcessSample(x)
		if math.IsNaN(y) || math.IsInf(y, 0) || s.Sanitized() > 0 {
			return math.NaN(), math.NaN()
		}
		peak = math.Max(peak, math.Abs(y))
		if i >= n-n/10 {
			tail = math.Max(tail, math.Abs(y))
		}
	}
	return peak, tail
}

// TestStreamToneGain drives the stream with a pure tone and compares the
// settled output amplitude against the designed magnitude response.
func TestStreamToneGain(t *testing.T) {
	tests := []struct {
		low, high, fs float64
		order         int
	}{
		{0.1, 0.54, 120, 4},
		{0.05, 0.2, 120, 4},
		{0.6, 3.3, 30, 4},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.2f-%.2fHz@%.0f", tt.low, tt.high, tt.fs), func(t *testing.T) {
			c, err := Design(tt.low, tt.high, tt.fs, tt.order)
			if err != nil {
				t.Fatal(err)
			}
			for _, f := range []float64{tt.low, math.Sqrt(tt.low * tt.high), tt.high} {
				s, err := NewStream(c)
				if err != nil {
					t.Fatal(err)
				}
				// Settle for 40 periods of the tone, then measure over 10.
				settle := int(40 * tt.fs / f)
				measure := int(10 * tt.fs / f)
				var amp float64
				for i := range settle + measure {
					y := s.ProcessSample(math.Sin(2 * math.Pi * f * float64(i) / tt.fs))
					if i >= settle {
						amp = math.Max(amp, math.Abs(y))
					}
				}
				if want := c.Magnitude(f, tt.fs); math.Abs(amp-want) > 0.02 {
					t.Errorf("%.3f Hz: settled amplitude %.4f, want %.4f", f, amp, want)
				}
			}
		})
	}
}

func TestDesignCutoffEdges(t *testing.T) {
	tests := []struct {
		name          string
		low, high, fs float64
		order         int
	}{
		{"cardiac", 0.6, 3.3, testSampleRate, 2},
		{"cardiac order 4", 0.6, 3.3, testSampleRate, 4},
		{"respiratory", 0.1, 0.54, testSampleRate, 2},
		{"respiratory order 4", 0.1, 0.54, testSampleRate, 4},
		{"respiratory order 4 at 120 Hz", 0.1, 0.54, 120, 4},
		{"narrow order 4 at 120 Hz", 0.05, 0.2, 120, 4},
	}

	want := 1 / math.Sqrt2
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Design(tt.low, tt.high, tt.fs, tt.order)
			if err != nil {
				t.Fatalf("Design returned error: %v", err)
			}
			for _, f := range []float64{tt.low, tt.high} {
				if got := c.Magnitude(f, tt.fs); math.Abs(got-want) > 1e-6 {
					t.Errorf("|H(%.2f Hz)| = %.8f, want %.8f", f, got, want)
				}
			}

			center := math.Sqrt(tt.low * tt.high)
			if got := c.Magnitude(center, tt.fs); got < 0.9 || got > 1+1e-9 {
				t.Errorf("|H(%.3f Hz)| = %.6f, want close to unity in the pass-band", center, got)
			}
			if got := c.Magnitude(0, tt.fs); got > 1e-9 {
				t.Errorf("|H(0)| = %v, want DC rejected", got)
			}
			if got := c.Magnitude(tt.fs/2, tt.fs); got > 1e-9 {
				t.Errorf("|H(Nyquist)| = %v, want rejected", got)
			}
		})
	}
}

func TestDesignInvalidSpec(t *testing.T) {
	tests := []struct {
		name          string
		low, high, fs float64
		order         int
	}{
		{"low equals high", 1, 1, 30, 2},
		{"low above high", 3, 1, 30, 2},
		{"zero low", 0, 3, 30, 2},
		{"negative high", 0.5, -3, 30, 2},
		{"high at nyquist", 0.5, 15, 30, 2},
		{"zero sample rate", 0.5, 3, 0, 2},
		{"NaN cutoff", math.NaN(), 3, 30, 2},
		{"infinite sample rate", 0.5, 3, math.Inf(1), 2},
		{"odd order", 0.5, 3, 30, 3},
		{"order too large", 0.5, 3, 30, 6},
		{"order zero", 0.5, 3, 30, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Design(tt.low, tt.high, tt.fs, tt.order)
			if !errors.Is(err, ErrInvalidFilterSpec) {
				t.Fatalf("Design error = %v, want ErrInvalidFilterSpec", err)
			}
			if c.Sections != nil {
				t.Errorf("expected no coefficients on error, got %+v", c)
			}
		})
	}
}

func TestPolesMatchDesign(t *testing.T) {
	c, err := Design(0.6, 3.3, testSampleRate, 2)
	if err != nil {
		t.Fatal(err)
	}
	poles := c.Poles()
	if len(poles) != 4 {
		t.Fatalf("got %d poles, want 4", len(poles))
	}
	for i := 0; i < len(poles); i += 2 {
		if d := cmplx.Abs(poles[i] - cmplx.Conj(poles[i+1])); d > 1e-12 {
			t.Errorf("section %d poles %v, %v are not a conjugate pair", i/2, poles[i], poles[i+1])
		}
	}

	// The eigenvalues of the companion matrix of the expanded denominator
	// must be the same set of poles.
	a := []float64{1}
	for _, sec := range c.Sections {
		a = convolve(a, sec.A[:])
	}
	n := len(a) - 1
	companion := mat.NewDense(n, n, nil)
	for j := range n {
		companion.Set(0, j, -a[j+1])
	}
	for i := 1; i < n; i++ {
		companion.Set(i, i-1, 1)
	}
	var eig mat.Eigen
	if !eig.Factorize(companion, mat.EigenNone) {
		t.Fatal("eigen decomposition failed")
	}
	for _, ev := range eig.Values(nil) {
		nearest := math.Inf(1)
		for _, p := range poles {
			nearest = math.Min(nearest, cmplx.Abs(ev-p))
		}
		if nearest > 1e-6 {
			t.Errorf("companion eigenvalue %v has no matching section pole (distance %v)", ev, nearest)
		}
	}

	unstable := Coefficients{Sections: []Section{{B: [3]float64{1}, A: [3]float64{1, -2.5, 1}}}}
	if unstable.Stable() {
		t.Error("expected poles outside the unit circle to be reported unstable")
	}
	if (Coefficients{}).Stable() {
		t.Error("empty coefficients must not be reported stable")
	}
}

func convolve(x, y []float64) []float64 {
	out := make([]float64, len(x)+len(y)-1)
	for i, a := range x {
		for j, b := range y {
			out[i+j] += a * b
		}
	}
	return out
}

func BenchmarkDesign(b *testing.B) {
	b.ReportAllocs()
	for b.Loop() {
		_, _ = Design(0.6, 3.3, testSampleRate, 4)
	}
}
