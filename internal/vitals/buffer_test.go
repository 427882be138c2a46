// SPDX-License-Identifier: MIT
package vitals

import (
	"math"
	"testing"
)

func TestSampleBufferCap(t *testing.T) {
	b := NewSampleBuffer(5)

	if dropped := b.Append([]float64{1, 2, 3}, []float64{10, 20, 30}); dropped != 0 {
		t.Errorf("dropped %d samples below the cap", dropped)
	}
	if dropped := b.Append([]float64{4, 5, 6, 7}, []float64{40, 50, 60, 70}); dropped != 2 {
		t.Errorf("dropped %d samples, want 2", dropped)
	}

	raw, filtered := b.Raw(0), b.Filtered(0)
	wantRaw := []float64{3, 4, 5, 6, 7}
	for i := range wantRaw {
		if raw[i] != wantRaw[i] || filtered[i] != 10*wantRaw[i] {
			t.Fatalf("views after trim: raw %v filtered %v", raw, filtered)
		}
	}
	if len(b.Normalized(0)) != b.Len() {
		t.Errorf("normalized view has %d samples, want %d", len(b.Normalized(0)), b.Len())
	}
}

func TestSampleBufferTail(t *testing.T) {
	b := NewSampleBuffer(10)
	b.Append([]float64{1, 2, 3, 4}, []float64{1, 2, 3, 4})

	tests := []struct {
		n    int
		want []float64
	}{
		{2, []float64{3, 4}},
		{0, []float64{1, 2, 3, 4}},
		{-1, []float64{1, 2, 3, 4}},
		{9, []float64{1, 2, 3, 4}},
	}
	for _, tt := range tests {
		got := b.Raw(tt.n)
		if len(got) != len(tt.want) {
			t.Errorf("Raw(%d) = %v, want %v", tt.n, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Raw(%d) = %v, want %v", tt.n, got, tt.want)
				break
			}
		}
	}

	out := b.Raw(0)
	out[0] = 100
	if b.Raw(0)[0] != 1 {
		t.Error("Raw returned a view into the buffer instead of a copy")
	}
}

func TestSampleBufferUnequalSegmentsPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Append with unequal segments did not panic")
		}
	}()
	NewSampleBuffer(4).Append([]float64{1, 2}, []float64{1})
}

func TestRobustNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want []float64
	}{
		// Interpolated empirical CDF: median 2.5, IQR 3.75-1.25.
		{"centred and scaled", []float64{1, 2, 3, 4, 5}, []float64{-0.6, -0.2, 0.2, 0.6, 1}},
		{"outlier clamped", []float64{1, 2, 3, 4, 100}, []float64{-0.6, -0.2, 0.2, 0.6, 3}},
		{"flat signal centred only", []float64{7, 7, 7}, []float64{0, 0, 0}},
		{"empty", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := robustNormalize(nil, tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if math.Abs(got[i]-tt.want[i]) > 1e-12 {
					t.Errorf("got %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestMovingAverage(t *testing.T) {
	got := movingAverage([]float64{0, 3, 6, 9, 12}, 3)
	want := []float64{1.5, 3, 6, 9, 10.5}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("movingAverage = %v, want %v", got, want)
		}
	}

	in := []float64{1, 5, 2}
	if got := movingAverage(in, 1); got[1] != 5 {
		t.Errorf("width 1 should be the identity, got %v", got)
	}
}

func BenchmarkSampleBufferAppend(b *testing.B) {
	buf := NewSampleBuffer(9000)
	seg := make([]float64, 121)
	for i := range seg {
		seg[i] = math.Sin(float64(i) / 5)
	}

	b.ReportAllocs()
	for b.Loop() {
		buf.Append(seg, seg)
	}
}
