// SPDX-License-Identifier: MIT
/*
Package synth generates synthetic cardiac and respiratory waveforms. It stands
in for the upstream inference source in tests and in the simulate command.

The pulse shape is a sum of gaussians per cycle (systolic peak plus dicrotic
wave), the respiration shape is a skewed sinusoid. Neither is clinically
accurate; both carry a clean fundamental with realistic harmonics.
*/
package synth

import (
	"math"
	"math/rand/v2"
)

// Sine returns n samples of amp*sin(2*pi*freq*t + phase) sampled at fs.
func Sine(n int, fs, freq, amp, phase float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / fs
		out[i] = amp*math.Sin(2*math.Pi*freq*t+phase)
	}
	return out
}

// Sum adds waves sample by sample. The result has the length of the
// shortest input.
func Sum(waves ...[]float64) []float64 {
	if len(waves) == 0 {
		return nil
	}
	n := len(waves[0])
	for _, w := range waves[1:] {
		n = min(n, len(w))
	}
	out := make([]float64, n)
	for _, w := range waves {
		for i := range out {
			out[i] += w[i]
		}
	}
	return out
}

// Noise returns n gaussian samples with standard deviation sigma from a
// deterministic source seeded with seed.
func Noise(n int, sigma float64, seed uint64) []float64 {
	r := rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d))
	out := make([]float64, n)
	for i := range out {
		out[i] = sigma * r.NormFloat64()
	}
	return out
}

// FindPeakBin returns the index of the largest value in
// magnitudes[startBin:endBin+1], clamping the range to the slice.
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	if startBin < 0 {
		startBin = 0
	}
	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}
	return peakBin
}

// Generator produces paired cardiac/respiratory samples at a fixed rate,
// advancing one phase accumulator per signal so rates can change between
// calls without discontinuities.
type Generator struct {
	SampleRate  float64
	CardiacBPM  float64
	BreathsPM   float64
	NoiseStdDev float64
	Baseline    float64 // constant offset, like an uncentred inference output

	cardiacPhase float64
	respPhase    float64
	rng          *rand.Rand
}

// NewGenerator returns a Generator with a deterministic noise source.
func NewGenerator(fs, cardiacBPM, breathsPM, noise float64, seed uint64) *Generator {
	return &Generator{
		SampleRate:  fs,
		CardiacBPM:  cardiacBPM,
		BreathsPM:   breathsPM,
		NoiseStdDev: noise,
		rng:         rand.New(rand.NewPCG(seed, seed^0x2545f4914f6cdd1d)),
	}
}

// Next returns the next n samples of both signals.
func (g *Generator) Next(n int) (cardiac, respiratory []float64) {
	cardiac = make([]float64, n)
	respiratory = make([]float64, n)
	for i := range n {
		g.cardiacPhase = advance(g.cardiacPhase, g.CardiacBPM/60/g.SampleRate)
		g.respPhase = advance(g.respPhase, g.BreathsPM/60/g.SampleRate)

		cardiac[i] = g.Baseline + pulse(g.cardiacPhase) + g.noise()
		respiratory[i] = g.Baseline + breath(g.respPhase) + g.noise()
	}
	return cardiac, respiratory
}

func (g *Generator) noise() float64 {
	if g.NoiseStdDev == 0 {
		return 0
	}
	return g.NoiseStdDev * g.rng.NormFloat64()
}

func advance(phase, step float64) float64 {
	phase += step
	return phase - math.Floor(phase)
}

// pulse is one cardiac cycle over phase [0, 1): systolic peak then a
// smaller dicrotic wave.
func pulse(t float64) float64 {
	return gauss(t, 0.25, 0.08) + 0.4*gauss(t, 0.55, 0.1) - 0.35
}

// breath is one respiratory cycle: inhale faster than exhale.
func breath(t float64) float64 {
	return math.Sin(2*math.Pi*t) + 0.2*math.Sin(4*math.Pi*t)
}

func gauss(x, mu, sigma float64) float64 {
	z := (x - mu) / sigma
	return math.Exp(-0.5 * z * z)
}
