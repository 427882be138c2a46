// SPDX-License-Identifier: MIT
package analysis

import "math"

// Kind identifies which physiological signal a channel carries.
type Kind int

const (
	Cardiac Kind = iota
	Respiratory
)

func (k Kind) String() string {
	switch k {
	case Cardiac:
		return "cardiac"
	case Respiratory:
		return "respiratory"
	default:
		return "unknown"
	}
}

// Band is a physiological pass-band. The same edges drive filter design,
// the spectral peak search and rate validation.
type Band struct {
	LowHz  float64 `json:"lowHz"`
	HighHz float64 `json:"highHz"`
}

// Default bands: 36-198 beats/min and 6-32 breaths/min.
var (
	CardiacBand     = Band{LowHz: 0.6, HighHz: 3.3}
	RespiratoryBand = Band{LowHz: 0.1, HighHz: 0.54}
)

// Valid reports whether the band has positive, ordered, finite edges.
func (b Band) Valid() bool {
	return b.LowHz > 0 && b.HighHz > b.LowHz && !math.IsInf(b.HighHz, 0)
}

// Contains reports whether freqHz lies within the band, edges included.
func (b Band) Contains(freqHz float64) bool {
	return freqHz >= b.LowHz && freqHz <= b.HighHz
}

// Width returns the band width in Hz.
func (b Band) Width() float64 {
	return b.HighHz - b.LowHz
}

// MinRate and MaxRate return the band edges in events per minute.
func (b Band) MinRate() float64 { return b.LowHz * 60 }
func (b Band) MaxRate() float64 { return b.HighHz * 60 }

// ContainsRate reports whether a per-minute rate is finite and in bounds.
func (b Band) ContainsRate(rate float64) bool {
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return false
	}
	return rate >= b.MinRate() && rate <= b.MaxRate()
}

// ClampRate limits rate to the band's per-minute bounds. Non-finite input
// yields fallback.
func (b Band) ClampRate(rate, fallback float64) float64 {
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return fallback
	}
	return math.Min(math.Max(rate, b.MinRate()), b.MaxRate())
}

// Power sums spectrum power over the bins whose centre frequency falls in
// the band.
func (b Band) Power(s Spectrum) float64 {
	var energy float64
	for i, p := range s.Power {
		if b.Contains(s.FrequencyForBin(i)) {
			energy += p
		}
	}
	return energy
}

// Channel bundles everything the analyzer needs to know about one signal.
type Channel struct {
	Kind       Kind
	Band       Band
	Thresholds Thresholds
}

// DefaultChannel returns the built-in band and thresholds for kind.
func DefaultChannel(kind Kind) Channel {
	if kind == Respiratory {
		return Channel{Kind: Respiratory, Band: RespiratoryBand, Thresholds: RespiratoryThresholds}
	}
	return Channel{Kind: Cardiac, Band: CardiacBand, Thresholds: CardiacThresholds}
}
