// SPDX-License-Identifier: MIT
package analysis

import "math"

// Harmonic disambiguation rules. A physiological fundamental is often
// weaker than its first harmonics, so the strongest in-band peak is not
// always the rate.
const (
	minHarmonic        = 2
	maxHarmonic        = 4
	harmonicTolerance  = 0.10 // relative error on the frequency ratio
	harmonicPowerRatio = 0.25 // fundamental power relative to the top peak

	upperBandFraction = 0.20 // top peak sits in the upper 20% of the band
	lowerFreqRatio    = 0.60 // alternative must lie below 60% of the top peak
	lowerPowerRatio   = 0.30 // and carry at least 30% of its power
)

// selectFundamental picks the dominant frequency from candidate peaks sorted
// by descending power.
func selectFundamental(peaks []Peak, band Band) Peak {
	top := peaks[0]
	if top.FrequencyHz <= 0 {
		return top
	}

	for _, c := range peaks[1:] {
		if c.FrequencyHz <= 0 || c.FrequencyHz >= top.FrequencyHz || !band.Contains(c.FrequencyHz) {
			continue
		}
		if c.Power < harmonicPowerRatio*top.Power {
			continue
		}
		if isHarmonic(top.FrequencyHz, c.FrequencyHz) {
			return c
		}
	}

	if top.FrequencyHz >= band.HighHz-upperBandFraction*band.Width() {
		for _, c := range peaks[1:] {
			if c.FrequencyHz < lowerFreqRatio*top.FrequencyHz && c.Power >= lowerPowerRatio*top.Power {
				return c
			}
		}
	}
	return top
}

// isHarmonic reports whether high is within tolerance of an integer
// multiple (2x to 4x) of low.
func isHarmonic(high, low float64) bool {
	ratio := high / low
	for h := minHarmonic; h <= maxHarmonic; h++ {
		if math.Abs(ratio-float64(h))/float64(h) <= harmonicTolerance {
			return true
		}
	}
	return false
}
