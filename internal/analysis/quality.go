// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Label is the ordinal signal-quality grade.
type Label string

const (
	Excellent Label = "excellent"
	Good      Label = "good"
	Moderate  Label = "moderate"
	Poor      Label = "poor"
)

// Thresholds are the minimum SNR (dB) for each grade above poor.
type Thresholds struct {
	Excellent float64 `json:"excellent"`
	Good      float64 `json:"good"`
	Moderate  float64 `json:"moderate"`
}

// Respiratory signals are intrinsically noisier and get lower bars.
var (
	CardiacThresholds     = Thresholds{Excellent: 10, Good: 5, Moderate: 3}
	RespiratoryThresholds = Thresholds{Excellent: 8, Good: 3, Moderate: 1}
)

// Classify maps an SNR in dB to a Label.
func (t Thresholds) Classify(snr float64) Label {
	switch {
	case math.IsNaN(snr):
		return Poor
	case snr >= t.Excellent:
		return Excellent
	case snr >= t.Good:
		return Good
	case snr >= t.Moderate:
		return Moderate
	default:
		return Poor
	}
}

// Quality is the signal-quality assessment for one analysis window.
type Quality struct {
	SNR            float64 `json:"snr"`
	ArtifactRatio  float64 `json:"artifactRatio"`
	SignalStrength float64 `json:"signalStrength"`
	OutlierRatio   float64 `json:"outlierRatio"`
	Label          Label   `json:"label"`
}

// PoorQuality is the conservative result for windows that cannot be scored.
func PoorQuality() Quality {
	return Quality{Label: Poor}
}

// snrFloor keeps the SNR finite when all power is in band.
const snrFloor = 1e-12

// AssessQuality scores a spectrum against its physiological band.
func AssessQuality(s Spectrum, band Band, t Thresholds) Quality {
	total := s.TotalPower()
	if !(total > 0) || math.IsInf(total, 0) {
		return PoorQuality()
	}
	inBand := band.Power(s)
	outBand := math.Max(total-inBand, 0)
	if !(inBand > 0) {
		return Quality{ArtifactRatio: 1, Label: Poor}
	}

	snr := 10 * math.Log10(inBand/math.Max(outBand, snrFloor))
	return Quality{
		SNR:            snr,
		ArtifactRatio:  outBand / total,
		SignalStrength: s.Dominant.Power * s.Dominant.Power / total,
		Label:          t.Classify(snr),
	}
}

// outlierZ is the robust z-score beyond which a sample counts as an outlier.
const outlierZ = 3

// OutlierRatio returns the fraction of samples whose robust z-score
// (median and scaled MAD) exceeds 3. Flat or empty input yields 0.
func OutlierRatio(signal []float64) float64 {
	if len(signal) == 0 {
		return 0
	}
	sorted := append([]float64(nil), signal...)
	sort.Float64s(sorted)
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)

	dev := make([]float64, len(signal))
	for i, v := range signal {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	mad := 1.4826 * stat.Quantile(0.5, stat.Empirical, dev, nil)
	if !(mad > 0) {
		return 0
	}

	var outliers int
	for _, v := range signal {
		if math.Abs(v-median)/mad > outlierZ {
			outliers++
		}
	}
	return float64(outliers) / float64(len(signal))
}
