// SPDX-License-Identifier: MIT
package analysis

// Estimate is the outcome of analysing one window of a channel.
type Estimate struct {
	FrequencyHz float64 `json:"frequencyHz"`
	Rate        float64 `json:"rate"` // events per minute
	Quality     Quality `json:"quality"`
}

// Estimator defines the standard interface for components that turn a window
// of filtered samples into a rate and quality estimate. Implementations are
// called once per processing tick and must not retain signal.
type Estimator interface {
	Estimate(signal []float64, sampleRate float64, ch Channel) (Estimate, error)
}

// SpectrumAnalyzer exposes the full spectrum for callers that need more than
// the headline estimate, such as offline re-analysis.
type SpectrumAnalyzer interface {
	Estimator
	Analyze(signal []float64, sampleRate float64, band Band) (Spectrum, error)
}

var _ SpectrumAnalyzer = (*Analyzer)(nil)
