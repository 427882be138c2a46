// SPDX-License-Identifier: MIT
package vitals

import (
	"errors"
	"fmt"
	"math"

	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/analysis"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/filter"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/rate"
)

// ChannelSettings configures one physiological channel.
type ChannelSettings struct {
	analysis.Channel

	FilterOrder      int     // Butterworth prototype order
	DefaultRate      float64 // reported while no trustworthy estimate exists
	DisplaySmoothing int     // moving-average width for the display slice
}

// Settings is the immutable configuration of a Processor. It is built once,
// usually from config.Config, and passed in at construction.
type Settings struct {
	SampleRate float64

	// Batch admission: the first batch carries InitialWindow new samples,
	// later batches carry InitialWindow-SubsequentWindow overlap samples
	// followed by SubsequentWindow new ones.
	InitialWindow    int
	SubsequentWindow int

	MaxBufferSeconds      float64 // retained history per channel
	MinAnalysisSeconds    float64 // data required before rates are reported
	AnalysisWindowSeconds float64 // preferred spectral window
	DisplayWindowSeconds  float64 // length of the display slice

	RateHistorySize int // samples in the median tracker
	RateLogSize     int // samples kept for export

	Window analysis.WindowFunc

	Cardiac     ChannelSettings
	Respiratory ChannelSettings
}

// DefaultSettings returns the production defaults: 30 Hz, 181/121 sample
// batches, five minutes of history.
func DefaultSettings() Settings {
	return Settings{
		SampleRate:            30,
		InitialWindow:         181,
		SubsequentWindow:      121,
		MaxBufferSeconds:      300,
		MinAnalysisSeconds:    10,
		AnalysisWindowSeconds: 30,
		DisplayWindowSeconds:  15,
		RateHistorySize:       rate.DefaultHistorySize,
		RateLogSize:           rate.DefaultLogSize,
		Window:                analysis.Hamming,
		Cardiac: ChannelSettings{
			Channel:          analysis.DefaultChannel(analysis.Cardiac),
			FilterOrder:      2,
			DefaultRate:      75,
			DisplaySmoothing: 3,
		},
		Respiratory: ChannelSettings{
			Channel:          analysis.DefaultChannel(analysis.Respiratory),
			FilterOrder:      2,
			DefaultRate:      15,
			DisplaySmoothing: 9,
		},
	}
}

// ErrInvalidSettings is returned by Validate and NewProcessor.
var ErrInvalidSettings = errors.New("vitals: invalid settings")

// Overlap is the number of re-supplied samples at the head of every batch
// after the first.
func (s Settings) Overlap() int {
	return s.InitialWindow - s.SubsequentWindow
}

// Validate checks internal consistency. Filter feasibility is checked by
// NewProcessor when the filters are designed.
func (s Settings) Validate() error {
	switch {
	case !(s.SampleRate > 0) || math.IsInf(s.SampleRate, 0):
		return fmt.Errorf("%w: sample rate must be positive, got %v", ErrInvalidSettings, s.SampleRate)
	case s.InitialWindow <= 0 || s.SubsequentWindow <= 0:
		return fmt.Errorf("%w: batch windows must be positive, got %d/%d", ErrInvalidSettings, s.InitialWindow, s.SubsequentWindow)
	case s.SubsequentWindow > s.InitialWindow:
		return fmt.Errorf("%w: subsequent window %d exceeds initial window %d", ErrInvalidSettings, s.SubsequentWindow, s.InitialWindow)
	case s.MinAnalysisSeconds <= 0 || s.AnalysisWindowSeconds < s.MinAnalysisSeconds:
		return fmt.Errorf("%w: analysis window %vs must be at least the minimum %vs", ErrInvalidSettings, s.AnalysisWindowSeconds, s.MinAnalysisSeconds)
	case s.MaxBufferSeconds < s.AnalysisWindowSeconds:
		return fmt.Errorf("%w: buffer of %vs cannot hold a %vs analysis window", ErrInvalidSettings, s.MaxBufferSeconds, s.AnalysisWindowSeconds)
	case s.DisplayWindowSeconds <= 0:
		return fmt.Errorf("%w: display window must be positive", ErrInvalidSettings)
	}
	for _, ch := range []ChannelSettings{s.Cardiac, s.Respiratory} {
		if err := ch.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c ChannelSettings) validate() error {
	switch {
	case !c.Band.Valid():
		return fmt.Errorf("%w: %v band %.3f-%.3f Hz", ErrInvalidSettings, c.Kind, c.Band.LowHz, c.Band.HighHz)
	case !c.Band.ContainsRate(c.DefaultRate):
		return fmt.Errorf("%w: %v default rate %v outside %.0f-%.0f", ErrInvalidSettings, c.Kind, c.DefaultRate, c.Band.MinRate(), c.Band.MaxRate())
	case c.DisplaySmoothing < 1:
		return fmt.Errorf("%w: %v display smoothing must be at least 1", ErrInvalidSettings, c.Kind)
	case c.FilterOrder < filter.MinOrder || c.FilterOrder > filter.MaxOrder || c.FilterOrder%2 != 0:
		return fmt.Errorf("%w: %v filter order %d", ErrInvalidSettings, c.Kind, c.FilterOrder)
	case c.Thresholds.Excellent < c.Thresholds.Good || c.Thresholds.Good < c.Thresholds.Moderate:
		return fmt.Errorf("%w: %v quality thresholds must descend, got %+v", ErrInvalidSettings, c.Kind, c.Thresholds)
	}
	return nil
}

func (s Settings) seconds(sec float64) int {
	return int(math.Round(sec * s.SampleRate))
}

func (s Settings) maxSamples() int      { return s.seconds(s.MaxBufferSeconds) }
func (s Settings) minSamples() int      { return s.seconds(s.MinAnalysisSeconds) }
func (s Settings) analysisSamples() int { return s.seconds(s.AnalysisWindowSeconds) }
func (s Settings) displaySamples() int  { return s.seconds(s.DisplayWindowSeconds) }
