// SPDX-License-Identifier: MIT
package cmd

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/analysis"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/export"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/filter"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/rate"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/vitals"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var errNoSamples = errors.New("session has no samples")

func newAnalyzeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <export.json>",
		Short: "Re-analyse an exported session offline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			settings, err := cfg.Settings()
			if err != nil {
				return err
			}
			snap, err := export.Load(args[0])
			if err != nil {
				return err
			}
			reports, err := analyzeSnapshot(snap, settings)
			if err != nil {
				return err
			}
			printReports(cmd.OutOrStdout(), snap.Metadata, reports)
			return nil
		},
	}
}

// channelReport compares a whole-session estimate with the rates that were
// reported live.
type channelReport struct {
	Kind           analysis.Kind
	Samples        int
	Estimate       analysis.Estimate
	RecordedMedian float64
	Recorded       int // live estimates inside the band
	Err            error
}

// Difference is the offline rate minus the median live rate, NaN when
// either side is missing.
func (r channelReport) Difference() float64 {
	if r.Err != nil || r.Recorded == 0 {
		return math.NaN()
	}
	return r.Estimate.Rate - r.RecordedMedian
}

// analyzeSnapshot removes the mean from each channel's raw history,
// band-passes it forward and backward and estimates the rate over the whole
// session. Bands and filter orders come from s; the sample rate comes from
// the snapshot.
func analyzeSnapshot(snap vitals.Snapshot, s vitals.Settings) ([]channelReport, error) {
	fs := snap.Metadata.SamplingRate
	if fs <= 0 {
		fs = s.SampleRate
	}
	if len(snap.Signals.Cardiac.Raw) == 0 && len(snap.Signals.Respiratory.Raw) == 0 {
		return nil, errNoSamples
	}

	analyzer := analysis.NewAnalyzer(s.Window)
	channels := []struct {
		cs    vitals.ChannelSettings
		raw   []float64
		rates []rate.Sample
	}{
		{s.Cardiac, snap.Signals.Cardiac.Raw, snap.Rates.Cardiac},
		{s.Respiratory, snap.Signals.Respiratory.Raw, snap.Rates.Respiratory},
	}

	reports := make([]channelReport, 0, len(channels))
	for _, ch := range channels {
		r := channelReport{Kind: ch.cs.Kind, Samples: len(ch.raw)}
		if median, ok := rate.MedianRate(ch.rates, ch.cs.Band); ok {
			r.RecordedMedian = median
			for _, smp := range ch.rates {
				if ch.cs.Band.ContainsRate(smp.Value) {
					r.Recorded++
				}
			}
		}

		filtered, err := bandPass(ch.raw, fs, ch.cs)
		if err == nil {
			r.Estimate, err = analyzer.Estimate(filtered, fs, ch.cs.Channel)
		}
		r.Err = err
		reports = append(reports, r)
	}
	return reports, nil
}

func bandPass(raw []float64, fs float64, cs vitals.ChannelSettings) ([]float64, error) {
	if len(raw) == 0 {
		return nil, errNoSamples
	}
	coeffs, err := filter.Design(cs.Band.LowHz, cs.Band.HighHz, fs, cs.FilterOrder)
	if err != nil {
		return nil, err
	}
	st, err := filter.NewStream(coeffs)
	if err != nil {
		return nil, err
	}

	detrended := make([]float64, len(raw))
	copy(detrended, raw)
	floats.AddConst(-stat.Mean(detrended, nil), detrended)
	return st.ApplyZeroPhase(detrended), nil
}

func printReports(w io.Writer, md vitals.Metadata, reports []channelReport) {
	fmt.Fprintf(w, "Session %s: %d samples at %.1f Hz (%s to %s)\n",
		md.SessionID, md.TotalSamples, md.SamplingRate, md.StartTime, md.EndTime)
	for _, r := range reports {
		if r.Err != nil {
			fmt.Fprintf(w, "  %-12s %6d samples  analysis failed: %v\n", r.Kind, r.Samples, r.Err)
			continue
		}
		fmt.Fprintf(w, "  %-12s %6d samples  offline %6.1f/min  SNR %5.1f dB  %-9s",
			r.Kind, r.Samples, r.Estimate.Rate, r.Estimate.Quality.SNR, r.Estimate.Quality.Label)
		if r.Recorded == 0 {
			fmt.Fprintln(w, "  no live estimates")
			continue
		}
		fmt.Fprintf(w, "  live median %6.1f/min (n=%d)  diff %+5.1f\n", r.RecordedMedian, r.Recorded, r.Difference())
	}
}
