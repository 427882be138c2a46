// SPDX-License-Identifier: MIT
package vitals

import (
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/analysis"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/rate"
)

// Metrics is the externally visible result of one analysis for a channel.
// Rate is always within the channel's physiological bound.
type Metrics struct {
	Rate    float64          `json:"rate"`
	Quality analysis.Quality `json:"quality"`
	Ready   bool             `json:"ready"` // enough data for a spectral estimate
}

// Display is the smoothed, normalized tail of each channel for charting.
type Display struct {
	CardiacRaw      []float64 `json:"cardiacRaw"`
	RespRaw         []float64 `json:"respRaw"`
	CardiacFiltered []float64 `json:"cardiacFiltered"`
	RespFiltered    []float64 `json:"respFiltered"`
}

// Result is returned by every ProcessNewSignals call.
type Result struct {
	Timestamp   string  `json:"timestamp"`
	Cardiac     Metrics `json:"cardiac"`
	Respiratory Metrics `json:"respiratory"`
	Display     Display `json:"display"`
}

// Metadata describes an exported session.
type Metadata struct {
	SessionID    string  `json:"sessionId"`
	SamplingRate float64 `json:"samplingRate"`
	StartTime    string  `json:"startTime"`
	EndTime      string  `json:"endTime"`
	TotalSamples int     `json:"totalSamples"`
}

// ChannelData is the retained history of one channel.
type ChannelData struct {
	Raw      []float64 `json:"raw"`
	Filtered []float64 `json:"filtered"`
}

// Signals groups both channels' histories.
type Signals struct {
	Cardiac     ChannelData `json:"cardiac"`
	Respiratory ChannelData `json:"respiratory"`
}

// Rates groups both channels' rate logs.
type Rates struct {
	Cardiac     []rate.Sample `json:"cardiac"`
	Respiratory []rate.Sample `json:"respiratory"`
}

// Snapshot is the full, serializable export of a session. It shares no
// memory with the Processor.
type Snapshot struct {
	Metadata   Metadata `json:"metadata"`
	Signals    Signals  `json:"signals"`
	Rates      Rates    `json:"rates"`
	Timestamps []string `json:"timestamps"`
}
