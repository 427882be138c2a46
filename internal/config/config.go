// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the vitals engine.
const (
	// Signal path defaults
	DefaultSampleRate            = 30.0 // Inference frame rate (Hz)
	DefaultInitialWindow         = 181  // Samples in the first batch
	DefaultSubsequentWindow      = 121  // New samples in every later batch
	DefaultMaxBufferSeconds      = 300.0
	DefaultMinAnalysisSeconds    = 10.0
	DefaultAnalysisWindowSeconds = 30.0
	DefaultDisplayWindowSeconds  = 15.0
	DefaultRateHistorySize       = 20
	DefaultRateLogSize           = 3600
	DefaultFFTWindow             = "Hamming"
	DefaultFilterOrder           = 2

	// Transport defaults
	DefaultWSAddress        = ":8080"
	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultUDPSendInterval  = 100 * time.Millisecond
	DefaultNATSURL          = "nats://127.0.0.1:4222"
	DefaultBatchSubject     = "mmrphys.batch"
	DefaultMetricsSubject   = "mmrphys.metrics"

	// Output defaults
	DefaultRecordingDir = "./recordings"
	DefaultBitDepth     = 16
	DefaultExportDir    = "./exports"
	DefaultExportFormat = "json"

	// Limits
	MinSampleRate = 1.0    // Below this no band fits under Nyquist
	MaxSampleRate = 1000.0 // Far above any camera frame rate
)
