// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/analysis"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/export"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/log"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/vitals"
	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug       bool            `yaml:"debug"`       // Enable debug mode (forces debug logging).
	LogLevel    string          `yaml:"log_level"`   // Logging level ("debug", "info", "warn", "error").
	Signal      SignalConfig    `yaml:"signal"`      // Batch admission, buffering and analysis windows.
	Cardiac     ChannelConfig   `yaml:"cardiac"`     // Cardiac channel band, filter and display settings.
	Respiratory ChannelConfig   `yaml:"respiratory"` // Respiratory channel band, filter and display settings.
	Transport   TransportConfig `yaml:"transport"`   // Websocket, UDP and NATS settings.
	Recording   RecordingConfig `yaml:"recording"`   // Session WAV recording.
	Export      ExportConfig    `yaml:"export"`      // Session export on shutdown.
}

// SignalConfig holds settings shared by both channels.
type SignalConfig struct {
	SampleRate            float64 `yaml:"sample_rate"`             // Sample rate of the inferred waveforms in Hz.
	InitialWindow         int     `yaml:"initial_window"`          // Samples in the first batch of a session.
	SubsequentWindow      int     `yaml:"subsequent_window"`       // New samples in every later batch.
	MaxBufferSeconds      float64 `yaml:"max_buffer_seconds"`      // History retained per channel.
	MinAnalysisSeconds    float64 `yaml:"min_analysis_seconds"`    // Data required before rates are reported.
	AnalysisWindowSeconds float64 `yaml:"analysis_window_seconds"` // Spectral analysis window.
	DisplayWindowSeconds  float64 `yaml:"display_window_seconds"`  // Length of display slices.
	RateHistorySize       int     `yaml:"rate_history_size"`       // Estimates in the median tracker.
	RateLogSize           int     `yaml:"rate_log_size"`           // Estimates kept for export.
	FFTWindow             string  `yaml:"fft_window"`              // Window function for spectral analysis (e.g., "Hann", "Hamming").
}

// ChannelConfig holds the settings of one physiological channel.
type ChannelConfig struct {
	LowHz            float64         `yaml:"low_hz"`            // Lower pass-band edge.
	HighHz           float64         `yaml:"high_hz"`           // Upper pass-band edge.
	FilterOrder      int             `yaml:"filter_order"`      // Butterworth prototype order (2 or 4).
	DefaultRate      float64         `yaml:"default_rate"`      // Rate reported before a trustworthy estimate exists.
	DisplaySmoothing int             `yaml:"display_smoothing"` // Moving-average width for display slices.
	Thresholds       ThresholdConfig `yaml:"thresholds"`        // SNR grades in dB.
}

// ThresholdConfig holds the minimum SNR for each quality grade.
type ThresholdConfig struct {
	Excellent float64 `yaml:"excellent"`
	Good      float64 `yaml:"good"`
	Moderate  float64 `yaml:"moderate"`
}

// TransportConfig holds settings related to sending processed data over the network.
type TransportConfig struct {
	WSAddress        string        `yaml:"ws_address"`         // Listen address for the websocket hub and HTTP routes.
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Enable sending display frames over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port for UDP packets (e.g., "127.0.0.1:9090").
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between UDP packets.
	NATSURL          string        `yaml:"nats_url"`           // NATS server; empty disables the bus.
	BatchSubject     string        `yaml:"batch_subject"`      // Subject carrying inference batches.
	MetricsSubject   string        `yaml:"metrics_subject"`    // Subject receiving rate metrics.
}

// RecordingConfig holds settings related to session recording.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`    // Record normalized signals to a WAV file.
	OutputDir string `yaml:"output_dir"` // Directory for recordings.
	BitDepth  int    `yaml:"bit_depth"`  // 16 or 32.
}

// ExportConfig holds settings for the end-of-session export.
type ExportConfig struct {
	OutputDir string `yaml:"output_dir"` // Directory for exported sessions.
	Format    string `yaml:"format"`     // "json", "parquet" or "both".
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Debug:    false,
		LogLevel: "info",
		Signal: SignalConfig{
			SampleRate:            DefaultSampleRate,
			InitialWindow:         DefaultInitialWindow,
			SubsequentWindow:      DefaultSubsequentWindow,
			MaxBufferSeconds:      DefaultMaxBufferSeconds,
			MinAnalysisSeconds:    DefaultMinAnalysisSeconds,
			AnalysisWindowSeconds: DefaultAnalysisWindowSeconds,
			DisplayWindowSeconds:  DefaultDisplayWindowSeconds,
			RateHistorySize:       DefaultRateHistorySize,
			RateLogSize:           DefaultRateLogSize,
			FFTWindow:             DefaultFFTWindow,
		},
		Cardiac:     channelDefaults(analysis.Cardiac, 75, 3),
		Respiratory: channelDefaults(analysis.Respiratory, 15, 9),
		Transport: TransportConfig{
			WSAddress:        DefaultWSAddress,
			UDPEnabled:       false,
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  DefaultUDPSendInterval,
			NATSURL:          "",
			BatchSubject:     DefaultBatchSubject,
			MetricsSubject:   DefaultMetricsSubject,
		},
		Recording: RecordingConfig{
			Enabled:   false,
			OutputDir: DefaultRecordingDir,
			BitDepth:  DefaultBitDepth,
		},
		Export: ExportConfig{
			OutputDir: DefaultExportDir,
			Format:    DefaultExportFormat,
		},
	}
}

func channelDefaults(kind analysis.Kind, defaultRate float64, smoothing int) ChannelConfig {
	ch := analysis.DefaultChannel(kind)
	return ChannelConfig{
		LowHz:            ch.Band.LowHz,
		HighHz:           ch.Band.HighHz,
		FilterOrder:      DefaultFilterOrder,
		DefaultRate:      defaultRate,
		DisplaySmoothing: smoothing,
		Thresholds: ThresholdConfig{
			Excellent: ch.Thresholds.Excellent,
			Good:      ch.Thresholds.Good,
			Moderate:  ch.Thresholds.Moderate,
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate rejects inconsistent values. Signal-path consistency is checked
// by building the vitals settings.
func (c *Config) Validate() error {
	var errs []error

	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	if sr := c.Signal.SampleRate; sr < MinSampleRate || sr > MaxSampleRate {
		errs = append(errs, fmt.Errorf("signal.sample_rate %v outside [%v, %v]", sr, MinSampleRate, MaxSampleRate))
	}
	if _, err := c.Settings(); err != nil {
		errs = append(errs, err)
	}

	if c.Transport.UDPEnabled {
		if !strings.Contains(c.Transport.UDPTargetAddress, ":") {
			errs = append(errs, fmt.Errorf("transport.udp_target_address %q appears invalid (missing port?)", c.Transport.UDPTargetAddress))
		}
		if c.Transport.UDPSendInterval <= 0 {
			errs = append(errs, errors.New("transport.udp_send_interval must be positive when UDP is enabled"))
		}
	}
	if c.Transport.NATSURL != "" && (c.Transport.BatchSubject == "" || c.Transport.MetricsSubject == "") {
		errs = append(errs, errors.New("transport batch_subject and metrics_subject must be set when nats_url is"))
	}

	if c.Recording.Enabled {
		if c.Recording.BitDepth != 16 && c.Recording.BitDepth != 32 {
			errs = append(errs, fmt.Errorf("recording.bit_depth must be 16 or 32, got %d", c.Recording.BitDepth))
		}
		if c.Recording.OutputDir == "" {
			errs = append(errs, errors.New("recording.output_dir must be set when recording is enabled"))
		}
	}
	if _, err := export.ParseFormat(c.Export.Format); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Settings converts the configuration into the immutable value injected
// into vitals.NewProcessor.
func (c *Config) Settings() (vitals.Settings, error) {
	window, err := analysis.ParseWindowFunc(c.Signal.FFTWindow)
	if err != nil {
		return vitals.Settings{}, fmt.Errorf("signal.fft_window: %w", err)
	}

	s := vitals.Settings{
		SampleRate:            c.Signal.SampleRate,
		InitialWindow:         c.Signal.InitialWindow,
		SubsequentWindow:      c.Signal.SubsequentWindow,
		MaxBufferSeconds:      c.Signal.MaxBufferSeconds,
		MinAnalysisSeconds:    c.Signal.MinAnalysisSeconds,
		AnalysisWindowSeconds: c.Signal.AnalysisWindowSeconds,
		DisplayWindowSeconds:  c.Signal.DisplayWindowSeconds,
		RateHistorySize:       c.Signal.RateHistorySize,
		RateLogSize:           c.Signal.RateLogSize,
		Window:                window,
		Cardiac:               c.Cardiac.settings(analysis.Cardiac),
		Respiratory:           c.Respiratory.settings(analysis.Respiratory),
	}
	if err := s.Validate(); err != nil {
		return vitals.Settings{}, err
	}
	return s, nil
}

func (c ChannelConfig) settings(kind analysis.Kind) vitals.ChannelSettings {
	return vitals.ChannelSettings{
		Channel: analysis.Channel{
			Kind: kind,
			Band: analysis.Band{LowHz: c.LowHz, HighHz: c.HighHz},
			Thresholds: analysis.Thresholds{
				Excellent: c.Thresholds.Excellent,
				Good:      c.Thresholds.Good,
				Moderate:  c.Thresholds.Moderate,
			},
		},
		FilterOrder:      c.FilterOrder,
		DefaultRate:      c.DefaultRate,
		DisplaySmoothing: c.DisplaySmoothing,
	}
}

// applyEnvOverrides applies ENV_* variables on top of the loaded values.
// Unparsable values are logged and ignored.
func (cfg *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
			log.Infof("configuration: Overriding debug from env: %v", bVal)
		} else {
			log.Warnf("configuration: Ignoring ENV_DEBUG=%q: %v", val, err)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = val
		log.Infof("configuration: Overriding log_level from env: %s", val)
	}
	// ENV_SAMPLE_RATE
	if val, ok := os.LookupEnv("ENV_SAMPLE_RATE"); ok {
		if fVal, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Signal.SampleRate = fVal
			log.Infof("configuration: Overriding signal.sample_rate from env: %v", fVal)
		} else {
			log.Warnf("configuration: Ignoring ENV_SAMPLE_RATE=%q: %v", val, err)
		}
	}

	// ENV_WS_{...}, ENV_NATS_{...}, ENV_UDP_{...}
	// These are specific to the transport layer.

	// ENV_WS_ADDRESS
	if val, ok := os.LookupEnv("ENV_WS_ADDRESS"); ok {
		cfg.Transport.WSAddress = val
		log.Infof("configuration: Overriding transport.ws_address from env: %s", val)
	}
	// ENV_NATS_URL
	if val, ok := os.LookupEnv("ENV_NATS_URL"); ok {
		cfg.Transport.NATSURL = val
		log.Infof("configuration: Overriding transport.nats_url from env: %s", val)
	}
	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
			log.Infof("configuration: Overriding transport.udp_enabled from env: %v", bVal)
		} else {
			log.Warnf("configuration: Ignoring ENV_UDP_ENABLED=%q: %v", val, err)
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
		log.Infof("configuration: Overriding transport.udp_target_address from env: %s", val)
	}
	// ENV_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Transport.UDPSendInterval = dur
			log.Infof("configuration: Overriding transport.udp_send_interval from env: %s", dur)
		} else {
			log.Warnf("configuration: Ignoring ENV_UDP_SEND_INTERVAL=%q: %v", val, err)
		}
	}
}
