// SPDX-License-Identifier: MIT
/*
Package vitals turns batches of inferred cardiac and respiratory waveform
samples into live rate estimates, quality scores and display-ready slices.

A Processor owns one capture session: two SampleBuffers, one band-pass
filter stream per channel, and the rate trackers. Each ProcessNewSignals
call strips the overlap re-supplied by the producer, filters only the new
samples with carried filter state, re-estimates the rates over the most
recent analysis window and returns the metrics together with a display
slice.

Thread Safety:
  - The capturing flag is atomic; StopCapture takes effect immediately
    without waiting for an in-flight batch
  - Buffers are guarded by a mutex, so a single call is atomic with
    respect to the session state
  - Callers must still submit batches in order from a single producer
*/
package vitals

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/analysis"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/filter"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/log"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/rate"
	"github.com/google/uuid"
)

// Input contract violations. Signal-quality problems never surface as
// errors; they degrade the returned metrics instead.
var (
	ErrMismatchedLengths = errors.New("vitals: cardiac and respiratory batches differ in length")
	ErrInvalidTimestamp  = errors.New("vitals: timestamp is not RFC 3339")
	ErrBatchTooShort     = errors.New("vitals: batch shorter than the admission window")
)

// SampleSink receives the normalized samples appended by each batch, for
// example to record the session.
type SampleSink interface {
	WriteSamples(cardiac, respiratory []float64) error
}

type channel struct {
	settings ChannelSettings
	stream   *filter.Stream
	buffer   *SampleBuffer
	tracker  *rate.Tracker
	log      *rate.Log

	primed   bool
	lastRaw  float64
	repaired int // non-finite raw samples replaced this session
}

func newChannel(s Settings, cs ChannelSettings) (*channel, error) {
	coeffs, err := filter.Design(cs.Band.LowHz, cs.Band.HighHz, s.SampleRate, cs.FilterOrder)
	if err != nil {
		return nil, fmt.Errorf("%v filter: %w", cs.Kind, err)
	}
	stream, err := filter.NewStream(coeffs)
	if err != nil {
		return nil, fmt.Errorf("%v filter: %w", cs.Kind, err)
	}
	return &channel{
		settings: cs,
		stream:   stream,
		buffer:   NewSampleBuffer(s.maxSamples()),
		tracker:  rate.NewTracker(cs.Band, s.RateHistorySize),
		log:      rate.NewLog(s.RateLogSize),
	}, nil
}

// ingest filters the new raw segment and appends both views. Non-finite
// raw samples are replaced by the previous finite one.
func (c *channel) ingest(raw []float64) {
	clean := make([]float64, len(raw))
	for i, x := range raw {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			c.repaired++
			x = c.lastRaw
		}
		clean[i] = x
		c.lastRaw = x
	}
	if len(clean) == 0 {
		return
	}

	if !c.primed {
		c.stream.Prime(clean[0])
		c.primed = true
	}
	before := c.stream.Sanitized()
	filtered := c.stream.ProcessSignal(clean)
	if n := c.stream.Sanitized() - before; n > 0 {
		log.Warnf("Processor: %v filter produced %d non-finite outputs, replaced with last stable value", c.settings.Kind, n)
	}

	if dropped := c.buffer.Append(clean, filtered); dropped > 0 {
		log.Debugf("Processor: %v buffer trimmed %d oldest samples", c.settings.Kind, dropped)
	}
}

func (c *channel) reset() {
	c.stream.Reset()
	c.buffer.Reset()
	c.tracker.Reset()
	c.log.Reset()
	c.primed = false
	c.lastRaw = 0
	c.repaired = 0
}

// Processor is the streaming vitals engine for one capture session.
type Processor struct {
	settings  Settings
	estimator analysis.Estimator
	capturing atomic.Bool

	mu          sync.Mutex
	cardiac     *channel
	respiratory *channel
	sink        SampleSink

	sessionID  string
	startTime  time.Time
	timestamps []string
	batches    int // admitted batches this session
	frames     int // new samples admitted this session, before trimming
}

// NewProcessor validates s, designs both filters and returns an idle
// Processor. A nil estimator selects the spectral analyzer.
func NewProcessor(s Settings, estimator analysis.Estimator) (*Processor, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if estimator == nil {
		estimator = analysis.NewAnalyzer(s.Window)
	}

	cardiac, err := newChannel(s, s.Cardiac)
	if err != nil {
		return nil, err
	}
	respiratory, err := newChannel(s, s.Respiratory)
	if err != nil {
		return nil, err
	}

	log.Infof("Processor: Initializing (SampleRate: %.1f Hz, Windows: %d/%d, Cardiac: %.2f-%.2f Hz, Respiratory: %.2f-%.2f Hz)",
		s.SampleRate, s.InitialWindow, s.SubsequentWindow,
		s.Cardiac.Band.LowHz, s.Cardiac.Band.HighHz,
		s.Respiratory.Band.LowHz, s.Respiratory.Band.HighHz)

	return &Processor{
		settings:    s,
		estimator:   estimator,
		cardiac:     cardiac,
		respiratory: respiratory,
	}, nil
}

// Settings returns the configuration the processor was built with.
func (p *Processor) Settings() Settings {
	return p.settings
}

// SetSink installs a sink for newly appended samples; nil removes it.
func (p *Processor) SetSink(sink SampleSink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = sink
}

// StartCapture resets the session and begins accepting batches.
func (p *Processor) StartCapture() {
	p.mu.Lock()
	p.resetLocked()
	p.sessionID = uuid.NewString()
	p.startTime = time.Now().UTC()
	id := p.sessionID
	p.mu.Unlock()

	p.capturing.Store(true)
	log.Infof("Processor: Capture started (session %s)", id)
}

// StopCapture halts processing immediately. Buffers are preserved for
// export. Calling it while idle is a no-op.
func (p *Processor) StopCapture() {
	if p.capturing.Swap(false) {
		log.Infof("Processor: Capture stopped")
	}
}

// IsCapturing reports whether batches are currently accepted.
func (p *Processor) IsCapturing() bool {
	return p.capturing.Load()
}

// Reset stops capturing and discards the session.
func (p *Processor) Reset() {
	p.capturing.Store(false)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	p.sessionID = ""
	p.startTime = time.Time{}
}

func (p *Processor) resetLocked() {
	p.cardiac.reset()
	p.respiratory.reset()
	p.timestamps = p.timestamps[:0]
	p.batches = 0
	p.frames = 0
}

// ProcessNewSignals admits one batch. While idle it returns a zero Result
// and leaves the session untouched. Only malformed input is reported as an
// error; analysis failures degrade to default rates with poor quality.
func (p *Processor) ProcessNewSignals(cardiac, respiratory []float64, timestamp string) (Result, error) {
	if !p.capturing.Load() {
		return Result{}, nil
	}
	if len(cardiac) != len(respiratory) {
		return Result{}, fmt.Errorf("%w: %d vs %d samples", ErrMismatchedLengths, len(cardiac), len(respiratory))
	}
	if _, err := time.Parse(time.RFC3339, timestamp); err != nil {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, timestamp)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// StopCapture may have landed while this call waited for the lock.
	if !p.capturing.Load() {
		return Result{}, nil
	}

	start, err := p.admit(len(cardiac))
	if err != nil {
		return Result{}, err
	}
	p.cardiac.ingest(cardiac[start:])
	p.respiratory.ingest(respiratory[start:])

	added := len(cardiac) - start
	p.batches++
	p.frames += added
	p.recordTimestamp(timestamp)
	p.writeSink(added)

	ready := p.ready()
	return Result{
		Timestamp:   timestamp,
		Cardiac:     p.metrics(p.cardiac, ready, timestamp),
		Respiratory: p.metrics(p.respiratory, ready, timestamp),
		Display:     p.display(),
	}, nil
}

// admit applies the batch-admission policy and returns the index of the
// first new sample.
func (p *Processor) admit(n int) (int, error) {
	s := p.settings
	if p.batches == 0 {
		if n < s.InitialWindow {
			return 0, fmt.Errorf("%w: first batch has %d samples, need %d", ErrBatchTooShort, n, s.InitialWindow)
		}
		if n != s.InitialWindow {
			log.Warnf("Processor: First batch has %d samples, expected %d", n, s.InitialWindow)
		}
		return 0, nil
	}

	overlap := s.Overlap()
	if n <= overlap {
		return 0, fmt.Errorf("%w: batch has %d samples, overlap alone is %d", ErrBatchTooShort, n, overlap)
	}
	if n-overlap != s.SubsequentWindow {
		log.Warnf("Processor: Batch has %d new samples, expected %d", n-overlap, s.SubsequentWindow)
	}
	return overlap, nil
}

// Timestamps share the rate log's cap: both grow by one entry per batch.
func (p *Processor) recordTimestamp(ts string) {
	if limit := p.cardiac.log.Cap(); len(p.timestamps) >= limit {
		p.timestamps = trimFrontStrings(p.timestamps, len(p.timestamps)-limit+1)
	}
	p.timestamps = append(p.timestamps, ts)
}

func (p *Processor) writeSink(added int) {
	if p.sink == nil || added == 0 {
		return
	}
	n := min(added, p.cardiac.buffer.Len())
	if err := p.sink.WriteSamples(p.cardiac.buffer.Normalized(n), p.respiratory.buffer.Normalized(n)); err != nil {
		log.Errorf("Processor: Error writing samples to sink: %v", err)
	}
}

// ready reports whether enough data exists for a spectral estimate.
func (p *Processor) ready() bool {
	s := p.settings
	seconds := float64(p.frames) / s.SampleRate
	return seconds >= s.MinAnalysisSeconds && p.cardiac.buffer.Len() >= s.minSamples()
}

func (p *Processor) metrics(c *channel, ready bool, timestamp string) Metrics {
	fallback := Metrics{Rate: c.settings.DefaultRate, Quality: analysis.PoorQuality()}
	if !ready {
		return fallback
	}

	window := c.buffer.Filtered(p.settings.analysisSamples())
	est, err := p.estimator.Estimate(window, p.settings.SampleRate, c.settings.Channel)
	if err != nil {
		if errors.Is(err, analysis.ErrNumericInstability) {
			log.Warnf("Processor: %v analysis: %v", c.settings.Kind, err)
		} else {
			log.Debugf("Processor: %v analysis: %v", c.settings.Kind, err)
		}
		return fallback
	}

	band := c.settings.Band
	if band.ContainsRate(est.Rate) {
		sample := rate.Sample{
			Timestamp: timestamp,
			Value:     est.Rate,
			SNR:       est.Quality.SNR,
			Quality:   est.Quality.Label,
		}
		c.tracker.Update(sample)
		c.log.Append(sample)
	}

	display, ok := c.tracker.DisplayRate()
	if !ok {
		display = c.settings.DefaultRate
	}
	return Metrics{
		Rate:    band.ClampRate(display, c.settings.DefaultRate),
		Quality: est.Quality,
		Ready:   true,
	}
}

func (p *Processor) display() Display {
	n := p.settings.displaySamples()
	cs, rs := p.settings.Cardiac.DisplaySmoothing, p.settings.Respiratory.DisplaySmoothing
	return Display{
		CardiacRaw:      displayShape(p.cardiac.buffer.Raw(n), cs),
		RespRaw:         displayShape(p.respiratory.buffer.Raw(n), rs),
		CardiacFiltered: displayShape(p.cardiac.buffer.Filtered(n), cs),
		RespFiltered:    displayShape(p.respiratory.buffer.Filtered(n), rs),
	}
}

// ExportData returns a deep copy of the session. It never mutates state
// and works while idle, so a stopped session can still be exported.
func (p *Processor) ExportData() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	meta := Metadata{
		SessionID:    p.sessionID,
		SamplingRate: p.settings.SampleRate,
		TotalSamples: p.cardiac.buffer.Len(),
	}
	if !p.startTime.IsZero() {
		meta.StartTime = p.startTime.Format(time.RFC3339Nano)
		meta.EndTime = meta.StartTime
	}
	if n := len(p.timestamps); n > 0 {
		meta.StartTime = p.timestamps[0]
		meta.EndTime = p.timestamps[n-1]
	}

	return Snapshot{
		Metadata: meta,
		Signals: Signals{
			Cardiac:     ChannelData{Raw: p.cardiac.buffer.Raw(0), Filtered: p.cardiac.buffer.Filtered(0)},
			Respiratory: ChannelData{Raw: p.respiratory.buffer.Raw(0), Filtered: p.respiratory.buffer.Filtered(0)},
		},
		Rates: Rates{
			Cardiac:     p.cardiac.log.Samples(),
			Respiratory: p.respiratory.log.Samples(),
		},
		Timestamps: append([]string{}, p.timestamps...),
	}
}

// Status is a cheap summary of the session for health endpoints.
type Status struct {
	Capturing bool   `json:"capturing"`
	SessionID string `json:"sessionId"`
	Batches   int    `json:"batches"`
	Frames    int    `json:"frames"`
	Retained  int    `json:"retained"`
	Repaired  int    `json:"repaired"`
}

// Status reports the session counters.
func (p *Processor) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		Capturing: p.capturing.Load(),
		SessionID: p.sessionID,
		Batches:   p.batches,
		Frames:    p.frames,
		Retained:  p.cardiac.buffer.Len(),
		Repaired:  p.cardiac.repaired + p.respiratory.repaired,
	}
}

func trimFrontStrings(xs []string, n int) []string {
	m := copy(xs, xs[n:])
	clear(xs[m:])
	return xs[:m]
}
