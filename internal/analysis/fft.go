// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/log"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/pkg/bitint"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// WindowFunc defines the type for selecting an FFT window function.
type WindowFunc int

// Enum for available window functions.
const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

// minSamples is the shortest window the analyzer will transform.
const minSamples = 8

var (
	// ErrInsufficientData is returned when a window is too short, flat, or
	// has no spectral bins inside the requested band.
	ErrInsufficientData = errors.New("analysis: insufficient data")

	// ErrNumericInstability is returned when the input or the transform
	// contains NaN or Inf values.
	ErrNumericInstability = errors.New("analysis: numeric instability")
)

// Peak is a spectral local maximum. FrequencyHz is refined by parabolic
// interpolation on log power and may fall between bins.
type Peak struct {
	Bin         int     `json:"bin"`
	FrequencyHz float64 `json:"frequencyHz"`
	Power       float64 `json:"power"`
}

// Spectrum is the result of one Analyze call.
type Spectrum struct {
	SampleRate   float64   `json:"sampleRate"`
	FFTSize      int       `json:"fftSize"`
	SignalLength int       `json:"signalLength"`
	Power        []float64 `json:"power"` // bins [0, FFTSize/2)
	Peaks        []Peak    `json:"peaks"` // in-band candidates, strongest first
	Dominant     Peak      `json:"dominant"`
}

// FrequencyForBin returns the centre frequency (Hz) for a given bin index.
func (s Spectrum) FrequencyForBin(bin int) float64 {
	return float64(bin) * bitint.BinSpacing(s.SampleRate, s.FFTSize)
}

// Rate converts the dominant frequency to events per minute.
func (s Spectrum) Rate() float64 {
	return s.Dominant.FrequencyHz * 60
}

// TotalPower sums power over every bin.
func (s Spectrum) TotalPower() float64 {
	return floats.Sum(s.Power)
}

// Analyzer locates the dominant physiological frequency in a window of
// samples. Transforms and window coefficients are cached per length. An
// Analyzer is safe for concurrent use; calls are serialized internally.
type Analyzer struct {
	windowType WindowFunc

	mu      sync.Mutex
	ffts    map[int]*fourier.FFT
	windows map[int][]float64
}

// Compile-time check for interface implementation.
var _ Estimator = (*Analyzer)(nil)

// NewAnalyzer creates an analyzer that tapers every window with windowType.
func NewAnalyzer(windowType WindowFunc) *Analyzer {
	log.Debugf("Analysis: Initializing Analyzer (Window: %v)", windowType)
	return &Analyzer{
		windowType: windowType,
		ffts:       make(map[int]*fourier.FFT),
		windows:    make(map[int][]float64),
	}
}

// Analyze removes the mean, tapers, zero-pads to the next power of two and
// returns the power spectrum together with the in-band peak candidates and
// the dominant peak after harmonic disambiguation.
func (a *Analyzer) Analyze(signal []float64, sampleRate float64, band Band) (Spectrum, error) {
	n := len(signal)
	switch {
	case !(sampleRate > 0) || math.IsInf(sampleRate, 0):
		return Spectrum{}, fmt.Errorf("%w: sample rate %v", ErrInsufficientData, sampleRate)
	case !band.Valid():
		return Spectrum{}, fmt.Errorf("%w: band %.3f-%.3f Hz", ErrInsufficientData, band.LowHz, band.HighHz)
	case n < minSamples:
		return Spectrum{}, fmt.Errorf("%w: %d samples, need %d", ErrInsufficientData, n, minSamples)
	}
	for i, v := range signal {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Spectrum{}, fmt.Errorf("%w: sample %d is %v", ErrNumericInstability, i, v)
		}
	}

	if floats.Max(signal) == floats.Min(signal) {
		return Spectrum{}, fmt.Errorf("%w: signal has no variance", ErrInsufficientData)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	size := bitint.NextPowerOfTwo(n)
	input := make([]float64, size)
	mean := stat.Mean(signal, nil)
	for i, v := range signal {
		input[i] = v - mean
	}
	floats.Mul(input[:n], a.windowFor(n))

	coeffs := a.fftFor(size).Coefficients(nil, input)
	power := make([]float64, size/2)
	for i := range power {
		c := coeffs[i]
		power[i] = real(c)*real(c) + imag(c)*imag(c)
	}

	spec := Spectrum{
		SampleRate:   sampleRate,
		FFTSize:      size,
		SignalLength: n,
		Power:        power,
	}

	total := spec.TotalPower()
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return spec, fmt.Errorf("%w: spectrum power is %v", ErrNumericInstability, total)
	}
	if total <= 0 {
		return spec, fmt.Errorf("%w: spectrum has no power", ErrInsufficientData)
	}

	spec.Peaks = findPeaks(spec, band)
	if len(spec.Peaks) == 0 {
		return spec, fmt.Errorf("%w: no bins inside %.3f-%.3f Hz at %d-point resolution", ErrInsufficientData, band.LowHz, band.HighHz, size)
	}
	spec.Dominant = selectFundamental(spec.Peaks, band)
	return spec, nil
}

// Estimate runs Analyze and AssessQuality for one channel. On failure the
// returned estimate carries poor quality and no rate, together with the
// error.
func (a *Analyzer) Estimate(signal []float64, sampleRate float64, ch Channel) (Estimate, error) {
	spec, err := a.Analyze(signal, sampleRate, ch.Band)
	if err != nil {
		return Estimate{Quality: PoorQuality()}, err
	}

	q := AssessQuality(spec, ch.Band, ch.Thresholds)
	q.OutlierRatio = OutlierRatio(signal)
	return Estimate{
		FrequencyHz: spec.Dominant.FrequencyHz,
		Rate:        spec.Rate(),
		Quality:     q,
	}, nil
}

// findPeaks returns the in-band local maxima sorted by descending power.
// A band without a strict local maximum falls back to its strongest bin.
func findPeaks(s Spectrum, band Band) []Peak {
	var peaks []Peak
	best := -1
	for i := range s.Power {
		if !band.Contains(s.FrequencyForBin(i)) {
			continue
		}
		if best < 0 || s.Power[i] > s.Power[best] {
			best = i
		}
		if i == 0 || i+1 >= len(s.Power) {
			continue
		}
		if s.Power[i] > s.Power[i-1] && s.Power[i] > s.Power[i+1] {
			peaks = append(peaks, s.peakAt(i))
		}
	}
	if len(peaks) == 0 && best >= 0 {
		return []Peak{s.peakAt(best)}
	}

	sort.Slice(peaks, func(i, j int) bool {
		return peaks[i].Power > peaks[j].Power
	})
	return peaks
}

// peakAt builds a Peak for bin, refining its frequency with a parabola
// through the log power of the bin and its neighbours.
func (s Spectrum) peakAt(bin int) Peak {
	p := Peak{Bin: bin, FrequencyHz: s.FrequencyForBin(bin), Power: s.Power[bin]}
	if bin == 0 || bin+1 >= len(s.Power) {
		return p
	}
	l, c, r := s.Power[bin-1], s.Power[bin], s.Power[bin+1]
	if l <= 0 || c <= 0 || r <= 0 {
		return p
	}
	alpha, beta, gamma := math.Log(l), math.Log(c), math.Log(r)
	den := alpha - 2*beta + gamma
	if den >= 0 {
		return p
	}
	delta := 0.5 * (alpha - gamma) / den
	if math.Abs(delta) > 0.5 {
		return p
	}
	p.FrequencyHz = s.FrequencyForBin(bin) + delta*s.SampleRate/float64(s.FFTSize)
	return p
}

func (a *Analyzer) fftFor(size int) *fourier.FFT {
	f, ok := a.ffts[size]
	if !ok {
		f = fourier.NewFFT(size)
		a.ffts[size] = f
	}
	return f
}

func (a *Analyzer) windowFor(n int) []float64 {
	w, ok := a.windows[n]
	if !ok {
		w = make([]float64, n)
		applyWindow(w, a.windowType)
		a.windows[n] = w
	}
	return w
}

func (w WindowFunc) String() string {
	switch w {
	case BartlettHann:
		return "bartletthann"
	case Blackman:
		return "blackman"
	case BlackmanNuttall:
		return "blackmannuttall"
	case Hann:
		return "hann"
	case Hamming:
		return "hamming"
	case Lanczos:
		return "lanczos"
	case Nuttall:
		return "nuttall"
	default:
		return fmt.Sprintf("WindowFunc(%d)", int(w))
	}
}

// ParseWindowFunc converts a string name (case-insensitive) to a WindowFunc
// enum, returns a known default (Hamming) and an error if the name is unknown.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming", "":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Hamming, fmt.Errorf("unknown window function name: '%s'", name)
	}
}

// applyWindow fills coeffs with the selected window. Unknown types fall back
// to Hamming.
func applyWindow(coeffs []float64, windowType WindowFunc) {
	// The gonum window functions scale in place, so start from ones.
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch windowType {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		log.Warnf("Analysis: Unknown window function type %d, defaulting to Hamming", windowType)
		window.Hamming(coeffs)
	}
}
