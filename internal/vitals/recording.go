// SPDX-License-Identifier: MIT
package vitals

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrNotRecording is returned when samples are written to an idle Recorder.
var ErrNotRecording = errors.New("vitals: recorder is not recording")

// Recorder writes the normalized signals of a session to a two-channel WAV
// file (cardiac left, respiratory right) at the processing sample rate. The
// normalized range of ±3 maps to full scale.
type Recorder struct {
	sampleRate int
	bitDepth   int

	isRecording int32 // Atomic flag for thread-safe state

	mu         sync.Mutex
	outputFile *os.File
	wavEncoder *wav.Encoder
	sampleBuf  *audio.IntBuffer // Reusable buffer for format conversion
}

// Compile-time check for interface implementation.
var _ SampleSink = (*Recorder)(nil)

// NewRecorder creates an idle recorder. bitDepth must be 16 or 32.
func NewRecorder(sampleRate float64, bitDepth int) (*Recorder, error) {
	if bitDepth != 16 && bitDepth != 32 {
		return nil, fmt.Errorf("vitals: unsupported WAV bit depth %d", bitDepth)
	}
	if !(sampleRate >= 1) {
		return nil, fmt.Errorf("vitals: WAV sample rate must be at least 1 Hz, got %v", sampleRate)
	}
	return &Recorder{sampleRate: int(math.Round(sampleRate)), bitDepth: bitDepth}, nil
}

// StartRecording creates filename and begins accepting samples.
func (r *Recorder) StartRecording(filename string) error {
	if atomic.LoadInt32(&r.isRecording) == 1 {
		return fmt.Errorf("already recording")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	r.outputFile = file
	r.wavEncoder = wav.NewEncoder(file, r.sampleRate, r.bitDepth, 2, 1)
	r.sampleBuf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 2,
			SampleRate:  r.sampleRate,
		},
		SourceBitDepth: r.bitDepth,
	}

	atomic.StoreInt32(&r.isRecording, 1)
	return nil
}

// IsRecording reports whether a file is open.
func (r *Recorder) IsRecording() bool {
	return atomic.LoadInt32(&r.isRecording) == 1
}

// WriteSamples interleaves and appends one segment of both channels.
func (r *Recorder) WriteSamples(cardiac, respiratory []float64) error {
	if atomic.LoadInt32(&r.isRecording) == 0 {
		return ErrNotRecording
	}
	if len(cardiac) != len(respiratory) {
		return fmt.Errorf("%w: %d vs %d samples", ErrMismatchedLengths, len(cardiac), len(respiratory))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.wavEncoder == nil {
		return ErrNotRecording
	}

	fullScale := float64(int64(1)<<(r.bitDepth-1) - 1)
	data := r.sampleBuf.Data[:0]
	for i := range cardiac {
		data = append(data, toPCM(cardiac[i], fullScale), toPCM(respiratory[i], fullScale))
	}
	r.sampleBuf.Data = data

	if err := r.wavEncoder.Write(r.sampleBuf); err != nil {
		return fmt.Errorf("vitals: writing WAV samples: %w", err)
	}
	return nil
}

// StopRecording finalizes the WAV header and closes the file. It is a no-op
// when idle.
func (r *Recorder) StopRecording() error {
	if atomic.LoadInt32(&r.isRecording) == 0 {
		return nil
	}
	atomic.StoreInt32(&r.isRecording, 0)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.wavEncoder != nil {
		if err := r.wavEncoder.Close(); err != nil {
			return err
		}
		r.wavEncoder = nil
	}

	if r.outputFile != nil {
		if err := r.outputFile.Close(); err != nil {
			return err
		}
		r.outputFile = nil
	}

	return nil
}

// Close stops any active recording.
func (r *Recorder) Close() error {
	return r.StopRecording()
}

func toPCM(v, fullScale float64) int {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Max(-1, math.Min(1, v/normalizedClamp))
	return int(math.Round(v * fullScale))
}
