// SPDX-License-Identifier: MIT
package rate

// DefaultLogSize bounds the per-session rate log kept for export.
const DefaultLogSize = 3600

// Log is the session-long record of every accepted estimate, capped at a
// maximum length with the oldest entries dropped first. Unlike Tracker it
// exists for export, not for smoothing. A Log is owned by one goroutine.
type Log struct {
	limit   int
	samples []Sample
}

// NewLog creates a log holding at most limit samples. limit <= 0 selects
// DefaultLogSize.
func NewLog(limit int) *Log {
	if limit <= 0 {
		limit = DefaultLogSize
	}
	return &Log{limit: limit}
}

// Append records s, trimming the oldest entry when the log is full.
func (l *Log) Append(s Sample) {
	if len(l.samples) == l.limit {
		copy(l.samples, l.samples[1:])
		l.samples = l.samples[:l.limit-1]
	}
	l.samples = append(l.samples, s)
}

// Samples returns a copy of the log, oldest first.
func (l *Log) Samples() []Sample {
	out := make([]Sample, len(l.samples))
	copy(out, l.samples)
	return out
}

// Cap returns the maximum number of samples the log retains.
func (l *Log) Cap() int {
	return l.limit
}

// Len returns the number of recorded samples.
func (l *Log) Len() int {
	return len(l.samples)
}

// Reset empties the log.
func (l *Log) Reset() {
	l.samples = l.samples[:0]
}
