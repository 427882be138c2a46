// SPDX-License-Identifier: MIT
package vitals

// Batch is one inference pass worth of samples for both channels.
type Batch struct {
	Cardiac     []float64 `json:"cardiac"`
	Respiratory []float64 `json:"respiratory"`
	Timestamp   string    `json:"timestamp"`
}

// Admission is the producer side of the batch-admission policy. It collects
// per-frame samples and emits a batch once InitialWindow samples arrived
// (first batch) or SubsequentWindow new samples arrived (later batches),
// prefixing later batches with the overlap carried from the previous one.
type Admission struct {
	initial    int
	subsequent int

	emitted bool
	pending [2][]float64 // new samples since the last batch
	tail    [2][]float64 // overlap carried into the next batch
}

// NewAdmission creates an admission policy for the given windows.
func NewAdmission(initial, subsequent int) *Admission {
	return &Admission{initial: initial, subsequent: subsequent}
}

// Push adds one frame's samples. When a batch is complete it is returned
// with ok set; the caller stamps the timestamp.
func (a *Admission) Push(cardiac, respiratory float64) (b Batch, ok bool) {
	a.pending[0] = append(a.pending[0], cardiac)
	a.pending[1] = append(a.pending[1], respiratory)

	need := a.subsequent
	if !a.emitted {
		need = a.initial
	}
	if len(a.pending[0]) < need {
		return Batch{}, false
	}

	b = Batch{
		Cardiac:     concat(a.tail[0], a.pending[0]),
		Respiratory: concat(a.tail[1], a.pending[1]),
	}

	overlap := a.initial - a.subsequent
	for i, full := range [2][]float64{b.Cardiac, b.Respiratory} {
		a.tail[i] = append(a.tail[i][:0], full[len(full)-overlap:]...)
		a.pending[i] = a.pending[i][:0]
	}
	a.emitted = true
	return b, true
}

// Reset forgets pending samples and the carried overlap.
func (a *Admission) Reset() {
	a.emitted = false
	for i := range a.pending {
		a.pending[i] = a.pending[i][:0]
		a.tail[i] = a.tail[i][:0]
	}
}

func concat(a, b []float64) []float64 {
	out := make([]float64, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
