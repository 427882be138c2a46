// SPDX-License-Identifier: MIT
package worker

import "github.com/PhysiologicAILab/mmrphys-live-sub000/internal/vitals"

// Message is a request handled by the worker goroutine. The set is closed:
// only the types in this file implement it.
type Message interface {
	message()
}

// Init starts a new capture session, discarding the previous one.
type Init struct{}

// Process submits one inference batch.
type Process struct {
	Batch vitals.Batch
}

// Export requests a snapshot of the current session.
type Export struct{}

// Stop halts capture. The session stays available for Export.
type Stop struct{}

// Reset stops capture and discards the session.
type Reset struct{}

func (Init) message()    {}
func (Process) message() {}
func (Export) message()  {}
func (Stop) message()    {}
func (Reset) message()   {}

// Reply is the worker's answer to a Message. Result is set for Process,
// Snapshot for Export.
type Reply struct {
	Result   *vitals.Result
	Snapshot *vitals.Snapshot
	Status   vitals.Status
}
