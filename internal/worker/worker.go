// SPDX-License-Identifier: MIT
/*
Package worker owns a vitals.Processor on a single goroutine. Every request
is a Message delivered over a channel and handled in arrival order, so the
Processor never sees concurrent callers.

Results of processed batches are fanned out to the registered transports
and kept as the latest result for pollers such as the UDP publisher.
*/
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/log"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/transport"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/vitals"
)

// ErrStopped is returned by Submit once the worker loop has exited.
var ErrStopped = errors.New("worker: stopped")

// DefaultQueueSize is the request backlog used when New is given zero.
const DefaultQueueSize = 16

type request struct {
	msg   Message
	reply chan response
}

type response struct {
	reply Reply
	err   error
}

// Worker serializes access to one Processor.
type Worker struct {
	proc     *vitals.Processor
	requests chan request
	done     chan struct{}
	running  atomic.Bool

	mu      sync.Mutex
	outputs []transport.Transport

	latest atomic.Pointer[vitals.Result]
}

var _ transport.Controller = (*Worker)(nil)

// New creates a worker around p. Call Run to start handling requests.
func New(p *vitals.Processor, queueSize int) *Worker {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Worker{
		proc:     p,
		requests: make(chan request, queueSize),
		done:     make(chan struct{}),
	}
}

// AddOutput registers a transport that receives every non-empty Result.
func (w *Worker) AddOutput(t transport.Transport) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.outputs = append(w.outputs, t)
}

// Run handles requests until ctx is cancelled. It must be called once.
func (w *Worker) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return fmt.Errorf("worker: Run called twice")
	}
	defer close(w.done)

	log.Infof("Worker: Started")
	for {
		select {
		case <-ctx.Done():
			w.proc.StopCapture()
			log.Infof("Worker: Stopped (%v)", ctx.Err())
			return nil
		case req := <-w.requests:
			reply, err := w.handle(req.msg)
			req.reply <- response{reply: reply, err: err}
		}
	}
}

// Submit delivers msg and waits for the reply.
func (w *Worker) Submit(ctx context.Context, msg Message) (Reply, error) {
	req := request{msg: msg, reply: make(chan response, 1)}
	select {
	case w.requests <- req:
	case <-w.done:
		return Reply{}, ErrStopped
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}

	select {
	case resp := <-req.reply:
		return resp.reply, resp.err
	case <-w.done:
		// The loop may have answered just before exiting.
		select {
		case resp := <-req.reply:
			return resp.reply, resp.err
		default:
			return Reply{}, ErrStopped
		}
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

func (w *Worker) handle(msg Message) (Reply, error) {
	switch m := msg.(type) {
	case Init:
		w.proc.StartCapture()
		w.latest.Store(nil)
	case Process:
		res, err := w.proc.ProcessNewSignals(m.Batch.Cardiac, m.Batch.Respiratory, m.Batch.Timestamp)
		if err != nil {
			return Reply{}, err
		}
		if res.Timestamp != "" {
			w.latest.Store(&res)
			w.publish(res)
		}
		return Reply{Result: &res, Status: w.proc.Status()}, nil
	case Export:
		snap := w.proc.ExportData()
		return Reply{Snapshot: &snap, Status: w.proc.Status()}, nil
	case Stop:
		w.proc.StopCapture()
	case Reset:
		w.proc.Reset()
		w.latest.Store(nil)
	default:
		return Reply{}, fmt.Errorf("worker: unknown message %T", msg)
	}
	return Reply{Status: w.proc.Status()}, nil
}

func (w *Worker) publish(res vitals.Result) {
	w.mu.Lock()
	outputs := w.outputs
	w.mu.Unlock()

	for _, t := range outputs {
		if err := t.Send(res); err != nil {
			log.Warnf("Worker: Error sending result to %T: %v", t, err)
		}
	}
}

// Latest returns the most recent non-empty Result of the current session.
func (w *Worker) Latest() (vitals.Result, bool) {
	if r := w.latest.Load(); r != nil {
		return *r, true
	}
	return vitals.Result{}, false
}

// StartCapture implements transport.Controller.
func (w *Worker) StartCapture(ctx context.Context) (vitals.Status, error) {
	reply, err := w.Submit(ctx, Init{})
	return reply.Status, err
}

// StopCapture implements transport.Controller. Capture stops before the
// Stop message is queued, so batches already waiting in the queue are
// dropped when the loop reaches them.
func (w *Worker) StopCapture(ctx context.Context) (vitals.Status, error) {
	w.proc.StopCapture()
	reply, err := w.Submit(ctx, Stop{})
	return reply.Status, err
}

// Export implements transport.Controller.
func (w *Worker) Export(ctx context.Context) (vitals.Snapshot, error) {
	reply, err := w.Submit(ctx, Export{})
	if err != nil {
		return vitals.Snapshot{}, err
	}
	return *reply.Snapshot, nil
}

// Status implements transport.Controller. It reads the processor's counters
// directly; they are guarded by the processor's own lock.
func (w *Worker) Status() vitals.Status {
	return w.proc.Status()
}
