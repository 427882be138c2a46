// SPDX-License-Identifier: MIT
package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/vitals"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/pkg/synth"
)

type collectingTransport struct {
	mu      sync.Mutex
	results []vitals.Result
}

func (c *collectingTransport) Send(data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, data.(vitals.Result))
	return nil
}

func (c *collectingTransport) Close() error { return nil }

func (c *collectingTransport) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

func startWorker(t *testing.T) (*Worker, context.CancelFunc) {
	t.Helper()
	p, err := vitals.NewProcessor(vitals.DefaultSettings(), nil)
	if err != nil {
		t.Fatal(err)
	}
	w := New(p, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	})
	return w, cancel
}

func batches(n int) []vitals.Batch {
	s := vitals.DefaultSettings()
	gen := synth.NewGenerator(s.SampleRate, 72, 15, 0.05, 3)
	adm := vitals.NewAdmission(s.InitialWindow, s.SubsequentWindow)
	start := time.Date(2025, 4, 13, 9, 30, 0, 0, time.UTC)

	out := make([]vitals.Batch, 0, n)
	for len(out) < n {
		c, r := gen.Next(1)
		if b, ok := adm.Push(c[0], r[0]); ok {
			b.Timestamp = start.Add(time.Duration(len(out)) * 4 * time.Second).Format(time.RFC3339)
			out = append(out, b)
		}
	}
	return out
}

func TestWorkerSession(t *testing.T) {
	w, _ := startWorker(t)
	out := &collectingTransport{}
	w.AddOutput(out)
	ctx := context.Background()

	// Before Init the processor is idle: batches are accepted and ignored.
	bs := batches(6)
	reply, err := w.Submit(ctx, Process{Batch: bs[0]})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Result == nil || reply.Result.Timestamp != "" {
		t.Errorf("idle Process returned %+v", reply.Result)
	}
	if _, ok := w.Latest(); ok {
		t.Error("Latest set while idle")
	}

	st, err := w.StartCapture(ctx)
	if err != nil || !st.Capturing || st.SessionID == "" {
		t.Fatalf("StartCapture = %+v, %v", st, err)
	}

	for _, b := range bs {
		if _, err := w.Submit(ctx, Process{Batch: b}); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
	if out.len() != len(bs) {
		t.Errorf("transport received %d results, want %d", out.len(), len(bs))
	}
	latest, ok := w.Latest()
	if !ok || latest.Timestamp != bs[len(bs)-1].Timestamp {
		t.Errorf("Latest = %q, %v", latest.Timestamp, ok)
	}

	st, err = w.StopCapture(ctx)
	if err != nil || st.Capturing {
		t.Fatalf("StopCapture = %+v, %v", st, err)
	}

	snap, err := w.Export(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Timestamps) != len(bs) {
		t.Errorf("export has %d timestamps, want %d", len(snap.Timestamps), len(bs))
	}
	if got := w.Status().Batches; got != len(bs) {
		t.Errorf("Status().Batches = %d, want %d", got, len(bs))
	}

	if _, err := w.Submit(ctx, Reset{}); err != nil {
		t.Fatal(err)
	}
	if _, ok := w.Latest(); ok {
		t.Error("Latest survived Reset")
	}
	if st := w.Status(); st.Retained != 0 || st.SessionID != "" {
		t.Errorf("Reset left %+v", st)
	}
}

func TestWorkerProcessErrors(t *testing.T) {
	w, _ := startWorker(t)
	ctx := context.Background()
	if _, err := w.Submit(ctx, Init{}); err != nil {
		t.Fatal(err)
	}

	_, err := w.Submit(ctx, Process{Batch: vitals.Batch{Cardiac: make([]float64, 181), Respiratory: make([]float64, 10), Timestamp: "2025-04-13T09:30:00Z"}})
	if !errors.Is(err, vitals.ErrMismatchedLengths) {
		t.Errorf("error = %v, want ErrMismatchedLengths", err)
	}
}

func TestStopCaptureDropsQueuedBatches(t *testing.T) {
	p, err := vitals.NewProcessor(vitals.DefaultSettings(), nil)
	if err != nil {
		t.Fatal(err)
	}
	p.StartCapture()
	w := New(p, 8) // not running yet, so requests stay queued
	out := &collectingTransport{}
	w.AddOutput(out)
	ctx := context.Background()

	bs := batches(5)
	replies := make(chan Reply, len(bs))
	var wg sync.WaitGroup
	for _, b := range bs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := w.Submit(ctx, Process{Batch: b})
			if err != nil {
				t.Errorf("Process: %v", err)
			}
			replies <- reply
		}()
	}
	waitFor(t, func() bool { return len(w.requests) == len(bs) })

	stopped := make(chan vitals.Status, 1)
	go func() {
		st, err := w.StopCapture(ctx)
		if err != nil {
			t.Errorf("StopCapture: %v", err)
		}
		stopped <- st
	}()
	waitFor(t, func() bool { return !p.IsCapturing() })

	runCtx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- w.Run(runCtx) }()
	t.Cleanup(func() {
		cancel()
		<-runDone
	})

	wg.Wait()
	close(replies)
	for reply := range replies {
		if reply.Result != nil && reply.Result.Timestamp != "" {
			t.Errorf("queued batch %s processed after StopCapture", reply.Result.Timestamp)
		}
	}
	if st := <-stopped; st.Capturing {
		t.Error("StopCapture reported capturing")
	}
	if got := w.Status().Batches; got != 0 {
		t.Errorf("%d batches processed after StopCapture was requested, want 0", got)
	}
	if out.len() != 0 {
		t.Errorf("transport received %d results after StopCapture", out.len())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSubmitAfterStop(t *testing.T) {
	w, cancel := startWorker(t)
	cancel()
	<-w.done

	if _, err := w.Submit(context.Background(), Export{}); !errors.Is(err, ErrStopped) {
		t.Errorf("Submit after stop = %v, want ErrStopped", err)
	}
}

func TestSubmitHonoursContext(t *testing.T) {
	p, err := vitals.NewProcessor(vitals.DefaultSettings(), nil)
	if err != nil {
		t.Fatal(err)
	}
	w := New(p, 1) // never run

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := w.Submit(ctx, Export{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Submit = %v, want deadline exceeded", err)
	}
}

func TestConcurrentSubmitters(t *testing.T) {
	w, _ := startWorker(t)
	ctx := context.Background()
	if _, err := w.Submit(ctx, Init{}); err != nil {
		t.Fatal(err)
	}

	bs := batches(4)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, b := range bs {
			if _, err := w.Submit(ctx, Process{Batch: b}); err != nil {
				t.Errorf("Process: %v", err)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for range 10 {
			if _, err := w.Export(ctx); err != nil {
				t.Errorf("Export: %v", err)
			}
		}
	}()
	wg.Wait()

	if got := w.Status().Batches; got != len(bs) {
		t.Errorf("processed %d batches, want %d", got, len(bs))
	}
}

func TestRunTwice(t *testing.T) {
	w, _ := startWorker(t)
	// Wait for the first Run to claim the worker.
	if _, err := w.Submit(context.Background(), Export{}); err != nil {
		t.Fatal(err)
	}
	if err := w.Run(context.Background()); err == nil {
		t.Error("second Run succeeded")
	}
}
