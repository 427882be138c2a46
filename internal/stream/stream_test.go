// SPDX-License-Identifier: MIT
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/analysis"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/vitals"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/worker"
	"github.com/nats-io/nats.go"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{subject, append([]byte(nil), data...)})
	return nil
}

type fakeSubmitter struct {
	mu   sync.Mutex
	msgs []worker.Message
	err  error
}

func (f *fakeSubmitter) Submit(_ context.Context, msg worker.Message) (worker.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return worker.Reply{}, f.err
}

func TestBatchRoundTrip(t *testing.T) {
	pub := &fakePublisher{}
	in := vitals.Batch{
		Cardiac:     []float64{0.1, 0.2, 0.3},
		Respiratory: []float64{-0.1, -0.2, -0.3},
		Timestamp:   "2025-04-13T09:30:00Z",
	}
	if err := PublishBatch(pub, "mmrphys.batch", in); err != nil {
		t.Fatal(err)
	}
	if len(pub.msgs) != 1 || pub.msgs[0].subject != "mmrphys.batch" {
		t.Fatalf("published %+v", pub.msgs)
	}

	out, err := DecodeBatch(pub.msgs[0].data)
	if err != nil {
		t.Fatal(err)
	}
	if out.Timestamp != in.Timestamp || len(out.Cardiac) != 3 || out.Respiratory[2] != -0.3 {
		t.Errorf("decoded %+v", out)
	}
}

func TestDecodeBatchRejectsGarbage(t *testing.T) {
	if _, err := DecodeBatch([]byte("not json")); err == nil {
		t.Error("DecodeBatch accepted garbage")
	}
}

func TestSubscriberForwardsBatches(t *testing.T) {
	target := &fakeSubmitter{}
	s := NewBatchSubscriber(nil, "mmrphys.batch", target)

	data, _ := EncodeBatch(vitals.Batch{Cardiac: []float64{1}, Respiratory: []float64{2}, Timestamp: "2025-04-13T09:30:00Z"})
	s.onMsg(&nats.Msg{Subject: "mmrphys.batch", Data: data})
	s.onMsg(&nats.Msg{Subject: "mmrphys.batch", Data: []byte("{")})

	received, rejected := s.Stats()
	if received != 2 || rejected != 1 {
		t.Errorf("stats = %d received, %d rejected; want 2, 1", received, rejected)
	}
	if len(target.msgs) != 1 {
		t.Fatalf("forwarded %d messages, want 1", len(target.msgs))
	}
	p, ok := target.msgs[0].(worker.Process)
	if !ok || p.Batch.Cardiac[0] != 1 {
		t.Errorf("forwarded %#v", target.msgs[0])
	}

	target.err = vitals.ErrBatchTooShort
	s.onMsg(&nats.Msg{Subject: "mmrphys.batch", Data: data})
	if _, rejected := s.Stats(); rejected != 2 {
		t.Errorf("processor errors should count as rejections, got %d", rejected)
	}
}

func TestSubscriberWithoutConnection(t *testing.T) {
	s := NewBatchSubscriber(nil, "mmrphys.batch", &fakeSubmitter{})
	if err := s.Start(); err == nil {
		t.Error("Start without a connection succeeded")
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stop when not started: %v", err)
	}
}

func TestMetricsPublisher(t *testing.T) {
	pub := &fakePublisher{}
	m := NewMetricsPublisher(pub, "mmrphys.metrics")

	res := vitals.Result{
		Timestamp:   "2025-04-13T09:30:04Z",
		Cardiac:     vitals.Metrics{Rate: 71.8, Quality: analysis.Quality{SNR: 12, Label: analysis.Excellent}, Ready: true},
		Respiratory: vitals.Metrics{Rate: 14.9, Quality: analysis.Quality{Label: analysis.Good}, Ready: true},
		Display:     vitals.Display{CardiacRaw: make([]float64, 450)},
	}
	if err := m.Send(res); err != nil {
		t.Fatal(err)
	}
	if err := m.Send(&res); err != nil {
		t.Fatal(err)
	}
	if err := m.Send("text"); err == nil {
		t.Error("Send accepted a non-result payload")
	}
	if len(pub.msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(pub.msgs))
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(pub.msgs[0].data, &raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := raw["display"]; ok {
		t.Error("metrics message carries display slices")
	}
	var msg MetricsMessage
	if err := json.Unmarshal(pub.msgs[0].data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Cardiac.Rate != 71.8 || msg.Cardiac.Quality.Label != analysis.Excellent || msg.Timestamp != res.Timestamp {
		t.Errorf("decoded %+v", msg)
	}

	pub.err = errors.New("connection closed")
	if err := m.Send(res); err == nil {
		t.Error("publish error not returned")
	}
	if err := m.Close(); err != nil {
		t.Error(err)
	}
}
