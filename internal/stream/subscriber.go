// SPDX-License-Identifier: MIT
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/log"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/vitals"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/worker"
	"github.com/nats-io/nats.go"
)

// Submitter accepts worker messages; *worker.Worker implements it.
type Submitter interface {
	Submit(ctx context.Context, msg worker.Message) (worker.Reply, error)
}

// BatchSubscriber forwards JSON-encoded vitals.Batch messages to a worker.
type BatchSubscriber struct {
	conn    *nats.Conn
	subject string
	target  Submitter
	timeout time.Duration

	sub      *nats.Subscription
	received atomic.Uint64
	rejected atomic.Uint64
}

// NewBatchSubscriber creates an idle subscriber; call Start to subscribe.
func NewBatchSubscriber(conn *nats.Conn, subject string, target Submitter) *BatchSubscriber {
	return &BatchSubscriber{
		conn:    conn,
		subject: subject,
		target:  target,
		timeout: 5 * time.Second,
	}
}

// Start subscribes to the batch subject.
func (s *BatchSubscriber) Start() error {
	if s.conn == nil {
		return errors.New("stream: batch subscriber has no connection")
	}
	sub, err := s.conn.Subscribe(s.subject, s.onMsg)
	if err != nil {
		return fmt.Errorf("stream: subscribing to %s: %w", s.subject, err)
	}
	s.sub = sub
	log.Infof("Stream: Subscribed to batches on %s", s.subject)
	return nil
}

// Stop unsubscribes. It is safe to call when not started.
func (s *BatchSubscriber) Stop() error {
	if s.sub == nil {
		return nil
	}
	err := s.sub.Unsubscribe()
	s.sub = nil
	log.Infof("Stream: Unsubscribed from %s (received %d, rejected %d)", s.subject, s.received.Load(), s.rejected.Load())
	return err
}

// Stats returns the number of received and rejected batches.
func (s *BatchSubscriber) Stats() (received, rejected uint64) {
	return s.received.Load(), s.rejected.Load()
}

func (s *BatchSubscriber) onMsg(msg *nats.Msg) {
	s.received.Add(1)
	if err := s.handle(msg.Data); err != nil {
		s.rejected.Add(1)
		log.Warnf("Stream: Rejected batch on %s: %v", msg.Subject, err)
	}
}

func (s *BatchSubscriber) handle(data []byte) error {
	batch, err := DecodeBatch(data)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, err = s.target.Submit(ctx, worker.Process{Batch: batch})
	return err
}

// DecodeBatch parses one batch message.
func DecodeBatch(data []byte) (vitals.Batch, error) {
	var b vitals.Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return vitals.Batch{}, fmt.Errorf("stream: decoding batch: %w", err)
	}
	return b, nil
}

// EncodeBatch is the inverse of DecodeBatch, used by producers.
func EncodeBatch(b vitals.Batch) ([]byte, error) {
	return json.Marshal(b)
}

// PublishBatch sends one batch on subject.
func PublishBatch(p Publisher, subject string, b vitals.Batch) error {
	data, err := EncodeBatch(b)
	if err != nil {
		return err
	}
	return p.Publish(subject, data)
}
