// SPDX-License-Identifier: MIT
// Package stream connects the engine to the NATS message bus: inference
// batches arrive on one subject and rate metrics leave on another.
package stream

import (
	"time"

	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/log"
	"github.com/nats-io/nats.go"
)

// Connect dials url with reconnects enabled for the life of the process.
func Connect(url, name string) (*nats.Conn, error) {
	return nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("Stream: Disconnected from NATS: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("Stream: Reconnected to %s", nc.ConnectedUrl())
		}),
	)
}

// Publisher is the subset of *nats.Conn used to send messages.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)
