// SPDX-License-Identifier: MIT
// Package transport delivers processing results to consumers outside the
// engine and exposes the session controls to them.
package transport

import (
	"context"

	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/vitals"
)

// Transport defines a generic interface for sending processed data or events.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// Controller is the session control surface exposed over HTTP.
type Controller interface {
	StartCapture(ctx context.Context) (vitals.Status, error)
	StopCapture(ctx context.Context) (vitals.Status, error)
	Export(ctx context.Context) (vitals.Snapshot, error)
	Status() vitals.Status
}
