// SPDX-License-Identifier: MIT
package stream

import (
	"encoding/json"
	"fmt"

	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/log"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/transport"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/vitals"
)

// MetricsMessage is the compact form of a vitals.Result published on the
// bus. Display slices stay local to the websocket and UDP paths.
type MetricsMessage struct {
	Timestamp   string         `json:"timestamp"`
	Cardiac     vitals.Metrics `json:"cardiac"`
	Respiratory vitals.Metrics `json:"respiratory"`
}

// MetricsPublisher is a transport that publishes results on a subject.
type MetricsPublisher struct {
	pub     Publisher
	subject string
}

var _ transport.Transport = (*MetricsPublisher)(nil)

// NewMetricsPublisher returns a publisher sending on subject through pub.
func NewMetricsPublisher(pub Publisher, subject string) *MetricsPublisher {
	log.Infof("Stream: Publishing metrics on %s", subject)
	return &MetricsPublisher{pub: pub, subject: subject}
}

// Send publishes a vitals.Result. Other payloads are rejected.
func (m *MetricsPublisher) Send(data any) error {
	var res vitals.Result
	switch v := data.(type) {
	case vitals.Result:
		res = v
	case *vitals.Result:
		res = *v
	default:
		return fmt.Errorf("stream: cannot publish %T as metrics", data)
	}

	payload, err := json.Marshal(MetricsMessage{
		Timestamp:   res.Timestamp,
		Cardiac:     res.Cardiac,
		Respiratory: res.Respiratory,
	})
	if err != nil {
		return err
	}
	return m.pub.Publish(m.subject, payload)
}

// Close is a no-op; the connection is owned by the caller.
func (m *MetricsPublisher) Close() error {
	return nil
}
