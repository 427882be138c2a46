// SPDX-License-Identifier: MIT
package transport

import (
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/log"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/vitals"
)

// LoggingTransport implements the Transport interface by logging results at
// debug level. It is used when no other output is configured.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	log.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs a one-line summary of the received data.
func (lt *LoggingTransport) Send(data any) error {
	switch v := data.(type) {
	case vitals.Result:
		log.Debugf("Transport: %s cardiac %.1f bpm (%s), respiratory %.1f br/min (%s)",
			v.Timestamp, v.Cardiac.Rate, v.Cardiac.Quality.Label, v.Respiratory.Rate, v.Respiratory.Quality.Label)
	default:
		log.Debugf("Transport: Received %T", data)
	}
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	log.Debugf("Transport: LoggingTransport closed")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
