// SPDX-License-Identifier: MIT
// Package udp streams display frames to a local visualiser over UDP.
package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	applog "github.com/PhysiologicAILab/mmrphys-live-sub000/internal/log"
)

// ErrSenderClosed is returned by Send after Close.
var ErrSenderClosed = errors.New("udp: sender is closed")

// UDPSender writes frames to one connected UDP peer and counts what it
// delivered.
type UDPSender struct {
	mu     sync.Mutex // guards conn
	conn   *net.UDPConn
	target string

	packets atomic.Uint64
	bytes   atomic.Uint64
	failed  atomic.Uint64
}

var _ Sender = (*UDPSender)(nil)

// NewUDPSender resolves and connects to targetAddress ("host:port").
func NewUDPSender(targetAddress string) (*UDPSender, error) {
	raddr, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("udp: resolving %q: %w", targetAddress, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("udp: connecting to %q: %w", targetAddress, err)
	}

	applog.Infof("UDPSender: Sending frames to %s", conn.RemoteAddr())
	return &UDPSender{conn: conn, target: raddr.String()}, nil
}

// Send writes data as a single datagram.
func (s *UDPSender) Send(data []byte) error {
	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return ErrSenderClosed
	}
	n, err := conn.Write(data)
	s.mu.Unlock()

	if err != nil {
		// A missing listener surfaces as ECONNREFUSED on the next write.
		if s.failed.Add(1) == 1 {
			applog.Warnf("UDPSender: Write to %s failed: %v", s.target, err)
		}
		return fmt.Errorf("udp: sending %d bytes: %w", len(data), err)
	}
	s.packets.Add(1)
	s.bytes.Add(uint64(n))
	return nil
}

// Stats returns the number of datagrams and bytes written and failed writes.
func (s *UDPSender) Stats() (packets, bytes, failures uint64) {
	return s.packets.Load(), s.bytes.Load(), s.failed.Load()
}

// Close releases the socket. Further calls are no-ops.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}

	packets, bytes, failures := s.Stats()
	applog.Infof("UDPSender: Closing %s after %d packets (%d bytes, %d failed)", s.target, packets, bytes, failures)
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return fmt.Errorf("udp: closing: %w", err)
	}
	return nil
}
