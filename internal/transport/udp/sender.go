// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	applog "bivo/internal/log"
)

var senderLog = applog.Named("udp")

// writeTimeout bounds a single datagram write.
const writeTimeout = 250 * time.Millisecond

// ErrSenderClosed is returned by Send after Close.
var ErrSenderClosed = errors.New("udp: sender closed")

// UDPSender writes segment datagrams to one connected peer.
type UDPSender struct {
	mu   sync.Mutex
	conn net.Conn // nil once closed

	packets atomic.Uint64
	bytes   atomic.Uint64
}

// NewUDPSender dials targetAddress ("host:port"). UDP is connectionless, so
// this only fails on an unresolvable address.
func NewUDPSender(targetAddress string) (*UDPSender, error) {
	conn, err := net.Dial("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("udp: dial %q: %w", targetAddress, err)
	}
	senderLog.Infof("publishing segments to %s", conn.RemoteAddr())
	return &UDPSender{conn: conn}, nil
}

// Send writes pkt as a single datagram.
func (s *UDPSender) Send(pkt []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrSenderClosed
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("udp: set deadline: %w", err)
	}
	n, err := s.conn.Write(pkt)
	if err != nil {
		senderLog.Warnf("datagram of %d bytes dropped: %v", len(pkt), err)
		return fmt.Errorf("udp: write: %w", err)
	}
	s.packets.Add(1)
	s.bytes.Add(uint64(n))
	return nil
}

// Stats returns the datagrams and payload bytes written so far.
func (s *UDPSender) Stats() (packets, bytes uint64) {
	return s.packets.Load(), s.bytes.Load()
}

// Close releases the socket. Further calls are no-ops.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	packets, bytes := s.Stats()
	senderLog.Debugf("closing %s after %d datagrams (%d bytes)", conn.RemoteAddr(), packets, bytes)
	if err := conn.Close(); err != nil {
		return fmt.Errorf("udp: close: %w", err)
	}
	return nil
}
