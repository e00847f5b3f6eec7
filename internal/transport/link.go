// SPDX-License-Identifier: MIT
package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Link is the framed channel between sensor and host. Samples travel as
// little-endian int16. ReceiveBytes blocks until the buffer is full.
type Link interface {
	SendSamples(samples []int16) error
	SendBytes(b []byte) error
	ReceiveBytes(b []byte) error
}

// linkChunk is how many bytes SendSamples encodes per write.
const linkChunk = 4096

// StreamLink implements Link over any byte stream, typically a serial port.
// Sends are serialized; receives are buffered and must come from a single
// goroutine.
type StreamLink struct {
	rw io.ReadWriter
	r  *bufio.Reader

	mu   sync.Mutex // guards wbuf and writes
	wbuf []byte
}

// NewStreamLink wraps rw.
func NewStreamLink(rw io.ReadWriter) *StreamLink {
	return &StreamLink{
		rw:   rw,
		r:    bufio.NewReader(rw),
		wbuf: make([]byte, linkChunk),
	}
}

// SendSamples writes samples as little-endian int16 in chunks.
func (l *StreamLink) SendSamples(samples []int16) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	per := len(l.wbuf) / 2
	for start := 0; start < len(samples); start += per {
		chunk := samples[start:min(start+per, len(samples))]
		for i, s := range chunk {
			binary.LittleEndian.PutUint16(l.wbuf[2*i:], uint16(s))
		}
		if _, err := l.rw.Write(l.wbuf[:2*len(chunk)]); err != nil {
			return fmt.Errorf("transport: send samples: %w", err)
		}
	}
	return nil
}

// SendBytes writes b in full.
func (l *StreamLink) SendBytes(b []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.rw.Write(b); err != nil {
		return fmt.Errorf("transport: send bytes: %w", err)
	}
	return nil
}

// ReceiveBytes fills b, blocking until every byte has arrived.
func (l *StreamLink) ReceiveBytes(b []byte) error {
	if _, err := io.ReadFull(l.r, b); err != nil {
		return fmt.Errorf("transport: receive: %w", err)
	}
	return nil
}

// ReceiveSamples fills dst with little-endian int16 samples.
func (l *StreamLink) ReceiveSamples(dst []int16) error {
	var pair [2]byte
	for i := range dst {
		if err := l.ReceiveBytes(pair[:]); err != nil {
			return err
		}
		dst[i] = int16(binary.LittleEndian.Uint16(pair[:]))
	}
	return nil
}

// Close closes the underlying stream when it supports closing. Closing
// unblocks a pending ReceiveBytes.
func (l *StreamLink) Close() error {
	if c, ok := l.rw.(io.Closer); ok {
		return c.Close()
	}
	return errors.ErrUnsupported
}

var _ Link = (*StreamLink)(nil)
