// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	applog "bivo/internal/log"
	"bivo/internal/transport"
)

// MaxSamplesPerPacket keeps each datagram under a 1500 byte MTU.
const MaxSamplesPerPacket = 512

// packetSender is the part of UDPSender the publisher uses.
type packetSender interface {
	Send(data []byte) error
	Close() error
}

// queuedSegment is a private copy of a forwarded segment.
type queuedSegment struct {
	sequence   uint32
	sampleRate uint32
	timestamp  int64
	samples    []int16
}

// UDPPublisher republishes forwarded segments to a UDP listener. Segments
// are queued by Send and split into packets by a background goroutine, so
// the pipeline never waits on the network. It implements transport.Transport
// and ignores every event except transport.SegmentEvent.
type UDPPublisher struct {
	sender packetSender
	gap    time.Duration // pause between packets of one segment, 0 for none

	queue    chan queuedSegment
	doneChan chan struct{}  // closed by Stop
	stopOnce sync.Once      // Ensures the stop logic runs only once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the publisher goroutine to finish during Stop.
	mu       sync.Mutex     // Protects running and doneChan during Start/Stop.
	running  bool

	packetBuffer *bytes.Buffer // Reused for every packet.
	dropped      uint64        // Segments discarded because the queue was full.
}

// NewUDPPublisher creates a publisher writing through sender. gap spaces the
// packets of one segment; a negative gap is treated as zero.
func NewUDPPublisher(gap time.Duration, sender packetSender) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if gap < 0 {
		applog.Warnf("UDPPublisher: negative packet gap %s, using 0", gap)
		gap = 0
	}

	return &UDPPublisher{
		sender:       sender,
		gap:          gap,
		queue:        make(chan queuedSegment, 4),
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Start launches the publishing goroutine. Calling it twice is a no-op.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}
	p.running = true
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case seg := <-p.queue:
				p.publish(seg, doneChan)
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the goroutine and waits for it to exit. Queued segments not
// yet published are discarded.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.running = false
	})
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

// Send queues a copy of a SegmentEvent's samples. Other events are ignored.
// A full queue drops the segment.
func (p *UDPPublisher) Send(data any) error {
	ev, ok := data.(transport.SegmentEvent)
	if !ok {
		return nil
	}
	seg := queuedSegment{
		sequence:   ev.Sequence,
		sampleRate: uint32(ev.SampleRate),
		timestamp:  ev.Time.UnixNano(),
		samples:    append([]int16(nil), ev.Samples...),
	}
	select {
	case p.queue <- seg:
	default:
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: queue full, dropping segment %d", ev.Sequence)
	}
	return nil
}

// Dropped returns how many segments were discarded.
func (p *UDPPublisher) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

/*
UDP Packet Structure (BigEndian)

+------------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description              |
|-------------------|----------------|--------------|--------------------------|
| Sequence Number   | uint32         | 4            | Forwarded segment number |
| Timestamp         | int64          | 8            | Nanoseconds since epoch  |
| Sample Rate       | uint32         | 4            | Hz                       |
| Total Samples     | uint32         | 4            | Length of the segment    |
| Offset            | uint32         | 4            | Index of first sample    |
| Sample Count      | uint16         | 2            | Samples in this packet   |
| Samples           | []int16        | N * 2        | Audio                    |
+------------------------------------------------------------------------------+
*/

// HeaderSize is the fixed packet header length in bytes.
const HeaderSize = 4 + 8 + 4 + 4 + 4 + 2

// Header is the decoded packet header.
type Header struct {
	Sequence   uint32
	Timestamp  int64
	SampleRate uint32
	Total      uint32
	Offset     uint32
	Count      uint16
}

// DecodePacket parses one datagram.
func DecodePacket(b []byte) (Header, []int16, error) {
	var h Header
	if len(b) < HeaderSize {
		return h, nil, fmt.Errorf("udp: short packet (%d bytes)", len(b))
	}
	r := bytes.NewReader(b)
	if err := binary.Read(r, binary.BigEndian, &h); err != nil {
		return h, nil, err
	}
	if len(b) != HeaderSize+2*int(h.Count) {
		return h, nil, fmt.Errorf("udp: packet length %d does not match %d samples", len(b), h.Count)
	}
	samples := make([]int16, h.Count)
	if err := binary.Read(r, binary.BigEndian, samples); err != nil {
		return h, nil, err
	}
	return h, samples, nil
}

func (p *UDPPublisher) publish(seg queuedSegment, done <-chan struct{}) {
	total := uint32(len(seg.samples))
	for offset := 0; offset < len(seg.samples); offset += MaxSamplesPerPacket {
		chunk := seg.samples[offset:min(offset+MaxSamplesPerPacket, len(seg.samples))]

		h := Header{
			Sequence:   seg.sequence,
			Timestamp:  seg.timestamp,
			SampleRate: seg.sampleRate,
			Total:      total,
			Offset:     uint32(offset),
			Count:      uint16(len(chunk)),
		}

		p.packetBuffer.Reset()
		err := binary.Write(p.packetBuffer, binary.BigEndian, h)
		if err == nil {
			err = binary.Write(p.packetBuffer, binary.BigEndian, chunk)
		}
		if err != nil {
			applog.Errorf("UDPPublisher: Error packing segment %d: %v", seg.sequence, err)
			return
		}

		if err := p.sender.Send(p.packetBuffer.Bytes()); err != nil {
			applog.Debugf("UDPPublisher: abandoning segment %d at offset %d of %d: %v",
				seg.sequence, offset, total, err)
			return
		}

		if p.gap > 0 {
			select {
			case <-time.After(p.gap):
			case <-done:
				return
			}
		}
	}
	applog.Debugf("UDPPublisher: Sent segment %d (%d samples)", seg.sequence, total)
}

// Close stops the publisher and closes the sender.
func (p *UDPPublisher) Close() error {
	if err := p.Stop(); err != nil {
		return err
	}
	return p.sender.Close()
}

var _ transport.Transport = (*UDPPublisher)(nil)
