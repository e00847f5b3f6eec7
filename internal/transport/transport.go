// SPDX-License-Identifier: MIT

/*
Package transport moves data off the sensor.

Two kinds of transport live here:
  - Link: the framed serial byte/sample channel to the host, plus the token
    protocol spoken over it (protocol.go).
  - Transport: best-effort event sinks for observers (websocket monitor,
    UDP segment publisher, logging). These never affect the pipeline's
    behaviour; a failing observer is logged and ignored.
*/
package transport

import (
	"errors"
	"time"
)

// Transport is an event sink. Implementations must be safe for concurrent
// use and must not block the caller for long.
type Transport interface {
	Send(data any) error
	Close() error
}

// AttemptEvent reports the verdict on one captured segment.
type AttemptEvent struct {
	Attempt   int           `json:"attempt"`
	Passed    bool          `json:"passed"`
	Window    int           `json:"window"`
	Bin       int           `json:"bin"`
	BinHz     int           `json:"bin_hz"`
	Magnitude int16         `json:"magnitude"`
	Capture   time.Duration `json:"capture_ns"`
	Analysis  time.Duration `json:"analysis_ns"`
	Time      time.Time     `json:"time"`
}

// SegmentEvent reports a segment forwarded to the host. Samples is only
// read by transports that publish audio; it must not be retained after Send
// returns.
type SegmentEvent struct {
	Sequence   uint32    `json:"sequence"`
	Attempts   int       `json:"attempts"`
	SampleRate int       `json:"sample_rate"`
	Length     int       `json:"length"`
	Time       time.Time `json:"time"`
	Samples    []int16   `json:"-"`
}

// FaultEvent reports a hard fault that ended the pipeline.
type FaultEvent struct {
	Error string    `json:"error"`
	Time  time.Time `json:"time"`
}

// Fanout sends every message to each of its transports.
type Fanout []Transport

// Send delivers data to every transport and joins their errors.
func (f Fanout) Send(data any) error {
	var errs []error
	for _, t := range f {
		if err := t.Send(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every transport and joins their errors.
func (f Fanout) Close() error {
	var errs []error
	for _, t := range f {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Transport = Fanout(nil)
