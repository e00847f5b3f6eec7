// SPDX-License-Identifier: MIT
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"bivo/internal/log"
)

// TokenSize is the length of every protocol token.
const TokenSize = 5

// Token is a fixed 5-byte protocol message.
type Token [TokenSize]byte

func (t Token) String() string { return string(t[:]) }

// Protocol tokens. The host opens with Request, the sensor answers with
// Response, the host confirms with Ack and then asks for a segment with
// Record. Every forwarded segment is followed by End.
var (
	TokenRequest  = Token{'h', 'a', 'n', 'd', 's'}
	TokenResponse = Token{'c', 'n', 'f', 'r', 'm'}
	TokenAck      = Token{'a', 'c', 'k', 'n', 'g'}
	TokenRecord   = Token{'r', 'e', 'c', 'r', 'd'}
	TokenEnd      = Token{'-', 'e', 'n', 'd', '-'}
)

// ErrBadMarker is returned when a segment is not followed by TokenEnd.
var ErrBadMarker = errors.New("transport: segment not terminated by end marker")

var protoLog = log.Named("protocol")

// Expect reads from link until the last five bytes received equal tok and
// returns how many bytes were skipped before it. Matching slides one byte at
// a time, so a token split across reads or preceded by noise is still found.
// ctx is checked between bytes; a blocked read is only released by closing
// the link.
func Expect(ctx context.Context, link Link, tok Token) (skipped int, err error) {
	var window Token
	var b [1]byte
	filled := 0
	for {
		if err := ctx.Err(); err != nil {
			return skipped, err
		}
		if err := link.ReceiveBytes(b[:]); err != nil {
			return skipped, fmt.Errorf("waiting for %q: %w", tok, err)
		}
		copy(window[:], window[1:])
		window[TokenSize-1] = b[0]
		if filled < TokenSize {
			filled++
		}
		if filled == TokenSize && window == tok {
			return skipped, nil
		}
		if filled == TokenSize {
			skipped++
		}
	}
}

func expect(ctx context.Context, link Link, tok Token) error {
	skipped, err := Expect(ctx, link, tok)
	if skipped > 0 {
		protoLog.Debugf("skipped %d bytes before %q", skipped, tok)
	}
	return err
}

// Handshake runs the sensor side of the three message exchange: wait for
// Request, answer Response, wait for Ack.
func Handshake(ctx context.Context, link Link) error {
	if err := expect(ctx, link, TokenRequest); err != nil {
		return err
	}
	if err := link.SendBytes(TokenResponse[:]); err != nil {
		return err
	}
	return expect(ctx, link, TokenAck)
}

// WaitForRecord blocks until the host sends the Record command.
func WaitForRecord(ctx context.Context, link Link) error {
	return expect(ctx, link, TokenRecord)
}

// ForwardSegment sends a whole segment followed by the end marker.
func ForwardSegment(link Link, segment []int16) error {
	if err := link.SendSamples(segment); err != nil {
		return err
	}
	return link.SendBytes(TokenEnd[:])
}

// Client is the host side of the protocol.
type Client struct {
	link Link
}

// NewClient returns a host client speaking over link.
func NewClient(link Link) *Client {
	return &Client{link: link}
}

// Handshake sends Request, waits for Response and confirms with Ack.
func (c *Client) Handshake(ctx context.Context) error {
	if err := c.link.SendBytes(TokenRequest[:]); err != nil {
		return err
	}
	if err := expect(ctx, c.link, TokenResponse); err != nil {
		return err
	}
	return c.link.SendBytes(TokenAck[:])
}

// Record asks for a segment and reads it. See ReadSegment for n.
func (c *Client) Record(ctx context.Context, n int) ([]int16, error) {
	if err := c.link.SendBytes(TokenRecord[:]); err != nil {
		return nil, err
	}
	return c.ReadSegment(ctx, n)
}

// ReadSegment reads one forwarded segment. With n > 0 it reads exactly n
// samples and then requires the end marker. With n == 0 it reads until the
// stream ends in the marker at an odd byte count; sample data that happens
// to spell the marker at such an offset ends the segment early, so prefer a
// known length.
func (c *Client) ReadSegment(ctx context.Context, n int) ([]int16, error) {
	var raw []byte
	if n > 0 {
		raw = make([]byte, 2*n+TokenSize)
		if err := c.link.ReceiveBytes(raw); err != nil {
			return nil, err
		}
		if !bytes.Equal(raw[2*n:], TokenEnd[:]) {
			return nil, fmt.Errorf("%w: got %q", ErrBadMarker, raw[2*n:])
		}
	} else {
		var b [1]byte
		for {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := c.link.ReceiveBytes(b[:]); err != nil {
				return nil, err
			}
			raw = append(raw, b[0])
			if len(raw)%2 == 1 && bytes.HasSuffix(raw, TokenEnd[:]) {
				break
			}
		}
	}

	payload := raw[:len(raw)-TokenSize]
	samples := make([]int16, len(payload)/2)
	for i := range samples {
		samples[i] = int16(uint16(payload[2*i]) | uint16(payload[2*i+1])<<8)
	}
	return samples, nil
}
