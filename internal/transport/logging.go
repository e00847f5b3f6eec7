// SPDX-License-Identifier: MIT
package transport

import (
	"bivo/internal/log"
)

// LoggingTransport writes events to the log. Attempts are logged at debug
// level since a silent site produces one per segment.
type LoggingTransport struct {
	log log.Logger
}

// NewLoggingTransport creates a LoggingTransport writing through the
// "events" logger.
func NewLoggingTransport() *LoggingTransport {
	return &LoggingTransport{log: log.Named("events")}
}

// Send logs the event.
func (lt *LoggingTransport) Send(data any) error {
	switch ev := data.(type) {
	case AttemptEvent:
		lt.log.Debugf("attempt %d passed=%t window=%d bin=%d (%d Hz) magnitude=%d capture=%s analysis=%s",
			ev.Attempt, ev.Passed, ev.Window, ev.Bin, ev.BinHz, ev.Magnitude, ev.Capture, ev.Analysis)
	case SegmentEvent:
		lt.log.Infof("segment %d forwarded after %d attempts (%d samples at %d Hz)",
			ev.Sequence, ev.Attempts, ev.Length, ev.SampleRate)
	case FaultEvent:
		lt.log.Errorf("fault: %s", ev.Error)
	default:
		lt.log.Debugf("%T: %+v", data, data)
	}
	return nil
}

// Close is a no-op.
func (lt *LoggingTransport) Close() error {
	return nil
}

var _ Transport = (*LoggingTransport)(nil)
