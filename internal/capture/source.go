// SPDX-License-Identifier: MIT
package capture

// SourceParams describes how a Sample Source should be brought up. It is
// handed to Source.Configure once, when the controller is initialized.
type SourceParams struct {
	SampleRate int // Samples per second, single channel.
	Gain       int // Source specific gain setting, 0 leaves the default.
}

// Sink receives samples from a Source. Deliver is called from the source's
// own context, one sample at a time, in arrival order. It reports whether
// the sample was accepted; a source may stop producing once it returns
// false.
type Sink interface {
	Deliver(sample int16) bool
}

// Source is the hardware sampler collaborator. Implementations produce
// samples asynchronously at a fixed rate after Start and push them into the
// sink given to Configure.
//
// Stop is called from the delivery context when a capture completes, so it
// must not block and must not wait for the delivery context to return.
type Source interface {
	Configure(params SourceParams, sink Sink) error
	Start() error
	Stop() error
}
