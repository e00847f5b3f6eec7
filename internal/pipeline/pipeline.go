// SPDX-License-Identifier: MIT

/*
Package pipeline runs the sensor's capture, analyse and forward loop.

A Pipeline owns the one segment buffer. It lends the buffer to the capture
controller, waits for the fill to complete, runs the spectral analyzer over it
and either re-arms the same buffer or forwards it to the host:

	WaitForCommand -> Capturing -> (fail) Capturing -> ... -> Forwarding -> WaitForCommand

Only the worker goroutine calling Run or Record touches the buffer outside of
a fill. Observers (event transports, metrics) see copies or summaries.
*/
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"bivo/internal/analysis"
	"bivo/internal/capture"
	"bivo/internal/log"
	"bivo/internal/observe"
	"bivo/internal/transport"
)

var (
	// ErrHardFault wraps capture errors that mean the controller is in a
	// state the worker does not expect. The pipeline stops on it.
	ErrHardFault = errors.New("pipeline: hard fault")
	// ErrRetriesExhausted is returned when MaxAttempts or Timeout is set and
	// no segment passed analysis in time.
	ErrRetriesExhausted = errors.New("pipeline: retries exhausted")
)

// State is the pipeline's position in its loop.
type State uint32

const (
	WaitForCommand State = iota
	Capturing
	Forwarding
)

func (s State) String() string {
	switch s {
	case WaitForCommand:
		return "wait-for-command"
	case Capturing:
		return "capturing"
	case Forwarding:
		return "forwarding"
	default:
		return "unknown"
	}
}

// Options tune the retry loop. The zero value retries forever.
type Options struct {
	MaxAttempts    int           // 0 is unbounded.
	Timeout        time.Duration // Per Record call, 0 is unbounded.
	RetryWarnEvery int           // Warn after this many consecutive failures, 0 never.

	// HandshakeEverySegment repeats the handshake before each record
	// command instead of only once per Run.
	HandshakeEverySegment bool
}

// Deps are the collaborators a Pipeline drives.
type Deps struct {
	Controller *capture.Controller
	Analyzer   *analysis.Analyzer
	Link       transport.Link
	Events     transport.Transport // Optional.
	Metrics    *observe.Metrics    // Optional.
}

// Pipeline is the retry-or-forward state machine.
type Pipeline struct {
	ctrl     *capture.Controller
	analyzer *analysis.Analyzer
	link     transport.Link
	events   transport.Transport
	metrics  *observe.Metrics
	opts     Options
	log      log.Logger

	sampleRate int
	segment    []int16

	state     atomic.Uint32
	sequence  atomic.Uint32
	attempts  atomic.Uint64 // total analysed segments
	forwarded atomic.Uint64
}

// New allocates the segment buffer of segmentLen samples. The controller
// must already be initialized for Record to succeed.
func New(deps Deps, sampleRate, segmentLen int, opts Options) (*Pipeline, error) {
	if deps.Controller == nil || deps.Analyzer == nil || deps.Link == nil {
		return nil, errors.New("pipeline: controller, analyzer and link are required")
	}
	if segmentLen <= 0 {
		return nil, fmt.Errorf("pipeline: segment length must be positive, got %d", segmentLen)
	}
	if opts.MaxAttempts < 0 || opts.Timeout < 0 || opts.RetryWarnEvery < 0 {
		return nil, errors.New("pipeline: negative retry option")
	}
	m := deps.Metrics
	if m == nil {
		m = observe.Discard()
	}
	return &Pipeline{
		ctrl:       deps.Controller,
		analyzer:   deps.Analyzer,
		link:       deps.Link,
		events:     deps.Events,
		metrics:    m,
		opts:       opts,
		log:        log.Named("pipeline"),
		sampleRate: sampleRate,
		segment:    make([]int16, segmentLen),
	}, nil
}

// State returns the current loop state.
func (p *Pipeline) State() State { return State(p.state.Load()) }

// Attempts returns how many segments have been analysed in total.
func (p *Pipeline) Attempts() uint64 { return p.attempts.Load() }

// Forwarded returns how many segments have been sent to the host.
func (p *Pipeline) Forwarded() uint64 { return p.forwarded.Load() }

// Segment returns the segment buffer. Its contents are only meaningful
// between a successful Record and the next capture.
func (p *Pipeline) Segment() []int16 { return p.segment }

// Run serves the host until ctx is cancelled or a fault occurs. It
// handshakes, waits for a record command, records a qualifying segment and
// forwards it, forever. Cancellation returns ctx.Err(); a read blocked on
// the link is only released when the caller closes it.
func (p *Pipeline) Run(ctx context.Context) error {
	defer p.stopCapture()

	handshaken := false
	for {
		p.state.Store(uint32(WaitForCommand))

		if !handshaken || p.opts.HandshakeEverySegment {
			if err := transport.Handshake(ctx, p.link); err != nil {
				return p.linkErr(ctx, "handshake", err)
			}
			p.log.Debugf("handshake complete")
			handshaken = true
		}
		if err := transport.WaitForRecord(ctx, p.link); err != nil {
			return p.linkErr(ctx, "record command", err)
		}

		attempts, err := p.Record(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.fault(ctx, err)
			return err
		}
		if err := p.Forward(ctx, attempts); err != nil {
			return p.linkErr(ctx, "forward", err)
		}
	}
}

// Record captures segments until one passes analysis and returns how many
// captures it took. On success the segment buffer holds the passing segment.
func (p *Pipeline) Record(ctx context.Context) (attempts int, err error) {
	p.state.Store(uint32(Capturing))

	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, p.opts.Timeout, ErrRetriesExhausted)
		defer cancel()
	}

	for {
		// A fast source can complete every fill before Wait is reached, so
		// the deadline is also checked here.
		if ctx.Err() != nil {
			return attempts, p.recordErr(ctx)
		}
		start := time.Now()
		if err := p.ctrl.Arm(p.segment); err != nil {
			return attempts, fmt.Errorf("%w: arm attempt %d: %w", ErrHardFault, attempts+1, err)
		}
		if err := p.ctrl.Wait(ctx); err != nil {
			p.stopCapture()
			if ctx.Err() != nil {
				return attempts, p.recordErr(ctx)
			}
			return attempts, fmt.Errorf("%w: wait attempt %d: %w", ErrHardFault, attempts+1, err)
		}
		captured := time.Since(start)
		attempts++

		start = time.Now()
		v := p.analyzer.Inspect(p.segment)
		analysed := time.Since(start)

		p.attempts.Add(1)
		p.metrics.RecordAttempt(ctx, v.Passed, captured, analysed)
		p.emit(transport.AttemptEvent{
			Attempt:   attempts,
			Passed:    v.Passed,
			Window:    v.Window,
			Bin:       v.Bin,
			BinHz:     p.analyzer.BinFrequency(v.Bin),
			Magnitude: v.Magnitude,
			Capture:   captured,
			Analysis:  analysed,
			Time:      time.Now(),
		})

		if v.Passed {
			p.log.Debugf("attempt %d passed: window %d bin %d magnitude %d",
				attempts, v.Window, v.Bin, v.Magnitude)
			return attempts, nil
		}
		if n := p.opts.RetryWarnEvery; n > 0 && attempts%n == 0 {
			p.log.Warnf("%d consecutive segments failed analysis (best magnitude %d at %d Hz)",
				attempts, v.Magnitude, p.analyzer.BinFrequency(v.Bin))
		}
		if p.opts.MaxAttempts > 0 && attempts >= p.opts.MaxAttempts {
			return attempts, fmt.Errorf("%w: %d attempts", ErrRetriesExhausted, attempts)
		}
	}
}

// Forward sends the segment buffer and the end marker to the host.
func (p *Pipeline) Forward(ctx context.Context, attempts int) error {
	p.state.Store(uint32(Forwarding))

	start := time.Now()
	if err := transport.ForwardSegment(p.link, p.segment); err != nil {
		return err
	}
	took := time.Since(start)

	p.forwarded.Add(1)
	p.metrics.RecordForward(ctx, attempts, took)
	p.emit(transport.SegmentEvent{
		Sequence:   p.sequence.Add(1) - 1,
		Attempts:   attempts,
		SampleRate: p.sampleRate,
		Length:     len(p.segment),
		Time:       time.Now(),
		Samples:    p.segment,
	})
	p.log.Infof("forwarded segment after %d attempt(s) in %v", attempts, took.Round(time.Millisecond))
	return nil
}

// recordErr maps a done ctx to the error Record returns: our own timeout
// becomes ErrRetriesExhausted, anything else is the caller's cancellation.
func (p *Pipeline) recordErr(ctx context.Context) error {
	if errors.Is(context.Cause(ctx), ErrRetriesExhausted) {
		return fmt.Errorf("%w: no passing segment within %v", ErrRetriesExhausted, p.opts.Timeout)
	}
	return ctx.Err()
}

func (p *Pipeline) emit(event any) {
	if p.events == nil {
		return
	}
	if err := p.events.Send(event); err != nil {
		p.log.Debugf("event transport: %v", err)
	}
}

func (p *Pipeline) fault(ctx context.Context, err error) {
	kind := "hard_fault"
	if errors.Is(err, ErrRetriesExhausted) {
		kind = "retries_exhausted"
	}
	p.metrics.RecordFault(ctx, kind)
	p.emit(transport.FaultEvent{Error: err.Error(), Time: time.Now()})
	p.log.Errorf("%v", err)
}

func (p *Pipeline) linkErr(ctx context.Context, during string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	err = fmt.Errorf("pipeline: %s: %w", during, err)
	p.metrics.RecordFault(ctx, "link")
	p.emit(transport.FaultEvent{Error: err.Error(), Time: time.Now()})
	return err
}

func (p *Pipeline) stopCapture() {
	if err := p.ctrl.Stop(); err != nil && !errors.Is(err, capture.ErrNotInitialized) {
		p.log.Warnf("stop capture: %v", err)
	}
}
