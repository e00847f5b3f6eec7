// SPDX-License-Identifier: MIT

/*
Package capture owns the single segment buffer while it is being filled.

The controller sits between two contexts:
  - the delivery context (a PortAudio callback thread or a source goroutine)
    calls Deliver once per sample and must never block;
  - the worker goroutine calls Arm, Wait/IsComplete and Stop.

They share only the cursor and the state word, both atomics. Buffer writes
happen strictly before the state moves to Complete, and the worker only reads
the buffer after it observes Complete, so the worker always sees every sample.

Thread Safety:
  - One delivery context at a time; concurrent Deliver calls are not supported
  - No locks on the delivery path
  - Stop and Arm wait for an in-flight Deliver to drain before touching the
    buffer; the delivery side never waits
*/
package capture

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
)

var (
	// ErrNotInitialized is returned when the controller is used before Init.
	ErrNotInitialized = errors.New("capture: not initialized")
	// ErrBusy is returned by Arm while a fill is already in progress.
	ErrBusy = errors.New("capture: fill already in progress")
)

// State is the capture lifecycle state.
type State uint32

const (
	Idle State = iota
	Arming
	Filling
	Complete
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Arming:
		return "arming"
	case Filling:
		return "filling"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// Controller arms captures into a lent buffer and detects completion.
type Controller struct {
	source Source

	initialized atomic.Bool
	state       atomic.Uint32
	cursor      atomic.Int64
	inFlight    atomic.Int32 // Deliver calls currently between entry and exit

	// buf is only replaced by the worker while no fill is running.
	buf []int16

	// done carries one token per completed fill.
	done chan struct{}
}

// NewController creates a controller for the given source. The controller
// is not usable until Init succeeds.
func NewController(source Source) *Controller {
	return &Controller{
		source: source,
		done:   make(chan struct{}, 1),
	}
}

// Init configures the source and marks the controller ready. Calling it
// again reconfigures the source and is only allowed while idle.
func (c *Controller) Init(params SourceParams) error {
	if c.source == nil {
		return fmt.Errorf("capture: no sample source")
	}
	if c.initialized.Load() && State(c.state.Load()) == Filling {
		return ErrBusy
	}
	if err := c.source.Configure(params, c); err != nil {
		return fmt.Errorf("capture: configure source: %w", err)
	}
	c.initialized.Store(true)
	return nil
}

// Arm lends buf to the controller and starts filling it from index 0. The
// capacity of the capture is len(buf). On ErrBusy the buffer passed in is
// left untouched and the running fill continues.
func (c *Controller) Arm(buf []int16) error {
	if !c.initialized.Load() {
		return ErrNotInitialized
	}
	if len(buf) == 0 {
		return fmt.Errorf("capture: cannot arm an empty buffer")
	}
	if !c.state.CompareAndSwap(uint32(Idle), uint32(Arming)) &&
		!c.state.CompareAndSwap(uint32(Complete), uint32(Arming)) {
		return ErrBusy
	}

	// The delivery call that completed the previous fill may still be
	// returning; it must be gone before the buffer is swapped.
	c.drain()

	select {
	case <-c.done:
	default:
	}

	c.buf = buf
	c.cursor.Store(0)
	c.state.Store(uint32(Filling))

	if err := c.source.Start(); err != nil {
		c.state.Store(uint32(Idle))
		c.drain()
		c.buf = nil
		return fmt.Errorf("capture: start source: %w", err)
	}
	return nil
}

// Deliver writes one sample at the cursor. It is called from the source's
// context and never blocks. When the cursor reaches the buffer capacity the
// controller moves to Complete, halts the source and wakes the worker.
func (c *Controller) Deliver(sample int16) bool {
	c.inFlight.Add(1)
	defer c.inFlight.Add(-1)

	if State(c.state.Load()) != Filling {
		return false
	}

	i := c.cursor.Load()
	buf := c.buf
	if i >= int64(len(buf)) {
		return false
	}
	buf[i] = sample
	i++
	c.cursor.Store(i)

	if i == int64(len(buf)) {
		if c.state.CompareAndSwap(uint32(Filling), uint32(Complete)) {
			_ = c.source.Stop()
			select {
			case c.done <- struct{}{}:
			default:
			}
		}
		return false
	}
	return true
}

// Stop halts the source and returns the controller to Idle from any state.
// It is idempotent. A Deliver already writing when Stop is called finishes
// its write before Stop returns.
func (c *Controller) Stop() error {
	if !c.initialized.Load() {
		return ErrNotInitialized
	}
	prev := State(c.state.Swap(uint32(Idle)))
	c.drain()
	if prev == Idle {
		return nil
	}
	if err := c.source.Stop(); err != nil {
		return fmt.Errorf("capture: stop source: %w", err)
	}
	return nil
}

// IsComplete reports whether the armed buffer has been filled. It never
// blocks.
func (c *Controller) IsComplete() bool {
	return State(c.state.Load()) == Complete
}

// Wait blocks until the current fill completes or ctx is done. It is the
// worker's only suspension point.
func (c *Controller) Wait(ctx context.Context) error {
	switch st := c.State(); st {
	case Complete:
		return nil
	case Filling:
	default:
		return fmt.Errorf("capture: wait while %s", st)
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Filled returns how many samples the current or last fill has written.
func (c *Controller) Filled() int {
	return int(c.cursor.Load())
}

// drain spins until no Deliver call is in progress. Deliver bumps inFlight
// before reading the state and callers store the state before calling
// drain, so any Deliver that missed the new state is visible here.
func (c *Controller) drain() {
	for c.inFlight.Load() != 0 {
		runtime.Gosched()
	}
}
