// SPDX-License-Identifier: MIT

/*
Package source provides the Sample Sources that feed the capture controller:
the PortAudio microphone, a synthetic sum-of-sinusoids generator and a WAV
file player.

All of them deliver one int16 sample at a time into a capture.Sink from
their own context and honour the capture.Source contract: Stop never blocks
and may be called from inside Deliver.
*/
package source

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"bivo/internal/capture"
)

// ErrNotConfigured is returned by Start before Configure.
var ErrNotConfigured = errors.New("source: not configured")

// tickRate is how many delivery bursts per second a paced player makes.
const tickRate = 100

// player runs a goroutine that pushes generated samples into a sink. Each
// Start launches a new run; Stop only retires the current run id, so it is
// safe from the delivery goroutine itself.
type player struct {
	next     func(i int64) int16 // sample at absolute position i
	realtime bool

	sampleRate int
	sink       capture.Sink

	run    atomic.Uint64 // id of the active run, 0 when stopped
	nextID atomic.Uint64
	pos    atomic.Int64 // absolute sample position, continues across runs
	wg     sync.WaitGroup
}

func (p *player) configure(params capture.SourceParams, sink capture.Sink) error {
	if params.SampleRate <= 0 {
		return errors.New("source: sample rate must be positive")
	}
	if sink == nil {
		return errors.New("source: nil sink")
	}
	p.Stop()
	p.wg.Wait()
	p.sampleRate = params.SampleRate
	p.sink = sink
	return nil
}

// Start begins a new run. The previous run's goroutine has always exited
// before the new one delivers, so there is only one delivery context.
func (p *player) Start() error {
	if p.sink == nil {
		return ErrNotConfigured
	}
	p.Stop()
	p.wg.Wait()

	id := p.nextID.Add(1)
	p.run.Store(id)
	p.wg.Add(1)
	go p.loop(id)
	return nil
}

// Stop retires the current run. It returns immediately.
func (p *player) Stop() error {
	p.run.Store(0)
	return nil
}

// Close stops the player and waits for its goroutine to exit.
func (p *player) Close() error {
	p.Stop()
	p.wg.Wait()
	return nil
}

// Position returns how many samples have been produced since Configure.
func (p *player) Position() int64 {
	return p.pos.Load()
}

func (p *player) loop(id uint64) {
	defer p.wg.Done()

	burst := max(p.sampleRate/tickRate, 1)

	var ticker *time.Ticker
	if p.realtime {
		ticker = time.NewTicker(time.Second / tickRate)
		defer ticker.Stop()
	}

	for {
		for range burst {
			if p.run.Load() != id {
				return
			}
			i := p.pos.Add(1) - 1
			if !p.sink.Deliver(p.next(i)) {
				return
			}
		}
		if ticker != nil {
			<-ticker.C
		} else {
			runtime.Gosched()
		}
	}
}
