// SPDX-License-Identifier: MIT
package source

import (
	"fmt"
	"math"

	"bivo/internal/capture"
	"bivo/pkg/utils"
)

// ToneConfig describes a synthetic scene: a set of sinusoids, each sounding
// inside its own time window. When Period is set the scene repeats.
type ToneConfig struct {
	Sinusoids []utils.Sinusoid
	Period    float64 // Seconds, 0 plays the scene once and then silence.
	Realtime  bool    // Pace delivery at the sample rate instead of as fast as possible.
}

// Tone is a Sample Source producing a sum of time windowed sinusoids.
type Tone struct {
	player
	cfg ToneConfig
}

// NewTone returns a tone source for cfg.
func NewTone(cfg ToneConfig) *Tone {
	t := &Tone{cfg: cfg}
	t.realtime = cfg.Realtime
	t.next = t.sample
	return t
}

// Configure implements capture.Source. The scene clock restarts at zero.
func (t *Tone) Configure(params capture.SourceParams, sink capture.Sink) error {
	if t.cfg.Period < 0 {
		return fmt.Errorf("source: negative tone period %v", t.cfg.Period)
	}
	if err := t.configure(params, sink); err != nil {
		return err
	}
	t.pos.Store(0)
	return nil
}

func (t *Tone) sample(i int64) int16 {
	sec := float64(i) / float64(t.sampleRate)
	if t.cfg.Period > 0 {
		sec = math.Mod(sec, t.cfg.Period)
	}
	return utils.Waveform(t.cfg.Sinusoids).SampleAt(sec)
}
