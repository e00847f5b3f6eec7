// SPDX-License-Identifier: MIT
package source

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"bivo/internal/capture"
	"bivo/internal/log"
)

var wavLog = log.Named("source")

// Clip is a mono 16-bit recording held in memory.
type Clip struct {
	Samples    []int16
	SampleRate int
}

// Duration returns the clip length in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// LoadWAV reads a PCM WAV file and returns its first channel as int16
// samples. 8, 16, 24 and 32 bit files are accepted; other depths are
// rejected.
func LoadWAV(path string) (Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("source: open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Clip{}, fmt.Errorf("source: %s is not a valid wav file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("source: decode wav: %w", err)
	}

	channels := int(dec.NumChans)
	if channels < 1 {
		return Clip{}, errors.New("source: wav file has no channels")
	}
	if channels > 1 {
		wavLog.Debugf("%s has %d channels, using the first", path, channels)
	}

	var toInt16 func(int) int16
	switch dec.BitDepth {
	case 8:
		toInt16 = func(v int) int16 { return int16((v - 128) << 8) }
	case 16:
		toInt16 = func(v int) int16 { return int16(v) }
	case 24:
		toInt16 = func(v int) int16 { return int16(v >> 8) }
	case 32:
		toInt16 = func(v int) int16 { return int16(v >> 16) }
	default:
		return Clip{}, fmt.Errorf("source: unsupported wav bit depth %d", dec.BitDepth)
	}

	frames := len(buf.Data) / channels
	samples := make([]int16, frames)
	for i := range frames {
		samples[i] = toInt16(buf.Data[i*channels])
	}
	return Clip{Samples: samples, SampleRate: int(dec.SampleRate)}, nil
}

// WriteWAV stores samples as a mono 16-bit PCM WAV file.
func WriteWAV(path string, clip Clip) (err error) {
	if clip.SampleRate <= 0 {
		return fmt.Errorf("source: invalid sample rate %d", clip.SampleRate)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	enc := wav.NewEncoder(file, clip.SampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  clip.SampleRate,
		},
		Data:           make([]int, len(clip.Samples)),
		SourceBitDepth: 16,
	}
	for i, s := range clip.Samples {
		buf.Data[i] = int(s)
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("source: write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("source: finish wav: %w", err)
	}
	return nil
}

// WAV is a Sample Source that replays a clip in a loop.
type WAV struct {
	player
	clip Clip
}

// NewWAV returns a source replaying clip. When realtime is set samples are
// paced at the configured sample rate.
func NewWAV(clip Clip, realtime bool) *WAV {
	w := &WAV{clip: clip}
	w.realtime = realtime
	w.next = w.sample
	return w
}

// OpenWAV loads path and returns a source replaying it.
func OpenWAV(path string, realtime bool) (*WAV, error) {
	clip, err := LoadWAV(path)
	if err != nil {
		return nil, err
	}
	return NewWAV(clip, realtime), nil
}

// Configure implements capture.Source. The clip is not resampled; a rate
// mismatch is only reported.
func (w *WAV) Configure(params capture.SourceParams, sink capture.Sink) error {
	if len(w.clip.Samples) == 0 {
		return errors.New("source: empty wav clip")
	}
	if err := w.configure(params, sink); err != nil {
		return err
	}
	if w.clip.SampleRate != params.SampleRate {
		wavLog.Warnf("wav clip is %d Hz, sensor runs at %d Hz; replaying without resampling",
			w.clip.SampleRate, params.SampleRate)
	}
	w.pos.Store(0)
	return nil
}

func (w *WAV) sample(i int64) int16 {
	return w.clip.Samples[i%int64(len(w.clip.Samples))]
}
