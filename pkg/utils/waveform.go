// SPDX-License-Identifier: MIT
package utils

import (
	"math"
	"sync"
)

// Sinusoid is one component of a synthetic test signal. It only sounds
// between Start and End seconds; a zero End means until the end of the
// signal.
type Sinusoid struct {
	Frequency float64 // Hz
	Amplitude float64 // Raw sample units before clipping.
	Phase     float64 // Radians.
	Start     float64 // Seconds.
	End       float64 // Seconds, 0 for open ended.
}

// At returns the sinusoid's contribution at time t.
func (s Sinusoid) At(t float64) float64 {
	if t < s.Start || (s.End > 0 && t >= s.End) {
		return 0
	}
	return s.Amplitude * math.Sin(2*math.Pi*s.Frequency*t+s.Phase)
}

// Waveform is a sum of time windowed sinusoids.
type Waveform []Sinusoid

// At returns the summed signal at time t, unclipped.
func (w Waveform) At(t float64) float64 {
	var v float64
	for _, s := range w {
		v += s.At(t)
	}
	return v
}

// Sample returns sample i of the waveform at sampleRate, rounded and
// clipped to the int16 range.
func (w Waveform) Sample(i int, sampleRate float64) int16 {
	return w.SampleAt(float64(i) / sampleRate)
}

// SampleAt returns the signal at t seconds, rounded and clipped to int16.
func (w Waveform) SampleAt(t float64) int16 {
	return clip16(w.At(t))
}

// GenerateWaveform renders size samples of w at sampleRate.
func GenerateWaveform(w Waveform, size int, sampleRate float64) []int16 {
	buffer := make([]int16, size)
	for i := range buffer {
		buffer[i] = w.Sample(i, sampleRate)
	}
	return buffer
}

// GenerateSineWave renders a single always-on tone.
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []int16 {
	return GenerateWaveform(Waveform{{Frequency: frequency, Amplitude: amplitude}}, size, sampleRate)
}

// GenerateComplexWave renders a 440Hz fundamental with two harmonics at 90%
// of full scale.
func GenerateComplexWave(size int, sampleRate float64) []int16 {
	const full = math.MaxInt16 * 0.9
	return GenerateWaveform(Waveform{
		{Frequency: 440, Amplitude: full * 0.5},
		{Frequency: 880, Amplitude: full * 0.3},
		{Frequency: 1320, Amplitude: full * 0.2},
	}, size, sampleRate)
}

func clip16(v float64) int16 {
	v = math.Round(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// FindPeakBin returns the index of the largest magnitude in the inclusive
// range [startBin, endBin], clamped to the slice.
func FindPeakBin[T int16 | int32 | float64](magnitudes []T, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	if startBin > endBin {
		return startBin
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}

// MockTransport records every message sent through it for later inspection.
type MockTransport struct {
	mu     sync.Mutex
	events []any
	closed bool
	Err    error // Returned from Send when set.
}

// Send stores the message instead of transmitting it.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.events = append(m.events, data)
	return nil
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Events returns a copy of everything sent so far.
func (m *MockTransport) Events() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.events...)
}

// Closed reports whether Close was called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
