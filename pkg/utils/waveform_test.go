// SPDX-License-Identifier: MIT
package utils

import (
	"errors"
	"math"
	"os"
	"testing"
)

const (
	testSize       = 1024
	testSampleRate = 19900
	testFrequency  = 3000.0
)

var testMagnitudes []float64

func TestMain(m *testing.M) {
	testMagnitudes = make([]float64, testSize)

	// A "hill" with its peak at testSize/4.
	for i := range testMagnitudes {
		testMagnitudes[i] = math.Exp(-0.01 * math.Pow(float64(i-testSize/4), 2))
	}

	os.Exit(m.Run())
}

func TestMockTransport(t *testing.T) {
	mt := &MockTransport{}
	inputs := []any{"a", 42, []int16{1, 2}}
	for _, in := range inputs {
		if err := mt.Send(in); err != nil {
			t.Fatalf("Send(%v) error = %v", in, err)
		}
	}

	got := mt.Events()
	if len(got) != len(inputs) {
		t.Fatalf("Events() = %d entries, want %d", len(got), len(inputs))
	}
	got[0] = "mutated"
	if mt.Events()[0] != "a" {
		t.Error("Events() returned the internal slice instead of a copy")
	}

	mt.Err = errors.New("link down")
	if err := mt.Send("b"); err == nil {
		t.Error("Send should return the configured error")
	}

	if mt.Closed() {
		t.Error("Closed() before Close")
	}
	_ = mt.Close()
	if !mt.Closed() {
		t.Error("Closed() after Close = false")
	}
}

func TestSinusoidWindow(t *testing.T) {
	s := Sinusoid{Frequency: 1, Amplitude: 100, Start: 1, End: 2}

	tests := []struct {
		name   string
		t      float64
		silent bool
	}{
		{"Before Start", 0.25, true},
		{"Inside", 1.25, false},
		{"At End", 2.0, true},
		{"After End", 2.25, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := s.At(tt.t)
			if tt.silent && v != 0 {
				t.Errorf("At(%.2f) = %f, want 0", tt.t, v)
			}
			if !tt.silent && math.Abs(v-100) > 1e-9 {
				t.Errorf("At(%.2f) = %f, want 100", tt.t, v)
			}
		})
	}

	open := Sinusoid{Frequency: 1, Amplitude: 1, Start: 0}
	if open.At(1e6+0.25) == 0 {
		t.Error("open ended sinusoid went silent")
	}
}

func TestWaveformClips(t *testing.T) {
	w := Waveform{
		{Frequency: 0, Amplitude: 30000, Phase: math.Pi / 2},
		{Frequency: 0, Amplitude: 30000, Phase: math.Pi / 2},
	}
	if got := w.Sample(0, testSampleRate); got != math.MaxInt16 {
		t.Errorf("Sample() = %d, want %d", got, math.MaxInt16)
	}

	neg := Waveform{{Frequency: 0, Amplitude: 70000, Phase: -math.Pi / 2}}
	if got := neg.Sample(0, testSampleRate); got != math.MinInt16 {
		t.Errorf("Sample() = %d, want %d", got, math.MinInt16)
	}
}

func TestGenerateComplexWave(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		sampleRate float64
	}{
		{"Standard", 1024, 19900},
		{"Small", 16, 8000},
		{"Large", 8192, 44100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GenerateComplexWave(tt.size, tt.sampleRate)

			if len(result) != tt.size {
				t.Errorf("GenerateComplexWave() buffer size = %d, want %d",
					len(result), tt.size)
			}

			hasNonZero := false
			for _, v := range result {
				if v != 0 {
					hasNonZero = true
					break
				}
			}

			if !hasNonZero {
				t.Errorf("GenerateComplexWave() produced all zeros")
			}
		})
	}
}

func TestGenerateSineWave(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		sampleRate float64
		frequency  float64
	}{
		{"Sensor Rate", 1024, 19900, testFrequency},
		{"Low Tone", 1024, 19900, 440.0},
		{"High Sample Rate", 1024, 48000, 440.0},
		{"Low Sample Rate", 1024, 8000, 440.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GenerateSineWave(tt.size, tt.sampleRate, tt.frequency, 10000)

			if len(result) != tt.size {
				t.Errorf("GenerateSineWave() buffer size = %d, want %d",
					len(result), tt.size)
			}

			samplesPerCycle := tt.sampleRate / tt.frequency

			if samplesPerCycle > 2 && float64(tt.size) > samplesPerCycle {
				crossCount := 0
				for i := 1; i < tt.size; i++ {
					if (result[i-1] < 0 && result[i] >= 0) ||
						(result[i-1] >= 0 && result[i] < 0) {
						crossCount++
					}
				}

				// Two crossings per cycle, 20% margin for phase alignment.
				expectedCrossings := float64(tt.size) / (samplesPerCycle / 2)
				tolerance := 0.2 * expectedCrossings

				if math.Abs(float64(crossCount)-expectedCrossings) > tolerance {
					t.Errorf("GenerateSineWave() zero crossings = %d, expected approximately %.1f±%.1f",
						crossCount, expectedCrossings, tolerance)
				}
			}
		})
	}
}

func TestFindPeakBin(t *testing.T) {
	tests := []struct {
		name     string
		mags     []float64
		start    int
		end      int
		expected int
	}{
		{"Full Range", testMagnitudes, 0, testSize - 1, testSize / 4},
		{"Partial Range Start", testMagnitudes, testSize / 8, testSize - 1, testSize / 4},
		{"Partial Range End", testMagnitudes, 0, testSize / 3, testSize / 4},
		{"Negative Start", testMagnitudes, -10, testSize - 1, testSize / 4},
		{"Out of Range End", testMagnitudes, 0, testSize * 2, testSize / 4},
		{"Empty Slice", []float64{}, 0, 10, 0},
		{"Single Value", []float64{1.0}, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FindPeakBin(tt.mags, tt.start, tt.end)
			if result != tt.expected {
				t.Errorf("FindPeakBin() = %d, want %d", result, tt.expected)
			}
		})
	}

	ints := []int16{3, 9, -4, 9, 1}
	if got := FindPeakBin(ints, 0, 4); got != 1 {
		t.Errorf("FindPeakBin(int16) = %d, want first maximum at 1", got)
	}

	allocs := testing.AllocsPerRun(100, func() {
		FindPeakBin(testMagnitudes, 0, len(testMagnitudes)-1)
	})

	if allocs > 0 {
		t.Errorf("FindPeakBin allocated memory: got %.1f allocs, want 0", allocs)
	}
}

func BenchmarkGenerateComplexWave(b *testing.B) {
	benchmarks := []struct {
		name string
		size int
	}{
		{"Small", 64},
		{"Standard", 1024},
		{"Segment", 79600},
	}

	for _, bm := range benchmarks {
		b.Run(bm.name, func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				GenerateComplexWave(bm.size, testSampleRate)
			}
		})
	}
}

func BenchmarkFindPeakBin(b *testing.B) {
	mags := make([]float64, 1024)
	for i := range mags {
		mags[i] = math.Exp(-0.01 * math.Pow(float64(i-512), 2))
	}

	b.ReportAllocs()
	for b.Loop() {
		FindPeakBin(mags, 0, len(mags)-1)
	}
}
