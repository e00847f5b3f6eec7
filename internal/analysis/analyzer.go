// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"

	"bivo/pkg/bitint"
)

// ErrConfigInvalid is returned at setup when the window size or frequency
// band cannot work with the sample rate and segment length.
var ErrConfigInvalid = errors.New("analysis: invalid configuration")

// Config holds the spectral test parameters. It is fixed once the sensor
// starts.
type Config struct {
	WindowSize     int `yaml:"window_size"`     // Transform length, power of 2, <= segment length.
	SampleScaler   int `yaml:"sample_scaler"`   // Integer gain applied to each sample before the transform.
	PowerThreshold int `yaml:"power_threshold"` // Minimum bin magnitude (Q15) that marks a segment.
	FreqLower      int `yaml:"freq_lower"`      // Lower edge of the tested band in Hz.
	FreqUpper      int `yaml:"freq_upper"`      // Upper edge of the tested band in Hz, inclusive.
}

// Validate checks cfg against the sample rate and segment length it will
// run with. All failures wrap ErrConfigInvalid.
func (cfg Config) Validate(sampleRate, segmentLen int) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrConfigInvalid, fmt.Sprintf(format, args...))
	}

	if sampleRate <= 0 {
		return invalid("sample rate must be positive, got %d", sampleRate)
	}
	if !bitint.IsPowerOfTwo(cfg.WindowSize) || cfg.WindowSize < 2 {
		return invalid("window size must be a power of 2 >= 2, got %d", cfg.WindowSize)
	}
	if cfg.WindowSize > segmentLen {
		return invalid("window size %d exceeds segment length %d", cfg.WindowSize, segmentLen)
	}
	if cfg.SampleScaler < 1 || cfg.SampleScaler > q15Max {
		return invalid("sample scaler must be in [1, %d], got %d", q15Max, cfg.SampleScaler)
	}
	if cfg.PowerThreshold < 0 || cfg.PowerThreshold > q15Max {
		return invalid("power threshold must be in [0, %d], got %d", q15Max, cfg.PowerThreshold)
	}
	if cfg.FreqLower < 0 || cfg.FreqLower > cfg.FreqUpper {
		return invalid("frequency band [%d, %d] Hz is not ordered", cfg.FreqLower, cfg.FreqUpper)
	}
	binSize := sampleRate / cfg.WindowSize
	if binSize == 0 {
		return invalid("sample rate %d Hz is lower than window size %d", sampleRate, cfg.WindowSize)
	}
	if cfg.FreqLower/binSize >= cfg.WindowSize {
		return invalid("frequency band [%d, %d] Hz starts beyond the last bin (%d Hz per bin)",
			cfg.FreqLower, cfg.FreqUpper, binSize)
	}
	return nil
}

// BinRange returns the inclusive bin indices scanned for the configured
// band. Validate must have succeeded.
func (cfg Config) BinRange(sampleRate int) (lower, upper int) {
	binSize := sampleRate / cfg.WindowSize
	lower = cfg.FreqLower / binSize
	upper = min(cfg.FreqUpper/binSize, cfg.WindowSize-1)
	return lower, upper
}

// Verdict describes the outcome of one analysis in more detail than the
// pass/fail bit. Window, Bin and Magnitude locate the first passing bin; on
// failure they hold the strongest in-band bin seen.
type Verdict struct {
	Passed         bool
	WindowsScanned int
	Window         int
	Bin            int
	Magnitude      int16
}

// Analyzer runs the banded threshold test over completed segments. It owns
// its scratch buffers, so one Analyzer must not be shared between
// goroutines.
type Analyzer struct {
	cfg        Config
	sampleRate int
	binLower   int
	binUpper   int

	fft      *rfftQ15
	scratch  []int16 // scaled copy of one window
	spectrum []int16 // interleaved re/im, 2 * window size
	mag      []int16 // bin magnitudes, window size
}

// New validates cfg and prepares an Analyzer for segments of segmentLen
// samples at sampleRate. It fails fast with ErrConfigInvalid.
func New(cfg Config, sampleRate, segmentLen int) (*Analyzer, error) {
	if err := cfg.Validate(sampleRate, segmentLen); err != nil {
		return nil, err
	}
	lower, upper := cfg.BinRange(sampleRate)
	return &Analyzer{
		cfg:        cfg,
		sampleRate: sampleRate,
		binLower:   lower,
		binUpper:   upper,
		fft:        newRFFTQ15(cfg.WindowSize),
		scratch:    make([]int16, cfg.WindowSize),
		spectrum:   make([]int16, 2*cfg.WindowSize),
		mag:        make([]int16, cfg.WindowSize),
	}, nil
}

// Config returns the configuration the analyzer was built with.
func (a *Analyzer) Config() Config { return a.cfg }

// Bins returns the inclusive bin range tested on every window.
func (a *Analyzer) Bins() (lower, upper int) { return a.binLower, a.binUpper }

// Analyze reports whether segment likely holds a vocalization.
func (a *Analyzer) Analyze(segment []int16) bool {
	return a.Inspect(segment).Passed
}

// Inspect runs the test and returns the detailed verdict. Windows are
// consecutive and non-overlapping; a trailing partial window is never read.
// The scan stops at the first bin that reaches the threshold.
func (a *Analyzer) Inspect(segment []int16) Verdict {
	n := a.cfg.WindowSize
	threshold := a.cfg.PowerThreshold
	gain := int32(a.cfg.SampleScaler)

	v := Verdict{Magnitude: -1}
	windows := len(segment) / n
	for w := range windows {
		window := segment[w*n : (w+1)*n]
		for i, s := range window {
			a.scratch[i] = scaleQ15(s, gain)
		}

		a.fft.transform(a.scratch, a.spectrum)
		magnitudeQ15(a.spectrum, a.mag)
		v.WindowsScanned++

		for bin := a.binLower; bin <= a.binUpper; bin++ {
			m := a.mag[bin]
			if m > v.Magnitude {
				v.Window, v.Bin, v.Magnitude = w, bin, m
			}
			if int(m) >= threshold {
				v.Passed = true
				v.Window, v.Bin, v.Magnitude = w, bin, m
				return v
			}
		}
	}
	if v.Magnitude < 0 {
		v.Magnitude = 0
	}
	return v
}

// Spectrum runs the scaled transform on one window and returns the bin
// magnitudes. The returned slice is reused by the next call.
func (a *Analyzer) Spectrum(window []int16) []int16 {
	n := a.cfg.WindowSize
	if len(window) < n {
		return nil
	}
	gain := int32(a.cfg.SampleScaler)
	for i, s := range window[:n] {
		a.scratch[i] = scaleQ15(s, gain)
	}
	a.fft.transform(a.scratch, a.spectrum)
	magnitudeQ15(a.spectrum, a.mag)
	return a.mag
}

// BinFrequency returns the lower edge in Hz of bin i.
func (a *Analyzer) BinFrequency(i int) int {
	return i * (a.sampleRate / a.cfg.WindowSize)
}
