// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"bivo/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc selects the taper applied before the reference transform. The
// sensor itself never tapers; Rectangular reproduces what it sees.
type WindowFunc int

const (
	Rectangular WindowFunc = iota
	Hann
	Hamming
	Blackman
	BlackmanNuttall
	Nuttall
)

// ParseWindowFunc converts a name (case-insensitive) to a WindowFunc.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "rectangular", "none":
		return Rectangular, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Rectangular, fmt.Errorf("unknown window function %q", name)
	}
}

func windowCoefficients(n int, w WindowFunc) []float64 {
	coeffs := make([]float64, n)
	for i := range coeffs {
		coeffs[i] = 1
	}
	switch w {
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	}
	return coeffs
}

// Reference computes the floating point spectrum of the same windows the
// Analyzer tests. Magnitudes are divided by the window size so they sit on
// the Analyzer's Q15 scale, but nothing saturates. It is a tuning and
// cross-checking aid, not part of the decision.
type Reference struct {
	n          int
	sampleRate float64
	scaler     float64

	fft    *fourier.FFT
	taper  []float64
	input  []float64
	coeffs []complex128
	mag    []float64
}

// NewReference prepares a reference transform for cfg at sampleRate.
func NewReference(cfg Config, sampleRate int, w WindowFunc) (*Reference, error) {
	if !bitint.IsPowerOfTwo(cfg.WindowSize) || cfg.WindowSize < 2 {
		return nil, fmt.Errorf("%w: window size must be a power of 2 >= 2, got %d", ErrConfigInvalid, cfg.WindowSize)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %d", ErrConfigInvalid, sampleRate)
	}
	n := cfg.WindowSize
	return &Reference{
		n:          n,
		sampleRate: float64(sampleRate),
		scaler:     float64(max(cfg.SampleScaler, 1)),
		fft:        fourier.NewFFT(n),
		taper:      windowCoefficients(n, w),
		input:      make([]float64, n),
		coeffs:     make([]complex128, n/2+1),
		mag:        make([]float64, n/2+1),
	}, nil
}

// Spectrum returns the magnitudes of bins 0..n/2 for one window. The slice
// is reused by the next call; nil if window is short.
func (r *Reference) Spectrum(samples []int16) []float64 {
	if len(samples) < r.n {
		return nil
	}
	for i := range r.n {
		r.input[i] = float64(samples[i]) * r.scaler * r.taper[i]
	}
	r.fft.Coefficients(r.coeffs, r.input)
	for i, c := range r.coeffs {
		r.mag[i] = cmplx.Abs(c) / float64(r.n)
	}
	return r.mag
}

// BinFrequency returns the centre frequency in Hz of bin i.
func (r *Reference) BinFrequency(i int) float64 {
	return r.fft.Freq(i) * r.sampleRate
}

// Summary describes a whole segment in the floating point domain.
type Summary struct {
	Windows       int
	PeakWindow    int
	PeakBin       int
	PeakHz        float64
	PeakMagnitude float64
	// BandFraction is the share of the segment's energy (DC excluded) that
	// falls in [lowHz, highHz].
	BandFraction float64
}

// Summarize scans every full window of segment, tracking the strongest bin
// and the energy inside [lowHz, highHz].
func (r *Reference) Summarize(segment []int16, lowHz, highHz float64) Summary {
	var s Summary
	var band, total float64
	for w := 0; (w+1)*r.n <= len(segment); w++ {
		mag := r.Spectrum(segment[w*r.n : (w+1)*r.n])
		s.Windows++
		for k := 1; k < len(mag); k++ {
			e := mag[k] * mag[k]
			total += e
			if f := r.BinFrequency(k); f >= lowHz && f <= highHz {
				band += e
			}
			if mag[k] > s.PeakMagnitude {
				s.PeakWindow, s.PeakBin, s.PeakMagnitude = w, k, mag[k]
			}
		}
	}
	s.PeakHz = r.BinFrequency(s.PeakBin)
	if total > 0 {
		s.BandFraction = band / total
	}
	return s
}

// Decibels converts a reference magnitude to dB relative to Q15 full scale.
func Decibels(magnitude float64) float64 {
	if magnitude <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(magnitude/q15Max)
}
