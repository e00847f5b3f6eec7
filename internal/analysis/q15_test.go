// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"testing"
)

func TestSat16(t *testing.T) {
	tests := []struct {
		in   int32
		want int16
	}{
		{0, 0},
		{32767, 32767},
		{32768, 32767},
		{1 << 30, 32767},
		{-32768, -32768},
		{-32769, -32768},
		{-1 << 30, -32768},
	}
	for _, tt := range tests {
		if got := sat16(tt.in); got != tt.want {
			t.Errorf("sat16(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestScaleQ15Saturates(t *testing.T) {
	if got := scaleQ15(1000, 50); got != 32767 {
		t.Errorf("scaleQ15(1000, 50) = %d, want 32767", got)
	}
	if got := scaleQ15(-1000, 50); got != -32768 {
		t.Errorf("scaleQ15(-1000, 50) = %d, want -32768", got)
	}
	if got := scaleQ15(-12, 50); got != -600 {
		t.Errorf("scaleQ15(-12, 50) = %d, want -600", got)
	}
}

func TestIsqrt(t *testing.T) {
	values := []uint32{0, 1, 2, 3, 4, 15, 16, 17, 99, 100, 65535, 1 << 20, 1<<30 + 7, 1 << 31, math.MaxUint32}
	for _, v := range values {
		want := uint32(math.Sqrt(float64(v)))
		if got := isqrt(v); got != want {
			t.Errorf("isqrt(%d) = %d, want %d", v, got, want)
		}
	}
}

func TestTransformDC(t *testing.T) {
	const n = 64
	f := newRFFTQ15(n)
	in := make([]int16, n)
	for i := range in {
		in[i] = 1024
	}
	out := make([]int16, 2*n)
	f.transform(in, out)

	if d := int(out[0]) - 1024; d < -2 || d > 2 {
		t.Errorf("DC bin = %d, want ~1024", out[0])
	}
	for k := 1; k < n; k++ {
		re, im := out[2*k], out[2*k+1]
		if re < -2 || re > 2 || im < -2 || im > 2 {
			t.Errorf("bin %d = (%d, %d), want ~0", k, re, im)
		}
	}
}

// A bin-centred tone of amplitude A reads about A/2 at k and at its mirror
// n-k, and close to nothing elsewhere.
func TestTransformBinCentredTone(t *testing.T) {
	const (
		n   = 256
		k   = 17
		amp = 16000.0
	)
	f := newRFFTQ15(n)
	in := make([]int16, n)
	for i := range in {
		in[i] = int16(math.Round(amp * math.Cos(2*math.Pi*k*float64(i)/n)))
	}
	spectrum := make([]int16, 2*n)
	mag := make([]int16, n)
	f.transform(in, spectrum)
	magnitudeQ15(spectrum, mag)

	for _, bin := range []int{k, n - k} {
		if d := int(mag[bin]) - amp/2; d < -8 || d > 8 {
			t.Errorf("mag[%d] = %d, want ~%d", bin, mag[bin], int(amp/2))
		}
	}
	for bin := range n {
		if bin == k || bin == n-k {
			continue
		}
		if mag[bin] > 8 {
			t.Errorf("mag[%d] = %d, leakage above 8", bin, mag[bin])
		}
	}
}

func TestTransformIsDeterministic(t *testing.T) {
	const n = 128
	f := newRFFTQ15(n)
	in := make([]int16, n)
	for i := range in {
		in[i] = int16((i*7919)%2000 - 1000)
	}
	first := make([]int16, 2*n)
	second := make([]int16, 2*n)
	f.transform(in, first)
	f.transform(in, second)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("out[%d] differs between runs: %d vs %d", i, first[i], second[i])
		}
	}
}

func BenchmarkTransform256(b *testing.B) {
	f := newRFFTQ15(256)
	in := make([]int16, 256)
	for i := range in {
		in[i] = int16(math.Sin(float64(i)) * 8000)
	}
	out := make([]int16, 512)

	b.ReportAllocs()
	for b.Loop() {
		f.transform(in, out)
	}
}
