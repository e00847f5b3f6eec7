// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"math/bits"

	"bivo/pkg/bitint"
)

// Q15 helpers. Every operation saturates instead of wrapping.

const (
	q15Max = math.MaxInt16
	q15Min = math.MinInt16
)

func sat16(v int32) int16 {
	if v > q15Max {
		return q15Max
	}
	if v < q15Min {
		return q15Min
	}
	return int16(v)
}

// scaleQ15 multiplies a sample by an integer gain with saturation.
func scaleQ15(sample int16, gain int32) int16 {
	return sat16(int32(sample) * gain)
}

// mulQ15 multiplies two Q15 values, rounding to nearest.
func mulQ15(a, b int16) int32 {
	return (int32(a)*int32(b) + (1 << 14)) >> 15
}

// isqrt returns floor(sqrt(v)).
func isqrt(v uint32) uint32 {
	if v == 0 {
		return 0
	}
	// Start above the root and walk down with Newton steps.
	x := uint32(1) << ((bits.Len32(v) + 1) / 2)
	for {
		y := (x + v/x) >> 1
		if y >= x {
			return x
		}
		x = y
	}
}

// rfftQ15 is a radix-2 decimation-in-time transform for real Q15 input.
// Each stage halves its outputs, so the spectrum is scaled by 1/n and a
// full scale tone of amplitude A centred on bin k reads A/2 at bin k.
type rfftQ15 struct {
	n      int
	stages int
	rev    []int   // bit reversed input permutation
	cos    []int16 // twiddle table, n/2 entries
	sin    []int16
	re     []int16 // working spectrum
	im     []int16
}

func newRFFTQ15(n int) *rfftQ15 {
	stages := bitint.Log2(n)
	f := &rfftQ15{
		n:      n,
		stages: stages,
		rev:    make([]int, n),
		cos:    make([]int16, n/2),
		sin:    make([]int16, n/2),
		re:     make([]int16, n),
		im:     make([]int16, n),
	}
	for i := range n {
		f.rev[i] = bitint.ReverseBits(i, stages)
	}
	for k := range n / 2 {
		theta := 2 * math.Pi * float64(k) / float64(n)
		f.cos[k] = int16(math.Round(math.Cos(theta) * q15Max))
		f.sin[k] = int16(math.Round(math.Sin(theta) * q15Max))
	}
	return f
}

// transform computes the spectrum of in (len n) into out as interleaved
// re/im pairs (len 2n).
func (f *rfftQ15) transform(in []int16, out []int16) {
	n := f.n
	re, im := f.re, f.im
	for i := range n {
		re[f.rev[i]] = in[i]
		im[f.rev[i]] = 0
	}

	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		step := n / size
		for start := 0; start < n; start += size {
			for k := range half {
				wr := f.cos[k*step]
				wi := -f.sin[k*step] // e^{-j theta}

				a := start + k
				b := a + half
				tr := mulQ15(wr, re[b]) - mulQ15(wi, im[b])
				ti := mulQ15(wr, im[b]) + mulQ15(wi, re[b])

				ar, ai := int32(re[a]), int32(im[a])
				re[a] = sat16((ar + tr) >> 1)
				im[a] = sat16((ai + ti) >> 1)
				re[b] = sat16((ar - tr) >> 1)
				im[b] = sat16((ai - ti) >> 1)
			}
		}
	}

	for i := range n {
		out[2*i] = re[i]
		out[2*i+1] = im[i]
	}
}

// magnitudeQ15 writes |X[k]| for each interleaved pair in spectrum,
// saturated to the Q15 range.
func magnitudeQ15(spectrum []int16, mag []int16) {
	for k := range mag {
		r := int32(spectrum[2*k])
		i := int32(spectrum[2*k+1])
		sum := uint32(r*r) + uint32(i*i)
		mag[k] = sat16(int32(min(isqrt(sum), q15Max)))
	}
}
