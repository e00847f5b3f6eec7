// SPDX-License-Identifier: MIT
package bitint

import (
	"fmt"
	"testing"
)

func TestNextPowerOfTwo(t *testing.T) {
	tests := []struct {
		n        int
		expected int
	}{
		{-10, 1},     // Negative number
		{0, 1},       // Zero
		{8, 8},       // Already power of two
		{10, 16},     // Not power of two
		{200, 256},   // Analysis window request
		{1000, 1024}, // Large number
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d→%d", tt.n, tt.expected), func(t *testing.T) {
			result := NextPowerOfTwo(tt.n)
			if result != tt.expected {
				t.Errorf("NextPowerOfTwo(%d) = %d, expected %d", tt.n, result, tt.expected)
			}
		})
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	tests := []struct {
		n        int
		expected bool
	}{
		{-2, false},     // Negative number
		{0, false},      // Zero
		{1, true},       // One
		{8, true},       // Power of two
		{10, false},     // Not power of two
		{255, false},    // One short of a window size
		{1 << 20, true}, // Large power of two
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d→%t", tt.n, tt.expected), func(t *testing.T) {
			result := IsPowerOfTwo(tt.n)
			if result != tt.expected {
				t.Errorf("IsPowerOfTwo(%d) = %v, expected %v", tt.n, result, tt.expected)
			}
		})
	}
}

func TestLog2(t *testing.T) {
	tests := []struct {
		n        int
		expected int
	}{
		{0, -1},
		{1, 0},
		{2, 1},
		{256, 8},
		{300, 8},
		{4096, 12},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d→%d", tt.n, tt.expected), func(t *testing.T) {
			if got := Log2(tt.n); got != tt.expected {
				t.Errorf("Log2(%d) = %d, expected %d", tt.n, got, tt.expected)
			}
		})
	}
}

func TestReverseBits(t *testing.T) {
	tests := []struct {
		i, width int
		expected int
	}{
		{0, 3, 0},
		{1, 3, 4}, // 001 -> 100
		{3, 3, 6}, // 011 -> 110
		{6, 3, 3}, // 110 -> 011
		{1, 8, 128},
		{5, 0, 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d→%d", tt.i, tt.width, tt.expected), func(t *testing.T) {
			if got := ReverseBits(tt.i, tt.width); got != tt.expected {
				t.Errorf("ReverseBits(%d, %d) = %d, expected %d", tt.i, tt.width, got, tt.expected)
			}
		})
	}
}

func BenchmarkIsPowerOfTwo(b *testing.B) {
	var i int
	b.ReportAllocs()
	for b.Loop() {
		IsPowerOfTwo(i % 10000)
		i++
	}
}
