// SPDX-License-Identifier: MIT

/*
Package bitint provides the small set of power-of-two helpers the sensor
needs to size and validate its transform windows.

All functions are allocation free and safe to call from the sample
delivery path.

Usage:

	// Validate an analysis window before the capture loop starts.
	if !bitint.IsPowerOfTwo(windowSize) { ... }

	// Number of butterfly stages for a radix-2 transform.
	stages := bitint.Log2(windowSize) // 256 -> 8

	// Round a requested window up to the next usable size.
	size := bitint.NextPowerOfTwo(200) // 256
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the next power of 2 >= size.
//
// The subtraction (size-1) keeps exact powers of two unchanged:
// bits.Len(7) = 3 and 1<<3 = 8, whereas bits.Len(8) = 4 would double it.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2. A power of two
// has exactly one bit set, so n&(n-1) clears it to zero.
//
//	Input  Output  Binary
//	8      true    1000 & 0111 = 0000
//	7      false   0111 & 0110 = 0110
//	0      false   Not positive
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// Log2 returns the base-2 logarithm of a power of two, which is the number
// of radix-2 stages a transform of that size needs. For other inputs it
// returns the floor of the logarithm, and -1 for n <= 0.
func Log2(n int) int {
	if n <= 0 {
		return -1
	}
	return bits.Len(uint(n)) - 1
}

// ReverseBits reverses the lowest width bits of i. Radix-2 transforms use it
// to build their input permutation table.
func ReverseBits(i, width int) int {
	if width <= 0 {
		return 0
	}
	return int(bits.Reverse(uint(i)) >> (bits.UintSize - width))
}
