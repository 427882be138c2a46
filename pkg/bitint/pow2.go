// SPDX-License-Identifier: MIT

// Package bitint holds the power-of-two helpers used to size FFT inputs.
// Spectral windows are zero-padded to the next power of two so the radix-2
// paths of the transform apply and bin spacing is fs/size.
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size. Sizes <= 1
// return 1.
//
//	Input  Output
//	900    1024   (30 s at 30 Hz)
//	1024   1024
//	0      1
func NextPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	// size-1 keeps exact powers of two unchanged.
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// BinSpacing returns the frequency resolution in Hz of an FFT of size
// points at sampleRate. It returns 0 for a non-positive size.
func BinSpacing(sampleRate float64, size int) float64 {
	if size <= 0 {
		return 0
	}
	return sampleRate / float64(size)
}
