// Package bits provides low-level bit manipulation primitives.
package bits

import "math/bits"

// ForRange returns the number of significant bits needed to represent every
// integer in [0, max]. ForRange(0) is 0.
func ForRange(max uint64) uint {
	return uint(bits.Len64(max))
}

// NextPow2 returns the smallest power of two >= n. NextPow2(0) is 1.
func NextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// AlignUp rounds n up to a multiple of align, which must be a power of two.
func AlignUp(n, align uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}

// ShiftsNeeded returns how many times size must be halved until it is at most
// limit. A zero limit yields 64.
func ShiftsNeeded(size, limit uint64) uint {
	var n uint
	for n < 64 && size>>n > limit {
		n++
	}
	return n
}
