// Package asort sorts in-memory arrays of uniform elements.
//
// The core is an iterative quicksort with median-of-three pivoting that
// leaves short partitions for a single finishing insertion sort. When a
// monotone hash is available, arrays are first bucketed by a most
// significant digit first radix sort over windows of the hash, and only
// the small buckets are finished by quicksort. Both strategies can fan out
// over a bounded pool of goroutines for large arrays.
package asort

import (
	"math/bits"
	"unsafe"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultThreshold is the partition size below which quicksort stops
	// and leaves the elements for the final insertion sort.
	DefaultThreshold = 8

	// DefaultRadixBits is the width of one radix window.
	DefaultRadixBits = 10

	// DefaultRadixThreshold is the array size in bytes below which a
	// bucket is finished by quicksort instead of another radix pass.
	DefaultRadixThreshold = 4096

	// DefaultThreadThreshold is the array size in bytes below which work
	// is never handed to another goroutine.
	DefaultThreadThreshold = 1 << 20

	// DefaultThreadChunk is the bucket size in bytes below which radix
	// buckets are finished inline even in parallel mode.
	DefaultThreadChunk = 4096

	// minShift is the smallest remaining hash width worth a radix pass.
	minShift = 2
)

// Config holds tunables of a Sorter. Sizes are in bytes and converted to
// element counts using the element size. Zero values select defaults.
type Config struct {
	Threshold       int
	RadixBits       uint
	RadixThreshold  int
	Workers         int
	ThreadThreshold int
	ThreadChunk     int
	NoRadix         bool
	NoThreads       bool
}

// Sorter sorts slices of E. It is safe for concurrent use as long as the
// less and hash functions are.
type Sorter[E any] struct {
	less func(a, b *E) bool
	hash func(e *E) uint64

	threshold       int
	radixBits       uint
	radixThreshold  int
	workers         int
	threadThreshold int
	threadChunk     int
	noRadix         bool
}

// New returns a Sorter ordering elements by less. hash is optional; when
// given it must be monotone with respect to less (hash(x) < hash(y)
// implies less(x, y)) and enables radix sorting.
func New[E any](less func(a, b *E) bool, hash func(e *E) uint64, cfg Config) *Sorter[E] {
	var zero E
	eltSize := int(unsafe.Sizeof(zero))
	if eltSize == 0 {
		eltSize = 1
	}
	perElt := func(size, def int) int {
		if size <= 0 {
			size = def
		}
		return max(size/eltSize, 1)
	}

	s := &Sorter[E]{
		less:            less,
		hash:            hash,
		threshold:       cfg.Threshold,
		radixBits:       cfg.RadixBits,
		radixThreshold:  perElt(cfg.RadixThreshold, DefaultRadixThreshold),
		threadThreshold: perElt(cfg.ThreadThreshold, DefaultThreadThreshold),
		threadChunk:     perElt(cfg.ThreadChunk, DefaultThreadChunk),
		noRadix:         cfg.NoRadix || hash == nil,
	}
	if s.threshold <= 0 {
		s.threshold = DefaultThreshold
	}
	if s.radixBits == 0 {
		s.radixBits = DefaultRadixBits
	}
	if !cfg.NoThreads {
		s.workers = cfg.Workers
	}
	return s
}

// Sort sorts a. buf is scratch space for radix sorting and must be at
// least as long as a; it may be nil, in which case only quicksort is used.
// hashBits is the number of significant low bits returned by the hash.
//
// The sorted elements end up either in a or in buf[:len(a)]; the returned
// slice is the one holding them.
func (s *Sorter[E]) Sort(a, buf []E, hashBits uint) []E {
	n := len(a)
	parallel := s.workers > 1 && n >= s.threadThreshold

	if s.noRadix || buf == nil || len(buf) < n || n < s.radixThreshold || hashBits <= minShift {
		if parallel {
			s.parallelQuickSort(a)
		} else {
			s.QuickSort(a)
		}
		return a
	}

	buf = buf[:n]
	swap := s.predictSwap(n, hashBits)
	if parallel {
		var g errgroup.Group
		g.SetLimit(s.workers)
		s.radix(a, buf, hashBits, swap, func(n int, fn func()) {
			if n >= s.threadChunk && g.TryGo(func() error { fn(); return nil }) {
				return
			}
			fn()
		})
		_ = g.Wait()
	} else {
		s.radix(a, buf, hashBits, swap, func(_ int, fn func()) { fn() })
	}
	if swap {
		return buf
	}
	return a
}

// QuickSort sorts a in place.
func (s *Sorter[E]) QuickSort(a []E) {
	n := len(a)
	if n <= 1 {
		return
	}
	less := s.less
	threshold := s.threshold

	// The larger partition is always pushed, so the depth never exceeds
	// the number of bits in an int.
	type span struct{ l, r int }
	var stack [bits.UintSize]span
	sp := 0

	left, right := 0, n-1
	for {
		l, r := partition(a, left, right, less)
		switch {
		case r-left >= threshold && right-l >= threshold:
			if r-left > right-l {
				stack[sp] = span{left, r}
				left = l
			} else {
				stack[sp] = span{l, right}
				right = r
			}
			sp++
		case r-left >= threshold:
			right = r
		case right-l >= threshold:
			left = l
		default:
			if sp == 0 {
				insertionFinish(a, threshold, less)
				return
			}
			sp--
			left, right = stack[sp].l, stack[sp].r
		}
	}
}

// QuickSplit runs a single partitioning step over a with the same pivot
// rule as QuickSort. Afterwards a[:right+1] holds elements not greater
// than the pivot and a[left:] elements not less than it.
func (s *Sorter[E]) QuickSplit(a []E) (left, right int) {
	if len(a) == 0 {
		return 0, -1
	}
	return partition(a, 0, len(a)-1, s.less)
}

// partition splits a[left..right] around a median-of-three pivot and
// returns the first index of the upper part and the last of the lower.
func partition[E any](a []E, left, right int, less func(a, b *E) bool) (int, int) {
	l, r := left, right
	m := int(uint(l+r) >> 1)
	if less(&a[m], &a[l]) {
		a[l], a[m] = a[m], a[l]
	}
	if less(&a[r], &a[m]) {
		a[m], a[r] = a[r], a[m]
		if less(&a[m], &a[l]) {
			a[l], a[m] = a[m], a[l]
		}
	}
	pivot := a[m]
	for l <= r {
		for less(&a[l], &pivot) {
			l++
		}
		for less(&pivot, &a[r]) {
			r--
		}
		if l < r {
			a[l], a[r] = a[r], a[l]
			l++
			r--
		} else if l == r {
			l++
			r--
		}
	}
	return l, r
}

// insertionFinish completes a quicksort pass. The leftmost partition is
// shorter than threshold, so the minimum lies within the first threshold
// elements; it is moved to the front as a barrier and the inner loop needs
// no bounds test.
func insertionFinish[E any](a []E, threshold int, less func(a, b *E) bool) {
	n := len(a)
	m := 0
	for l := 1; l < min(n, threshold); l++ {
		if less(&a[l], &a[m]) {
			m = l
		}
	}
	a[0], a[m] = a[m], a[0]

	for m := 1; m < n; m++ {
		l := m
		for less(&a[m], &a[l-1]) {
			l--
		}
		if l < m {
			v := a[m]
			copy(a[l+1:m+1], a[l:m])
			a[l] = v
		}
	}
}

// parallelQuickSort splits a with QuickSplit until the parts are small
// enough, sorting the parts on up to s.workers goroutines.
func (s *Sorter[E]) parallelQuickSort(a []E) {
	var g errgroup.Group
	g.SetLimit(s.workers)
	var split func(a []E)
	split = func(a []E) {
		for len(a) >= s.threadThreshold {
			l, r := s.QuickSplit(a)
			lower := a[:r+1]
			if !g.TryGo(func() error { split(lower); return nil }) {
				split(lower)
			}
			a = a[l:]
		}
		s.QuickSort(a)
	}
	split(a)
	_ = g.Wait()
}

// predictSwap reports whether the radix recursion is expected to leave
// most data in the scratch buffer. Predicting right saves a final copy;
// predicting wrong only costs it.
func (s *Sorter[E]) predictSwap(n int, hashBits uint) bool {
	swap := false
	for n >= s.radixThreshold && hashBits >= minShift {
		swap = !swap
		n >>= s.radixBits
		hashBits = max(hashBits, s.radixBits) - s.radixBits
	}
	return swap
}

// radix distributes array into buffer by the top radixBits of the
// remaining hashBits and recurses into each bucket. If swapped is false
// the result must end up in array, otherwise in buffer. run executes the
// finishing of one bucket of n elements, possibly on another goroutine.
func (s *Sorter[E]) radix(array, buffer []E, hashBits uint, swapped bool, run func(n int, fn func())) {
	buckets := 1 << s.radixBits
	var shift uint
	if hashBits > s.radixBits {
		shift = hashBits - s.radixBits
	}
	mask := uint64(buckets - 1)
	hash := s.hash

	cnt := make([]int, buckets)
	for i := range array {
		cnt[(hash(&array[i])>>shift)&mask]++
	}
	pos := 0
	for i, c := range cnt {
		cnt[i] = pos
		pos += c
	}
	for i := range array {
		b := (hash(&array[i]) >> shift) & mask
		buffer[cnt[b]] = array[i]
		cnt[b]++
	}

	pos = 0
	for _, end := range cnt {
		src, dst := array[pos:end], buffer[pos:end]
		pos = end
		if len(src) == 0 {
			continue
		}
		if len(src) < s.radixThreshold || shift < minShift {
			run(len(src), func() {
				s.QuickSort(dst)
				if !swapped {
					copy(src, dst)
				}
			})
		} else {
			s.radix(dst, src, shift, !swapped, run)
		}
	}
}
