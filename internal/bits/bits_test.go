package bits

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

// Named seeds for deterministic reproduction.
const (
	testSeed1 = 0x1234567890ABCDEF
	testSeed2 = 0xFEDCBA9876543210
)

func newTestRNG(t testing.TB) *rand.Rand {
	t.Helper()
	h := fnv.New128a()
	h.Write([]byte(t.Name()))
	sum := h.Sum(nil)
	s1 := binary.LittleEndian.Uint64(sum[:8])
	s2 := binary.LittleEndian.Uint64(sum[8:])
	return rand.New(rand.NewPCG(testSeed1^s1, testSeed2^s2))
}

func TestForRange(t *testing.T) {
	cases := []struct {
		max  uint64
		want uint
	}{
		{0, 0},
		{1, 1},
		{2, 2},
		{3, 2},
		{255, 8},
		{256, 9},
		{math.MaxUint32, 32},
		{1 << 32, 33},
		{math.MaxUint64, 64},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ForRange(tc.max), "ForRange(%d)", tc.max)
	}
}

// TestForRangeCovers verifies that every value up to max fits in the reported width.
func TestForRangeCovers(t *testing.T) {
	rng := newTestRNG(t)
	for range 10000 {
		max := rng.Uint64() >> rng.UintN(64)
		b := ForRange(max)
		if b < 64 {
			require.Less(t, max, uint64(1)<<b)
		}
		if b > 0 {
			require.GreaterOrEqual(t, max, uint64(1)<<(b-1))
		}
	}
}

func TestNextPow2(t *testing.T) {
	for _, tc := range []struct{ n, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {4, 4}, {5, 8}, {17, 32}, {1024, 1024}, {1025, 2048},
	} {
		require.Equal(t, tc.want, NextPow2(tc.n), "NextPow2(%d)", tc.n)
	}
}

func TestAlignUp(t *testing.T) {
	require.Equal(t, uint64(0), AlignUp(0, 4096))
	require.Equal(t, uint64(4096), AlignUp(1, 4096))
	require.Equal(t, uint64(4096), AlignUp(4096, 4096))
	require.Equal(t, uint64(8192), AlignUp(4097, 4096))
	require.Equal(t, uint64(16), AlignUp(9, 8))
}

func TestShiftsNeeded(t *testing.T) {
	require.Equal(t, uint(0), ShiftsNeeded(100, 100))
	require.Equal(t, uint(1), ShiftsNeeded(101, 100))
	require.Equal(t, uint(1), ShiftsNeeded(200, 100))
	require.Equal(t, uint(2), ShiftsNeeded(201, 100))
	require.Equal(t, uint(64), ShiftsNeeded(math.MaxUint64, 0))
	require.Equal(t, uint(0), ShiftsNeeded(0, 0))
}
