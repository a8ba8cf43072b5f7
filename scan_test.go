package streamsort

import (
	"bytes"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	streamerrors "github.com/tamirms/streamsort/errors"
	"github.com/tamirms/streamsort/stream"
)

func u32Reader(vals []uint32) *stream.Reader {
	return stream.NewReader(bytes.NewReader(encodeU32(vals)), 0)
}

func TestDigestOrderIndependent(t *testing.T) {
	rng := newTestRNG(t)
	vals := make([]uint32, 5000)
	for i := range vals {
		vals[i] = rng.Uint32()
	}
	shuffled := slices.Clone(vals)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	d1, err := DigestOf(Uint32Schema(), u32Reader(vals))
	require.NoError(t, err)
	d2, err := DigestOf(Uint32Schema(), u32Reader(shuffled))
	require.NoError(t, err)
	require.Equal(t, d1, d2)
	require.Equal(t, uint64(len(vals)), d1.Count)

	shuffled[0]++
	d3, err := DigestOf(Uint32Schema(), u32Reader(shuffled))
	require.NoError(t, err)
	require.NotEqual(t, d1, d3)
}

func TestVerify(t *testing.T) {
	t.Run("Sorted", func(t *testing.T) {
		d, err := Verify(Uint32Schema(), u32Reader([]uint32{1, 2, 2, 9}), false)
		require.NoError(t, err)
		require.Equal(t, uint64(4), d.Count)
	})

	t.Run("Unsorted", func(t *testing.T) {
		_, err := Verify(Uint32Schema(), u32Reader([]uint32{1, 5, 3}), false)
		require.ErrorIs(t, err, streamerrors.ErrUnsortedRun)
	})

	t.Run("Duplicate", func(t *testing.T) {
		_, err := Verify(Uint32Schema(), u32Reader([]uint32{1, 2, 2, 9}), true)
		require.ErrorIs(t, err, streamerrors.ErrDuplicateKey)
	})

	t.Run("Empty", func(t *testing.T) {
		d, err := Verify(Uint32Schema(), u32Reader(nil), true)
		require.NoError(t, err)
		require.Zero(t, d.Count)
	})

	t.Run("Truncated", func(t *testing.T) {
		data := append(encodeU32([]uint32{1, 2}), 0xFF)
		_, err := Verify(Uint32Schema(), stream.NewReader(bytes.NewReader(data), 0), false)
		require.ErrorIs(t, err, streamerrors.ErrTruncatedRecord)
	})
}

func TestScannerData(t *testing.T) {
	schema := Schema[uint32]{
		Compare:  func(a, b *uint32) int { return int(*a) - int(*b) },
		DataSize: func(k *uint32) int { return int(*k % 4) },
	}
	var buf bytes.Buffer
	w := stream.NewWriter(&buf, 0)
	for k := uint32(0); k < 10; k++ {
		require.NoError(t, WriteRaw(w, &k))
		_, err := w.Write(bytes.Repeat([]byte{byte(k)}, int(k%4)))
		require.NoError(t, err)
	}
	require.NoError(t, w.Flush())

	s, err := NewScanner(schema, stream.NewReader(bytes.NewReader(buf.Bytes()), 0))
	require.NoError(t, err)
	var n uint32
	for s.Scan() {
		require.Equal(t, n, *s.Key())
		require.True(t, bytes.Equal(bytes.Repeat([]byte{byte(n)}, int(n%4)), s.Data()))
		enc, err := s.Encoded()
		require.NoError(t, err)
		require.Equal(t, rawBytes(&n), enc)
		n++
	}
	require.NoError(t, s.Err())
	require.Equal(t, uint32(10), n)
}

func TestTournamentTies(t *testing.T) {
	tr := newTournament(5, func(a, b *uint32) int { return int(*a) - int(*b) }, true)
	copy(tr.keys, []uint32{4, 2, 7, 2, 2})
	for i := range tr.keys {
		tr.set(i, true)
	}
	root := tr.root()
	require.Equal(t, nodeTied, root.state)
	require.Equal(t, uint32(2), tr.keys[root.leaf])
	require.Equal(t, []int{1, 3, 4}, tr.collectTied(1, &tr.keys[root.leaf], nil))

	tr.keys[1] = 9
	tr.set(1, true)
	tr.set(3, false)
	root = tr.root()
	require.Equal(t, 4, root.leaf)
	require.Equal(t, nodeSingle, root.state)
	require.Equal(t, []int{4}, tr.collectTied(1, &tr.keys[4], nil))

	for _, leaf := range []int{0, 1, 2, 4} {
		tr.set(leaf, false)
	}
	require.Equal(t, nodeEmpty, tr.root().state)
}
