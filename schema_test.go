package streamsort

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	streamerrors "github.com/tamirms/streamsort/errors"
	"github.com/tamirms/streamsort/stream"
)

func TestSchemaValidation(t *testing.T) {
	cmpU32 := func(a, b *uint32) int { return int(*a) - int(*b) }
	merge := func(w *stream.Writer, keys []*uint32, _ [][]byte, _ []byte) error {
		return WriteRaw(w, keys[0])
	}

	t.Run("Empty", func(t *testing.T) {
		_, err := New(Schema[uint32]{})
		require.ErrorIs(t, err, streamerrors.ErrInvalidSchema)
	})

	t.Run("PointerKey", func(t *testing.T) {
		_, err := New(Schema[*int]{Compare: func(a, b **int) int { return **a - **b }})
		require.ErrorIs(t, err, streamerrors.ErrPointerKey)
		require.ErrorIs(t, err, streamerrors.ErrInvalidSchema)
	})

	t.Run("SliceWithoutCodec", func(t *testing.T) {
		_, err := New(Schema[[]byte]{Compare: func(a, b *[]byte) int { return bytes.Compare(*a, *b) }})
		require.ErrorIs(t, err, streamerrors.ErrPointerKey)
		require.ErrorIs(t, err, streamerrors.ErrInvalidSchema)
	})

	t.Run("ReadKeyOnly", func(t *testing.T) {
		s := Uint32Schema()
		s.WriteKey = nil
		_, err := New(s)
		require.ErrorIs(t, err, streamerrors.ErrInvalidSchema)
	})

	t.Run("HashTooWide", func(t *testing.T) {
		_, err := New(Schema[uint32]{
			Compare:  cmpU32,
			Hash:     func(k *uint32) uint64 { return uint64(*k) },
			HashBits: 65,
		})
		require.ErrorIs(t, err, streamerrors.ErrHashTooWide)
		require.ErrorIs(t, err, streamerrors.ErrInvalidSchema)
	})

	t.Run("DataWithoutCopyMerged", func(t *testing.T) {
		_, err := New(Schema[uint32]{
			Compare:     cmpU32,
			DataSize:    func(*uint32) int { return 4 },
			WriteMerged: merge,
		})
		require.ErrorIs(t, err, streamerrors.ErrMissingReducer)
		require.ErrorIs(t, err, streamerrors.ErrInvalidSchema)
	})

	t.Run("CopyMergedWithoutWriteMerged", func(t *testing.T) {
		_, err := New(Schema[uint32]{
			Compare: cmpU32,
			CopyMerged: func([]*uint32, []*stream.Reader, *stream.Writer) error {
				return nil
			},
		})
		require.ErrorIs(t, err, streamerrors.ErrInvalidSchema)
	})

	t.Run("KeyLargerThanBuffer", func(t *testing.T) {
		_, err := New(Schema[[10000]byte]{
			Compare: func(a, b *[10000]byte) int { return bytes.Compare(a[:], b[:]) },
		}, WithBufferSize(8192))
		require.ErrorIs(t, err, streamerrors.ErrBufferTooSmall)
	})

	t.Run("ZeroSizeKey", func(t *testing.T) {
		_, err := New(Schema[struct{}]{Compare: func(_, _ *struct{}) int { return 0 }})
		require.ErrorIs(t, err, streamerrors.ErrInvalidSchema)
	})
}

func TestSchemaDefaults(t *testing.T) {
	t.Run("IntRange", func(t *testing.T) {
		cd, err := newCodec(Uint32Schema(), 999, true)
		require.NoError(t, err)
		require.True(t, cd.intMode)
		require.Equal(t, uint(10), cd.hashBits)
		require.True(t, cd.fixed)
		require.False(t, cd.regular)
	})

	t.Run("IntFullWidth", func(t *testing.T) {
		cd, err := newCodec(Uint64Schema(), 0, false)
		require.NoError(t, err)
		require.Equal(t, uint(64), cd.hashBits)
	})

	t.Run("HashDefaultsTo64Bits", func(t *testing.T) {
		cd, err := newCodec(Schema[uint32]{
			Compare: func(a, b *uint32) int { return int(*a) - int(*b) },
			Hash:    func(k *uint32) uint64 { return uint64(*k) },
		}, 0, false)
		require.NoError(t, err)
		require.Equal(t, uint(64), cd.hashBits)
		require.True(t, cd.regular)
		require.Equal(t, 4, cd.keyBytes)
	})

	t.Run("VariableKeys", func(t *testing.T) {
		cd, err := newCodec(BytesSchema(), 0, false)
		require.NoError(t, err)
		require.False(t, cd.fixed)
		require.Nil(t, cd.hash)
		require.Equal(t, sliceHeaderSize+5, cd.memSize(&[]byte{1, 2, 3, 4, 5}))
	})

	t.Run("ReducerWithoutData", func(t *testing.T) {
		var calls int
		cd, err := newCodec(Schema[uint32]{
			Compare: func(a, b *uint32) int { return int(*a) - int(*b) },
			WriteMerged: func(w *stream.Writer, keys []*uint32, data [][]byte, _ []byte) error {
				calls++
				require.Nil(t, data)
				return WriteRaw(w, keys[0])
			},
		}, 0, false)
		require.NoError(t, err)
		require.True(t, cd.unify())
		require.NotNil(t, cd.copyMerged)

		var buf bytes.Buffer
		w := stream.NewWriter(&buf, 64)
		k := uint32(7)
		require.NoError(t, cd.copyMerged([]*uint32{&k, &k}, nil, w))
		require.NoError(t, w.Flush())
		require.Equal(t, 1, calls)
		require.Equal(t, rawBytes(&k), buf.Bytes())
	})
}

func TestBytesSchemaRoundTrip(t *testing.T) {
	s := BytesSchema()
	var buf bytes.Buffer
	w := stream.NewWriter(&buf, 64)
	words := [][]byte{[]byte("alpha"), {}, bytes.Repeat([]byte{'x'}, 300)}
	for i := range words {
		require.NoError(t, s.WriteKey(w, &words[i]))
	}
	require.NoError(t, w.Flush())

	r := stream.NewReader(bytes.NewReader(buf.Bytes()), 64)
	for _, want := range words {
		var got []byte
		require.NoError(t, s.ReadKey(r, &got))
		require.True(t, bytes.Equal(want, got))
	}
	var tail []byte
	require.Error(t, s.ReadKey(r, &tail))
}

func TestTruncatedRecord(t *testing.T) {
	// A uvarint length of 10 followed by only three bytes.
	data := []byte{10, 'a', 'b', 'c'}
	s, err := New(BytesSchema(), testOptions(t)...)
	require.NoError(t, err)
	_, err = s.Sort(t.Context(), FromFile(writeFile(t, data)), ToTemp())
	require.ErrorIs(t, err, streamerrors.ErrTruncatedRecord)

	t.Run("HugeLength", func(t *testing.T) {
		var buf bytes.Buffer
		w := stream.NewWriter(&buf, 0)
		require.NoError(t, w.PutUvarint(1<<36))
		_, err := w.Write([]byte("abc"))
		require.NoError(t, err)
		require.NoError(t, w.Flush())

		sc, err := NewScanner(BytesSchema(), stream.NewReader(&buf, 0))
		require.NoError(t, err)
		require.False(t, sc.Scan())
		require.ErrorIs(t, sc.Err(), streamerrors.ErrTruncatedRecord)

		s, err := New(BytesSchema(), testOptions(t)...)
		require.NoError(t, err)
		_, err = s.Sort(t.Context(), FromFile(writeFile(t, buf.Bytes())), ToTemp())
		require.ErrorIs(t, err, streamerrors.ErrTruncatedRecord)
	})

	t.Run("LongKey", func(t *testing.T) {
		key := bytes.Repeat([]byte("xyz"), 5000)
		var buf bytes.Buffer
		w := stream.NewWriter(&buf, 0)
		require.NoError(t, BytesSchema().WriteKey(w, &key))
		require.NoError(t, w.Flush())

		sc, err := NewScanner(BytesSchema(), stream.NewReader(&buf, 0))
		require.NoError(t, err)
		require.True(t, sc.Scan())
		require.Equal(t, key, *sc.Key())
		require.False(t, sc.Scan())
		require.NoError(t, sc.Err())
	})
}
