package streamsort

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tamirms/streamsort/internal/encoding"
	"github.com/tamirms/streamsort/stream"
)

const (
	testSeed1 = 0x1234567890ABCDEF
	testSeed2 = 0xFEDCBA9876543210
)

// newTestRNG returns a deterministic RNG seeded from the test name.
func newTestRNG(t testing.TB) *rand.Rand {
	t.Helper()
	h := fnv.New128a()
	h.Write([]byte(t.Name()))
	sum := h.Sum(nil)
	s1 := binary.LittleEndian.Uint64(sum[:8])
	s2 := binary.LittleEndian.Uint64(sum[8:])
	return rand.New(rand.NewPCG(testSeed1^s1, testSeed2^s2))
}

// strategy is a set of options steering the sorter towards one code path.
type strategy struct {
	name string
	opts []Option
}

const smallBuffer = 64 << 10

func strategies() []strategy {
	small := WithBufferSize(smallBuffer)
	return []strategy{
		{"memory", nil},
		{"memory-threads", []Option{WithWorkers(4), WithThreadThreshold(4096), WithThreadChunk(1024)}},
		{"memory-no-radix", []Option{WithDebug(DebugArrayNoRadix)}},
		{"radix", []Option{small}},
		{"multiway", []Option{small, WithDebug(DebugNoRadix)}},
		{"twoway", []Option{small, WithDebug(DebugNoRadix | DebugNoMultiway)}},
		{"no-presort", []Option{small, WithDebug(DebugNoRadix | DebugNoPresort)}},
		{"no-join", []Option{small, WithDebug(DebugNoJoin | DebugNoRadix)}},
		{"verify", []Option{small, WithDebug(DebugVerify)}},
	}
}

func testOptions(t *testing.T, opts ...Option) []Option {
	t.Helper()
	return append([]Option{WithTempDir(t.TempDir())}, opts...)
}

func writeFile(t testing.TB, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// rawBytes views k in the encoding used for keys without a codec.
func rawBytes[K any](k *K) []byte { return encoding.Bytes(k) }

func encodeU32(vals []uint32) []byte {
	out := make([]byte, 0, 4*len(vals))
	for _, v := range vals {
		out = binary.LittleEndian.AppendUint32(out, v)
	}
	return out
}

func encodeU64(vals []uint64) []byte {
	out := make([]byte, 0, 8*len(vals))
	for _, v := range vals {
		out = binary.LittleEndian.AppendUint64(out, v)
	}
	return out
}

// readRecords drains a sort result with schema and closes it.
func readRecords[K any](t *testing.T, schema Schema[K], res *Result, fn func(k *K, data []byte)) {
	t.Helper()
	defer func() { require.NoError(t, res.File.Close()) }()
	r, err := res.File.Reader()
	require.NoError(t, err)
	s, err := NewScanner(schema, r)
	require.NoError(t, err)
	for s.Scan() {
		fn(s.Key(), s.Data())
	}
	require.NoError(t, s.Err())
}

func readKeys[K any](t *testing.T, schema Schema[K], res *Result) []K {
	t.Helper()
	var keys []K
	readRecords(t, schema, res, func(k *K, _ []byte) { keys = append(keys, *k) })
	return keys
}

func sortBytes[K any](t *testing.T, schema Schema[K], data []byte, opts ...Option) *Result {
	t.Helper()
	s, err := New(schema, testOptions(t, opts...)...)
	require.NoError(t, err)
	res, err := s.Sort(context.Background(), FromFile(writeFile(t, data)), ToTemp())
	require.NoError(t, err)
	return res
}

// tempStream returns a temporary stream holding data.
func tempStream(t *testing.T, data []byte) *stream.File {
	t.Helper()
	f, err := stream.CreateTemp(t.TempDir(), 0)
	require.NoError(t, err)
	w, err := f.Writer()
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	return f
}
