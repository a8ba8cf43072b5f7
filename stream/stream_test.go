package stream

import (
	"bytes"
	"encoding/binary"
	"hash/fnv"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	streamerrors "github.com/tamirms/streamsort/errors"
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

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func readAll(t *testing.T, f *File) []byte {
	t.Helper()
	r, err := f.Rewind()
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return data
}

func TestReaderWriterRoundTrip(t *testing.T) {
	rng := newTestRNG(t)
	f, err := CreateTemp(t.TempDir(), 64)
	require.NoError(t, err)
	defer f.Close()

	blob := make([]byte, 1000)
	for i := range blob {
		blob[i] = byte(rng.Uint32())
	}

	w, err := f.Writer()
	require.NoError(t, err)
	require.NoError(t, w.PutUint32(0xDEADBEEF))
	require.NoError(t, w.PutUint64(1<<40+7))
	require.NoError(t, w.PutUvarint(300))
	require.NoError(t, w.WriteByte('x'))
	_, err = w.WriteString("hello")
	require.NoError(t, err)
	_, err = w.Write(blob)
	require.NoError(t, err)

	const total = 4 + 8 + 2 + 1 + 5 + 1000
	require.EqualValues(t, total, w.Offset())
	require.EqualValues(t, total, f.Size())

	r, err := f.Rewind()
	require.NoError(t, err)
	require.EqualValues(t, total, f.Size())

	v32, err := r.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(0xDEADBEEF), v32)
	v64, err := r.Uint64()
	require.NoError(t, err)
	require.Equal(t, uint64(1<<40+7), v64)
	uv, err := r.Uvarint()
	require.NoError(t, err)
	require.Equal(t, uint64(300), uv)
	require.EqualValues(t, 14, r.Offset())

	c, err := r.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte('x'), c)

	head, err := r.Peek(5)
	require.NoError(t, err)
	require.Equal(t, "hello", string(head))
	require.NoError(t, r.Discard(5))

	got := make([]byte, len(blob))
	require.NoError(t, r.ReadFull(got))
	require.Equal(t, blob, got)
	require.EqualValues(t, total, r.Offset())

	_, err = r.ReadByte()
	require.ErrorIs(t, err, io.EOF)
}

func TestFixedReadsAtEnd(t *testing.T) {
	r := NewReader(bytes.NewReader(nil), 0)
	_, err := r.Uint32()
	require.ErrorIs(t, err, io.EOF)
	_, err = r.Uint64()
	require.ErrorIs(t, err, io.EOF)

	r = NewReader(bytes.NewReader([]byte{1, 2}), 0)
	_, err = r.Uint32()
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	r = NewReader(bytes.NewReader([]byte{1, 2, 3}), 0)
	require.ErrorIs(t, r.Discard(5), io.ErrUnexpectedEOF)

	r = NewReader(bytes.NewReader([]byte{1, 2, 3}), 0)
	require.ErrorIs(t, r.ReadFull(make([]byte, 4)), io.ErrUnexpectedEOF)
}

func TestCopyTo(t *testing.T) {
	var sink bytes.Buffer
	w := NewWriter(&sink, 0)
	r := NewReader(bytes.NewReader([]byte("abcdefgh")), 0)

	require.NoError(t, r.CopyTo(w, 3))
	require.NoError(t, r.CopyTo(w, 0))
	require.EqualValues(t, 3, r.Offset())
	require.ErrorIs(t, r.CopyTo(w, 10), io.ErrUnexpectedEOF)
	require.NoError(t, w.Flush())
	require.Equal(t, "abcdefgh", sink.String())
}

func TestNamedTempSwapOut(t *testing.T) {
	dir := t.TempDir()
	f, err := CreateNamedTemp(dir, "", 0)
	require.NoError(t, err)
	name := f.Name()
	require.NotEmpty(t, name)
	require.True(t, f.Temp())

	w, err := f.Writer()
	require.NoError(t, err)
	_, err = w.WriteString("first ")
	require.NoError(t, err)

	require.NoError(t, f.SwapOut())
	require.True(t, f.Swapped())
	require.EqualValues(t, 6, f.Size())

	require.Equal(t, "first ", string(readAll(t, f)))
	require.False(t, f.Swapped())

	w, err = f.Writer()
	require.NoError(t, err)
	require.EqualValues(t, 6, w.Offset())
	_, err = w.WriteString("second")
	require.NoError(t, err)
	require.NoError(t, f.SwapOut())
	require.Equal(t, "first second", string(readAll(t, f)))

	require.NoError(t, f.Close())
	_, err = os.Stat(name)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestAnonymousTemp(t *testing.T) {
	f, err := CreateTemp(t.TempDir(), 0)
	require.NoError(t, err)
	defer f.Close()

	w, err := f.Writer()
	require.NoError(t, err)
	_, err = w.WriteString("data")
	require.NoError(t, err)

	require.NoError(t, f.SwapOut())
	if f.Name() == "" {
		require.False(t, f.Swapped())
	}
	require.Equal(t, "data", string(readAll(t, f)))
}

func TestOpenMapped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in")
	writeFile(t, path, []byte("mapped contents"))

	f, err := OpenMapped(path, 0)
	require.NoError(t, err)
	require.EqualValues(t, 15, f.Size())
	require.Equal(t, "mapped contents", string(readAll(t, f)))
	require.Equal(t, "mapped contents", string(readAll(t, f)))

	_, err = f.Writer()
	require.ErrorIs(t, err, streamerrors.ErrNotWritable)
	require.NoError(t, f.SwapOut())
	require.False(t, f.Swapped())
	require.NoError(t, f.Close())

	_, err = os.Stat(path)
	require.NoError(t, err)

	empty := filepath.Join(dir, "empty")
	writeFile(t, empty, nil)
	f, err = OpenMapped(empty, 0)
	require.NoError(t, err)
	require.Empty(t, readAll(t, f))
	require.NoError(t, f.Close())
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"), 0)
	require.ErrorIs(t, err, os.ErrNotExist)
	_, err = OpenMapped(filepath.Join(t.TempDir(), "missing"), 0)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestFromReaderReadsOnce(t *testing.T) {
	f := FromReader(bytes.NewReader([]byte("pipe")), 0)
	require.EqualValues(t, -1, f.Size())

	r, err := f.Reader()
	require.NoError(t, err)
	same, err := f.Reader()
	require.NoError(t, err)
	require.Same(t, r, same)

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "pipe", string(data))

	_, err = f.Rewind()
	require.ErrorIs(t, err, streamerrors.ErrNotSeekable)
	_, err = f.Writer()
	require.ErrorIs(t, err, streamerrors.ErrNotWritable)
	require.ErrorIs(t, f.Persist(filepath.Join(t.TempDir(), "x")), streamerrors.ErrNotSeekable)
	require.NoError(t, f.Close())
}

func TestPersist(t *testing.T) {
	dir := t.TempDir()

	fill := func(t *testing.T, f *File, s string) {
		t.Helper()
		w, err := f.Writer()
		require.NoError(t, err)
		_, err = w.WriteString(s)
		require.NoError(t, err)
	}

	t.Run("anonymous", func(t *testing.T) {
		f, err := CreateTemp(dir, 0)
		require.NoError(t, err)
		fill(t, f, "anon")
		path := filepath.Join(dir, "anon.out")
		require.NoError(t, f.Persist(path))
		require.False(t, f.Temp())
		require.Equal(t, path, f.Name())
		require.Equal(t, "anon", string(readAll(t, f)))
		require.NoError(t, f.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, "anon", string(data))
	})

	t.Run("named", func(t *testing.T) {
		f, err := CreateNamedTemp(dir, "", 0)
		require.NoError(t, err)
		old := f.Name()
		fill(t, f, "named")
		path := filepath.Join(dir, "named.out")
		writeFile(t, path, []byte("stale"))
		require.NoError(t, f.Persist(path))
		require.NoError(t, f.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, "named", string(data))
		_, err = os.Stat(old)
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("copy", func(t *testing.T) {
		src := filepath.Join(dir, "src")
		f, err := Create(src, 0)
		require.NoError(t, err)
		fill(t, f, "copied")
		path := filepath.Join(dir, "copy.out")
		require.NoError(t, f.Persist(path))
		require.Equal(t, path, f.Name())
		require.Equal(t, "copied", string(readAll(t, f)))
		require.NoError(t, f.Close())

		for _, p := range []string{src, path} {
			data, err := os.ReadFile(p)
			require.NoError(t, err)
			require.Equal(t, "copied", string(data))
		}
	})

	t.Run("same path", func(t *testing.T) {
		path := filepath.Join(dir, "same")
		f, err := Create(path, 0)
		require.NoError(t, err)
		fill(t, f, "same")
		f.SetTemp(true)
		require.NoError(t, f.Persist(path))
		require.NoError(t, f.Close())
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, "same", string(data))
	})
}

func TestWrapAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "existing")
	writeFile(t, path, []byte("head:"))
	osf, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)

	f, err := Wrap(osf, 0)
	require.NoError(t, err)
	require.EqualValues(t, 5, f.Size())

	w, err := f.Writer()
	require.NoError(t, err)
	require.EqualValues(t, 5, w.Offset())
	_, err = w.WriteString("tail")
	require.NoError(t, err)
	require.Equal(t, "head:tail", string(readAll(t, f)))
	require.NoError(t, f.Close())
}

func TestPreallocateKeepsSize(t *testing.T) {
	f, err := CreateTemp(t.TempDir(), 0)
	require.NoError(t, err)
	defer f.Close()

	w, err := f.Writer()
	require.NoError(t, err)
	_, err = w.WriteString("abc")
	require.NoError(t, err)
	// Not every filesystem can reserve blocks.
	_ = f.Preallocate(1 << 20)
	require.EqualValues(t, 3, f.Size())
	require.Equal(t, "abc", string(readAll(t, f)))
}

func TestClosed(t *testing.T) {
	f, err := CreateNamedTemp(t.TempDir(), "", 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	_, err = f.Reader()
	require.ErrorIs(t, err, streamerrors.ErrClosed)
	_, err = f.Writer()
	require.ErrorIs(t, err, streamerrors.ErrClosed)
	require.ErrorIs(t, f.SwapOut(), streamerrors.ErrClosed)
	require.ErrorIs(t, f.Persist("x"), streamerrors.ErrClosed)
}
