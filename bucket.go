package streamsort

import (
	"errors"
	"fmt"
	"math"
	"slices"

	streamerrors "github.com/tamirms/streamsort/errors"
	"github.com/tamirms/streamsort/stream"
)

type bucketFlags uint8

const (
	bucketSource bucketFlags = 1 << iota
	bucketFinal
	bucketCustomPresort
	bucketOpenRead
	bucketOpenWrite
	bucketDestroyed
	bucketSwappable
	bucketBorrowed // file belongs to the caller and is never closed
)

// unknownSize is the size of a bucket fed from a source of unknown length.
const unknownSize = math.MaxInt64

// bucket is a sequence of runs held in one file. The bucket list starts
// with the final bucket; everything after it still has to be sorted.
type bucket struct {
	file     *stream.File
	flags    bucketFlags
	size     int64
	runs     int
	hashBits uint
	ident    string
}

func (b *bucket) is(f bucketFlags) bool { return b.flags&f != 0 }

// length is the current size of the bucket in bytes.
func (b *bucket) length() int64 {
	if b.is(bucketOpenWrite) {
		return b.file.Size()
	}
	return b.size
}

func (b *bucket) have() bool { return b != nil && b.length() != 0 }

func (b *bucket) hasFile() bool { return b.file != nil }

func runsOf(b *bucket) int {
	if b == nil {
		return 0
	}
	return b.runs
}

func (st *sortState) newBucket(role string, flags bucketFlags) *bucket {
	st.nextIdent++
	b := &bucket{flags: flags, ident: fmt.Sprintf("%s%d", role, st.nextIdent)}
	st.all = append(st.all, b)
	return b
}

// read switches a bucket to reading and returns a reader at its start, or
// the active reader if the bucket is already being read.
func (st *sortState) read(b *bucket) (*stream.Reader, error) {
	switch {
	case b.is(bucketOpenRead):
		return b.file.Reader()
	case b.is(bucketOpenWrite):
		b.size = b.file.Size()
		b.flags = b.flags&^bucketOpenWrite | bucketOpenRead
		return b.file.Rewind()
	}
	return nil, fmt.Errorf("%w: bucket %s", streamerrors.ErrNotReadable, b.ident)
}

// write returns a writer appending to the bucket, creating its file on
// first use.
func (st *sortState) write(b *bucket) (*stream.Writer, error) {
	if !b.is(bucketOpenWrite) {
		if b.is(bucketOpenRead | bucketDestroyed) {
			return nil, fmt.Errorf("%w: bucket %s", streamerrors.ErrNotWritable, b.ident)
		}
		if b.file == nil {
			f, err := st.createFile(b)
			if err != nil {
				return nil, err
			}
			b.file = f
		}
		b.flags |= bucketOpenWrite
	}
	return b.file.Writer()
}

func (st *sortState) createFile(b *bucket) (*stream.File, error) {
	dir := st.cfg.tempDir
	if b.is(bucketFinal) && st.outDir != "" {
		dir = st.outDir
	}
	keep := st.cfg.debug&DebugKeepBuckets != 0
	var (
		f   *stream.File
		err error
	)
	if keep || b.is(bucketSwappable) {
		f, err = stream.CreateNamedTemp(dir, "streamsort-"+b.ident+"-*.tmp", st.ioBuf)
	} else {
		f, err = stream.CreateTemp(dir, st.ioBuf)
	}
	if err != nil {
		return nil, fmt.Errorf("bucket %s: %w", b.ident, err)
	}
	if keep && !b.is(bucketFinal) {
		f.SetTemp(false)
	}
	st.trace(5, "Created bucket file", "bucket", b.ident, "name", f.Name())
	return f, nil
}

// swapOut releases the descriptor of a swappable bucket. The source is
// never swapped.
func (st *sortState) swapOut(b *bucket) error {
	if b.file == nil || b.is(bucketSource) || !b.is(bucketOpenRead|bucketOpenWrite) {
		return nil
	}
	if b.is(bucketOpenWrite) {
		b.size = b.file.Size()
	}
	if err := b.file.SwapOut(); err != nil {
		return err
	}
	if b.file.Swapped() {
		st.trace(5, "Swapped out bucket", "bucket", b.ident, "size", b.size)
	}
	return nil
}

// drop unlinks a bucket and releases its file.
func (st *sortState) drop(b *bucket) error {
	if b == nil || b.is(bucketDestroyed) {
		return nil
	}
	st.unlink(b)
	var err error
	if b.file != nil && !b.is(bucketBorrowed) {
		err = b.file.Close()
	}
	*b = bucket{flags: bucketDestroyed, ident: b.ident}
	return err
}

func (st *sortState) unlink(b *bucket) {
	if i := slices.Index(st.list, b); i >= 0 {
		st.list = slices.Delete(st.list, i, i+1)
	}
}

// insertAfter places bs, in order, right after pos in the bucket list.
func (st *sortState) insertAfter(pos *bucket, bs ...*bucket) {
	i := slices.Index(st.list, pos)
	st.list = slices.Insert(st.list, i+1, bs...)
}

// prev returns the bucket before b in the list.
func (st *sortState) prev(b *bucket) *bucket {
	if i := slices.Index(st.list, b); i > 0 {
		return st.list[i-1]
	}
	return nil
}

// releaseAll closes every bucket still holding a file. It is used when a
// sort fails.
func (st *sortState) releaseAll() error {
	var errs []error
	for _, b := range st.all {
		if err := st.drop(b); err != nil {
			errs = append(errs, err)
		}
	}
	st.all, st.list = nil, nil
	return errors.Join(errs...)
}
