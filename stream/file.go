package stream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"

	streamerrors "github.com/tamirms/streamsort/errors"
)

type mode uint8

const (
	modeIdle mode = iota
	modeRead
	modeWrite
)

// File is a sequentially accessed file. It is written by appending through
// Writer and read from the start through Rewind; switching from writing to
// reading flushes the buffer. Temporary files are removed on Close.
//
// A File is not safe for concurrent use.
type File struct {
	f        *os.File
	src      io.Reader // unseekable source, read once
	mapped   mmap.MMap
	name     string // "" for anonymous files
	temp     bool
	readOnly bool
	swapped  bool
	closed   bool
	bufSize  int
	size     int64 // -1 if unknown
	mode     mode
	r        *Reader
	w        *Writer
}

// Open opens a named file for reading.
func Open(path string, bufSize int) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		return nil, errors.Join(err, f.Close())
	}
	return &File{f: f, name: path, readOnly: true, bufSize: normBufferSize(bufSize), size: st.Size()}, nil
}

// OpenMapped opens a named file for reading through a read-only memory
// mapping. Empty files are read normally since they cannot be mapped.
func OpenMapped(path string, bufSize int) (*File, error) {
	file, err := Open(path, bufSize)
	if err != nil || file.size == 0 {
		return file, err
	}
	m, err := mmap.Map(file.f, mmap.RDONLY, 0)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("mmap %s: %w", path, err), file.f.Close())
	}
	adviseSequential(m)
	file.mapped = m
	return file, nil
}

// Create creates or truncates a named file for writing.
func Create(path string, bufSize int) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &File{f: f, name: path, bufSize: normBufferSize(bufSize)}, nil
}

// Wrap adopts an already open file. Writes append to its end.
func Wrap(f *os.File, bufSize int) (*File, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return &File{f: f, name: f.Name(), bufSize: normBufferSize(bufSize), size: st.Size()}, nil
}

// CreateTemp creates a temporary file in dir (os.TempDir() if empty).
// Where supported the file is anonymous and vanishes with its descriptor;
// otherwise a named temporary file is created.
func CreateTemp(dir string, bufSize int) (*File, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if f, err := openTmpFile(dir); err == nil {
		return &File{f: f, temp: true, bufSize: normBufferSize(bufSize)}, nil
	}
	return CreateNamedTemp(dir, "", bufSize)
}

// CreateNamedTemp creates a temporary file with a name, which can be
// swapped out. pattern follows os.CreateTemp.
func CreateNamedTemp(dir, pattern string, bufSize int) (*File, error) {
	if pattern == "" {
		pattern = "streamsort-*.tmp"
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, err
	}
	return &File{f: f, name: f.Name(), temp: true, bufSize: normBufferSize(bufSize)}, nil
}

// FromReader wraps an unseekable source such as a pipe. It can be read
// once and its size is unknown.
func FromReader(r io.Reader, bufSize int) *File {
	return &File{src: r, readOnly: true, bufSize: normBufferSize(bufSize), size: -1}
}

// Name returns the file path, or "" for anonymous files and readers.
func (f *File) Name() string { return f.name }

// Temp reports whether the file is removed on Close.
func (f *File) Temp() bool { return f.temp }

// SetTemp sets whether the file is removed on Close.
func (f *File) SetTemp(temp bool) { f.temp = temp }

// Swapped reports whether the descriptor is currently released.
func (f *File) Swapped() bool { return f.swapped }

// Size returns the number of bytes in the file including unflushed
// writes, or -1 if unknown.
func (f *File) Size() int64 {
	if f.mode == modeWrite {
		return f.w.Offset()
	}
	return f.size
}

func (f *File) check() error {
	if f.closed {
		return streamerrors.ErrClosed
	}
	return nil
}

// Reader returns the active reader, starting one at the beginning of the
// file if the file is not being read.
func (f *File) Reader() (*Reader, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	if f.mode == modeRead {
		return f.r, nil
	}
	return f.Rewind()
}

// Rewind flushes pending writes and returns a reader positioned at the
// start of the file.
func (f *File) Rewind() (*Reader, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	if f.src != nil {
		if f.r != nil {
			return nil, streamerrors.ErrNotSeekable
		}
		f.r = NewReader(f.src, f.bufSize)
		f.mode = modeRead
		return f.r, nil
	}
	if err := f.Flush(); err != nil {
		return nil, err
	}
	if err := f.swapIn(); err != nil {
		return nil, err
	}

	var src io.Reader
	if f.mapped != nil {
		src = bytes.NewReader(f.mapped)
	} else {
		if _, err := f.f.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("rewind %s: %w", f.describe(), err)
		}
		fadviseSequential(f.f)
		src = f.f
	}
	if f.r == nil {
		f.r = NewReader(src, f.bufSize)
	} else {
		f.r.reset(src, 0)
	}
	f.mode = modeRead
	return f.r, nil
}

// Writer returns a writer appending to the end of the file.
func (f *File) Writer() (*Writer, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	if f.mode == modeWrite {
		return f.w, nil
	}
	if f.readOnly {
		return nil, streamerrors.ErrNotWritable
	}
	if err := f.swapIn(); err != nil {
		return nil, err
	}
	off, err := f.f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("seek %s: %w", f.describe(), err)
	}
	if f.w == nil {
		f.w = NewWriter(f.f, f.bufSize)
	}
	f.w.reset(f.f, off)
	f.size = off
	f.mode = modeWrite
	return f.w, nil
}

// Flush writes buffered data if the file is being written.
func (f *File) Flush() error {
	if f.mode != modeWrite {
		return nil
	}
	if err := f.w.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", f.describe(), err)
	}
	f.size = f.w.Offset()
	f.mode = modeIdle
	return nil
}

// Preallocate reserves n more bytes of disk space past the current end of
// the file. It is a hint; the file size is unchanged.
func (f *File) Preallocate(n int64) error {
	if f.f == nil || f.readOnly || n <= 0 {
		return nil
	}
	return reserveSpace(f.f, max(f.Size(), 0), n)
}

// SwapOut releases the descriptor of a named file until it is next used.
// Pending writes are flushed. Anonymous files and readers are left open.
func (f *File) SwapOut() error {
	if err := f.check(); err != nil {
		return err
	}
	if f.swapped || f.name == "" || f.f == nil || f.mapped != nil || f.readOnly {
		return nil
	}
	if err := f.Flush(); err != nil {
		return err
	}
	if err := f.f.Close(); err != nil {
		return fmt.Errorf("swap out %s: %w", f.name, err)
	}
	f.f = nil
	f.swapped = true
	f.mode = modeIdle
	return nil
}

func (f *File) swapIn() error {
	if !f.swapped {
		return nil
	}
	fd, err := os.OpenFile(f.name, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("swap in %s: %w", f.name, err)
	}
	f.f = fd
	f.swapped = false
	return nil
}

// Persist makes the contents available under path and clears the
// temporary flag. Temporary files are renamed or linked when possible and
// copied otherwise. The file stays usable.
func (f *File) Persist(path string) error {
	if err := f.check(); err != nil {
		return err
	}
	if f.src != nil {
		return streamerrors.ErrNotSeekable
	}
	if err := f.Flush(); err != nil {
		return err
	}
	if f.name != "" && sameFile(f.name, path) {
		f.temp = false
		return nil
	}

	if f.temp && f.mapped == nil {
		if f.name != "" {
			if err := os.Rename(f.name, path); err == nil {
				f.name, f.temp = path, false
				return nil
			}
		} else if f.f != nil {
			if err := os.Remove(path); err == nil || errors.Is(err, os.ErrNotExist) {
				if err := linkTmpFile(f.f, path); err == nil {
					f.name, f.temp = path, false
					return nil
				}
			}
		}
	}
	return f.copyTo(path)
}

func (f *File) copyTo(path string) error {
	dst, err := Create(path, f.bufSize)
	if err != nil {
		return err
	}
	r, err := f.Rewind()
	if err == nil {
		var w *Writer
		if w, err = dst.Writer(); err == nil {
			if _, err = io.Copy(w.bw, r.br); err == nil {
				err = dst.Flush()
			}
		}
	}
	if err != nil {
		return errors.Join(fmt.Errorf("copy to %s: %w", path, err), dst.Close(), os.Remove(path))
	}
	if err := f.Close(); err != nil {
		return errors.Join(err, dst.Close())
	}
	*f = *dst
	return nil
}

func sameFile(a, b string) bool {
	if a == b {
		return true
	}
	sa, err1 := os.Stat(a)
	sb, err2 := os.Stat(b)
	return err1 == nil && err2 == nil && os.SameFile(sa, sb)
}

func (f *File) describe() string {
	if f.name != "" {
		return f.name
	}
	return "anonymous file"
}

// Close releases the file. Temporary files are removed without flushing.
// Close does not close sources passed to FromReader.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	var errs []error
	if f.mode == modeWrite && !f.temp {
		if err := f.w.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", f.describe(), err))
		}
	}
	if f.mapped != nil {
		if err := f.mapped.Unmap(); err != nil {
			errs = append(errs, fmt.Errorf("munmap %s: %w", f.name, err))
		}
		f.mapped = nil
	}
	if f.f != nil {
		if err := f.f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", f.describe(), err))
		}
		f.f = nil
	}
	if f.temp && f.name != "" {
		if err := os.Remove(f.name); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove %s: %w", f.name, err))
		}
	}
	if f.mode == modeWrite {
		f.size = f.w.Offset()
	}
	f.mode = modeIdle
	f.r, f.w = nil, nil
	return errors.Join(errs...)
}
