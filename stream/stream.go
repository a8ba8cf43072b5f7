// Package stream provides the buffered sequential I/O used by the sorter:
// readers and writers with position tracking, and files that can be
// temporary, anonymous, memory-mapped, swapped out and persisted.
package stream

import (
	"bufio"
	"encoding/binary"
	"io"
)

// DefaultBufferSize is the I/O buffer size used when none is given.
const DefaultBufferSize = 64 << 10

// minBufferSize keeps fixed-width reads served from a single Peek.
const minBufferSize = 16

func normBufferSize(n int) int {
	if n <= 0 {
		return DefaultBufferSize
	}
	return max(n, minBufferSize)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Reader is a buffered sequential reader.
//
// Fixed-width helpers return io.EOF only when no byte of the value was
// available and io.ErrUnexpectedEOF when the stream ends inside it.
type Reader struct {
	br    *bufio.Reader
	cr    countingReader
	start int64
}

// NewReader returns a Reader over r with a buffer of size bytes.
func NewReader(r io.Reader, size int) *Reader {
	rd := &Reader{}
	rd.cr.r = r
	rd.br = bufio.NewReaderSize(&rd.cr, normBufferSize(size))
	return rd
}

func (r *Reader) reset(src io.Reader, start int64) {
	r.cr = countingReader{r: src}
	r.start = start
	r.br.Reset(&r.cr)
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	return r.br.Read(p)
}

// ReadFull fills p completely.
func (r *Reader) ReadFull(p []byte) error {
	_, err := io.ReadFull(r.br, p)
	return err
}

// ReadByte implements io.ByteReader.
func (r *Reader) ReadByte() (byte, error) {
	return r.br.ReadByte()
}

// Peek returns the next n bytes without consuming them. The slice is only
// valid until the next read.
func (r *Reader) Peek(n int) ([]byte, error) {
	return r.br.Peek(n)
}

// Discard skips n bytes.
func (r *Reader) Discard(n int) error {
	m, err := r.br.Discard(n)
	if err == io.EOF && m > 0 {
		err = io.ErrUnexpectedEOF
	}
	return err
}

func (r *Reader) fixed(n int) ([]byte, error) {
	b, err := r.br.Peek(n)
	if err != nil {
		if err == io.EOF && len(b) > 0 {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return b, nil
}

// Uint32 reads a little-endian uint32.
func (r *Reader) Uint32() (uint32, error) {
	b, err := r.fixed(4)
	if err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(b)
	_, _ = r.br.Discard(4)
	return v, nil
}

// Uint64 reads a little-endian uint64.
func (r *Reader) Uint64() (uint64, error) {
	b, err := r.fixed(8)
	if err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(b)
	_, _ = r.br.Discard(8)
	return v, nil
}

// Uvarint reads an unsigned varint.
func (r *Reader) Uvarint() (uint64, error) {
	return binary.ReadUvarint(r.br)
}

// CopyTo copies exactly n bytes to w.
func (r *Reader) CopyTo(w *Writer, n int64) error {
	m, err := io.CopyN(w.bw, r.br, n)
	if err == io.EOF && m < n {
		err = io.ErrUnexpectedEOF
	}
	return err
}

// WriteTo implements io.WriterTo.
func (r *Reader) WriteTo(w io.Writer) (int64, error) {
	return r.br.WriteTo(w)
}

// Offset returns the position of the next byte to be read.
func (r *Reader) Offset() int64 {
	return r.start + r.cr.n - int64(r.br.Buffered())
}

// Writer is a buffered sequential writer.
type Writer struct {
	bw    *bufio.Writer
	cw    countingWriter
	start int64
}

// NewWriter returns a Writer over w with a buffer of size bytes.
func NewWriter(w io.Writer, size int) *Writer {
	wr := &Writer{}
	wr.cw.w = w
	wr.bw = bufio.NewWriterSize(&wr.cw, normBufferSize(size))
	return wr
}

func (w *Writer) reset(dst io.Writer, start int64) {
	w.cw = countingWriter{w: dst}
	w.start = start
	w.bw.Reset(&w.cw)
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	return w.bw.Write(p)
}

// WriteByte implements io.ByteWriter.
func (w *Writer) WriteByte(c byte) error {
	return w.bw.WriteByte(c)
}

// WriteString implements io.StringWriter.
func (w *Writer) WriteString(s string) (int, error) {
	return w.bw.WriteString(s)
}

// ReadFrom implements io.ReaderFrom.
func (w *Writer) ReadFrom(r io.Reader) (int64, error) {
	return w.bw.ReadFrom(r)
}

// PutUint32 writes v in little-endian order.
func (w *Writer) PutUint32(v uint32) error {
	_, err := w.bw.Write(binary.LittleEndian.AppendUint32(w.bw.AvailableBuffer(), v))
	return err
}

// PutUint64 writes v in little-endian order.
func (w *Writer) PutUint64(v uint64) error {
	_, err := w.bw.Write(binary.LittleEndian.AppendUint64(w.bw.AvailableBuffer(), v))
	return err
}

// PutUvarint writes v as an unsigned varint.
func (w *Writer) PutUvarint(v uint64) error {
	_, err := w.bw.Write(binary.AppendUvarint(w.bw.AvailableBuffer(), v))
	return err
}

// Offset returns the position the next byte will be written at.
func (w *Writer) Offset() int64 {
	return w.start + w.cw.n + int64(w.bw.Buffered())
}

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error {
	return w.bw.Flush()
}
