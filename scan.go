package streamsort

import (
	"bytes"
	"fmt"
	"io"
	"math/bits"

	"github.com/cespare/xxhash/v2"

	streamerrors "github.com/tamirms/streamsort/errors"
	"github.com/tamirms/streamsort/stream"
)

// Scanner reads a stream of records one at a time.
type Scanner[K any] struct {
	cd   *codec[K]
	r    *stream.Reader
	key  K
	data []byte
	err  error

	enc bytes.Buffer
	w   *stream.Writer
}

// NewScanner returns a Scanner reading records described by schema from r.
func NewScanner[K any](schema Schema[K], r *stream.Reader) (*Scanner[K], error) {
	cd, err := newCodec(schema, 0, false)
	if err != nil {
		return nil, err
	}
	s := &Scanner[K]{cd: cd, r: r}
	s.w = stream.NewWriter(&s.enc, 4096)
	return s, nil
}

// Scan advances to the next record, reporting false at the end of the
// stream or on error.
func (s *Scanner[K]) Scan() bool {
	if s.err != nil {
		return false
	}
	ok, err := s.cd.nextKey(s.r, &s.key)
	if err != nil || !ok {
		s.err = err
		return false
	}
	n := s.cd.dataLen(&s.key)
	s.data = s.data[:0]
	if n > 0 {
		if cap(s.data) < n {
			s.data = make([]byte, n)
		}
		s.data = s.data[:n]
		if err := s.r.ReadFull(s.data); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			s.err = recordError(err)
			return false
		}
	}
	return true
}

// Key returns the current key. It is overwritten by the next Scan.
func (s *Scanner[K]) Key() *K { return &s.key }

// Data returns the data of the current record, valid until the next Scan.
func (s *Scanner[K]) Data() []byte { return s.data }

// Err returns the first error encountered.
func (s *Scanner[K]) Err() error { return s.err }

// Encoded returns the stream encoding of the current record's key.
func (s *Scanner[K]) Encoded() ([]byte, error) {
	s.enc.Reset()
	if err := s.cd.writeKey(s.w, &s.key); err != nil {
		return nil, err
	}
	if err := s.w.Flush(); err != nil {
		return nil, err
	}
	return s.enc.Bytes(), nil
}

// Digest is an order-independent fingerprint of a multiset of records.
// Two streams holding the same records in any order have equal digests.
type Digest struct {
	Count uint64
	Sum   uint64
	Mix   uint64
}

// Add accounts for one record given as its key encoding and data.
func (d *Digest) Add(key, data []byte) {
	h := xxhash.New()
	_, _ = h.Write(key)
	_, _ = h.Write(data)
	v := h.Sum64()
	d.Count++
	d.Sum += v
	d.Mix ^= bits.RotateLeft64(v*0x9E3779B97F4A7C15, 31)
}

func (d Digest) String() string {
	return fmt.Sprintf("%d records, %016x%016x", d.Count, d.Sum, d.Mix)
}

// DigestOf computes the digest of every record of r.
func DigestOf[K any](schema Schema[K], r *stream.Reader) (Digest, error) {
	return scanAll(schema, r, nil)
}

// Verify reads r, checks that its keys never decrease, or strictly
// increase if strict is set, and returns the digest of its records.
func Verify[K any](schema Schema[K], r *stream.Reader, strict bool) (Digest, error) {
	return scanAll(schema, r, &strict)
}

func scanAll[K any](schema Schema[K], r *stream.Reader, strict *bool) (Digest, error) {
	var d Digest
	s, err := NewScanner(schema, r)
	if err != nil {
		return d, err
	}
	var prev K
	var n int64
	for s.Scan() {
		if strict != nil && n > 0 {
			switch c := s.cd.compare(&prev, s.Key()); {
			case c > 0:
				return d, fmt.Errorf("%w: record %d", streamerrors.ErrUnsortedRun, n)
			case c == 0 && *strict:
				return d, fmt.Errorf("%w: record %d", streamerrors.ErrDuplicateKey, n)
			}
		}
		enc, err := s.Encoded()
		if err != nil {
			return d, err
		}
		d.Add(enc, s.Data())
		prev = *s.Key()
		n++
	}
	return d, s.Err()
}
