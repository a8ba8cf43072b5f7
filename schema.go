package streamsort

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"io"
	"reflect"
	"slices"

	streamerrors "github.com/tamirms/streamsort/errors"
	intbits "github.com/tamirms/streamsort/internal/bits"
	"github.com/tamirms/streamsort/internal/encoding"
	"github.com/tamirms/streamsort/stream"
)

// Schema describes the records being sorted. A record is a key of type K
// followed by DataSize(key) bytes of data. Only Compare (or Int) is
// required; everything else refines the record layout or enables
// optional features.
type Schema[K any] struct {
	// Compare orders keys. Required unless Int is set.
	Compare func(a, b *K) int

	// Int selects integer mode: keys are ordered by the returned value,
	// which also serves as a monotone hash. The hash width is taken from
	// WithIntRange, or 64 bits.
	Int func(k *K) uint64

	// ReadKey decodes the next key and returns io.EOF at a clean end of
	// stream. Keys stored by ReadKey must not alias the reader's buffer.
	// WriteKey encodes a key. If both are nil, K must be free of pointers
	// and is stored as raw bytes in native byte order.
	ReadKey  func(r *stream.Reader, k *K) error
	WriteKey func(w *stream.Writer, k *K) error

	// KeySize reports the memory occupied by a key, including memory it
	// references. Setting it marks keys as variable-sized.
	KeySize func(k *K) int

	// DataSize reports the length of the data following a key.
	DataSize func(k *K) int

	// Hash is an optional monotone hash: Hash(a) < Hash(b) must imply
	// Compare(a, b) < 0. It enables radix splitting and radix sorting over
	// the low HashBits bits (64 if zero).
	Hash     func(k *K) uint64
	HashBits uint

	// Unique promises that all keys are distinct. It is checked when
	// DebugVerify is set.
	Unique bool

	// WriteMerged enables unification: all records sharing a key are
	// replaced by the single record it writes. data holds each record's
	// data (nil if records carry none) and workspace the scratch space
	// requested by UnifyWorkspace.
	WriteMerged func(w *stream.Writer, keys []*K, data [][]byte, workspace []byte) error

	// CopyMerged is the streaming counterpart of WriteMerged used while
	// merging. Each reader is positioned at the data of the corresponding
	// key, which CopyMerged must consume entirely. Required with
	// WriteMerged when records carry data or need workspace.
	CopyMerged func(keys []*K, data []*stream.Reader, w *stream.Writer) error

	// UnifyWorkspace reports the scratch bytes WriteMerged needs per record.
	UnifyWorkspace func(k *K) int
}

// codec is a validated Schema with defaults filled in.
type codec[K any] struct {
	compare        func(a, b *K) int
	readKey        func(r *stream.Reader, k *K) error
	writeKey       func(w *stream.Writer, k *K) error
	keySize        func(k *K) int
	dataSize       func(k *K) int
	hash           func(k *K) uint64
	hashBits       uint
	unique         bool
	writeMerged    func(w *stream.Writer, keys []*K, data [][]byte, workspace []byte) error
	copyMerged     func(keys []*K, data []*stream.Reader, w *stream.Writer) error
	unifyWorkspace func(k *K) int

	intMode  bool
	regular  bool
	fixed    bool // keys of constant size with no data and no workspace
	keyBytes int
}

func newCodec[K any](s Schema[K], intRange uint64, intRangeSet bool) (*codec[K], error) {
	c := &codec[K]{
		compare:        s.Compare,
		readKey:        s.ReadKey,
		writeKey:       s.WriteKey,
		keySize:        s.KeySize,
		dataSize:       s.DataSize,
		hash:           s.Hash,
		hashBits:       s.HashBits,
		unique:         s.Unique,
		writeMerged:    s.WriteMerged,
		copyMerged:     s.CopyMerged,
		unifyWorkspace: s.UnifyWorkspace,
		keyBytes:       encoding.Size[K](),
	}

	if c.hash != nil && c.hashBits == 0 {
		c.hashBits = 64
	}
	if s.Int != nil {
		toInt := s.Int
		c.intMode = true
		if c.compare == nil {
			c.compare = func(a, b *K) int { return cmp.Compare(toInt(a), toInt(b)) }
		}
		if c.hash == nil {
			c.hash = toInt
			c.hashBits = 64
			if intRangeSet {
				c.hashBits = intbits.ForRange(intRange)
			}
		}
	}
	if c.compare == nil {
		return nil, fmt.Errorf("%w: Compare or Int is required", streamerrors.ErrInvalidSchema)
	}

	if c.hashBits > 64 {
		return nil, fmt.Errorf("%w: %d bits", streamerrors.ErrHashTooWide, c.hashBits)
	}

	switch {
	case c.readKey == nil && c.writeKey == nil:
		if encoding.HasPointers(reflect.TypeFor[K]()) {
			return nil, fmt.Errorf("%w: %v", streamerrors.ErrPointerKey, reflect.TypeFor[K]())
		}
		if c.keyBytes == 0 {
			return nil, fmt.Errorf("%w: zero-size key", streamerrors.ErrInvalidSchema)
		}
		c.regular = true
		c.readKey = func(r *stream.Reader, k *K) error { return r.ReadFull(encoding.Bytes(k)) }
		c.writeKey = WriteRaw[K]
	case c.readKey == nil || c.writeKey == nil:
		return nil, fmt.Errorf("%w: ReadKey and WriteKey must be set together", streamerrors.ErrInvalidSchema)
	}

	if c.writeMerged == nil {
		if c.copyMerged != nil || c.unifyWorkspace != nil {
			return nil, fmt.Errorf("%w: CopyMerged and UnifyWorkspace require WriteMerged", streamerrors.ErrInvalidSchema)
		}
	} else if c.copyMerged == nil {
		if c.dataSize != nil || c.unifyWorkspace != nil {
			return nil, streamerrors.ErrMissingReducer
		}
		writeMerged := c.writeMerged
		c.copyMerged = func(keys []*K, _ []*stream.Reader, w *stream.Writer) error {
			return writeMerged(w, keys, nil, nil)
		}
	}

	c.fixed = c.keySize == nil && c.dataSize == nil && c.unifyWorkspace == nil
	return c, nil
}

func (c *codec[K]) unify() bool { return c.writeMerged != nil }

// nextKey reads a key, reporting false at a clean end of stream.
func (c *codec[K]) nextKey(r *stream.Reader, k *K) (bool, error) {
	err := c.readKey(r, k)
	switch {
	case err == nil:
		return true, nil
	case err == io.EOF:
		return false, nil
	default:
		return false, recordError(err)
	}
}

func (c *codec[K]) dataLen(k *K) int {
	if c.dataSize == nil {
		return 0
	}
	return c.dataSize(k)
}

func (c *codec[K]) memSize(k *K) int {
	if c.keySize == nil {
		return c.keyBytes
	}
	return c.keySize(k)
}

// copyRecord writes key k and copies its data from r to w.
func (c *codec[K]) copyRecord(k *K, r *stream.Reader, w *stream.Writer) error {
	if err := c.writeKey(w, k); err != nil {
		return err
	}
	if n := c.dataLen(k); n > 0 {
		if err := r.CopyTo(w, int64(n)); err != nil {
			return recordError(err)
		}
	}
	return nil
}

func recordError(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", streamerrors.ErrTruncatedRecord, err)
	}
	return err
}

// WriteRaw writes k in the raw encoding used for keys without ReadKey and
// WriteKey. It is meant for reducers emitting such keys.
func WriteRaw[K any](w *stream.Writer, k *K) error {
	_, err := w.Write(encoding.Bytes(k))
	return err
}

// Uint32Schema sorts little-endian uint32 values in integer mode.
func Uint32Schema() Schema[uint32] {
	return Schema[uint32]{
		Int: func(k *uint32) uint64 { return uint64(*k) },
		ReadKey: func(r *stream.Reader, k *uint32) (err error) {
			*k, err = r.Uint32()
			return err
		},
		WriteKey: func(w *stream.Writer, k *uint32) error { return w.PutUint32(*k) },
	}
}

// Uint64Schema sorts little-endian uint64 values in integer mode.
func Uint64Schema() Schema[uint64] {
	return Schema[uint64]{
		Int: func(k *uint64) uint64 { return *k },
		ReadKey: func(r *stream.Reader, k *uint64) (err error) {
			*k, err = r.Uint64()
			return err
		},
		WriteKey: func(w *stream.Writer, k *uint64) error { return w.PutUint64(*k) },
	}
}

// BytesSchema sorts byte strings stored with a uvarint length prefix.
func BytesSchema() Schema[[]byte] {
	return Schema[[]byte]{
		Compare: func(a, b *[]byte) int { return bytes.Compare(*a, *b) },
		ReadKey: func(r *stream.Reader, k *[]byte) error {
			n, err := r.Uvarint()
			if err != nil {
				return err
			}
			// The buffer grows as bytes arrive so a corrupt length cannot
			// allocate more than the stream holds.
			buf := make([]byte, 0, min(n, keyReadStep))
			for uint64(len(buf)) < n {
				start := len(buf)
				step := int(min(n-uint64(start), keyReadStep))
				buf = slices.Grow(buf, step)[:start+step]
				if err := r.ReadFull(buf[start:]); err != nil {
					if err == io.EOF {
						err = io.ErrUnexpectedEOF
					}
					return err
				}
			}
			*k = buf
			return nil
		},
		WriteKey: func(w *stream.Writer, k *[]byte) error {
			if err := w.PutUvarint(uint64(len(*k))); err != nil {
				return err
			}
			_, err := w.Write(*k)
			return err
		},
		KeySize: func(k *[]byte) int { return sliceHeaderSize + len(*k) },
	}
}

var sliceHeaderSize = encoding.Size[[]byte]()

const keyReadStep = 4096
