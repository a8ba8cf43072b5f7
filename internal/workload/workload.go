// Package workload generates deterministic record streams for the CLI and
// benchmarks.
package workload

import (
	"encoding/binary"
	"fmt"

	"github.com/spaolacci/murmur3"
	"github.com/zeebo/xxh3"

	streamerrors "github.com/tamirms/streamsort/errors"
	"github.com/tamirms/streamsort/stream"
)

// Format is the on-disk record layout.
type Format string

const (
	U32   Format = "u32"   // little-endian uint32
	U64   Format = "u64"   // little-endian uint64
	Bytes Format = "bytes" // uvarint length followed by the key bytes
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case U32, U64, Bytes:
		return f, nil
	}
	return "", fmt.Errorf("%w: unknown format %q", streamerrors.ErrInvalidOption, s)
}

// Order is the order in which generated keys appear.
type Order string

const (
	Random     Order = "random"
	Increasing Order = "increasing"
	Decreasing Order = "decreasing"
)

// ParseOrder validates an order name.
func ParseOrder(s string) (Order, error) {
	switch o := Order(s); o {
	case Random, Increasing, Decreasing:
		return o, nil
	}
	return "", fmt.Errorf("%w: unknown order %q", streamerrors.ErrInvalidOption, s)
}

// Config describes a generated stream.
type Config struct {
	Format Format
	Order  Order
	Count  int64
	Seed   uint32
	// Range limits random keys to [0, Range) when non-zero, which produces
	// duplicates once Count approaches Range.
	Range uint64
}

// Value returns the integer behind the i-th record.
func (c *Config) Value(i int64) uint64 {
	switch c.Order {
	case Increasing:
		return uint64(i)
	case Decreasing:
		return uint64(c.Count - 1 - i)
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(i))
	v := murmur3.Sum64WithSeed(buf[:], c.Seed)
	if c.Range > 0 {
		v %= c.Range
	}
	return v
}

// AppendKey appends the byte-string key for v: sixteen hex digits of v,
// so that keys order like v, and a suffix of up to 15 letters derived
// from v.
func AppendKey(dst []byte, v uint64, seed uint32) []byte {
	dst = fmt.Appendf(dst, "%016x", v)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	h := xxh3.HashSeed(buf[:], uint64(seed))
	for n := h & 15; n > 0; n-- {
		h >>= 4
		dst = append(dst, 'a'+byte(h%26))
	}
	return dst
}

// Write generates the stream described by c into w.
func Write(w *stream.Writer, c Config) error {
	var key []byte
	for i := int64(0); i < c.Count; i++ {
		v := c.Value(i)
		var err error
		switch c.Format {
		case U32:
			err = w.PutUint32(uint32(v))
		case U64:
			err = w.PutUint64(v)
		case Bytes:
			key = AppendKey(key[:0], v, c.Seed)
			if err = w.PutUvarint(uint64(len(key))); err == nil {
				_, err = w.Write(key)
			}
		default:
			return fmt.Errorf("%w: unknown format %q", streamerrors.ErrInvalidOption, c.Format)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
