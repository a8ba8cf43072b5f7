package streamsort

import (
	"fmt"
	"io"
	"math/bits"
	"time"

	streamerrors "github.com/tamirms/streamsort/errors"
	"github.com/tamirms/streamsort/internal/asort"
	"github.com/tamirms/streamsort/internal/encoding"
	"github.com/tamirms/streamsort/stream"
)

const ptrSize = bits.UintSize / 8

// fixedPass presorts keys of constant size without data. Keys are held in
// a plain array, with a second array of the same size for radix sorting.
type fixedPass[K any] struct {
	c       *sortContext[K]
	sorter  *asort.Sorter[K]
	maxKeys int
	radix   bool
	keys    []K
	scratch []K
	group   []*K
}

// fixedCapacity is the number of keys one fixed pass holds.
func fixedCapacity[K any](cd *codec[K], cfg *config) int {
	ws := 0
	if cd.unify() {
		ws = ptrSize
	}
	if cd.hash != nil && cfg.debug&DebugArrayNoRadix == 0 {
		ws = max(ws, cd.keyBytes)
	}
	buf := cfg.bufferBytes()
	if ws > 0 {
		buf -= pageSize
	}
	return buf / (cd.keyBytes + ws)
}

func newFixedPass[K any](c *sortContext[K]) *fixedPass[K] {
	compare := c.codec.compare
	return &fixedPass[K]{
		c:       c,
		sorter:  asort.New(func(a, b *K) bool { return compare(a, b) < 0 }, c.codec.hash, c.arrayConfig()),
		maxKeys: fixedCapacity(c.codec, c.cfg),
		radix:   c.arrayRadix(),
	}
}

func (p *fixedPass[K]) estimate() int64 {
	return int64(p.maxKeys)*int64(p.c.codec.keyBytes) - 1
}

func (p *fixedPass[K]) release() {
	p.keys, p.scratch, p.group = nil, nil, nil
}

func (p *fixedPass[K]) presort(in, out, outOnly *bucket) (bool, error) {
	c := p.c
	r, err := c.read(in)
	if err != nil {
		return false, err
	}
	n, err := p.fill(r, in.length())
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	start := time.Now()
	var scratch []K
	if p.radix {
		if cap(p.scratch) < n {
			p.scratch = make([]K, n)
		}
		scratch = p.scratch[:n]
	}
	sorted := p.sorter.Sort(p.keys[:n], scratch, in.hashBits)
	c.timeInternal(start, n)

	more := n == p.maxKeys
	if !more {
		out = outOnly
	}
	w, err := c.write(out)
	if err != nil {
		return false, err
	}
	out.runs++
	c.stats.Runs++
	return more, p.writeRun(w, sorted)
}

// fill reads up to maxKeys keys into p.keys and returns how many were
// read. size bounds the input and keeps the arena small for small buckets.
func (p *fixedPass[K]) fill(r *stream.Reader, size int64) (int, error) {
	cd := p.c.codec
	if cd.regular {
		want := p.maxKeys
		if size != unknownSize {
			want = int(min(int64(want), size/int64(cd.keyBytes)+1))
		}
		if len(p.keys) < want {
			p.keys = make([]K, want)
		}
		raw := encoding.SliceBytes(p.keys[:want])
		m, err := io.ReadFull(r, raw)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return 0, err
		}
		if m%cd.keyBytes != 0 {
			return 0, fmt.Errorf("%w: %d stray bytes", streamerrors.ErrTruncatedRecord, m%cd.keyBytes)
		}
		return m / cd.keyBytes, nil
	}

	var zero K
	p.keys = p.keys[:0]
	for len(p.keys) < p.maxKeys {
		p.keys = append(p.keys, zero)
		ok, err := cd.nextKey(r, &p.keys[len(p.keys)-1])
		if err != nil {
			return 0, err
		}
		if !ok {
			p.keys = p.keys[:len(p.keys)-1]
			break
		}
	}
	return len(p.keys), nil
}

func (p *fixedPass[K]) writeRun(w *stream.Writer, a []K) error {
	c := p.c
	cd := c.codec
	if c.verifying() && !cd.unify() {
		for i := 1; i < len(a); i++ {
			if err := c.checkOrder(&a[i-1], &a[i]); err != nil {
				return err
			}
		}
	}
	if cd.regular && !cd.unify() {
		_, err := w.Write(encoding.SliceBytes(a))
		return err
	}

	for i := 0; i < len(a); i++ {
		if cd.unify() && i+1 < len(a) && cd.compare(&a[i], &a[i+1]) == 0 {
			group := p.group[:0]
			j := i
			for ; j < len(a) && cd.compare(&a[i], &a[j]) == 0; j++ {
				group = append(group, &a[j])
			}
			p.group = group
			if err := cd.writeMerged(w, group, nil, nil); err != nil {
				return fmt.Errorf("write merged: %w", err)
			}
			c.stats.Merged += int64(len(group) - 1)
			i = j - 1
			continue
		}
		if err := cd.writeKey(w, &a[i]); err != nil {
			return err
		}
	}
	return nil
}
