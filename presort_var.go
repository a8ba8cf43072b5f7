package streamsort

import (
	"fmt"
	"io"
	"slices"
	"time"

	streamerrors "github.com/tamirms/streamsort/errors"
	"github.com/tamirms/streamsort/internal/asort"
	intbits "github.com/tamirms/streamsort/internal/bits"
	"github.com/tamirms/streamsort/internal/encoding"
	"github.com/tamirms/streamsort/stream"
)

// varItem is one record held by a variable pass. Its data lives in the
// pass's arena at [off, off+n).
type varItem[K any] struct {
	key  K
	hash uint64
	off  int
	n    int
}

// varPass presorts records of varying size or carrying data. Every record
// is charged its item, the memory reported by KeySize, its data and the
// workspace needed to unify or radix sort it.
type varPass[K any] struct {
	c         *sortContext[K]
	sorter    *asort.Sorter[varItem[K]]
	bufSize   int
	itemBytes int
	radix     bool

	items   []varItem[K]
	scratch []varItem[K]
	data    []byte

	groupKeys []*K
	groupData [][]byte
	workspace []byte
}

func newVarPass[K any](c *sortContext[K]) *varPass[K] {
	cd := c.codec
	less := func(a, b *varItem[K]) bool { return cd.compare(&a.key, &b.key) < 0 }
	var hash func(*varItem[K]) uint64
	if cd.hash != nil {
		less = func(a, b *varItem[K]) bool {
			if a.hash != b.hash {
				return a.hash < b.hash
			}
			return cd.compare(&a.key, &b.key) < 0
		}
		hash = func(it *varItem[K]) uint64 { return it.hash }
	}
	return &varPass[K]{
		c:         c,
		sorter:    asort.New(less, hash, c.arrayConfig()),
		bufSize:   c.cfg.bufferBytes(),
		itemBytes: encoding.Size[varItem[K]](),
		radix:     c.arrayRadix(),
	}
}

// recordWorkspace is the scratch memory a record needs beyond its own
// storage.
func (p *varPass[K]) recordWorkspace(k *K) int {
	cd := p.c.codec
	ws := 0
	if cd.unify() {
		ws = ptrSize
	}
	if cd.unifyWorkspace != nil {
		ws += cd.unifyWorkspace(k)
	}
	if p.radix {
		ws = max(ws, p.itemBytes)
	}
	return ws
}

func (p *varPass[K]) estimate() int64 {
	cd := p.c.codec
	avg := cd.keyBytes
	if cd.keySize != nil {
		avg /= 4
	}
	avg = max(int(intbits.AlignUp(uint64(avg), 8)), 8)
	ws := 0
	if cd.unify() {
		ws = ptrSize
	}
	if cd.unifyWorkspace != nil {
		ws += avg
	}
	if p.radix {
		ws = max(ws, p.itemBytes)
	}
	overhead := p.itemBytes - cd.keyBytes
	return int64(p.bufSize / (avg + ws + overhead) * avg)
}

func (p *varPass[K]) release() {
	p.items, p.scratch, p.data = nil, nil, nil
	p.groupKeys, p.groupData, p.workspace = nil, nil, nil
}

func (p *varPass[K]) presort(in, out, outOnly *bucket) (bool, error) {
	c := p.c
	cd := c.codec
	r, err := c.read(in)
	if err != nil {
		return false, err
	}

	var key K
	if c.hasPending {
		key = c.pending
		var zero K
		c.pending, c.hasPending = zero, false
	} else {
		ok, err := cd.nextKey(r, &key)
		if err != nil || !ok {
			return false, err
		}
	}

	if cd.keyBytes+2*pageSize+cd.dataLen(&key)+p.recordWorkspace(&key) > p.bufSize {
		c.trace(4, "Generating a giant run", "data", cd.dataLen(&key))
		w, err := c.write(out)
		if err != nil {
			return false, err
		}
		if err := cd.copyRecord(&key, r, w); err != nil {
			return false, err
		}
		out.runs++
		c.stats.Runs++
		c.stats.GiantRuns++
		return true, nil
	}

	items, data := p.items[:0], p.data[:0]
	remains := p.bufSize - pageSize
	overhead := p.itemBytes - cd.keyBytes
	more := false
	for {
		dsize := cd.dataLen(&key)
		total := overhead + cd.memSize(&key) + dsize + p.recordWorkspace(&key)
		if total > remains {
			if len(items) == 0 {
				return false, fmt.Errorf("%w: record of %d bytes", streamerrors.ErrBufferTooSmall, total)
			}
			c.pending, c.hasPending = key, true
			more = true
			break
		}
		remains -= total

		off := len(data)
		data = slices.Grow(data, dsize)[:off+dsize]
		if err := r.ReadFull(data[off:]); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return false, recordError(err)
		}
		it := varItem[K]{key: key, off: off, n: dsize}
		if cd.hash != nil {
			it.hash = cd.hash(&it.key)
		}
		items = append(items, it)

		ok, err := cd.nextKey(r, &key)
		if err != nil {
			return false, err
		}
		if !ok {
			break
		}
	}
	p.items, p.data = items, data

	start := time.Now()
	var scratch []varItem[K]
	if p.radix {
		if cap(p.scratch) < len(items) {
			p.scratch = make([]varItem[K], len(items))
		}
		scratch = p.scratch[:len(items)]
	}
	sorted := p.sorter.Sort(items, scratch, in.hashBits)
	c.timeInternal(start, len(items))

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

func (p *varPass[K]) writeRun(w *stream.Writer, items []varItem[K]) error {
	c := p.c
	cd := c.codec
	for i := 0; i < len(items); i++ {
		it := &items[i]
		if cd.unify() && i+1 < len(items) && cd.compare(&it.key, &items[i+1].key) == 0 {
			j, err := p.writeGroup(w, items[i:])
			if err != nil {
				return err
			}
			i += j - 1
			continue
		}
		if c.verifying() && i > 0 {
			if err := c.checkOrder(&items[i-1].key, &it.key); err != nil {
				return err
			}
		}
		if err := cd.writeKey(w, &it.key); err != nil {
			return err
		}
		if _, err := w.Write(p.data[it.off : it.off+it.n]); err != nil {
			return err
		}
	}
	return nil
}

// writeGroup merges the records at the head of items that share a key and
// returns how many there were.
func (p *varPass[K]) writeGroup(w *stream.Writer, items []varItem[K]) (int, error) {
	cd := p.c.codec
	keys := p.groupKeys[:0]
	var data [][]byte
	if cd.dataSize != nil {
		data = p.groupData[:0]
	}
	ws := 0
	j := 0
	for ; j < len(items) && cd.compare(&items[0].key, &items[j].key) == 0; j++ {
		it := &items[j]
		keys = append(keys, &it.key)
		if cd.dataSize != nil {
			data = append(data, p.data[it.off:it.off+it.n])
		}
		if cd.unifyWorkspace != nil {
			ws += cd.unifyWorkspace(&it.key)
		}
	}
	p.groupKeys, p.groupData = keys, data

	var workspace []byte
	if cd.unifyWorkspace != nil {
		if cap(p.workspace) < ws {
			p.workspace = make([]byte, ws)
		}
		workspace = p.workspace[:ws]
	}
	if err := cd.writeMerged(w, keys, data, workspace); err != nil {
		return 0, fmt.Errorf("write merged: %w", err)
	}
	p.c.stats.Merged += int64(j - 1)
	return j, nil
}
