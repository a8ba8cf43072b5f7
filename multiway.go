package streamsort

import (
	"fmt"

	streamerrors "github.com/tamirms/streamsort/errors"
	intbits "github.com/tamirms/streamsort/internal/bits"
	"github.com/tamirms/streamsort/stream"
)

type nodeState uint8

const (
	nodeEmpty nodeState = iota
	nodeSingle
	nodeTied // the minimum of this subtree occurs more than once
)

type node struct {
	leaf  int
	state nodeState
}

// tournament is a winner tree over the current keys of the inputs. Leaves
// live at tree[n2:], the root at tree[1].
type tournament[K any] struct {
	keys    []K
	tree    []node
	n2      int
	compare func(a, b *K) int
	unify   bool
}

func newTournament[K any](n int, compare func(a, b *K) int, unify bool) *tournament[K] {
	n2 := intbits.NextPow2(n)
	return &tournament[K]{
		keys:    make([]K, n),
		tree:    make([]node, 2*n2),
		n2:      n2,
		compare: compare,
		unify:   unify,
	}
}

func (t *tournament[K]) set(leaf int, present bool) {
	st := nodeEmpty
	if present {
		st = nodeSingle
	}
	i := t.n2 + leaf
	t.tree[i] = node{leaf: leaf, state: st}
	for i /= 2; i > 0; i /= 2 {
		l, r := t.tree[2*i], t.tree[2*i+1]
		switch {
		case l.state == nodeEmpty:
			t.tree[i] = r
		case r.state == nodeEmpty:
			t.tree[i] = l
		default:
			cmp := t.compare(&t.keys[l.leaf], &t.keys[r.leaf])
			win := r
			if cmp <= 0 {
				win = l
			}
			if cmp == 0 && t.unify {
				win.state = nodeTied
			}
			t.tree[i] = win
		}
	}
}

func (t *tournament[K]) root() node { return t.tree[1] }

// collectTied appends the leaves of subtree i whose key equals least.
func (t *tournament[K]) collectTied(i int, least *K, dst []int) []int {
	n := t.tree[i]
	if n.state == nodeEmpty || t.compare(&t.keys[n.leaf], least) != 0 {
		return dst
	}
	if i >= t.n2 || n.state == nodeSingle {
		return append(dst, n.leaf)
	}
	dst = t.collectTied(2*i, least, dst)
	return t.collectTied(2*i+1, least, dst)
}

// multiwayMerge merges one sorted run from each of ins into a single run
// of out.
func (c *sortContext[K]) multiwayMerge(ins []*bucket, out *bucket) error {
	cd := c.codec
	w, err := c.write(out)
	if err != nil {
		return err
	}
	t := newTournament(len(ins), cd.compare, cd.unify())
	readers := make([]*stream.Reader, len(ins))
	for i, b := range ins {
		if readers[i], err = c.read(b); err != nil {
			return err
		}
		ok, err := cd.nextKey(readers[i], &t.keys[i])
		if err != nil {
			return err
		}
		t.set(i, ok)
	}

	var last K
	haveLast := false
	var tied []int
	for {
		top := t.root()
		if top.state == nodeEmpty {
			break
		}
		if c.verifying() {
			if haveLast {
				if err := c.checkOrder(&last, &t.keys[top.leaf]); err != nil {
					return fmt.Errorf("%w: in multi-way merge", err)
				}
			}
			last, haveLast = t.keys[top.leaf], true
		}

		if top.state == nodeTied {
			tied = t.collectTied(1, &t.keys[top.leaf], tied[:0])
			keys := c.mergeKeys[:0]
			rs := c.mergeReaders[:0]
			for _, leaf := range tied {
				keys = append(keys, &t.keys[leaf])
				rs = append(rs, readers[leaf])
			}
			c.mergeKeys, c.mergeReaders = keys, rs
			if err := cd.copyMerged(keys, rs, w); err != nil {
				return fmt.Errorf("copy merged: %w", err)
			}
			for _, leaf := range tied {
				ok, err := cd.nextKey(readers[leaf], &t.keys[leaf])
				if err != nil {
					return err
				}
				t.set(leaf, ok)
			}
			continue
		}

		leaf := top.leaf
		if err := cd.copyRecord(&t.keys[leaf], readers[leaf], w); err != nil {
			return err
		}
		ok, err := cd.nextKey(readers[leaf], &t.keys[leaf])
		if err != nil {
			return err
		}
		if ok && c.verifying() && !c.ordered(&last, &t.keys[leaf]) {
			return fmt.Errorf("%w: input of multi-way merge", streamerrors.ErrUnsortedRun)
		}
		t.set(leaf, ok)
	}
	out.runs++
	return nil
}
