package streamsort

import (
	"fmt"

	streamerrors "github.com/tamirms/streamsort/errors"
	"github.com/tamirms/streamsort/stream"
)

// ordered reports whether b may follow a within a run. With unification
// equal keys are merged, so runs must be strictly increasing.
func (c *sortContext[K]) ordered(a, b *K) bool {
	r := c.codec.compare(a, b)
	if c.codec.unify() {
		return r < 0
	}
	return r <= 0
}

// twowayMerge merges the runs of ins pairwise, writing merged runs
// alternately to outs[0] and outs[1]. Without outs[1] all runs go to
// outs[0]. Run boundaries are detected from the data, so unsorted input
// is merged into progressively longer runs.
func (c *sortContext[K]) twowayMerge(ins, outs [2]*bucket) error {
	cd := c.codec
	var kbuf [4]K
	kin1, kprev1, kin2, kprev2 := &kbuf[0], &kbuf[1], &kbuf[2], &kbuf[3]
	var kout *K

	fin1, err := c.read(ins[0])
	if err != nil {
		return err
	}
	next1, err := cd.nextKey(fin1, kin1)
	if err != nil {
		return err
	}
	var fin2 *stream.Reader
	next2 := false
	if ins[1].have() {
		if fin2, err = c.read(ins[1]); err != nil {
			return err
		}
		if next2, err = cd.nextKey(fin2, kin2); err != nil {
			return err
		}
	}
	run1, run2 := next1, next2

	var fout1, fout2 *stream.Writer
	runCount := 0
	for next1 || next2 {
		var comp int
		switch {
		case !run1:
			comp = 1
		case !run2:
			comp = -1
		default:
			comp = cd.compare(kin1, kin2)
		}
		ktmp := kin2
		if comp <= 0 {
			ktmp = kin1
		}
		if kout == nil || !c.ordered(kout, ktmp) {
			fout1, fout2 = fout2, fout1
			if fout1 == nil {
				switch {
				case fout2 == nil:
					fout1, err = c.write(outs[0])
				case outs[1] != nil:
					fout1, err = c.write(outs[1])
				default:
					fout1 = fout2
				}
				if err != nil {
					return err
				}
			}
			runCount++
		}
		if comp == 0 && cd.unique && c.verifying() {
			return fmt.Errorf("%w: found in merge", streamerrors.ErrDuplicateKey)
		}

		switch {
		case comp < 0 || (comp == 0 && !cd.unify()):
			if err := cd.copyRecord(kin1, fin1, fout1); err != nil {
				return err
			}
			kin1, kprev1 = kprev1, kin1
			if next1, err = cd.nextKey(fin1, kin1); err != nil {
				return err
			}
			run1 = next1 && c.ordered(kprev1, kin1)
			kout = kprev1
		case comp == 0:
			c.mergeKeys = append(c.mergeKeys[:0], kin1, kin2)
			c.mergeReaders = append(c.mergeReaders[:0], fin1, fin2)
			if err := cd.copyMerged(c.mergeKeys, c.mergeReaders, fout1); err != nil {
				return fmt.Errorf("copy merged: %w", err)
			}
			kin1, kprev1 = kprev1, kin1
			if next1, err = cd.nextKey(fin1, kin1); err != nil {
				return err
			}
			run1 = next1 && c.ordered(kprev1, kin1)
			kin2, kprev2 = kprev2, kin2
			if next2, err = cd.nextKey(fin2, kin2); err != nil {
				return err
			}
			run2 = next2 && c.ordered(kprev2, kin2)
			kout = kprev2
		default:
			if err := cd.copyRecord(kin2, fin2, fout1); err != nil {
				return err
			}
			kin2, kprev2 = kprev2, kin2
			if next2, err = cd.nextKey(fin2, kin2); err != nil {
				return err
			}
			run2 = next2 && c.ordered(kprev2, kin2)
			kout = kprev2
		}
		if !run1 && !run2 {
			run1, run2 = next1, next2
		}
	}

	if fout2 != nil && fout2 != fout1 {
		outs[1].runs += runCount / 2
	}
	if fout1 != nil {
		outs[0].runs += (runCount + 1) / 2
	}
	return nil
}
