package streamsort

import (
	"io"

	intbits "github.com/tamirms/streamsort/internal/bits"
)

// run sorts until only the final bucket is left in the list.
func (c *sortContext[K]) run(src, final *bucket) error {
	c.list = []*bucket{final, src}
	for len(c.list) > 1 {
		if err := c.ctx.Err(); err != nil {
			return err
		}
		if err := c.decide(c.list[1]); err != nil {
			return err
		}
	}
	c.releaseBuffers()
	return nil
}

// decide picks the strategy for the bucket right after the final one.
func (c *sortContext[K]) decide(b *bucket) error {
	if !b.have() {
		c.trace(4, "Dropping empty bucket", "bucket", b.ident)
		return c.drop(b)
	}
	if b.runs > 0 {
		return c.join(b)
	}

	// Unknown sizes need the most bits and so split as widely as allowed.
	size := b.length()
	mem := int64(float64(c.pass.estimate()) * 0.8)
	bits := intbits.ShiftsNeeded(uint64(size), uint64(max(mem, 1)))

	radixBits := min(bits, b.hashBits, c.cfg.maxRadixBits)
	if radixBits < c.cfg.minRadixBits || c.codec.hash == nil ||
		b.is(bucketCustomPresort) || c.cfg.debug&DebugNoRadix != 0 {
		radixBits = 0
	}
	multiwayBits := min(bits, c.cfg.maxMultiwayBits)
	if multiwayBits < c.cfg.minMultiwayBits || c.cfg.debug&(DebugNoMultiway|DebugNoPresort) != 0 {
		multiwayBits = 0
	}
	c.trace(3, "Decisions", "bucket", b.ident, "size", size, "estimate", mem,
		"bits", bits, "radix_bits", radixBits, "multiway_bits", multiwayBits)

	switch {
	case bits == 0:
		return c.twoway(b)
	case radixBits == bits:
		return c.radix(b, radixBits)
	case multiwayBits == bits:
		return c.multiway(b)
	case radixBits > 0:
		return c.radix(b, radixBits)
	case multiwayBits > 0:
		return c.multiway(b)
	}
	return c.twoway(b)
}

// joinTarget returns the final bucket if b directly follows it, so that
// b's last run can be written straight to the output.
func (c *sortContext[K]) joinTarget(b *bucket) (*bucket, int64) {
	if c.cfg.debug&DebugNoJoin != 0 {
		return nil, 0
	}
	out := c.prev(b)
	if out == nil || !out.is(bucketFinal) {
		return nil, 0
	}
	return out, out.length()
}

// insOrJoin puts a finished bucket into the list after the final bucket,
// unless its contents went to join, in which case b is dropped. It returns
// the size of the result.
func (c *sortContext[K]) insOrJoin(b, join *bucket, joinSize int64) (int64, error) {
	if join != nil && join.runs >= 2 {
		join.runs--
		return join.length() - joinSize, c.drop(b)
	}
	if b == nil {
		return 0, nil
	}
	c.insertAfter(c.list[0], b)
	return b.length(), nil
}

// join appends a fully sorted bucket to the output.
func (c *sortContext[K]) join(b *bucket) error {
	out := c.prev(b)
	if !out.hasFile() {
		c.trace(3, "Replaced final bucket", "bucket", b.ident)
		b.flags |= bucketFinal
		return c.drop(out)
	}

	size := b.length()
	c.trace(1, "Copying to output file", "size", size)
	r, err := c.read(b)
	if err != nil {
		return err
	}
	w, err := c.write(out)
	if err != nil {
		return err
	}
	if err := out.file.Preallocate(size); err != nil {
		c.trace(4, "Preallocation failed", "error", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return err
	}
	return c.drop(b)
}

// twoway presorts b into two buckets of alternating runs and merges them
// until a single run is left.
func (c *sortContext[K]) twoway(b *bucket) error {
	join, joinSize := c.joinTarget(b)
	var ins [2]*bucket
	source := b.is(bucketSource)

	if c.cfg.debug&DebugNoPresort == 0 || b.is(bucketCustomPresort) {
		c.trace(3, "Presorting", "bucket", b.ident)
		c.startTimer()
		ins[0] = c.newBucket("twoway", 0)
		outOnly := ins[0]
		if join != nil {
			outOnly = join
		}
		more, err := c.presort(b, ins[0], outOnly)
		if err != nil {
			return err
		}
		if !more {
			c.stopTimer(&c.stats.PresortTime)
			size, err := c.insOrJoin(ins[0], join, joinSize)
			if err != nil {
				return err
			}
			level := 3
			if source {
				level = 1
			}
			c.trace(level, "Sorted in memory", "size", size, "mb_per_s", c.speed(size))
			return c.drop(b)
		}

		ins[1] = c.newBucket("twoway", 0)
		i := 1
		for {
			more, err := c.presort(b, ins[i], ins[i])
			if err != nil {
				return err
			}
			if !more {
				break
			}
			if err := c.ctx.Err(); err != nil {
				return err
			}
			i = 1 - i
		}
		if err := c.drop(b); err != nil {
			return err
		}
		c.stopTimer(&c.stats.PresortTime)
		total := ins[0].length() + ins[1].length()
		c.trace(1, "Presorting pass", "runs", ins[0].runs+ins[1].runs,
			"size", total, "mb_per_s", c.speed(total))
	} else {
		c.trace(2, "Presorting disabled")
		ins[0] = b
	}

	c.trace(3, "Main sorting")
	for pass := 1; ; pass++ {
		if err := c.ctx.Err(); err != nil {
			return err
		}
		c.startTimer()
		c.stats.MergePasses++
		if join != nil && ins[0].runs <= 1 && runsOf(ins[1]) <= 1 && ins[0] != b {
			if err := c.twowayMerge(ins, [2]*bucket{join, nil}); err != nil {
				return err
			}
			size, err := c.insOrJoin(nil, join, joinSize)
			if err != nil {
				return err
			}
			c.stopTimer(&c.stats.ExternalTime)
			c.trace(1, "Mergesort pass", "pass", pass, "runs", 1, "size", size,
				"mb_per_s", c.speed(size))
			if err := c.drop(ins[0]); err != nil {
				return err
			}
			return c.drop(ins[1])
		}

		outs := [2]*bucket{c.newBucket("twoway", 0), c.newBucket("twoway", 0)}
		if err := c.twowayMerge(ins, outs); err != nil {
			return err
		}
		c.stopTimer(&c.stats.ExternalTime)
		total := outs[0].length() + outs[1].length()
		c.trace(1, "Mergesort pass", "pass", pass, "runs", outs[0].runs+outs[1].runs,
			"size", total, "mb_per_s", c.speed(total))
		if err := c.drop(ins[0]); err != nil {
			return err
		}
		if err := c.drop(ins[1]); err != nil {
			return err
		}
		ins = outs
		if !ins[1].have() {
			break
		}
	}
	if err := c.drop(ins[1]); err != nil {
		return err
	}
	c.insertAfter(c.list[0], ins[0])
	return nil
}

// multiway presorts b into many single-run buckets and merges them in
// groups of at most 2^maxMultiwayBits.
func (c *sortContext[K]) multiway(b *bucket) error {
	join, joinSize := c.joinTarget(b)
	level := 3
	if b.is(bucketSource) {
		level = 1
	}

	c.trace(3, "Starting multi-way presort", "bucket", b.ident)
	c.startTimer()
	var parts []*bucket
	var total int64
	for {
		p := c.newBucket("part", bucketSwappable)
		outOnly := p
		if len(parts) == 0 && join != nil {
			outOnly = join
		}
		more, err := c.presort(b, p, outOnly)
		if err != nil {
			return err
		}
		if p.have() {
			parts = append(parts, p)
			total += p.length()
			if err := c.swapOut(p); err != nil {
				return err
			}
		} else if err := c.drop(p); err != nil {
			return err
		}
		if !more {
			break
		}
		if err := c.ctx.Err(); err != nil {
			return err
		}
	}
	c.stopTimer(&c.stats.PresortTime)
	c.releaseBuffers()
	if err := c.drop(b); err != nil {
		return err
	}

	if len(parts) <= 1 {
		var head, j *bucket
		if len(parts) == 1 {
			head = parts[0]
		} else {
			j = join
		}
		size, err := c.insOrJoin(head, j, joinSize)
		if err != nil {
			return err
		}
		c.trace(level, "Sorted in memory", "size", size, "mb_per_s", c.speed(size))
		return nil
	}

	c.trace(1, "Multi-way presorting pass", "runs", len(parts), "size", total,
		"mb_per_s", c.speed(total))
	maxWays := 1 << c.cfg.maxMultiwayBits
	for {
		if err := c.ctx.Err(); err != nil {
			return err
		}
		n := min(maxWays, len(parts))
		ways := parts[:n:n]
		parts = parts[n:]

		var out *bucket
		if len(parts) == 0 && join != nil {
			out = join
		} else {
			out = c.newBucket("part", bucketSwappable)
		}
		c.startTimer()
		if err := c.multiwayMerge(ways, out); err != nil {
			return err
		}
		c.stopTimer(&c.stats.ExternalTime)
		c.stats.MultiwayMerges++
		for _, p := range ways {
			if err := c.drop(p); err != nil {
				return err
			}
		}

		if len(parts) == 0 {
			var ins *bucket
			if join == nil {
				ins = out
			}
			size, err := c.insOrJoin(ins, join, joinSize)
			if err != nil {
				return err
			}
			c.trace(1, "Multi-way merge completed", "ways", n, "size", size,
				"mb_per_s", c.speed(size))
			return nil
		}
		if err := c.swapOut(out); err != nil {
			return err
		}
		parts = append(parts, out)
		c.trace(2, "Multi-way merge pass", "ways", n, "size", out.length(),
			"mb_per_s", c.speed(out.length()))
	}
}
