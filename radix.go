package streamsort

import (
	"math"

	"github.com/tamirms/streamsort/stream"
)

// radixSplit distributes the records of in among outs by the numBits hash
// bits starting at bitPos. Output files are created on first use.
func (c *sortContext[K]) radixSplit(in *bucket, outs []*bucket, bitPos, numBits uint) error {
	cd := c.codec
	r, err := c.read(in)
	if err != nil {
		return err
	}
	mask := uint64(1)<<numBits - 1
	ws := make([]*stream.Writer, len(outs))
	var k K
	for {
		ok, err := cd.nextKey(r, &k)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		i := (cd.hash(&k) >> bitPos) & mask
		if ws[i] == nil {
			if ws[i], err = c.write(outs[i]); err != nil {
				return err
			}
		}
		if err := cd.copyRecord(&k, r, ws[i]); err != nil {
			return err
		}
	}
}

// radix splits b into 2^bits buckets by the top bits of its hash range.
// The buckets take b's place in the list in ascending hash order.
func (c *sortContext[K]) radix(b *bucket, bits uint) error {
	bits = min(bits+c.cfg.addRadixBits, c.cfg.maxRadixBits, b.hashBits)
	nbuck := 1 << bits
	c.trace(3, "Running radix split", "bucket", b.ident, "size", b.length(),
		"bits", bits, "hash_bits", b.hashBits, "expected", b.length()/int64(nbuck))
	c.releaseBuffers()
	c.startTimer()

	var flags bucketFlags
	if nbuck > 4 {
		flags = bucketSwappable
	}
	outs := make([]*bucket, nbuck)
	for i := range outs {
		outs[i] = c.newBucket("radix", flags)
		outs[i].hashBits = b.hashBits - bits
	}
	c.insertAfter(b, outs...)
	if err := c.radixSplit(b, outs, b.hashBits-bits, bits); err != nil {
		return err
	}

	var lo, hi, sum int64 = math.MaxInt64, 0, 0
	for _, o := range outs {
		n := o.length()
		lo, hi, sum = min(lo, n), max(hi, n), sum+n
		if nbuck > 4 {
			if err := c.swapOut(o); err != nil {
				return err
			}
		}
	}
	c.stopTimer(&c.stats.ExternalTime)
	c.stats.RadixSplits++
	c.trace(1, "Radix split", "buckets", nbuck, "min", lo, "max", hi,
		"avg", sum/int64(nbuck), "mb_per_s", c.speed(sum))
	return c.drop(b)
}
