package streamsort

import (
	"fmt"
	"time"

	streamerrors "github.com/tamirms/streamsort/errors"
	"github.com/tamirms/streamsort/internal/asort"
)

// presorter turns the head of a bucket into one sorted run.
type presorter interface {
	// presort reads as many records of in as fit into memory and writes
	// them sorted as a single run to out, or to outOnly if they are the
	// last records of in. It returns false if in is exhausted.
	presort(in, out, outOnly *bucket) (bool, error)

	// estimate is the expected amount of input consumed by one presort.
	estimate() int64

	// release frees the in-memory buffers until the next presort.
	release()
}

// presort dispatches to the user presorter for custom inputs, which
// ignores outOnly, and to the in-memory pass otherwise.
func (c *sortContext[K]) presort(in, out, outOnly *bucket) (bool, error) {
	if !in.is(bucketCustomPresort) {
		return c.pass.presort(in, out, outOnly)
	}
	w, err := c.write(out)
	if err != nil {
		return false, err
	}
	if c.userBuf == nil {
		c.userBuf = make([]byte, c.cfg.bufferBytes())
	}
	before := w.Offset()
	more, err := c.custom(w, c.userBuf)
	if err != nil {
		return false, fmt.Errorf("custom presort: %w", err)
	}
	if w.Offset() > before {
		out.runs++
		c.stats.Runs++
	}
	return more, nil
}

func (c *sortContext[K]) releaseBuffers() {
	c.pass.release()
	c.userBuf = nil
}

// checkOrder validates a key written after prev.
func (c *sortContext[K]) checkOrder(prev, cur *K) error {
	r := c.codec.compare(prev, cur)
	switch {
	case r > 0:
		return streamerrors.ErrUnsortedRun
	case r == 0 && (c.codec.unique || c.codec.unify()):
		return streamerrors.ErrDuplicateKey
	}
	return nil
}

func (c *sortContext[K]) verifying() bool { return c.cfg.debug&DebugVerify != 0 }

func (c *sortContext[K]) arrayConfig() asort.Config {
	return asort.Config{
		RadixBits:       c.cfg.arrayRadixBits,
		RadixThreshold:  c.cfg.radixThreshold,
		Workers:         c.cfg.workers,
		ThreadThreshold: c.cfg.threadThreshold,
		ThreadChunk:     c.cfg.threadChunk,
		NoRadix:         c.cfg.debug&DebugArrayNoRadix != 0,
		NoThreads:       c.cfg.debug&DebugArrayNoThreads != 0,
	}
}

func (c *sortContext[K]) arrayRadix() bool {
	return c.codec.hash != nil && c.cfg.debug&DebugArrayNoRadix == 0
}

func (c *sortContext[K]) timeInternal(start time.Time, n int) {
	d := time.Since(start)
	c.stats.InternalTime += d
	c.trace(4, "Sorted in memory", "items", n, "took", d)
}
