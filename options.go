package streamsort

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	streamerrors "github.com/tamirms/streamsort/errors"
	"github.com/tamirms/streamsort/internal/asort"
	intbits "github.com/tamirms/streamsort/internal/bits"
	"github.com/tamirms/streamsort/stream"
)

const (
	// DefaultBufferSize is the default memory budget of one sort.
	DefaultBufferSize = 64 << 20

	pageSize = 4096

	// minBufferSize is the smallest accepted memory budget.
	minBufferSize = 2 * pageSize

	// smallIOBufferSize is the I/O buffer size for inputs below the
	// WithSmallInput threshold.
	smallIOBufferSize = 4096
)

// DebugFlags switch off parts of the sorter or enable extra checks. They
// exist for testing and benchmarking; output is identical with any set.
type DebugFlags uint

const (
	// DebugNoPresort skips the presorting pass of the two-way strategy,
	// leaving run detection to the merger. Also disables multi-way merging.
	DebugNoPresort DebugFlags = 1 << iota
	// DebugNoJoin never writes intermediate results directly to the output.
	DebugNoJoin
	// DebugNoRadix disables radix splitting.
	DebugNoRadix
	// DebugNoMultiway disables multi-way merging.
	DebugNoMultiway
	// DebugArrayNoRadix disables radix sorting in memory.
	DebugArrayNoRadix
	// DebugArrayNoThreads disables parallel in-memory sorting.
	DebugArrayNoThreads
	// DebugKeepBuckets leaves temporary files on disk.
	DebugKeepBuckets
	// DebugVerify checks ordering and uniqueness while writing.
	DebugVerify
)

var debugNames = []string{
	"no-presort", "no-join", "no-radix", "no-multiway",
	"array-no-radix", "array-no-threads", "keep-buckets", "verify",
}

func (d DebugFlags) String() string {
	if d == 0 {
		return "none"
	}
	var parts []string
	for i, name := range debugNames {
		if d&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, ",")
}

// ParseDebugFlags parses a comma-separated list of flag names as printed
// by DebugFlags.String.
func ParseDebugFlags(s string) (DebugFlags, error) {
	var d DebugFlags
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name == "" || name == "none" {
			continue
		}
		found := false
		for i, n := range debugNames {
			if n == name {
				d |= 1 << i
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: unknown debug flag %q", streamerrors.ErrInvalidOption, name)
		}
	}
	return d, nil
}

// Option is a functional option for configuring a Sorter.
type Option func(*config)

type config struct {
	bufferSize      int
	minRadixBits    uint
	maxRadixBits    uint
	addRadixBits    uint
	minMultiwayBits uint
	maxMultiwayBits uint
	arrayRadixBits  uint
	radixThreshold  int
	workers         int
	threadThreshold int
	threadChunk     int
	intRange        uint64
	intRangeSet     bool
	tempDir         string
	logger          *slog.Logger
	trace           int
	debug           DebugFlags
	deleteInput     bool
	mappedInput     bool
	smallInput      int64
	ioBufferSize    int
}

func defaultConfig() *config {
	return &config{
		bufferSize:      DefaultBufferSize,
		minRadixBits:    2,
		maxRadixBits:    10,
		minMultiwayBits: 2,
		maxMultiwayBits: 4,
		arrayRadixBits:  asort.DefaultRadixBits,
		radixThreshold:  asort.DefaultRadixThreshold,
		threadThreshold: asort.DefaultThreadThreshold,
		threadChunk:     asort.DefaultThreadChunk,
		ioBufferSize:    stream.DefaultBufferSize,
	}
}

func (c *config) validate() error {
	switch {
	case c.bufferSize <= 0:
		return fmt.Errorf("%w: buffer size %d", streamerrors.ErrInvalidOption, c.bufferSize)
	case c.minRadixBits > c.maxRadixBits && c.maxRadixBits > 0:
		return fmt.Errorf("%w: radix bits %d > %d", streamerrors.ErrInvalidOption, c.minRadixBits, c.maxRadixBits)
	case c.maxRadixBits > 20:
		return fmt.Errorf("%w: at most 20 radix bits", streamerrors.ErrInvalidOption)
	case c.minMultiwayBits > c.maxMultiwayBits && c.maxMultiwayBits > 0:
		return fmt.Errorf("%w: multiway bits %d > %d", streamerrors.ErrInvalidOption, c.minMultiwayBits, c.maxMultiwayBits)
	case c.maxMultiwayBits > 16:
		return fmt.Errorf("%w: at most 16 multiway bits", streamerrors.ErrInvalidOption)
	case c.arrayRadixBits == 0 || c.arrayRadixBits > 16:
		return fmt.Errorf("%w: array radix bits %d", streamerrors.ErrInvalidOption, c.arrayRadixBits)
	case c.workers < 0:
		return fmt.Errorf("%w: %d workers", streamerrors.ErrInvalidOption, c.workers)
	}
	if c.tempDir != "" {
		st, err := os.Stat(c.tempDir)
		if err != nil {
			return fmt.Errorf("%w: temp dir: %w", streamerrors.ErrInvalidOption, err)
		}
		if !st.IsDir() {
			return fmt.Errorf("%w: temp dir %s is not a directory", streamerrors.ErrInvalidOption, c.tempDir)
		}
	}
	return nil
}

// bufferBytes is the page-aligned memory budget.
func (c *config) bufferBytes() int {
	bs := int(intbits.AlignUp(uint64(c.bufferSize), pageSize))
	return max(bs, minBufferSize)
}

func (c *config) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.Default()
}

// WithBufferSize sets the memory budget in bytes. It is rounded up to a
// whole number of pages, and to at least two pages.
func WithBufferSize(n int) Option {
	return func(c *config) {
		c.bufferSize = n
	}
}

// WithRadixBits sets the range of radix split widths. A split narrower
// than lo is never attempted and hi caps every split; add extra bits are
// used beyond what the bucket size requires. Zero hi disables radix
// splitting.
func WithRadixBits(lo, hi, add uint) Option {
	return func(c *config) {
		c.minRadixBits, c.maxRadixBits, c.addRadixBits = lo, hi, add
	}
}

// WithMultiwayBits sets the range of multi-way merge widths as binary
// logarithms of the number of inputs. Zero hi disables multi-way merging.
func WithMultiwayBits(lo, hi uint) Option {
	return func(c *config) {
		c.minMultiwayBits, c.maxMultiwayBits = lo, hi
	}
}

// WithArrayRadixBits sets the window width of in-memory radix sorting.
func WithArrayRadixBits(n uint) Option {
	return func(c *config) {
		c.arrayRadixBits = n
	}
}

// WithRadixThreshold sets the size in bytes below which in-memory radix
// sorting hands over to quicksort.
func WithRadixThreshold(n int) Option {
	return func(c *config) {
		c.radixThreshold = n
	}
}

// WithWorkers sets the number of goroutines used for in-memory sorting.
// Values below 2 keep sorting single-threaded.
func WithWorkers(n int) Option {
	return func(c *config) {
		c.workers = n
	}
}

// WithThreadThreshold sets the array size in bytes below which in-memory
// sorting stays single-threaded.
func WithThreadThreshold(n int) Option {
	return func(c *config) {
		c.threadThreshold = n
	}
}

// WithThreadChunk sets the smallest radix bucket in bytes that is handed to
// another goroutine.
func WithThreadChunk(n int) Option {
	return func(c *config) {
		c.threadChunk = n
	}
}

// WithIntRange declares that integer-mode keys never exceed limit, which
// narrows the hash to the bits needed for limit.
func WithIntRange(limit uint64) Option {
	return func(c *config) {
		c.intRange = limit
		c.intRangeSet = true
	}
}

// WithTempDir sets the directory for temporary files (os.TempDir() if
// empty). It must be on a local filesystem.
func WithTempDir(dir string) Option {
	return func(c *config) {
		c.tempDir = dir
	}
}

// WithLogger sets the logger for trace messages (slog.Default() if nil).
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithTrace sets the trace verbosity: 0 is silent, 1 reports passes, 2
// sizes and timings, 3 decisions, 4 and 5 internals of each pass.
func WithTrace(level int) Option {
	return func(c *config) {
		c.trace = level
	}
}

// WithDebug sets debug flags.
func WithDebug(flags DebugFlags) Option {
	return func(c *config) {
		c.debug = flags
	}
}

// WithDeleteInput removes the input file as soon as it has been consumed.
func WithDeleteInput() Option {
	return func(c *config) {
		c.deleteInput = true
	}
}

// WithMappedInput reads FromFile inputs through a memory mapping.
func WithMappedInput() Option {
	return func(c *config) {
		c.mappedInput = true
	}
}

// WithSmallInput makes inputs of known size below n bytes use small I/O
// buffers for all temporary files.
func WithSmallInput(n int64) Option {
	return func(c *config) {
		c.smallInput = n
	}
}

// WithIOBufferSize sets the buffer size of every file read or written.
func WithIOBufferSize(n int) Option {
	return func(c *config) {
		c.ioBufferSize = n
	}
}
