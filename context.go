package streamsort

import (
	"context"
	"log/slog"
	"time"

	"github.com/tamirms/streamsort/stream"
)

// Stats describes one completed sort.
type Stats struct {
	// InputSize is the input length in bytes, or -1 if it was not known
	// in advance.
	InputSize  int64
	OutputSize int64

	// Runs counts the sorted runs produced by presorting, GiantRuns those
	// holding a single record too large for memory.
	Runs      int
	GiantRuns int

	// Merged counts records removed by unification in memory.
	Merged int64

	MergePasses    int
	MultiwayMerges int
	RadixSplits    int

	PresortTime  time.Duration
	InternalTime time.Duration // in-memory sorting within presorting
	ExternalTime time.Duration // merging and splitting
}

// sortState is the key-independent part of a running sort: the bucket
// list, tracing and statistics.
type sortState struct {
	ctx    context.Context
	cfg    *config
	log    *slog.Logger
	ioBuf  int
	outDir string

	list      []*bucket
	all       []*bucket
	nextIdent int

	stats     Stats
	passStart time.Time
	lastPass  time.Duration
}

func (st *sortState) trace(level int, msg string, args ...any) {
	if st.cfg.trace < level {
		return
	}
	lvl := slog.LevelInfo
	if level >= 3 {
		lvl = slog.LevelDebug
	}
	st.log.Log(st.ctx, lvl, msg, args...)
}

func (st *sortState) tracing(level int) bool { return st.cfg.trace >= level }

func (st *sortState) startTimer() { st.passStart = time.Now() }

func (st *sortState) stopTimer(acc *time.Duration) {
	st.lastPass = time.Since(st.passStart)
	*acc += st.lastPass
}

// speed is the throughput of the last timed pass in MB/s.
func (st *sortState) speed(size int64) float64 {
	secs := st.lastPass.Seconds()
	if secs <= 0 || size <= 0 || size == unknownSize {
		return 0
	}
	return float64(size) / (1 << 20) / secs
}

// sortContext is the state of one Sort call.
type sortContext[K any] struct {
	sortState
	codec   *codec[K]
	pass    presorter
	custom  PresortFunc
	userBuf []byte

	pending    K
	hasPending bool

	// merge scratch
	mergeKeys    []*K
	mergeReaders []*stream.Reader
}
