// Bench is a benchmarking tool for measuring streamsort throughput and
// memory usage over generated workloads.
//
// Usage:
//
//	go run ./cmd/bench -records 10000000 -format u64 -buffer 67108864
//
// Flags:
//
//	-records   Number of records to sort (default: 10,000,000)
//	-format    Record format: u32, u64 or bytes (default: u64)
//	-order     Key order: random, increasing or decreasing (default: random)
//	-range     Keep random keys below this value, 0 for no limit (default: 0)
//	-buffer    Sort buffer in bytes (default: 64 MiB)
//	-workers   Goroutines for in-memory sorting (default: 1)
//	-debug     Comma-separated debug flags (default: none)
//	-verify    Check the output order and digest (default: true)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/metrics"
	"runtime/pprof"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/tamirms/streamsort"
	"github.com/tamirms/streamsort/internal/workload"
	"github.com/tamirms/streamsort/stream"
)

// getMaxRSS returns the maximum resident set size in bytes.
// Uses getrusage(RUSAGE_SELF) which tracks peak RSS since process start.
func getMaxRSS() uint64 {
	var rusage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &rusage); err != nil {
		return 0
	}
	// On macOS, MaxRss is in bytes. On Linux, it's in kilobytes.
	maxRSS := uint64(rusage.Maxrss)
	if runtime.GOOS == "linux" {
		maxRSS *= 1024
	}
	return maxRSS
}

// peakSampler tracks peak heap and RSS at 10ms intervals. It reads
// runtime/metrics rather than ReadMemStats to avoid stop-the-world pauses
// that distort CPU profiles.
type peakSampler struct {
	baseAlloc uint64
	baseRSS   uint64
	alloc     atomic.Uint64
	rss       atomic.Uint64
	done      chan struct{}
}

func startSampler() *peakSampler {
	runtime.GC()
	time.Sleep(50 * time.Millisecond)
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	p := &peakSampler{baseAlloc: ms.Alloc, baseRSS: getMaxRSS(), done: make(chan struct{})}
	p.alloc.Store(p.baseAlloc)
	p.rss.Store(p.baseRSS)
	go func() {
		samples := []metrics.Sample{{Name: "/memory/classes/heap/objects:bytes"}}
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-p.done:
				return
			case <-ticker.C:
				metrics.Read(samples)
				raise(&p.alloc, samples[0].Value.Uint64())
				raise(&p.rss, getMaxRSS())
			}
		}
	}()
	return p
}

func raise(peak *atomic.Uint64, v uint64) {
	for {
		old := peak.Load()
		if v <= old || peak.CompareAndSwap(old, v) {
			return
		}
	}
}

// stop returns peak heap and RSS growth over the baseline.
func (p *peakSampler) stop() (heap, rss uint64) {
	close(p.done)
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	raise(&p.alloc, ms.Alloc)
	raise(&p.rss, getMaxRSS())
	return p.alloc.Load() - p.baseAlloc, p.rss.Load() - p.baseRSS
}

func main() {
	recordsFlag := flag.Int64("records", 10_000_000, "number of records")
	formatFlag := flag.String("format", "u64", "record format: u32, u64 or bytes")
	orderFlag := flag.String("order", "random", "key order: random, increasing or decreasing")
	rangeFlag := flag.Uint64("range", 0, "keep random keys below this value (0 for no limit)")
	bufferFlag := flag.Int("buffer", streamsort.DefaultBufferSize, "sort buffer in bytes")
	workersFlag := flag.Int("workers", 1, "goroutines for in-memory sorting")
	debugFlag := flag.String("debug", "", "comma-separated debug flags")
	verifyFlag := flag.Bool("verify", true, "check output order and digest")
	cpuprofile := flag.String("cpuprofile", "", "write cpu profile to file (sort phase only)")
	memprofile := flag.String("memprofile", "", "write memory profile to file (sort phase only)")
	flag.Parse()

	format, err := workload.ParseFormat(*formatFlag)
	if err != nil {
		fmt.Println(err)
		return
	}
	order, err := workload.ParseOrder(*orderFlag)
	if err != nil {
		fmt.Println(err)
		return
	}
	debug, err := streamsort.ParseDebugFlags(*debugFlag)
	if err != nil {
		fmt.Println(err)
		return
	}

	tmpDir, err := os.MkdirTemp("", "bench-")
	if err != nil {
		fmt.Printf("Failed to create temp dir: %v\n", err)
		return
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()
	inPath := filepath.Join(tmpDir, "in.bin")
	outPath := filepath.Join(tmpDir, "out.bin")

	fmt.Println("Generating records...")
	genStart := time.Now()
	wl := workload.Config{Format: format, Order: order, Count: *recordsFlag, Seed: 0x1234, Range: *rangeFlag}
	if err := generate(inPath, wl); err != nil {
		fmt.Printf("Generate failed: %v\n", err)
		return
	}
	genDuration := time.Since(genStart)

	opts := []streamsort.Option{
		streamsort.WithBufferSize(*bufferFlag),
		streamsort.WithWorkers(*workersFlag),
		streamsort.WithDebug(debug),
		streamsort.WithTempDir(tmpDir),
	}
	var r result
	switch format {
	case workload.U32:
		r, err = bench(streamsort.Uint32Schema(), inPath, outPath, *verifyFlag, *cpuprofile, *memprofile, opts)
	case workload.U64:
		r, err = bench(streamsort.Uint64Schema(), inPath, outPath, *verifyFlag, *cpuprofile, *memprofile, opts)
	default:
		r, err = bench(streamsort.BytesSchema(), inPath, outPath, *verifyFlag, *cpuprofile, *memprofile, opts)
	}
	if err != nil {
		fmt.Printf("Sort failed: %v\n", err)
		return
	}

	info, _ := os.Stat(inPath)
	mb := float64(info.Size()) / 1_000_000
	secs := r.sort.Seconds()
	st := r.stats

	fmt.Printf("\n")
	fmt.Printf("╔═════════════════════╦════════════════╦══════════════════╗\n")
	fmt.Printf("║ Format: %-12s║ Order: %-8s║                  ║\n", format, order)
	fmt.Printf("╠═════════════════════╬════════════════╬══════════════════╣\n")
	fmt.Printf("║ Metric              ║ Value          ║ Detail           ║\n")
	fmt.Printf("╠═════════════════════╬════════════════╬══════════════════╣\n")
	fmt.Printf("║ Input size          ║ %8.1f MB    ║ %10d rec  ║\n", mb, *recordsFlag)
	fmt.Printf("║ Generate time       ║ %6.2f sec     ║ -                ║\n", genDuration.Seconds())
	fmt.Printf("║ Sort time           ║ %6.2f sec     ║ -                ║\n", secs)
	fmt.Printf("║ Sort throughput     ║ %6.2f M/sec   ║ %7.1f MB/sec   ║\n", float64(*recordsFlag)/secs/1_000_000, mb/secs)
	fmt.Printf("║   - Presort         ║ %6.2f sec     ║ %6d runs      ║\n", st.PresortTime.Seconds(), st.Runs)
	fmt.Printf("║   - In memory       ║ %6.2f sec     ║ -                ║\n", st.InternalTime.Seconds())
	fmt.Printf("║   - External        ║ %6.2f sec     ║ %3d/%3d/%3d      ║\n", st.ExternalTime.Seconds(),
		st.RadixSplits, st.MultiwayMerges, st.MergePasses)
	if *verifyFlag {
		fmt.Printf("║ Verify time         ║ %6.2f sec     ║ -                ║\n", r.verify.Seconds())
	}
	fmt.Printf("║ Peak heap memory    ║ %6.1f MB      ║ -                ║\n", float64(r.heap)/1_000_000)
	fmt.Printf("║ Peak RSS memory     ║ %6.1f MB      ║ -                ║\n", float64(r.rss)/1_000_000)
	fmt.Printf("╚═════════════════════╩════════════════╩══════════════════╝\n")
	fmt.Printf("External column: radix splits / multi-way merges / merge passes\n")
}

type result struct {
	stats        streamsort.Stats
	sort, verify time.Duration
	heap, rss    uint64
}

func bench[K any](schema streamsort.Schema[K], inPath, outPath string, verify bool,
	cpuprofile, memprofile string, opts []streamsort.Option) (result, error) {
	var r result
	s, err := streamsort.New(schema, opts...)
	if err != nil {
		return r, err
	}

	var want streamsort.Digest
	if verify {
		if want, err = digest(inPath, func(rd *stream.Reader) (streamsort.Digest, error) {
			return streamsort.DigestOf(schema, rd)
		}); err != nil {
			return r, err
		}
	}

	sampler := startSampler()
	if cpuprofile != "" {
		f, err := os.Create(cpuprofile)
		if err != nil {
			return r, fmt.Errorf("could not create CPU profile: %w", err)
		}
		defer func() { _ = f.Close() }()
		if err := pprof.StartCPUProfile(f); err != nil {
			return r, fmt.Errorf("could not start CPU profile: %w", err)
		}
	}

	fmt.Println("Sorting...")
	start := time.Now()
	res, err := s.Sort(context.Background(), streamsort.FromFile(inPath), streamsort.ToFile(outPath))
	r.sort = time.Since(start)

	if cpuprofile != "" {
		pprof.StopCPUProfile()
	}
	if memprofile != "" {
		f, err := os.Create(memprofile)
		if err != nil {
			fmt.Printf("could not create memory profile: %v\n", err)
		} else {
			runtime.GC()
			if err := pprof.WriteHeapProfile(f); err != nil {
				fmt.Printf("could not write memory profile: %v\n", err)
			}
			_ = f.Close()
		}
	}
	r.heap, r.rss = sampler.stop()
	if err != nil {
		return r, err
	}
	r.stats = res.Stats
	if err := res.File.Close(); err != nil {
		return r, err
	}

	if verify {
		fmt.Println("Verifying...")
		start := time.Now()
		got, err := digest(outPath, func(rd *stream.Reader) (streamsort.Digest, error) {
			return streamsort.Verify(schema, rd, false)
		})
		if err != nil {
			return r, err
		}
		if got != want {
			return r, fmt.Errorf("output digest %v, want %v", got, want)
		}
		r.verify = time.Since(start)
	}
	return r, nil
}

func generate(path string, c workload.Config) error {
	f, err := stream.Create(path, 0)
	if err != nil {
		return err
	}
	w, err := f.Writer()
	if err != nil {
		return errors.Join(err, f.Close())
	}
	if err := workload.Write(w, c); err != nil {
		return errors.Join(err, f.Close())
	}
	return f.Close()
}

func digest(path string, fn func(*stream.Reader) (streamsort.Digest, error)) (streamsort.Digest, error) {
	f, err := stream.Open(path, 0)
	if err != nil {
		return streamsort.Digest{}, err
	}
	rd, err := f.Reader()
	if err != nil {
		return streamsort.Digest{}, errors.Join(err, f.Close())
	}
	d, err := fn(rd)
	return d, errors.Join(err, f.Close())
}
