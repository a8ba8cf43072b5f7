// Package streamsort implements a generic external sorter for streams of
// records far larger than memory, with optional unification of records
// sharing a key.
//
// The sorter keeps a list of buckets, temporary files holding sorted runs,
// and repeatedly picks a strategy for the next one based on its size and
// the memory budget: sorting in memory, radix splitting by a monotone
// hash, multi-way merging of presorted parts, or two-way merging.
//
// # Basic Usage
//
// Sorting a file of little-endian uint32 values:
//
//	s, err := streamsort.New(streamsort.Uint32Schema(), streamsort.WithBufferSize(256<<20))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := s.Sort(ctx, streamsort.FromFile("in.bin"), streamsort.ToFile("out.bin"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer res.File.Close()
//
// Records with data and unification are described by the remaining Schema
// fields:
//
//	type count struct{ Word [16]byte; N uint32 }
//	schema := streamsort.Schema[count]{
//	    Compare: func(a, b *count) int { return bytes.Compare(a.Word[:], b.Word[:]) },
//	    WriteMerged: func(w *stream.Writer, keys []*count, _ [][]byte, _ []byte) error {
//	        sum := *keys[0]
//	        for _, k := range keys[1:] {
//	            sum.N += k.N
//	        }
//	        return streamsort.WriteRaw(w, &sum)
//	    },
//	}
//
// # Package Structure
//
// The implementation is organized as follows:
//
//   - Public API: sorter.go (New, Sort, inputs and outputs), schema.go (Schema, ready schemas)
//   - Configuration: options.go (Option, With* functions, DebugFlags)
//   - Orchestration: govern.go (strategy decisions, two-way and multi-way strategies, joins)
//   - Buckets: bucket.go, context.go (per-sort state, Stats, tracing)
//   - In-memory passes: presort_fixed.go, presort_var.go, internal/asort/
//   - External passes: radix.go, twoway.go, multiway.go
//   - Verification: scan.go (Scanner, Digest, Verify)
//   - I/O: stream/ (buffered files, anonymous temporaries, mmap input)
package streamsort
