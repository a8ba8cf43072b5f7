package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tamirms/streamsort"
	"github.com/tamirms/streamsort/internal/workload"
	"github.com/tamirms/streamsort/stream"
)

type sortFlags struct {
	format      string
	output      string
	unique      bool
	dedup       bool
	intRange    uint64
	deleteInput bool
	mapped      bool
}

func newSortCommand(a *app) *cobra.Command {
	var f sortFlags
	cmd := &cobra.Command{
		Use:   "sort [flags] [INPUT]",
		Short: "Sort a record file",
		Long: `Sort a record file. INPUT defaults to standard input and the result
goes to standard output unless --output is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := "-"
			if len(args) == 1 {
				input = args[0]
			}
			format, err := workload.ParseFormat(f.format)
			if err != nil {
				return err
			}
			switch format {
			case workload.U32:
				return runSort(cmd.Context(), a, &f, input, streamsort.Uint32Schema())
			case workload.U64:
				return runSort(cmd.Context(), a, &f, input, streamsort.Uint64Schema())
			default:
				return runSort(cmd.Context(), a, &f, input, streamsort.BytesSchema())
			}
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.format, "format", string(workload.U32), "record format: u32, u64 or bytes")
	fl.StringVarP(&f.output, "output", "o", "", "output file (default standard output)")
	fl.BoolVar(&f.unique, "unique", false, "declare keys distinct, checked with --debug verify")
	fl.BoolVar(&f.dedup, "dedup", false, "keep one record per key")
	fl.Uint64Var(&f.intRange, "int-range", 0, "largest integer key, narrows radix splitting")
	fl.BoolVar(&f.deleteInput, "delete-input", false, "remove the input once consumed")
	fl.BoolVar(&f.mapped, "mmap", false, "read the input through a memory mapping")
	return cmd
}

func runSort[K any](ctx context.Context, a *app, f *sortFlags, input string, schema streamsort.Schema[K]) error {
	schema.Unique = f.unique
	if f.dedup {
		writeKey := schema.WriteKey
		schema.WriteMerged = func(w *stream.Writer, keys []*K, _ [][]byte, _ []byte) error {
			return writeKey(w, keys[0])
		}
	}

	opts, err := a.cfg.options(a.log)
	if err != nil {
		return err
	}
	if f.intRange > 0 {
		opts = append(opts, streamsort.WithIntRange(f.intRange))
	}
	if f.deleteInput {
		opts = append(opts, streamsort.WithDeleteInput())
	}
	if f.mapped {
		opts = append(opts, streamsort.WithMappedInput())
	}
	s, err := streamsort.New(schema, opts...)
	if err != nil {
		return err
	}

	in := streamsort.FromFile(input)
	if input == "-" {
		in = streamsort.FromReader(a.stdin)
	}
	toStdout := f.output == "" || f.output == "-"
	out := streamsort.ToFile(f.output)
	if toStdout {
		out = streamsort.ToTemp()
	}

	start := time.Now()
	res, err := s.Sort(ctx, in, out)
	if err != nil {
		return fmt.Errorf("sort %s: %w", input, err)
	}
	if toStdout {
		if err := copyOut(a.stdout, res.File); err != nil {
			return errors.Join(err, res.File.Close())
		}
	}
	if err := res.File.Close(); err != nil {
		return err
	}

	st := res.Stats
	a.log.Info("Sorted", "input", input, "input_size", st.InputSize, "output_size", st.OutputSize,
		"runs", st.Runs, "merged", st.Merged, "merge_passes", st.MergePasses,
		"multiway_merges", st.MultiwayMerges, "radix_splits", st.RadixSplits,
		"elapsed", time.Since(start))
	return nil
}

func copyOut(w io.Writer, f *stream.File) error {
	r, err := f.Reader()
	if err != nil {
		return err
	}
	_, err = io.Copy(w, r)
	return err
}
