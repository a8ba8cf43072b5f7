package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/tamirms/streamsort/internal/workload"
	"github.com/tamirms/streamsort/stream"
)

type genFlags struct {
	format string
	order  string
	count  int64
	seed   uint32
	limit  uint64
	output string
}

func newGenCommand(a *app) *cobra.Command {
	var f genFlags
	cmd := &cobra.Command{
		Use:   "gen [flags]",
		Short: "Generate a deterministic record file",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			format, err := workload.ParseFormat(f.format)
			if err != nil {
				return err
			}
			order, err := workload.ParseOrder(f.order)
			if err != nil {
				return err
			}
			cfg := workload.Config{Format: format, Order: order, Count: f.count, Seed: f.seed, Range: f.limit}
			if err := generate(a, cfg, f.output); err != nil {
				return err
			}
			a.log.Debug("Generated", "format", format, "order", order, "count", f.count)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.format, "format", string(workload.U32), "record format: u32, u64 or bytes")
	fl.StringVar(&f.order, "order", string(workload.Random), "key order: random, increasing or decreasing")
	fl.Int64Var(&f.count, "count", 1_000_000, "number of records")
	fl.Uint32Var(&f.seed, "seed", 1, "seed of random keys")
	fl.Uint64Var(&f.limit, "range", 0, "random keys stay below this value when non-zero")
	fl.StringVarP(&f.output, "output", "o", "", "output file (default standard output)")
	return cmd
}

func generate(a *app, cfg workload.Config, path string) error {
	if path == "" || path == "-" {
		w := stream.NewWriter(a.stdout, 0)
		if err := workload.Write(w, cfg); err != nil {
			return err
		}
		return w.Flush()
	}
	f, err := stream.Create(path, 0)
	if err != nil {
		return err
	}
	w, err := f.Writer()
	if err != nil {
		return errors.Join(err, f.Close())
	}
	if err := workload.Write(w, cfg); err != nil {
		return errors.Join(err, f.Close())
	}
	return f.Close()
}
