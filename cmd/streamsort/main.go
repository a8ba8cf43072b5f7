// Streamsort sorts, verifies and generates record files with the streamsort
// external sorter.
//
// Usage:
//
//	streamsort gen --format u32 --count 1000000 -o in.bin
//	streamsort sort --format u32 -o out.bin in.bin
//	streamsort verify --format u32 --against in.bin out.bin
//	streamsort config
//
// Settings are read from ./streamsort.yaml (or --config), overridden by
// STREAMSORT_* environment variables (STREAMSORT_SORTER_SORT_BUFFER and so
// on), overridden by flags.
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

// app carries the state shared by every subcommand once the configuration
// has been loaded.
type app struct {
	stdin          io.Reader
	stdout, stderr io.Writer

	cfg      *config
	log      *slog.Logger
	closeLog func() error
}

func newRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	rc := &cobra.Command{
		Use:           "streamsort",
		Short:         "External sorting of record files far larger than memory",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log, closeLog, err := newLogger(cfg.Log, a.stderr)
			if err != nil {
				return err
			}
			a.cfg, a.log, a.closeLog = cfg, log, closeLog
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}
	addConfigFlags(rc)

	rc.AddCommand(newSortCommand(a))
	rc.AddCommand(newVerifyCommand(a))
	rc.AddCommand(newGenCommand(a))
	rc.AddCommand(newConfigCommand(a))

	rc.SetIn(stdin)
	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

func (a *app) close() error {
	if a.closeLog == nil {
		return nil
	}
	err := a.closeLog()
	a.closeLog = nil
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rc := newRootCommand(os.Stdin, os.Stdout, os.Stderr)
	if err := rc.ExecuteContext(ctx); err != nil {
		slog.Error("streamsort failed", "error", err)
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}
