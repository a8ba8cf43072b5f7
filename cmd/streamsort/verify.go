package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tamirms/streamsort"
	"github.com/tamirms/streamsort/internal/workload"
	"github.com/tamirms/streamsort/stream"
)

type verifyFlags struct {
	format  string
	strict  bool
	against string
}

func newVerifyCommand(a *app) *cobra.Command {
	var f verifyFlags
	cmd := &cobra.Command{
		Use:   "verify [flags] FILE",
		Short: "Check that a record file is sorted",
		Long: `Check that the keys of FILE never decrease and print its digest. With
--against, also check that FILE holds exactly the records of another file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			format, err := workload.ParseFormat(f.format)
			if err != nil {
				return err
			}
			switch format {
			case workload.U32:
				return runVerify(a, &f, args[0], streamsort.Uint32Schema())
			case workload.U64:
				return runVerify(a, &f, args[0], streamsort.Uint64Schema())
			default:
				return runVerify(a, &f, args[0], streamsort.BytesSchema())
			}
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.format, "format", string(workload.U32), "record format: u32, u64 or bytes")
	fl.BoolVar(&f.strict, "strict", false, "also reject duplicate keys")
	fl.StringVar(&f.against, "against", "", "file expected to hold the same records in any order")
	return cmd
}

func runVerify[K any](a *app, f *verifyFlags, path string, schema streamsort.Schema[K]) error {
	d, err := digestFile(path, func(r *stream.Reader) (streamsort.Digest, error) {
		return streamsort.Verify(schema, r, f.strict)
	})
	if err != nil {
		return err
	}
	if f.against != "" {
		want, err := digestFile(f.against, func(r *stream.Reader) (streamsort.Digest, error) {
			return streamsort.DigestOf(schema, r)
		})
		if err != nil {
			return err
		}
		if d != want {
			return fmt.Errorf("%s does not hold the records of %s: %v, want %v", path, f.against, d, want)
		}
	}
	a.log.Debug("Verified", "file", path, "records", d.Count)
	_, err = fmt.Fprintf(a.stdout, "%s: sorted, %v\n", path, d)
	return err
}

func digestFile(path string, fn func(*stream.Reader) (streamsort.Digest, error)) (streamsort.Digest, error) {
	file, err := stream.Open(path, 0)
	if err != nil {
		return streamsort.Digest{}, err
	}
	r, err := file.Reader()
	if err != nil {
		return streamsort.Digest{}, errors.Join(err, file.Close())
	}
	d, err := fn(r)
	if err != nil {
		err = fmt.Errorf("%s: %w", path, err)
	}
	return d, errors.Join(err, file.Close())
}
