package streamsort

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	streamerrors "github.com/tamirms/streamsort/errors"
	"github.com/tamirms/streamsort/stream"
)

// PresortFunc produces the input of a sort itself. Each call writes one
// sorted run of records to w, using buf as it likes, and reports whether
// more runs follow. A call may write nothing, for example when the input
// turns out to be exhausted.
type PresortFunc func(w *stream.Writer, buf []byte) (bool, error)

// Input selects where a sort reads its records from.
type Input struct {
	path    string
	file    *stream.File
	reader  io.Reader
	presort PresortFunc
}

// FromFile reads records from the named file.
func FromFile(path string) Input { return Input{path: path} }

// FromStream reads records from f, starting at its beginning. The sort
// takes ownership of f and closes it.
func FromStream(f *stream.File) Input { return Input{file: f} }

// FromReader reads records from an unseekable source of unknown length.
// The reader is not closed.
func FromReader(r io.Reader) Input { return Input{reader: r} }

// FromPresorter takes records from fn, which replaces the in-memory
// presorting pass.
func FromPresorter(fn PresortFunc) Input { return Input{presort: fn} }

// Output selects where a sort writes its result.
type Output struct {
	path string
	file *stream.File
}

// ToFile writes the result to the named file, replacing it.
func ToFile(path string) Output { return Output{path: path} }

// ToTemp writes the result to a temporary file, removed when the returned
// File is closed.
func ToTemp() Output { return Output{} }

// ToStream appends the result to f. f stays owned by the caller and is
// not closed, even on failure.
func ToStream(f *stream.File) Output { return Output{file: f} }

// Result is the outcome of a successful sort.
type Result struct {
	// File holds the sorted records and is positioned at their start. The
	// caller must close it; for ToStream it is the caller's file.
	File  *stream.File
	Stats Stats
}

// Sorter sorts streams of records described by a Schema. A Sorter is
// immutable and safe for concurrent use; every Sort call uses its own
// buffers and temporary files.
type Sorter[K any] struct {
	codec *codec[K]
	cfg   *config
}

// New returns a Sorter for records described by schema.
func New[K any](schema Schema[K], opts ...Option) (*Sorter[K], error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cd, err := newCodec(schema, cfg.intRange, cfg.intRangeSet)
	if err != nil {
		return nil, err
	}
	if cd.fixed && fixedCapacity(cd, cfg) == 0 {
		return nil, fmt.Errorf("%w: %d bytes cannot hold a %d-byte key",
			streamerrors.ErrBufferTooSmall, cfg.bufferBytes(), cd.keyBytes)
	}
	return &Sorter[K]{codec: cd, cfg: cfg}, nil
}

// Sort reads all records of in, sorts them and writes them to out.
//
// The context is checked between passes; a cancelled sort removes its
// temporary files and returns the context's error. The input is always
// consumed or closed, even on failure.
func (s *Sorter[K]) Sort(ctx context.Context, in Input, out Output) (*Result, error) {
	src, err := s.openInput(in)
	if err != nil {
		return nil, err
	}
	c := &sortContext[K]{
		sortState: sortState{
			ctx:   ctx,
			cfg:   s.cfg,
			log:   s.cfg.log(),
			ioBuf: s.cfg.ioBufferSize,
		},
		codec:  s.codec,
		custom: in.presort,
	}
	if s.codec.fixed {
		c.pass = newFixedPass(c)
	} else {
		c.pass = newVarPass(c)
	}

	srcBucket := c.newBucket("in", src.flags)
	srcBucket.file, srcBucket.size, srcBucket.hashBits = src.file, src.size, s.codec.hashBits
	c.stats.InputSize = src.size
	if src.size == unknownSize {
		c.stats.InputSize = -1
	} else if src.size < s.cfg.smallInput {
		c.ioBuf = smallIOBufferSize
	}

	final := c.newBucket("out", bucketFinal)
	final.runs = 1
	switch {
	case out.file != nil:
		final.file = out.file
		final.flags |= bucketBorrowed | bucketOpenWrite
	case out.path != "":
		c.outDir = filepath.Dir(out.path)
	}

	c.trace(2, "Sorting", "input", src.size, "buffer", s.cfg.bufferBytes(), "hash_bits", s.codec.hashBits)
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(err, c.releaseAll())
	}
	if err := c.run(srcBucket, final); err != nil {
		return nil, errors.Join(err, c.releaseAll())
	}
	f, err := c.finish(out)
	if err != nil {
		return nil, errors.Join(err, c.releaseAll())
	}
	c.stats.OutputSize = f.Size()
	c.trace(2, "Final size", "size", c.stats.OutputSize, "runs", c.stats.Runs,
		"merged", c.stats.Merged)
	c.trace(2, "Final timings", "presort", c.stats.PresortTime,
		"internal", c.stats.InternalTime, "external", c.stats.ExternalTime)
	return &Result{File: f, Stats: c.stats}, nil
}

type openedInput struct {
	file  *stream.File
	size  int64
	flags bucketFlags
}

func (s *Sorter[K]) openInput(in Input) (openedInput, error) {
	bufSize := s.cfg.ioBufferSize
	var (
		f   *stream.File
		err error
	)
	switch {
	case in.presort != nil:
		return openedInput{size: unknownSize, flags: bucketSource | bucketCustomPresort}, nil
	case in.path != "":
		if s.cfg.mappedInput {
			f, err = stream.OpenMapped(in.path, bufSize)
		} else {
			f, err = stream.Open(in.path, bufSize)
		}
		if err != nil {
			return openedInput{}, fmt.Errorf("%w: %w", streamerrors.ErrInvalidInput, err)
		}
	case in.file != nil:
		f = in.file
		if _, err := f.Rewind(); err != nil {
			return openedInput{}, fmt.Errorf("%w: %w", streamerrors.ErrInvalidInput, err)
		}
	case in.reader != nil:
		f = stream.FromReader(in.reader, bufSize)
	default:
		return openedInput{}, fmt.Errorf("%w: no input given", streamerrors.ErrInvalidInput)
	}
	if s.cfg.deleteInput {
		f.SetTemp(true)
	}
	size := f.Size()
	if size < 0 {
		size = unknownSize
	}
	return openedInput{file: f, size: size, flags: bucketSource | bucketOpenRead}, nil
}

// finish hands the final bucket over as the result, rewound for reading.
func (c *sortContext[K]) finish(out Output) (*stream.File, error) {
	final := c.list[0]
	if !final.hasFile() {
		if _, err := c.write(final); err != nil {
			return nil, err
		}
	}
	f := final.file
	if out.path != "" {
		if err := f.Persist(out.path); err != nil {
			return nil, fmt.Errorf("%w: %w", streamerrors.ErrInvalidOutput, err)
		}
	}
	if _, err := f.Rewind(); err != nil {
		return nil, err
	}
	return f, nil
}
