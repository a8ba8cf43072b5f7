// Package errors defines all exported error sentinels for the streamsort library.
//
// This is the single source of truth for error values. The top-level
// streamsort package, the stream package and internal packages import from
// here, so errors.Is checks work across package boundaries.
package errors

import (
	"errors"
	"fmt"
)

// Configuration errors
var (
	ErrInvalidSchema = errors.New("streamsort: invalid schema")
	ErrInvalidOption = errors.New("streamsort: invalid option")
	ErrInvalidInput  = errors.New("streamsort: invalid input")
	ErrInvalidOutput = errors.New("streamsort: invalid output")
)

// Schema errors, each wrapping ErrInvalidSchema.
var (
	ErrHashTooWide    = fmt.Errorf("%w: hash width exceeds 64 bits", ErrInvalidSchema)
	ErrPointerKey     = fmt.Errorf("%w: regular key type must not contain pointers", ErrInvalidSchema)
	ErrMissingReducer = fmt.Errorf("%w: unification requires a streaming reducer (CopyMerged)", ErrInvalidSchema)
)

// Sort errors
var (
	ErrBufferTooSmall  = errors.New("streamsort: sort buffer cannot hold a single record")
	ErrTruncatedRecord = errors.New("streamsort: stream ended inside a record")
	ErrDuplicateKey    = errors.New("streamsort: duplicate key under unique constraint")
	ErrUnsortedRun     = errors.New("streamsort: records out of order")
)

// Stream errors
var (
	ErrClosed      = errors.New("streamsort: stream is closed")
	ErrNotReadable = errors.New("streamsort: stream is not open for reading")
	ErrNotWritable = errors.New("streamsort: stream is not open for writing")
	ErrNotSeekable = errors.New("streamsort: stream cannot be rewound")
)
