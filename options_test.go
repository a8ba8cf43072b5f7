package streamsort

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	streamerrors "github.com/tamirms/streamsort/errors"
)

func TestDebugFlags(t *testing.T) {
	require.Equal(t, "none", DebugFlags(0).String())
	require.Equal(t, "no-radix,verify", (DebugNoRadix | DebugVerify).String())

	all := DebugNoPresort | DebugNoJoin | DebugNoRadix | DebugNoMultiway |
		DebugArrayNoRadix | DebugArrayNoThreads | DebugKeepBuckets | DebugVerify
	got, err := ParseDebugFlags(all.String())
	require.NoError(t, err)
	require.Equal(t, all, got)

	got, err = ParseDebugFlags(" no-join , array-no-threads,,")
	require.NoError(t, err)
	require.Equal(t, DebugNoJoin|DebugArrayNoThreads, got)

	got, err = ParseDebugFlags("none")
	require.NoError(t, err)
	require.Zero(t, got)

	_, err = ParseDebugFlags("no-radix,bogus")
	require.ErrorIs(t, err, streamerrors.ErrInvalidOption)
}

func TestInvalidOptions(t *testing.T) {
	file := writeFile(t, []byte("x"))
	tests := []struct {
		name string
		opt  Option
	}{
		{"NegativeWorkers", WithWorkers(-1)},
		{"ZeroBuffer", WithBufferSize(0)},
		{"RadixRangeInverted", WithRadixBits(6, 4, 0)},
		{"RadixTooWide", WithRadixBits(2, 21, 0)},
		{"MultiwayRangeInverted", WithMultiwayBits(5, 3)},
		{"MultiwayTooWide", WithMultiwayBits(2, 17)},
		{"ArrayRadixZero", WithArrayRadixBits(0)},
		{"MissingTempDir", WithTempDir(filepath.Join(t.TempDir(), "missing"))},
		{"TempDirIsFile", WithTempDir(file)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(Uint32Schema(), tc.opt)
			require.ErrorIs(t, err, streamerrors.ErrInvalidOption)
		})
	}
}

func TestBufferRounding(t *testing.T) {
	cfg := defaultConfig()
	WithBufferSize(1)(cfg)
	require.Equal(t, minBufferSize, cfg.bufferBytes())

	WithBufferSize(3*pageSize + 1)(cfg)
	require.Equal(t, 4*pageSize, cfg.bufferBytes())

	require.Equal(t, DefaultBufferSize, defaultConfig().bufferBytes())
}

func TestDisabledStrategies(t *testing.T) {
	// Zero upper bounds switch radix splitting and multi-way merging off
	// without failing validation.
	_, err := New(Uint32Schema(), WithRadixBits(2, 0, 0), WithMultiwayBits(2, 0))
	require.NoError(t, err)
}
