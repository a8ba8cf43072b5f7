package main

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func execute(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rc := newRootCommand(stdin, &stdout, &stderr)
	rc.SetArgs(args)
	err := rc.ExecuteContext(t.Context())
	return stdout.String(), err
}

func TestGenSortVerify(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.bin")
	out := filepath.Join(dir, "out.bin")

	_, err := execute(t, nil, "gen", "--format", "u32", "--count", "200000", "--seed", "3", "-o", in)
	require.NoError(t, err)
	_, err = execute(t, nil, "sort", "--format", "u32", "--sort-buffer", "65536", "--temp-dir", dir, "-o", out, in)
	require.NoError(t, err)

	stdout, err := execute(t, nil, "verify", "--format", "u32", "--against", in, out)
	require.NoError(t, err)
	require.Contains(t, stdout, "sorted, 200000 records")

	_, err = execute(t, nil, "verify", "--format", "u32", in)
	require.Error(t, err)
}

func TestSortDedupBytes(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.bin")
	out := filepath.Join(dir, "out.bin")

	_, err := execute(t, nil, "gen", "--format", "bytes", "--count", "50000", "--range", "1000", "-o", in)
	require.NoError(t, err)
	_, err = execute(t, nil, "sort", "--format", "bytes", "--dedup", "--sort-buffer", "65536",
		"--temp-dir", dir, "-o", out, in)
	require.NoError(t, err)

	stdout, err := execute(t, nil, "verify", "--format", "bytes", "--strict", out)
	require.NoError(t, err)
	require.Contains(t, stdout, "sorted, 1000 records")

	_, err = execute(t, nil, "verify", "--format", "bytes", "--against", in, out)
	require.Error(t, err)
}

func TestSortPipe(t *testing.T) {
	generated, err := execute(t, nil, "gen", "--format", "u64", "--order", "decreasing", "--count", "5000")
	require.NoError(t, err)
	require.Len(t, generated, 8*5000)

	sorted, err := execute(t, bytes.NewReader([]byte(generated)), "sort", "--format", "u64",
		"--temp-dir", t.TempDir())
	require.NoError(t, err)
	require.Len(t, sorted, 8*5000)
	for i := 0; i < 5000; i++ {
		require.Equal(t, uint64(i), binary.LittleEndian.Uint64([]byte(sorted[8*i:])))
	}
}

func TestConfigLayering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streamsort.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`sorter:
  sort_buffer: 131072
  threads: 3
  debug: no-radix
log:
  level: debug
`), 0o644))
	t.Setenv("STREAMSORT_SORTER_THREADS", "5")

	stdout, err := execute(t, nil, "config", "-c", path, "--trace", "2")
	require.NoError(t, err)

	var cfg config
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &cfg))
	require.Equal(t, 131072, cfg.Sorter.SortBuffer)
	require.Equal(t, 5, cfg.Sorter.Threads)
	require.Equal(t, 2, cfg.Sorter.Trace)
	require.Equal(t, "no-radix", cfg.Sorter.Debug)
	require.Equal(t, uint(10), cfg.Sorter.MaxRadixBits)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestConfigRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streamsort.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sorter:\n  bogus: 1\n"), 0o644))
	_, err := execute(t, nil, "config", "-c", path)
	require.ErrorContains(t, err, "invalid option")
}

func TestLogFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.bin")
	logPath := filepath.Join(dir, "sort.log")
	_, err := execute(t, nil, "gen", "--count", "1000", "-o", in)
	require.NoError(t, err)
	_, err = execute(t, nil, "sort", "--log-file", logPath, "--temp-dir", dir,
		"-o", filepath.Join(dir, "out.bin"), in)
	require.NoError(t, err)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"Sorted"`)
}

func TestInvalidDebugFlag(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.bin")
	_, err := execute(t, nil, "gen", "--count", "10", "-o", in)
	require.NoError(t, err)
	_, err = execute(t, nil, "sort", "--debug", "sideways", "-o", filepath.Join(dir, "out.bin"), in)
	require.ErrorContains(t, err, "unknown debug flag")
}
