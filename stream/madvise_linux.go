//go:build linux

package stream

import "golang.org/x/sys/unix"

// adviseSequential enables aggressive readahead on a mapped input.
// Best-effort: errors are silently ignored.
func adviseSequential(data []byte) {
	if len(data) == 0 {
		return
	}
	_ = unix.Madvise(data, unix.MADV_SEQUENTIAL)
}
