//go:build linux

package stream

import (
	"os"

	"golang.org/x/sys/unix"
)

// fadviseSequential hints to the kernel that f will be read from the start
// to the end. Applied whenever a file is rewound for reading.
// Best-effort: errors are silently ignored.
func fadviseSequential(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}
