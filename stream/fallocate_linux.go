//go:build linux

package stream

import (
	"os"

	"golang.org/x/sys/unix"
)

// reserveSpace reserves length bytes of disk blocks starting at offset
// without changing the visible file size, so that a long append fails
// early instead of in the middle.
func reserveSpace(file *os.File, offset, length int64) error {
	return unix.Fallocate(int(file.Fd()), unix.FALLOC_FL_KEEP_SIZE, offset, length)
}
