//go:build darwin

package stream

import (
	"os"

	"golang.org/x/sys/unix"
)

// reserveSpace reserves length bytes past the end of file.
// F_PREALLOCATE only reserves space; the file size is left unchanged.
func reserveSpace(file *os.File, _, length int64) error {
	fst := unix.Fstore_t{
		Flags:   unix.F_ALLOCATEALL,
		Posmode: unix.F_PEOFPOSMODE,
		Offset:  0,
		Length:  length,
	}
	return unix.FcntlFstore(file.Fd(), unix.F_PREALLOCATE, &fst)
}
