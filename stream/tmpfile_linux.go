//go:build linux

package stream

import (
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// openTmpFile creates an anonymous O_TMPFILE file in dir (Linux 3.11+).
// The file has no name and disappears when closed.
func openTmpFile(dir string) (*os.File, error) {
	fd, err := unix.Open(dir, unix.O_RDWR|unix.O_TMPFILE|unix.O_CLOEXEC, 0o600)
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), ""), nil
}

// linkTmpFile gives an anonymous file a name. path must not exist.
func linkTmpFile(f *os.File, path string) error {
	proc := "/proc/self/fd/" + strconv.Itoa(int(f.Fd()))
	return unix.Linkat(unix.AT_FDCWD, proc, unix.AT_FDCWD, path, unix.AT_SYMLINK_FOLLOW)
}
