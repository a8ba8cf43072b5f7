//go:build !linux

package stream

import (
	"errors"
	"os"
)

func openTmpFile(string) (*os.File, error) {
	return nil, errors.ErrUnsupported
}

func linkTmpFile(*os.File, string) error {
	return errors.ErrUnsupported
}
