//go:build !linux

package stream

import "os"

// fadviseSequential is a no-op on non-Linux platforms.
func fadviseSequential(*os.File) {}
