//go:build !linux

package stream

// adviseSequential is a no-op on non-Linux platforms.
func adviseSequential([]byte) {}
