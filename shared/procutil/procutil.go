// Package procutil carries the process plumbing the bundling pipeline is
// built on: fencing off inherited descriptors, opening pipes, launching
// worker processes and collecting what is left of them afterwards.
package procutil

import "errors"

// Error kinds returned by this package. Callers pick them apart with
// errors.Is; the wrapped message carries the detail.
var (
	// ErrBadDescriptor means a fence argument was neither a raw descriptor
	// nor a value exposing one.
	ErrBadDescriptor = errors.New("not a file descriptor reference")

	// ErrResourceExhausted means the kernel refused to hand out another
	// descriptor.
	ErrResourceExhausted = errors.New("out of file descriptors")

	// ErrSpawnFailed means no worker process came into existence.
	ErrSpawnFailed = errors.New("could not create worker process")

	// ErrProbeFailed means liveness of a pid could not be determined either
	// way.
	ErrProbeFailed = errors.New("could not probe process")
)
