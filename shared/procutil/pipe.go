package procutil

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// OpenPipe returns both ends of a fresh kernel pipe. Data written to w
// comes back out of r; the kernel's own buffering is the only buffering
// there is, so a full pipe blocks the writer and an empty one blocks the
// reader. Each end can be handed to a different process.
func OpenPipe() (r, w *os.File, err error) {
	r, w, err = os.Pipe()
	if err != nil {
		if errors.Is(err, unix.EMFILE) || errors.Is(err, unix.ENFILE) {
			return nil, nil, fmt.Errorf("pipe: %v: %w", err, ErrResourceExhausted)
		}
		return nil, nil, err
	}
	return r, w, nil
}
