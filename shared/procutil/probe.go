package procutil

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// PidExists reports whether a process with the given pid currently
// exists, using the null signal. The error result is not a third truth
// value: when it is non-nil the answer is unknown, typically because the
// pid belongs to another user and the kernel said EPERM.
func PidExists(pid int) (bool, error) {
	err := unix.Kill(pid, 0)
	switch err {
	case nil:
		return true, nil
	case unix.ESRCH:
		return false, nil
	}
	return false, fmt.Errorf("probe pid %d: %v: %w", pid, err, ErrProbeFailed)
}
