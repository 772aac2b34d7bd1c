package procutil

import (
	"github.com/go-clog/clog"

	"golang.org/x/sys/unix"
)

// ReapAsync collects the exit status of pid in the background so the
// kernel can drop its process table entry. It returns immediately and
// never blocks the caller; when pid is already gone there is nothing to
// do. Each call owns exactly one waiter goroutine and one pid, there is
// no shared registry to corrupt.
func ReapAsync(pid int) {
	alive, err := PidExists(pid)
	if err == nil && !alive {
		return
	}
	go reap(pid)
}

func reap(pid int) {
	// Somebody may have collected the pid between ReapAsync's check and
	// this goroutine getting scheduled; waiting on it then would be a
	// mistake once the kernel hands the number out again.
	if alive, err := PidExists(pid); err == nil && !alive {
		return
	}
	var status unix.WaitStatus
	for {
		_, err := unix.Wait4(pid, &status, 0, nil)
		switch err {
		case nil:
			return
		case unix.EINTR:
			continue
		case unix.ECHILD, unix.ESRCH:
			// Vanished or collected by somebody else, which is the outcome
			// we were after anyway.
			return
		default:
			clog.Warn("could not reap pid %d: %v", pid, err)
			return
		}
	}
}
