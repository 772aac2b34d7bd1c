package procutil

import (
	"fmt"
	"sort"

	"golang.org/x/sys/unix"
)

// DefaultFenceLimit is how far CloseAllFDs scans. The fixed value predates
// dynamic descriptor limits and keeps the scan cheap; callers running with
// a raised RLIMIT_NOFILE can pass FenceLimitFromOS to CloseFDsUpTo instead.
const DefaultFenceLimit = 1024

// FdHolder is satisfied by *os.File and anything else that can surface the
// descriptor it wraps.
type FdHolder interface {
	Fd() uintptr
}

// CloseAllFDs closes every descriptor below DefaultFenceLimit except the
// ones given, which may be raw ints or FdHolder values. Stdout and stderr
// are always kept. Descriptors that were never open are skipped silently;
// an argument that is not a descriptor reference fails the whole call with
// ErrBadDescriptor before anything is closed.
func CloseAllFDs(except ...interface{}) error {
	return CloseFDsUpTo(DefaultFenceLimit, except...)
}

// CloseFDsUpTo is CloseAllFDs with an explicit scan limit.
func CloseFDsUpTo(limit int, except ...interface{}) error {
	keep, err := resolveFDs(except)
	if err != nil {
		return err
	}
	for _, r := range fdGapRanges(keep, limit) {
		for fd := r[0]; fd < r[1]; fd++ {
			unix.Close(fd) // EBADF for never-opened descriptors, nothing to do
		}
	}
	return nil
}

// FenceLimitFromOS returns the soft RLIMIT_NOFILE, the highest descriptor
// number the process can currently hold.
func FenceLimitFromOS() int {
	var lim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		return DefaultFenceLimit
	}
	return int(lim.Cur)
}

// resolveFDs normalizes the mixed references into one sorted keep set up
// front, so an unusable argument is caught while every descriptor is still
// intact.
func resolveFDs(refs []interface{}) ([]int, error) {
	keep := []int{1, 2}
	for _, ref := range refs {
		switch v := ref.(type) {
		case int:
			keep = append(keep, v)
		case FdHolder:
			keep = append(keep, int(v.Fd()))
		default:
			return nil, fmt.Errorf("fence: %T is %w", ref, ErrBadDescriptor)
		}
	}
	sort.Ints(keep)
	return keep, nil
}

// fdGapRanges returns the half-open [lo,hi) ranges covering every
// descriptor below limit that is not in keep. keep must be sorted.
func fdGapRanges(keep []int, limit int) [][2]int {
	var ranges [][2]int
	next := 0
	for _, fd := range keep {
		if fd >= limit {
			break
		}
		if fd < next {
			// duplicate or already covered
			continue
		}
		if fd > next {
			ranges = append(ranges, [2]int{next, fd})
		}
		next = fd + 1
	}
	if next < limit {
		ranges = append(ranges, [2]int{next, limit})
	}
	return ranges
}
