package procutil

import (
	"errors"
	"os"
	"sort"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func Test_FdGapRanges(t *testing.T) {
	Convey("Gap ranges skip every kept descriptor and stop at the limit", t, func() {
		testCases := []struct {
			Keep   []int
			Limit  int
			Ranges [][2]int
		}{
			{[]int{1, 2}, 1024, [][2]int{{0, 1}, {3, 1024}}},
			{[]int{0, 1, 2}, 1024, [][2]int{{3, 1024}}},
			{[]int{1, 2, 5, 9}, 16, [][2]int{{0, 1}, {3, 5}, {6, 9}, {10, 16}}},
			// duplicates collapse
			{[]int{1, 2, 2, 5, 5}, 16, [][2]int{{0, 1}, {3, 5}, {6, 16}}},
			// keeping something beyond the limit changes nothing below it
			{[]int{1, 2, 2000}, 1024, [][2]int{{0, 1}, {3, 1024}}},
			{[]int{1, 2, 1023}, 1024, [][2]int{{0, 1}, {3, 1023}}},
			// keep set covering the whole scan
			{[]int{0, 1, 2}, 3, nil},
		}

		for _, tc := range testCases {
			So(fdGapRanges(tc.Keep, tc.Limit), ShouldResemble, tc.Ranges)
		}
	})

	Convey("Every descriptor below the limit lands in exactly one range or the keep set", t, func() {
		keep := []int{1, 2, 4, 7, 300}
		ranges := fdGapRanges(keep, 512)

		seen := make(map[int]int)
		for _, r := range ranges {
			So(r[0], ShouldBeLessThan, r[1])
			for fd := r[0]; fd < r[1]; fd++ {
				seen[fd]++
			}
		}

		kept := map[int]bool{1: true, 2: true, 4: true, 7: true, 300: true}
		for fd := 0; fd < 512; fd++ {
			if kept[fd] {
				So(seen[fd], ShouldEqual, 0)
			} else {
				So(seen[fd], ShouldEqual, 1)
			}
		}
	})
}

func Test_ResolveFDs(t *testing.T) {
	Convey("Raw ints and Fd holders normalize into one sorted keep set", t, func() {
		f, err := os.Open(os.DevNull)
		So(err, ShouldBeNil)
		defer f.Close()

		keep, err := resolveFDs([]interface{}{5, f, 3})
		So(err, ShouldBeNil)
		So(sort.IntsAreSorted(keep), ShouldBeTrue)
		So(keep, ShouldContain, 1)
		So(keep, ShouldContain, 2)
		So(keep, ShouldContain, 3)
		So(keep, ShouldContain, 5)
		So(keep, ShouldContain, int(f.Fd()))
	})

	Convey("Stdout and stderr are kept even with no arguments at all", t, func() {
		keep, err := resolveFDs(nil)
		So(err, ShouldBeNil)
		So(keep, ShouldResemble, []int{1, 2})
	})

	Convey("Anything else is rejected before a single descriptor is touched", t, func() {
		probe, err := os.Open(os.DevNull)
		So(err, ShouldBeNil)
		defer probe.Close()

		// a careless fence would close probe before hitting the bad argument
		err = CloseFDsUpTo(int(probe.Fd())+1, "not a descriptor")
		So(errors.Is(err, ErrBadDescriptor), ShouldBeTrue)

		_, err = probe.Stat()
		So(err, ShouldBeNil)
	})

	Convey("A fence whose keep set covers the scan closes nothing", t, func() {
		So(CloseFDsUpTo(3, 0), ShouldBeNil)
	})
}

func Test_FenceLimitFromOS(t *testing.T) {
	Convey("The OS limit is a usable scan bound", t, func() {
		So(FenceLimitFromOS(), ShouldBeGreaterThan, 2)
	})
}
