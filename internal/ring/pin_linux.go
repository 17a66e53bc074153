//go:build linux

package ring

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// Pin locks the calling goroutine to its OS thread and binds that thread to
// the given CPU core, keeping the feed and decision threads off each other's
// cache lines. A negative core only locks the thread. Returns the unpin
// function; the affinity itself is left in place, the thread is dedicated
// for the life of the process.
func Pin(core int) (unpin func(), err error) {
	runtime.LockOSThread()
	if core < 0 {
		return runtime.UnlockOSThread, nil
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}
	return runtime.UnlockOSThread, nil
}
