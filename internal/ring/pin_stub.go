//go:build !linux

package ring

import "runtime"

// Pin locks the calling goroutine to its OS thread. Core affinity needs
// sched_setaffinity(2) and is a no-op off Linux.
func Pin(core int) (unpin func(), err error) {
	_ = core
	runtime.LockOSThread()
	return runtime.UnlockOSThread, nil
}
