//go:build linux

package audioio

import (
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"
)

var lockOnce sync.Once

// lockRealtimeMemory pins the process's current and future pages into RAM
// with mlockall(MCL_CURRENT|MCL_FUTURE), the standard way a real-time audio
// callback avoids a page fault stalling it mid-render.
// It is best-effort: without CAP_IPC_LOCK (or running as non-root) the call
// fails on most distributions, which only means the callback remains as
// exposed to paging stalls as it already was — never fatal to playback.
func lockRealtimeMemory(logger *log.Logger) {
	lockOnce.Do(func() {
		if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
			logger.Debug("mlockall unavailable, render callback remains subject to page faults", "err", err)
			return
		}
		logger.Debug("process memory locked for real-time audio callback")
	})
}
