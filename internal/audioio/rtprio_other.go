//go:build !linux

package audioio

import "github.com/charmbracelet/log"

// lockRealtimeMemory is a no-op on platforms without mlockall; the render
// callback is left as exposed to page-fault stalls as the host OS allows.
func lockRealtimeMemory(logger *log.Logger) {}
