// Package execenv prepares the process for running chaind.
package execenv

import (
	"runtime"
	"runtime/debug"
)

// gcPercent bounds heap growth over the live ledger cache.
const gcPercent = 20

// Initialize initializes the execution environment required to run chaind.
func Initialize() {
	// Use all processor cores.
	runtime.GOMAXPROCS(runtime.NumCPU())

	debug.SetGCPercent(gcPercent)
}
