// Unix/Darwin signal set for graceful shutdown.

//go:build !windows

package main

import (
	"os"
	"syscall"
)

// shutdownSignals stop the server: SIGINT from a terminal and SIGTERM from
// editors and process managers.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
