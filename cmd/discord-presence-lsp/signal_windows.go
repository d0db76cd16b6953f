// Windows signal set for graceful shutdown.

//go:build windows

package main

import (
	"os"

	"golang.org/x/sys/windows"
)

// shutdownSignals stop the server. The Go runtime maps CTRL_BREAK_EVENT and
// console-close events to os.Interrupt; windows.SIGTERM covers callers that
// signal the process directly.
var shutdownSignals = []os.Signal{os.Interrupt, windows.SIGTERM}
