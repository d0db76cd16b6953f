// conn_wsl.go adds WSL relay socket paths.
//
// Under WSL2 Discord runs on the Windows host and its named pipe is not
// reachable as a Unix socket. A relay bridges the two:
//
//	socat UNIX-LISTEN:/tmp/discord-ipc-0,fork EXEC:"npiperelay.exe -ep -s //./pipe/discord-ipc-0"
//
// The paths below are where such a relay usually creates the socket.

//go:build linux

package discord

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// isWSL reports whether the kernel release identifies a WSL host.
func isWSL() bool {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return false
	}
	release := unix.ByteSliceToString(uts.Release[:])
	return strings.Contains(strings.ToLower(release), "microsoft")
}

// wslSocketPaths returns relay socket paths when running under WSL.
func wslSocketPaths() []string {
	if !isWSL() {
		return nil
	}

	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		for i := range maxIPCSlots {
			paths = append(paths, fmt.Sprintf("%s/.discord-ipc-%d", home, i))
		}
	}
	for i := range maxIPCSlots {
		paths = append(paths, fmt.Sprintf("/mnt/wslg/runtime-dir/discord-ipc-%d", i))
	}
	return paths
}
