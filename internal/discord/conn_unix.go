// conn_unix.go implements Discord IPC socket discovery for Unix-like systems
// (Linux, macOS, FreeBSD). It probes XDG_RUNTIME_DIR, TMPDIR, /tmp, Snap, and
// Flatpak socket paths.

//go:build !windows

package discord

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
)

// ///////////////////////////////////////////////
// Connection
// ///////////////////////////////////////////////

// socketVariants are the socket name prefixes for Discord stable, Canary, and PTB.
var socketVariants = []string{"discord-ipc", "discordcanary-ipc", "discordptb-ipc"}

// endpointPaths lists candidate socket paths in probe order. Within each
// directory the slots are tried 0 through 9.
func endpointPaths() []string {
	var dirs []string
	for _, env := range []string{"XDG_RUNTIME_DIR", "TMPDIR", "TMP", "TEMP"} {
		if dir := os.Getenv(env); dir != "" {
			dirs = append(dirs, dir)
		}
	}
	dirs = append(dirs, "/tmp")

	var paths []string
	for _, dir := range dirs {
		for _, v := range socketVariants {
			for i := range maxIPCSlots {
				paths = append(paths, filepath.Join(dir, fmt.Sprintf("%s-%d", v, i)))
			}
		}
	}

	uid := strconv.Itoa(os.Getuid())
	for _, sd := range []string{"snap.discord", "snap.discord-canary", "snap.discord-ptb"} {
		for i := range maxIPCSlots {
			paths = append(paths, fmt.Sprintf("/run/user/%s/%s/discord-ipc-%d", uid, sd, i))
		}
	}
	for _, app := range []string{"com.discordapp.Discord", "com.discordapp.DiscordCanary", "com.discordapp.DiscordPTB"} {
		for i := range maxIPCSlots {
			paths = append(paths, fmt.Sprintf("/run/user/%s/app/%s/discord-ipc-%d", uid, app, i))
		}
	}

	return append(paths, wslSocketPaths()...)
}

// connectToDiscord tries each candidate socket path and returns the first
// successful connection.
func connectToDiscord(ctx context.Context) (net.Conn, error) {
	var d net.Dialer
	seen := make(map[string]bool)
	for _, path := range endpointPaths() {
		if seen[path] {
			continue
		}
		seen[path] = true
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
		}
		conn, err := d.DialContext(ctx, "unix", path)
		if err == nil {
			return conn, nil
		}
	}

	if isWSL() {
		return nil, fmt.Errorf("%w: running under WSL, a socat + npiperelay.exe relay is required", ErrTransportUnavailable)
	}
	return nil, ErrTransportUnavailable
}
