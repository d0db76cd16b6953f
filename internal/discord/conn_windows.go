// conn_windows.go implements Discord IPC endpoint discovery for Windows.
// It connects via named pipes (\\.\pipe\discord-ipc-N) using the go-winio
// library.

//go:build windows

package discord

import (
	"context"
	"fmt"
	"net"

	"github.com/Microsoft/go-winio"
)

// endpointPaths lists the named pipe slots in probe order.
func endpointPaths() []string {
	paths := make([]string, 0, maxIPCSlots)
	for i := range maxIPCSlots {
		paths = append(paths, fmt.Sprintf(`\\.\pipe\discord-ipc-%d`, i))
	}
	return paths
}

// connectToDiscord tries each Discord named pipe slot and returns the first
// successful connection.
func connectToDiscord(ctx context.Context) (net.Conn, error) {
	for _, path := range endpointPaths() {
		conn, err := winio.DialPipeContext(ctx, path)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrTransportUnavailable, ctx.Err())
		}
	}
	return nil, ErrTransportUnavailable
}
