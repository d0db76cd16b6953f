package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// ///////////////////////////////////////////////
// Sentinel Errors
// ///////////////////////////////////////////////

// ErrTransportUnavailable is returned when no Discord IPC endpoint accepts a connection.
var ErrTransportUnavailable = errors.New("discord IPC not available")

// ErrTransportBroken is returned when an established connection fails mid-session.
var ErrTransportBroken = errors.New("discord IPC connection broken")

// errReceiveIdle is returned by [Transport.Receive] when the deadline passed
// before a single byte arrived. The stream is still aligned on a frame boundary.
var errReceiveIdle = errors.New("no frame before deadline")

// ///////////////////////////////////////////////
// Transport
// ///////////////////////////////////////////////

// Dialer opens a raw connection to a Discord IPC endpoint.
type Dialer func(ctx context.Context) (net.Conn, error)

// DialEndpoint tries every known IPC endpoint for the current platform and
// returns the first that accepts. Failures wrap [ErrTransportUnavailable].
func DialEndpoint(ctx context.Context) (net.Conn, error) {
	return connectToDiscord(ctx)
}

// Transport carries whole frames over a single endpoint connection.
// It has no retry logic; callers decide what to do with a broken transport.
type Transport struct {
	conn net.Conn
}

// NewTransport wraps an established connection.
func NewTransport(conn net.Conn) *Transport {
	return &Transport{conn: conn}
}

// OpenTransport dials an endpoint with dial and wraps the connection.
func OpenTransport(ctx context.Context, dial Dialer) (*Transport, error) {
	if dial == nil {
		dial = DialEndpoint
	}
	conn, err := dial(ctx)
	if err != nil {
		if errors.Is(err, ErrTransportUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}
	return NewTransport(conn), nil
}

// Send writes an encoded frame, failing if the write does not finish before timeout.
// A zero timeout means no deadline.
func (t *Transport) Send(frame []byte, timeout time.Duration) error {
	if timeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(timeout))
		defer t.conn.SetWriteDeadline(time.Time{})
	}
	if _, err := t.conn.Write(frame); err != nil {
		return fmt.Errorf("%w: write: %w", ErrTransportBroken, err)
	}
	return nil
}

// Receive reads one frame, waiting at most timeout. A zero timeout means no deadline.
// When the deadline passes with nothing read, the returned error satisfies
// [isReceiveIdle]; any other failure wraps [ErrTransportBroken] or [ErrMalformedFrame].
func (t *Transport) Receive(timeout time.Duration) (Frame, error) {
	if timeout > 0 {
		_ = t.conn.SetReadDeadline(time.Now().Add(timeout))
		defer t.conn.SetReadDeadline(time.Time{})
	}
	cr := &countingReader{r: t.conn}
	frame, err := ReadFrame(cr)
	if err == nil {
		return frame, nil
	}
	if errors.Is(err, ErrMalformedFrame) {
		return Frame{}, err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() && cr.n == 0 {
		return Frame{}, errReceiveIdle
	}
	return Frame{}, fmt.Errorf("%w: read: %w", ErrTransportBroken, err)
}

// Close releases the connection.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// isReceiveIdle reports whether err means the remote simply had nothing to say.
func isReceiveIdle(err error) bool {
	return errors.Is(err, errReceiveIdle)
}

// countingReader tracks how many bytes have been consumed from r.
type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}
