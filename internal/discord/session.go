// Package discord speaks Discord's local IPC protocol: the binary frame
// codec, endpoint discovery, and a [Session] that performs the handshake
// and issues SET_ACTIVITY commands.
//
// Platform-specific endpoint discovery lives in conn_unix.go,
// conn_windows.go, and conn_wsl.go.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"
)

// ///////////////////////////////////////////////
// Sentinel Errors
// ///////////////////////////////////////////////

// ErrNotConnected is returned when a command is issued outside the Ready state.
var ErrNotConnected = errors.New("not connected")

// ErrHandshakeFailed is returned when the endpoint cannot be reached or
// does not answer the handshake with a usable READY frame.
var ErrHandshakeFailed = errors.New("handshake failed")

// ///////////////////////////////////////////////
// Session State
// ///////////////////////////////////////////////

// State is the protocol state of a [Session].
type State int32

const (
	StateDisconnected State = iota
	StateHandshaking
	StateReady
	StateClosing
)

// String returns the lowercase state name used in log output.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Options bounds every wait a [Session] performs.
type Options struct {
	// HandshakeTimeout bounds the wait for the READY reply.
	HandshakeTimeout time.Duration
	// AckTimeout bounds the drain read after each command.
	AckTimeout time.Duration
	// WriteTimeout bounds every frame write.
	WriteTimeout time.Duration
	// ReconnectBackoff is the pause before the single reconnect attempt
	// that follows a mid-session I/O failure.
	ReconnectBackoff time.Duration
	// Dial opens the endpoint connection. Nil means [DialEndpoint].
	Dial Dialer
}

// DefaultOptions returns the timeouts used when settings do not override them.
func DefaultOptions() Options {
	return Options{
		HandshakeTimeout: 5 * time.Second,
		AckTimeout:       250 * time.Millisecond,
		WriteTimeout:     2 * time.Second,
		ReconnectBackoff: time.Second,
	}
}

// ///////////////////////////////////////////////
// Session
// ///////////////////////////////////////////////

// Session manages one handshaken connection to Discord's IPC endpoint.
// All methods are safe for concurrent use, though the presence engine is
// its only caller in practice.
type Session struct {
	// appID is the Discord application (OAuth2 client) identifier.
	appID string
	// opts holds the timeouts and dialer.
	opts Options
	// pid is reported with every SET_ACTIVITY command.
	pid int

	// mu protects every field below.
	mu sync.Mutex
	// state is the current protocol state.
	state State
	// transport is the live connection, or nil when disconnected.
	transport *Transport
	// nonce is a monotonically increasing counter used to tag each command frame.
	nonce uint64
	// userID is the account id from the READY event, empty if not sent.
	userID string
}

// NewSession creates a disconnected session for the given application ID.
func NewSession(appID string, opts Options) *Session {
	def := DefaultOptions()
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = def.HandshakeTimeout
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = def.AckTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	if opts.ReconnectBackoff < 0 {
		opts.ReconnectBackoff = 0
	}
	if opts.Dial == nil {
		opts.Dial = DialEndpoint
	}
	return &Session{appID: appID, opts: opts, pid: os.Getpid()}
}

// AppID returns the application ID the session handshakes with.
func (s *Session) AppID() string { return s.appID }

// State returns the current protocol state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready reports whether commands can be sent.
func (s *Session) Ready() bool {
	return s.State() == StateReady
}

// UserID returns the account id reported by the READY event.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Connect opens the transport and performs the handshake. Any existing
// connection is dropped first. Every failure wraps [ErrHandshakeFailed].
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked(ctx)
}

// SetActivity sends a SET_ACTIVITY command carrying activity.
func (s *Session) SetActivity(ctx context.Context, activity *Activity) error {
	return s.command(ctx, activity)
}

// ClearActivity sends a SET_ACTIVITY command with a null activity.
func (s *Session) ClearActivity(ctx context.Context) error {
	return s.command(ctx, nil)
}

// Close sends a best-effort CLOSE frame and releases the transport. It does
// not wait for the remote and always returns nil.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.transport == nil {
		s.state = StateDisconnected
		return nil
	}
	s.state = StateClosing

	payload, _ := json.Marshal(map[string]any{"v": 1, "client_id": s.appID})
	if frame, err := EncodeFrame(OpClose, payload); err == nil {
		if err := s.transport.Send(frame, s.opts.WriteTimeout); err != nil {
			slog.Debug("discord close frame not delivered", "error", err)
		}
	}
	if err := s.transport.Close(); err != nil {
		slog.Debug("discord transport close failed", "error", err)
	}
	s.transport = nil
	s.state = StateDisconnected
	return nil
}

// ///////////////////////////////////////////////
// Internals
// ///////////////////////////////////////////////

// connectLocked dials and handshakes. The caller must hold s.mu.
func (s *Session) connectLocked(ctx context.Context) error {
	s.dropLocked()
	s.state = StateHandshaking

	t, err := OpenTransport(ctx, s.opts.Dial)
	if err != nil {
		s.state = StateDisconnected
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	s.transport = t

	if err := s.handshakeLocked(); err != nil {
		s.dropLocked()
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	s.state = StateReady
	slog.Debug("discord session ready", "app_id", s.appID, "user_id", s.userID)
	return nil
}

// handshakeLocked sends the handshake frame and validates the reply.
// The caller must hold s.mu.
func (s *Session) handshakeLocked() error {
	payload, err := json.Marshal(map[string]any{
		"v":         1,
		"client_id": s.appID,
	})
	if err != nil {
		return fmt.Errorf("marshaling handshake: %w", err)
	}
	frame, err := EncodeFrame(OpHandshake, payload)
	if err != nil {
		return fmt.Errorf("encoding handshake: %w", err)
	}
	if err := s.transport.Send(frame, s.opts.WriteTimeout); err != nil {
		return fmt.Errorf("writing handshake: %w", err)
	}

	resp, err := s.transport.Receive(s.opts.HandshakeTimeout)
	if err != nil {
		if isReceiveIdle(err) {
			return fmt.Errorf("no handshake response within %s", s.opts.HandshakeTimeout)
		}
		return fmt.Errorf("reading handshake response: %w", err)
	}
	if resp.Opcode == OpClose {
		return fmt.Errorf("handshake rejected: %s", closeReason(resp.Payload))
	}
	if resp.Opcode != OpFrame {
		return fmt.Errorf("unexpected handshake response opcode: %s", resp.Opcode)
	}

	var msg rpcMessage
	if err := json.Unmarshal(resp.Payload, &msg); err != nil {
		return fmt.Errorf("parsing handshake response: %w", err)
	}
	if msg.Evt == "ERROR" {
		return fmt.Errorf("handshake rejected: %s", msg.Data.Message)
	}
	s.userID = msg.Data.User.ID
	return nil
}

// command sends a SET_ACTIVITY frame and drains any reply. On an I/O
// failure the session drops to Disconnected, waits the reconnect backoff,
// and makes exactly one reconnect-and-resend attempt.
func (s *Session) command(ctx context.Context, activity *Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return ErrNotConnected
	}

	err := s.sendLocked(activity)
	if err == nil || !errors.Is(err, ErrTransportBroken) {
		return err
	}

	slog.Warn("discord connection lost, reconnecting once", "error", err, "backoff", s.opts.ReconnectBackoff)
	s.dropLocked()

	timer := time.NewTimer(s.opts.ReconnectBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	case <-timer.C:
	}

	if cerr := s.connectLocked(ctx); cerr != nil {
		return errors.Join(err, cerr)
	}
	if rerr := s.sendLocked(activity); rerr != nil {
		if errors.Is(rerr, ErrTransportBroken) {
			s.dropLocked()
		}
		return rerr
	}
	return nil
}

// sendLocked writes one command frame and drains the reply, if any arrives
// within the ack timeout. The caller must hold s.mu.
func (s *Session) sendLocked(activity *Activity) error {
	s.nonce++
	payload, err := json.Marshal(commandFrame{
		Cmd:   "SET_ACTIVITY",
		Args:  activityArgs{PID: s.pid, Activity: activity},
		Nonce: strconv.FormatUint(s.nonce, 10),
	})
	if err != nil {
		return fmt.Errorf("marshaling command: %w", err)
	}
	frame, err := EncodeFrame(OpFrame, payload)
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}
	if err := s.transport.Send(frame, s.opts.WriteTimeout); err != nil {
		return err
	}
	return s.drainLocked()
}

// drainLocked consumes replies until the socket goes quiet for the ack
// timeout. PINGs are answered, CLOSE ends the session, and ERROR events are
// logged but not returned since they describe the payload, not the link.
func (s *Session) drainLocked() error {
	for {
		resp, err := s.transport.Receive(s.opts.AckTimeout)
		if err != nil {
			if isReceiveIdle(err) {
				return nil
			}
			if errors.Is(err, ErrMalformedFrame) {
				return fmt.Errorf("%w: %w", ErrTransportBroken, err)
			}
			return err
		}

		switch resp.Opcode {
		case OpPing:
			frame, encErr := EncodeFrame(OpPong, resp.Payload)
			if encErr != nil {
				return fmt.Errorf("%w: %w", ErrTransportBroken, encErr)
			}
			if err := s.transport.Send(frame, s.opts.WriteTimeout); err != nil {
				return err
			}
		case OpClose:
			return fmt.Errorf("%w: remote closed: %s", ErrTransportBroken, closeReason(resp.Payload))
		case OpFrame:
			var msg rpcMessage
			if json.Unmarshal(resp.Payload, &msg) == nil && msg.Evt == "ERROR" {
				slog.Warn("discord rejected command", "nonce", msg.Nonce, "code", msg.Data.Code, "message", msg.Data.Message)
			}
			return nil
		}
	}
}

// dropLocked closes the transport without notifying the remote.
// The caller must hold s.mu.
func (s *Session) dropLocked() {
	if s.transport != nil {
		_ = s.transport.Close()
		s.transport = nil
	}
	s.state = StateDisconnected
}

// ///////////////////////////////////////////////
// Wire Messages
// ///////////////////////////////////////////////

// commandFrame is the JSON body of an outgoing command.
type commandFrame struct {
	Cmd   string       `json:"cmd"`
	Args  activityArgs `json:"args"`
	Nonce string       `json:"nonce"`
}

// activityArgs carries the activity; a nil Activity serializes as null and clears presence.
type activityArgs struct {
	PID      int       `json:"pid"`
	Activity *Activity `json:"activity"`
}

// rpcMessage is the subset of an incoming frame the session inspects.
type rpcMessage struct {
	Cmd   string `json:"cmd"`
	Evt   string `json:"evt"`
	Nonce string `json:"nonce"`
	Data  struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		User    struct {
			ID string `json:"id"`
		} `json:"user"`
	} `json:"data"`
}

// closeReason extracts the message from a CLOSE payload.
func closeReason(payload []byte) string {
	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(payload, &body) != nil || body.Message == "" {
		return "no reason given"
	}
	return fmt.Sprintf("%s (code %d)", body.Message, body.Code)
}
