package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"tools.zach/dev/discord-presence/internal/logger"
	"tools.zach/dev/discord-presence/internal/presence"
)

// ServerName is reported to the client in the initialize result.
const ServerName = "discord-presence-lsp"

var errBadHeader = errors.New("lsp: malformed message header")

// EventSink receives editor events. [presence.Engine] implements it.
type EventSink interface {
	Submit(ctx context.Context, ev presence.Event) error
}

// Server reads LSP messages from one stream and writes responses to another.
// Messages are handled one at a time, in arrival order.
type Server struct {
	// I/O
	reader *bufio.Reader
	writer io.Writer
	mu     sync.Mutex // protects writes

	sink    EventSink
	log     *slog.Logger
	version string

	// State, owned by the Run loop
	initialized bool
	shutdown    bool
	exited      bool
	workspace   string
}

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the server logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithVersion sets the version reported in serverInfo.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates a server that reads requests from in, writes to out and
// forwards editor activity to sink.
func NewServer(in io.Reader, out io.Writer, sink EventSink, opts ...Option) *Server {
	s := &Server{
		reader: bufio.NewReader(in),
		writer: out,
		sink:   sink,
		log:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "lsp")
	return s
}

// Workspace returns the current workspace root.
func (s *Server) Workspace() string { return s.workspace }

// Exited reports whether the client sent exit.
func (s *Server) Exited() bool { return s.exited }

// Run serves until the input ends, the client sends exit or ctx is done.
// None of these is an error. Reads happen on a separate goroutine so a
// cancelled context does not wait on a blocked reader.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("server started")

	msgs := make(chan []byte)
	errs := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		for {
			msg, err := s.readMessage()
			if errors.Is(err, errBadHeader) {
				s.log.Warn("dropping message", "error", err)
				continue
			}
			if err != nil {
				errs <- err
				return
			}
			select {
			case msgs <- msg:
			case <-stop:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("server stopping", "reason", ctx.Err())
			return nil
		case err := <-errs:
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				s.log.Info("input closed")
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		case msg := <-msgs:
			if resp := s.handleMessage(ctx, msg); resp != nil {
				if err := s.writeMessage(resp); err != nil {
					return fmt.Errorf("write response: %w", err)
				}
			}
			if s.exited {
				s.log.Info("client requested exit", "clean", s.shutdown)
				return nil
			}
		}
	}
}

// readMessage reads a single LSP message.
func (s *Server) readMessage() ([]byte, error) {
	contentLength := -1
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%w: content length %q", errBadHeader, value)
			}
			contentLength = n
		}
	}

	if contentLength < 0 {
		return nil, fmt.Errorf("%w: missing Content-Length", errBadHeader)
	}

	content := make([]byte, contentLength)
	if _, err := io.ReadFull(s.reader, content); err != nil {
		return nil, err
	}
	return content, nil
}

// writeMessage writes a message with the Content-Length header.
func (s *Server) writeMessage(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.writer, "Content-Length: %d\r\n\r\n", len(data)); err != nil {
		return err
	}
	_, err = s.writer.Write(data)
	return err
}

// notify sends a server-to-client notification.
func (s *Server) notify(method string, params any) {
	if err := s.writeMessage(&Notification{JSONRPC: "2.0", Method: method, Params: params}); err != nil {
		s.log.Warn("notification failed", "method", method, "error", err)
	}
}

// showError surfaces a problem in the editor.
func (s *Server) showError(msg string) {
	s.notify("window/showMessage", ShowMessageParams{Type: MessageTypeError, Message: msg})
}

// handleMessage decodes and dispatches one message. Notifications never
// produce a response. A panic in a handler becomes an internal error.
func (s *Server) handleMessage(ctx context.Context, content []byte) (resp *Response) {
	var req Request
	if err := json.Unmarshal(content, &req); err != nil {
		s.log.Warn("unparseable message", "error", err)
		return errorResponse(nil, ErrCodeParseError, "parse error")
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Fail(s.log, "handler panicked", "method", req.Method, "panic", r)
			if req.IsNotification() {
				resp = nil
				return
			}
			resp = errorResponse(req.ID, ErrCodeInternalError, fmt.Sprintf("internal error: %v", r))
		}
	}()

	logger.Trace(s.log, "message received", "method", req.Method, "id", req.ID)

	if !s.initialized && req.Method != "initialize" && req.Method != "exit" {
		if req.IsNotification() {
			return nil
		}
		return errorResponse(req.ID, ErrCodeServerNotInitialized, "server not initialized")
	}
	if s.shutdown && req.Method != "exit" && !req.IsNotification() {
		return errorResponse(req.ID, ErrCodeInvalidRequest, "server is shutting down")
	}

	result, rpcErr := s.dispatch(ctx, req)
	if req.IsNotification() {
		if rpcErr != nil {
			s.log.Debug("notification rejected", "method", req.Method, "error", rpcErr.Message)
		}
		return nil
	}
	if rpcErr != nil {
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	}
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (s *Server) dispatch(ctx context.Context, req Request) (any, *RPCError) {
	switch req.Method {
	// Lifecycle
	case "initialize":
		return s.handleInitialize(ctx, req.Params)
	case "initialized":
		return nil, nil
	case "shutdown":
		s.shutdown = true
		return nil, nil
	case "exit":
		s.exited = true
		return nil, nil

	// Documents
	case "textDocument/didOpen":
		return nil, s.handleDidOpen(ctx, req.Params)
	case "textDocument/didChange":
		return nil, s.handleDidChange(ctx, req.Params)
	case "textDocument/didSave":
		return nil, s.handleDidSave(ctx, req.Params)
	case "textDocument/didClose":
		return nil, nil

	// Workspace
	case "workspace/didChangeConfiguration":
		return nil, s.handleDidChangeConfiguration(ctx, req.Params)
	case "workspace/didChangeWorkspaceFolders":
		return nil, s.handleDidChangeWorkspaceFolders(ctx, req.Params)

	case "$/cancelRequest", "$/setTrace":
		return nil, nil

	default:
		return nil, &RPCError{Code: ErrCodeMethodNotFound, Message: "method not found: " + req.Method}
	}
}

// submit forwards an event, logging instead of failing when the engine is
// gone.
func (s *Server) submit(ctx context.Context, ev presence.Event) {
	if err := s.sink.Submit(ctx, ev); err != nil {
		s.log.Warn("event dropped", "event", ev.Kind, "error", err)
	}
}

func errorResponse(id any, code int, message string) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
}
