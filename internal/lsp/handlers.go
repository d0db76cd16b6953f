package lsp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"path/filepath"

	"tools.zach/dev/discord-presence/internal/config"
	"tools.zach/dev/discord-presence/internal/presence"
)

// settingsKey is the section name editors may nest the configuration under
// in workspace/didChangeConfiguration.
const settingsKey = "discord_presence"

func (s *Server) handleInitialize(ctx context.Context, params json.RawMessage) (any, *RPCError) {
	var p InitializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &RPCError{Code: ErrCodeInvalidParams, Message: "invalid initialize params: " + err.Error()}
		}
	}

	s.workspace = initialWorkspace(p)
	s.initialized = true

	client := ""
	if p.ClientInfo != nil {
		client = p.ClientInfo.Name
	}
	s.log.Info("initialize", "client", client, "workspace", s.workspace)

	s.submit(ctx, presence.Event{Kind: presence.WorkspaceChanged, Workspace: s.workspace})
	if cfg, ok := s.parseConfig(p.InitializationOptions); ok {
		s.submit(ctx, presence.Event{Kind: presence.ConfigChanged, Config: cfg})
	}

	return InitializeResult{
		Capabilities: ServerCapabilities{
			TextDocumentSync: &TextDocumentSyncOptions{
				OpenClose: true,
				Change:    TextDocumentSyncKindIncremental,
				Save:      &SaveOptions{IncludeText: false},
			},
			Workspace: &WorkspaceCapabilities{
				WorkspaceFolders: &WorkspaceFoldersCapability{Supported: true, ChangeNotifications: true},
			},
		},
		ServerInfo: &ServerInfo{Name: ServerName, Version: s.version},
	}, nil
}

// initialWorkspace prefers rootUri, then rootPath, then the first folder.
func initialWorkspace(p InitializeParams) string {
	if p.RootURI != "" {
		if path := uriToPath(p.RootURI); path != "" {
			return path
		}
	}
	if p.RootPath != "" {
		return p.RootPath
	}
	if len(p.WorkspaceFolders) > 0 {
		return uriToPath(p.WorkspaceFolders[0].URI)
	}
	return ""
}

// parseConfig decodes a configuration object. Invalid input is reported to
// the user and leaves the engine on its previous configuration.
func (s *Server) parseConfig(raw json.RawMessage) (*config.PresenceConfig, bool) {
	cfg, err := config.Parse(raw)
	if err != nil {
		s.log.Warn("configuration rejected", "error", err)
		msg := "Discord Presence: " + err.Error()
		if !errors.Is(err, config.ErrConfigInvalid) {
			msg = "Discord Presence: could not read configuration: " + err.Error()
		}
		s.showError(msg)
		return nil, false
	}
	return cfg, true
}

func (s *Server) handleDidOpen(ctx context.Context, params json.RawMessage) *RPCError {
	var p DidOpenTextDocumentParams
	if err := json.Unmarshal(params, &p); err != nil {
		return invalidParams(err)
	}
	path := uriToPath(p.TextDocument.URI)
	if path == "" {
		s.log.Debug("ignoring non-file document", "uri", p.TextDocument.URI)
		return nil
	}
	s.submit(ctx, presence.Event{Kind: presence.DocumentOpened, Path: path})
	return nil
}

func (s *Server) handleDidChange(ctx context.Context, params json.RawMessage) *RPCError {
	var p DidChangeTextDocumentParams
	if err := json.Unmarshal(params, &p); err != nil {
		return invalidParams(err)
	}
	path := uriToPath(p.TextDocument.URI)
	if path == "" {
		return nil
	}

	line := 0
	if n := len(p.ContentChanges); n > 0 {
		if r := p.ContentChanges[n-1].Range; r != nil {
			line = r.Start.Line + 1
		}
	}
	s.submit(ctx, presence.Event{Kind: presence.DocumentChanged, Path: path, Line: line})
	return nil
}

func (s *Server) handleDidSave(ctx context.Context, params json.RawMessage) *RPCError {
	var p DidSaveTextDocumentParams
	if err := json.Unmarshal(params, &p); err != nil {
		return invalidParams(err)
	}
	path := uriToPath(p.TextDocument.URI)
	if path == "" {
		return nil
	}
	s.submit(ctx, presence.Event{Kind: presence.DocumentSaved, Path: path})
	return nil
}

func (s *Server) handleDidChangeConfiguration(ctx context.Context, params json.RawMessage) *RPCError {
	var p DidChangeConfigurationParams
	if err := json.Unmarshal(params, &p); err != nil {
		return invalidParams(err)
	}
	settings := unwrapSettings(p.Settings)
	if len(settings) == 0 || bytes.Equal(settings, []byte("null")) {
		// Pull-model clients send an empty notification.
		return nil
	}
	if cfg, ok := s.parseConfig(settings); ok {
		s.submit(ctx, presence.Event{Kind: presence.ConfigChanged, Config: cfg})
	}
	return nil
}

// unwrapSettings returns the object under settingsKey when present.
func unwrapSettings(raw json.RawMessage) json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return raw
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return raw
	}
	if inner, ok := wrapped[settingsKey]; ok {
		return inner
	}
	return raw
}

func (s *Server) handleDidChangeWorkspaceFolders(ctx context.Context, params json.RawMessage) *RPCError {
	var p DidChangeWorkspaceFoldersParams
	if err := json.Unmarshal(params, &p); err != nil {
		return invalidParams(err)
	}

	next := s.workspace
	for _, f := range p.Event.Removed {
		if uriToPath(f.URI) == s.workspace {
			next = ""
		}
	}
	if len(p.Event.Added) > 0 {
		next = uriToPath(p.Event.Added[0].URI)
	}
	if next == s.workspace {
		return nil
	}

	s.workspace = next
	s.submit(ctx, presence.Event{Kind: presence.WorkspaceChanged, Workspace: next})
	return nil
}

func invalidParams(err error) *RPCError {
	return &RPCError{Code: ErrCodeInvalidParams, Message: "invalid params: " + err.Error()}
}

// uriToPath converts a file URI to a native path with escapes decoded.
// Bare paths pass through. Other schemes return "".
func uriToPath(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "":
		return uri
	case "file":
	default:
		return ""
	}

	p := u.Path
	// file:///C:/x parses to "/C:/x".
	if len(p) >= 3 && p[0] == '/' && p[2] == ':' && isDriveLetter(p[1]) {
		p = p[1:]
	}
	if p == "" {
		return ""
	}
	return filepath.FromSlash(p)
}

func isDriveLetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
