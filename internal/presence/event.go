package presence

import (
	"tools.zach/dev/discord-presence/internal/config"
)

// EventKind identifies what happened in the editor.
type EventKind int

const (
	// DocumentOpened switches the current document.
	DocumentOpened EventKind = iota + 1
	// DocumentChanged reports an edit, optionally with the edited line.
	DocumentChanged
	// CursorMoved updates the current line.
	CursorMoved
	// DocumentSaved reports a save; the file size is re-read.
	DocumentSaved
	// WorkspaceChanged replaces the workspace root.
	WorkspaceChanged
	// ConfigChanged replaces the presence configuration.
	ConfigChanged
	// BranchChanged re-reads git metadata without counting as activity.
	BranchChanged

	// statusQuery is answered on the loop; see [Engine.Status].
	statusQuery
)

// String returns the event name used in log output.
func (k EventKind) String() string {
	switch k {
	case DocumentOpened:
		return "document_opened"
	case DocumentChanged:
		return "document_changed"
	case CursorMoved:
		return "cursor_moved"
	case DocumentSaved:
		return "document_saved"
	case WorkspaceChanged:
		return "workspace_changed"
	case ConfigChanged:
		return "config_changed"
	case BranchChanged:
		return "branch_changed"
	case statusQuery:
		return "status"
	default:
		return "unknown"
	}
}

// isEditorActivity reports whether the event counts as user activity.
func (k EventKind) isEditorActivity() bool {
	switch k {
	case DocumentOpened, DocumentChanged, CursorMoved, DocumentSaved:
		return true
	}
	return false
}

// Event is one notification delivered to the [Engine]. Only the fields that
// belong to Kind are read.
type Event struct {
	Kind EventKind
	// Path is the absolute file path for document events.
	Path string
	// Line is the 1-based cursor line; 0 means unknown.
	Line int
	// Workspace is the absolute root for WorkspaceChanged.
	Workspace string
	// Config is the replacement for ConfigChanged. Nil is ignored.
	Config *config.PresenceConfig

	reply chan Status
}

// Status is a snapshot of the engine taken on its loop.
type Status struct {
	State     State
	Workspace string
	Document  *Document
	Branch    string
	RemoteURL string
	// LastSent is the last payload Discord accepted; nil after a clear or
	// before the first send.
	LastSent *Activity
	// Connected reports whether the session is handshaken.
	Connected bool
}
