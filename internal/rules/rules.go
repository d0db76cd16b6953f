// Package rules decides whether presence is reported for a workspace.
//
// A [Rule] is a blacklist or whitelist of paths. A workspace matches an
// entry when its normalized absolute path equals the entry or lies under
// it. Entries containing glob metacharacters are matched with doublestar
// against the workspace path and each of its ancestors.
//
// Normalization cleans the path, strips trailing separators, expands a
// leading "~", uses forward slashes, and folds case on Windows and macOS.
package rules

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Mode selects how configured paths are interpreted.
type Mode string

const (
	// Blacklist allows every workspace except those matching a path.
	Blacklist Mode = "blacklist"
	// Whitelist allows only workspaces matching a path.
	Whitelist Mode = "whitelist"
)

// ParseMode converts a configuration string to a Mode.
// Unrecognized values fall back to [Blacklist].
func ParseMode(s string) Mode {
	if Mode(strings.ToLower(s)) == Whitelist {
		return Whitelist
	}
	return Blacklist
}

// Rule is a blacklist or whitelist of workspace paths.
type Rule struct {
	// Mode is blacklist or whitelist.
	Mode Mode
	// Paths holds the configured entries as written by the user.
	Paths []string

	// foldCase compares paths case-insensitively.
	foldCase bool
	// entries caches the normalized form of Paths.
	entries []string
}

// New builds a Rule with the platform's case sensitivity.
func New(mode Mode, paths []string) *Rule {
	r := &Rule{
		Mode:     mode,
		Paths:    append([]string(nil), paths...),
		foldCase: runtime.GOOS == "windows" || runtime.GOOS == "darwin",
	}
	r.compile()
	return r
}

func (r *Rule) compile() {
	r.entries = make([]string, 0, len(r.Paths))
	for _, p := range r.Paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		r.entries = append(r.entries, normalize(p, r.foldCase))
	}
}

// Allowed reports whether presence may be reported for workspacePath.
// A nil Rule allows everything.
func (r *Rule) Allowed(workspacePath string) bool {
	if r == nil {
		return true
	}
	if r.entries == nil {
		r.compile()
	}
	matched := r.Matches(workspacePath)
	if r.Mode == Whitelist {
		return matched
	}
	return !matched
}

// Matches reports whether workspacePath is, or is under, any configured path.
func (r *Rule) Matches(workspacePath string) bool {
	if r == nil || workspacePath == "" {
		return false
	}
	if r.entries == nil {
		r.compile()
	}
	ws := normalize(workspacePath, r.foldCase)
	for _, entry := range r.entries {
		if isGlob(entry) {
			if globMatches(entry, ws) {
				return true
			}
			continue
		}
		if underOrEqual(ws, entry) {
			return true
		}
	}
	return false
}

// Allowed is the functional form of [Rule.Allowed].
func Allowed(workspacePath string, r *Rule) bool {
	return r.Allowed(workspacePath)
}

// ///////////////////////////////////////////////
// Path Helpers
// ///////////////////////////////////////////////

func normalize(p string, foldCase bool) string {
	p = strings.TrimSpace(p)
	if p == "~" || strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, p[1:])
		}
	}
	if !isGlob(p) {
		p = filepath.Clean(p)
	}
	p = filepath.ToSlash(p)
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	if foldCase {
		p = strings.ToLower(p)
	}
	return p
}

// underOrEqual reports whether path equals root or is nested below it.
func underOrEqual(path, root string) bool {
	if path == root {
		return true
	}
	if strings.HasSuffix(root, "/") {
		return strings.HasPrefix(path, root)
	}
	return strings.HasPrefix(path, root+"/")
}

func isGlob(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}

// globMatches tries pattern against path and every ancestor of path.
func globMatches(pattern, path string) bool {
	for candidate := path; ; {
		matched, err := doublestar.Match(pattern, candidate)
		if err != nil {
			slog.Warn("invalid rules glob pattern", "pattern", pattern, "error", err)
			return false
		}
		if matched {
			return true
		}
		parent := filepathDir(candidate)
		if parent == candidate {
			return false
		}
		candidate = parent
	}
}

// filepathDir is path.Dir over slash-separated paths that keeps a Windows
// volume root such as "c:" stable.
func filepathDir(p string) string {
	i := strings.LastIndexByte(p, '/')
	switch {
	case i < 0:
		return p
	case i == 0:
		return "/"
	default:
		return p[:i]
	}
}
