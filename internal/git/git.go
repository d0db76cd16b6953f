// Package git queries repository metadata for the presence engine by running
// the git binary, and watches HEAD so a branch switch can re-render presence.
//
// Every query is best effort. A missing repository, a missing git binary, or
// a detached HEAD yields "" and never an error.
package git

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"tools.zach/dev/discord-presence/internal/logger"
)

// DefaultTimeout bounds a single git invocation.
const DefaultTimeout = 2 * time.Second

// Client runs git commands against a working directory.
type Client struct {
	// Binary is the git executable. Empty means "git" from PATH.
	Binary string
	// Timeout bounds each command. Zero means [DefaultTimeout].
	Timeout time.Duration
}

// New returns a Client using git from PATH.
func New() *Client {
	return &Client{}
}

// Branch returns the short name of the checked-out branch in dir.
func (c *Client) Branch(ctx context.Context, dir string) string {
	out, err := c.run(ctx, dir, "symbolic-ref", "--quiet", "--short", "HEAD")
	if err != nil {
		return ""
	}
	return out
}

// RemoteURL returns the browsable URL of the main remote: origin if it
// exists, otherwise the first configured remote.
func (c *Client) RemoteURL(ctx context.Context, dir string) string {
	out, err := c.run(ctx, dir, "remote")
	if err != nil || out == "" {
		return ""
	}
	remotes := strings.Fields(out)
	name := remotes[0]
	for _, r := range remotes {
		if r == "origin" {
			name = r
			break
		}
	}
	url, err := c.run(ctx, dir, "remote", "get-url", name)
	if err != nil {
		return ""
	}
	return NormalizeRemoteURL(url)
}

// GitDir returns the absolute path of the repository's git directory, which
// holds HEAD. Worktrees resolve to their private git directory.
func (c *Client) GitDir(ctx context.Context, dir string) string {
	out, err := c.run(ctx, dir, "rev-parse", "--absolute-git-dir")
	if err != nil {
		return ""
	}
	return filepath.Clean(out)
}

func (c *Client) run(ctx context.Context, dir string, args ...string) (string, error) {
	if dir == "" {
		return "", exec.ErrNotFound
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	bin := c.Binary
	if bin == "" {
		bin = "git"
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, append([]string{"-C", dir}, args...)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		logger.Trace(slog.Default(), "git query failed", "args", strings.Join(args, " "), "dir", dir, "error", err, "stderr", strings.TrimSpace(stderr.String()))
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// NormalizeRemoteURL turns a remote URL into an https URL a browser can open.
// scp-style SSH remotes (git@host:owner/repo) become https://host/owner/repo,
// ssh:// and git:// schemes are rewritten to https, and a trailing ".git" is
// dropped. User info, query and fragment are removed from http(s) remotes.
// Anything unrecognised is returned trimmed but otherwise unchanged.
func NormalizeRemoteURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	switch {
	case strings.HasPrefix(s, "https://"), strings.HasPrefix(s, "http://"):
		// Credentials embedded in the remote must never reach the button.
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return ""
		}
		u.User = nil
		u.RawQuery = ""
		u.Fragment = ""
		s = u.String()
	case strings.HasPrefix(s, "ssh://"), strings.HasPrefix(s, "git://"):
		rest := s[strings.Index(s, "://")+3:]
		if i := strings.LastIndex(rest, "@"); i >= 0 && i < strings.Index(rest+"/", "/") {
			rest = rest[i+1:]
		}
		host, path, _ := strings.Cut(rest, "/")
		if h, _, ok := strings.Cut(host, ":"); ok {
			host = h
		}
		s = "https://" + host + "/" + path
	default:
		_, rest, ok := strings.Cut(s, "@")
		if !ok {
			break
		}
		host, path, ok := strings.Cut(rest, ":")
		if !ok {
			break
		}
		s = "https://" + host + "/" + strings.TrimPrefix(path, "/")
	}

	s = strings.TrimSuffix(s, "/")
	return strings.TrimSuffix(s, ".git")
}
