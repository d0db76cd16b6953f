package presence

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tools.zach/dev/discord-presence/internal/config"
	"tools.zach/dev/discord-presence/internal/discord"
	"tools.zach/dev/discord-presence/internal/languages"
	"tools.zach/dev/discord-presence/internal/template"
)

// ///////////////////////////////////////////////
// Render Input
// ///////////////////////////////////////////////

// Document is the file the user is working on.
type Document struct {
	// Path is the absolute, already URL-decoded file path.
	Path string
	// Line is the 1-based cursor line; 0 means unknown.
	Line int
}

// Input is everything a render pass reads besides the configuration.
// Missing fragments render as empty strings.
type Input struct {
	// Workspace is the absolute workspace root.
	Workspace string
	// Document is nil before the first file is opened.
	Document *Document
	// Branch is the checked-out git branch.
	Branch string
	// RemoteURL is the browsable URL of the main git remote.
	RemoteURL string
	// Start is the unix time shown as elapsed; 0 omits it.
	Start int64
	// Languages resolves the language name; nil means the built-in table.
	Languages *languages.Table
	// statFile reports the size of Document.Path; nil means os.Stat.
	statFile func(string) (int64, error)
}

// Variant selects which set of templates a render pass uses.
type Variant int

const (
	// VariantActive renders the top-level templates with language overrides.
	VariantActive Variant = iota
	// VariantIdle renders the idle templates.
	VariantIdle
)

// String returns the variant name used in log output.
func (v Variant) String() string {
	if v == VariantIdle {
		return "idle"
	}
	return "active"
}

// ///////////////////////////////////////////////
// Context
// ///////////////////////////////////////////////

// BuildContext snapshots the placeholder values for one render pass.
func BuildContext(cfg *config.PresenceConfig, in Input) template.Context {
	table := in.Languages
	if table == nil {
		table = languages.Builtin()
	}

	ctx := template.Context{
		Workspace:    baseName(in.Workspace),
		BaseIconsURL: cfg.BaseIconsURL,
		Language:     languages.Fallback,
	}
	if cfg.GitIntegration {
		ctx.GitBranch = in.Branch
	}

	doc := in.Document
	if doc == nil || doc.Path == "" {
		return ctx
	}

	path := filepath.Clean(doc.Path)
	dir := filepath.Dir(path)

	ctx.Filename = filepath.Base(path)
	ctx.Language = table.Lookup(ctx.Filename)
	ctx.FullDirectoryName = dir
	ctx.DirectoryName = baseName(dir)
	if ctx.DirectoryName != "" {
		ctx.FolderAndFile = filepath.Join(ctx.DirectoryName, ctx.Filename)
	} else {
		ctx.FolderAndFile = ctx.Filename
	}
	ctx.RelativeFilePath = relativeTo(in.Workspace, path)
	if doc.Line > 0 {
		ctx.LineNumber = doc.Line
	}

	stat := in.statFile
	if stat == nil {
		stat = fileSize
	}
	if size, err := stat(path); err == nil {
		ctx.FileSize = FormatFileSize(size)
	}
	return ctx
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// baseName is filepath.Base without its "." and "/" results for empty or root
// paths.
func baseName(p string) string {
	if p == "" {
		return ""
	}
	b := filepath.Base(p)
	if b == "." || b == string(filepath.Separator) || b == "/" {
		return ""
	}
	return b
}

// relativeTo returns path relative to root, or "" when path is outside root.
func relativeTo(root, path string) string {
	if root == "" {
		return ""
	}
	rel, err := filepath.Rel(filepath.Clean(root), path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return rel
}

// FormatFileSize renders a byte count in base-1024 units.
func FormatFileSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
	)
	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/mb)
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/kb)
	case bytes == 1:
		return "1 byte"
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

// ///////////////////////////////////////////////
// Render
// ///////////////////////////////////////////////

// Render produces the payload for variant. Null templates leave their field
// empty. Diagnostics from every template are returned together.
func Render(cfg *config.PresenceConfig, variant Variant, in Input) (*Activity, []template.Diagnostic) {
	tctx := BuildContext(cfg, in)

	var fields config.Fields
	if variant == VariantIdle {
		fields = cfg.Idle.Fields
	} else {
		fields = cfg.ActiveFields(tctx.Language)
	}

	var diags []template.Diagnostic
	render := func(f config.Field) string {
		src, ok := f.Get()
		if !ok {
			return ""
		}
		out, d := template.Render(src, tctx)
		diags = append(diags, d...)
		return out
	}

	a := &Activity{
		State:      truncate(render(fields.State)),
		Details:    truncate(render(fields.Details)),
		LargeImage: render(fields.LargeImage),
		LargeText:  truncate(render(fields.LargeText)),
		SmallImage: render(fields.SmallImage),
		SmallText:  truncate(render(fields.SmallText)),
	}
	if variant == VariantActive {
		a.Start = in.Start
	}
	if cfg.GitIntegration && in.RemoteURL != "" {
		a.Buttons = []discord.Button{{Label: RepoButtonLabel, URL: in.RemoteURL}}
	}
	return a, diags
}
