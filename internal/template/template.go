// Package template renders presence text from placeholder strings.
//
// A template is literal text mixed with placeholders of the form {name} or
// {name:modifier}. Rendering never fails: unknown names render empty,
// bad modifiers are ignored, and a '{' with no closing '}' is literal text.
// Problems are reported as [Diagnostic] values next to the output.
package template

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ///////////////////////////////////////////////
// Placeholder Names
// ///////////////////////////////////////////////

// Recognized placeholder names.
const (
	Filename          = "filename"
	Workspace         = "workspace"
	Language          = "language"
	BaseIconsURL      = "base_icons_url"
	RelativeFilePath  = "relative_file_path"
	FolderAndFile     = "folder_and_file"
	DirectoryName     = "directory_name"
	FullDirectoryName = "full_directory_name"
	LineNumber        = "line_number"
	GitBranch         = "git_branch"
	FileSize          = "file_size"
)

// Names lists every recognized placeholder in documentation order.
func Names() []string {
	return []string{
		Filename, Workspace, Language, BaseIconsURL, RelativeFilePath,
		FolderAndFile, DirectoryName, FullDirectoryName, LineNumber,
		GitBranch, FileSize,
	}
}

// Recognized modifiers.
const (
	// ModUpperFirst uppercases the first character and leaves the rest unchanged.
	ModUpperFirst = "u"
	// ModLower lowercases the whole value.
	ModLower = "lo"
)

// ///////////////////////////////////////////////
// Context
// ///////////////////////////////////////////////

// Context is the set of values available to one render pass. Empty strings
// and a zero LineNumber mean the value is absent and render as "".
type Context struct {
	Filename          string
	Workspace         string
	Language          string
	BaseIconsURL      string
	RelativeFilePath  string
	FolderAndFile     string
	DirectoryName     string
	FullDirectoryName string
	// LineNumber is the 1-based line shown to the user; 0 means unknown.
	LineNumber int
	GitBranch  string
	FileSize   string
}

// Lookup returns the value for a placeholder name and whether the name is recognized.
func (c Context) Lookup(name string) (string, bool) {
	switch name {
	case Filename:
		return c.Filename, true
	case Workspace:
		return c.Workspace, true
	case Language:
		return c.Language, true
	case BaseIconsURL:
		return c.BaseIconsURL, true
	case RelativeFilePath:
		return c.RelativeFilePath, true
	case FolderAndFile:
		return c.FolderAndFile, true
	case DirectoryName:
		return c.DirectoryName, true
	case FullDirectoryName:
		return c.FullDirectoryName, true
	case LineNumber:
		if c.LineNumber <= 0 {
			return "", true
		}
		return strconv.Itoa(c.LineNumber), true
	case GitBranch:
		return c.GitBranch, true
	case FileSize:
		return c.FileSize, true
	default:
		return "", false
	}
}

// ///////////////////////////////////////////////
// Diagnostics
// ///////////////////////////////////////////////

// DiagnosticKind classifies a non-fatal rendering problem.
type DiagnosticKind int

const (
	// UnknownPlaceholder means the name is not a Context field.
	UnknownPlaceholder DiagnosticKind = iota + 1
	// InvalidModifier means the modifier is unknown or not allowed for the name.
	InvalidModifier
)

// String returns the kind name.
func (k DiagnosticKind) String() string {
	switch k {
	case UnknownPlaceholder:
		return "UnknownPlaceholder"
	case InvalidModifier:
		return "InvalidModifier"
	default:
		return "Unknown"
	}
}

// Diagnostic describes one problem found while rendering.
type Diagnostic struct {
	Kind     DiagnosticKind
	Name     string
	Modifier string
	// Offset is the byte offset of the opening brace in the template.
	Offset int
}

// String formats the diagnostic for logs and editor messages.
func (d Diagnostic) String() string {
	switch d.Kind {
	case UnknownPlaceholder:
		return fmt.Sprintf("unknown placeholder {%s} at offset %d", d.Name, d.Offset)
	case InvalidModifier:
		return fmt.Sprintf("invalid modifier %q for {%s} at offset %d", d.Modifier, d.Name, d.Offset)
	default:
		return fmt.Sprintf("diagnostic %d at offset %d", d.Kind, d.Offset)
	}
}

// ///////////////////////////////////////////////
// Parsing
// ///////////////////////////////////////////////

// segment is either literal text or a placeholder.
type segment struct {
	literal     string
	placeholder bool
	name        string
	modifier    string
	hasModifier bool
	offset      int
}

// Template is a parsed placeholder string. The zero value renders "".
type Template struct {
	source   string
	segments []segment
}

// Parse splits s into literal and placeholder segments. It never fails.
func Parse(s string) *Template {
	t := &Template{source: s}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			t.segments = append(t.segments, segment{literal: lit.String()})
			lit.Reset()
		}
	}

	i := 0
	for i < len(s) {
		open := strings.IndexByte(s[i:], '{')
		if open < 0 {
			lit.WriteString(s[i:])
			break
		}
		open += i
		lit.WriteString(s[i:open])

		end := strings.IndexByte(s[open+1:], '}')
		if end < 0 {
			// Unterminated: everything from here on is literal.
			lit.WriteString(s[open:])
			break
		}
		end += open + 1

		name, modifier, hasModifier, ok := splitPlaceholder(s[open+1 : end])
		if !ok {
			lit.WriteByte('{')
			i = open + 1
			continue
		}
		flush()
		t.segments = append(t.segments, segment{
			placeholder: true,
			name:        name,
			modifier:    modifier,
			hasModifier: hasModifier,
			offset:      open,
		})
		i = end + 1
	}
	flush()
	return t
}

// splitPlaceholder validates the text between braces as name or name:modifier.
func splitPlaceholder(body string) (name, modifier string, hasModifier, ok bool) {
	name, modifier, hasModifier = strings.Cut(body, ":")
	if !isIdent(name) {
		return "", "", false, false
	}
	if hasModifier && !isIdent(modifier) {
		return "", "", false, false
	}
	return name, modifier, hasModifier, true
}

// isIdent reports whether s is a non-empty run of letters, digits, and underscores.
func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// String returns the original template text.
func (t *Template) String() string { return t.source }

// HasPlaceholders reports whether the template contains at least one placeholder.
func (t *Template) HasPlaceholders() bool {
	for _, seg := range t.segments {
		if seg.placeholder {
			return true
		}
	}
	return false
}

// ///////////////////////////////////////////////
// Rendering
// ///////////////////////////////////////////////

// Render substitutes ctx into the template.
func (t *Template) Render(ctx Context) (string, []Diagnostic) {
	var out strings.Builder
	var diags []Diagnostic
	for _, seg := range t.segments {
		if !seg.placeholder {
			out.WriteString(seg.literal)
			continue
		}
		value, known := ctx.Lookup(seg.name)
		if !known {
			diags = append(diags, Diagnostic{Kind: UnknownPlaceholder, Name: seg.name, Modifier: seg.modifier, Offset: seg.offset})
			continue
		}
		if seg.hasModifier {
			modified, ok := applyModifier(seg.name, seg.modifier, value)
			if !ok {
				diags = append(diags, Diagnostic{Kind: InvalidModifier, Name: seg.name, Modifier: seg.modifier, Offset: seg.offset})
			}
			value = modified
		}
		out.WriteString(value)
	}
	return out.String(), diags
}

// Render parses and renders s in one step.
func Render(s string, ctx Context) (string, []Diagnostic) {
	return Parse(s).Render(ctx)
}

// applyModifier transforms value. On failure it returns value unchanged and false.
func applyModifier(name, modifier, value string) (string, bool) {
	if name == LineNumber {
		return value, false
	}
	switch modifier {
	case ModUpperFirst:
		return upperFirst(value), true
	case ModLower:
		return strings.ToLower(value), true
	default:
		return value, false
	}
}

// upperFirst uppercases the first rune of s.
func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
