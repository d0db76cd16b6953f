// Package languages maps file names to language names used by {language}
// and the language icon URL.
//
// The table is a flat JSON object. Keys are exact file names ("Dockerfile"),
// extensions with a leading dot (".rs"), or case-insensitive regular
// expressions prefixed with "regex:". Lookup tries the exact name first, then
// every pattern against the file name and its extension, then the extension.
// Anything else is "text".
package languages

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Fallback is returned when nothing in the table matches.
const Fallback = "text"

const regexPrefix = "regex:"

//go:embed languages.json
var builtinJSON []byte

// ///////////////////////////////////////////////
// Table
// ///////////////////////////////////////////////

// pattern is a compiled "regex:" entry.
type pattern struct {
	source   string
	re       *regexp.Regexp
	language string
}

// Table is an immutable language lookup table. It is safe for concurrent use.
type Table struct {
	exact    map[string]string
	patterns []pattern
	raw      map[string]string
}

// Parse builds a Table from its JSON form. Invalid patterns are skipped.
func Parse(data []byte) (*Table, error) {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse language table: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("parse language table: table is empty")
	}
	return fromMap(raw), nil
}

func fromMap(raw map[string]string) *Table {
	t := &Table{exact: make(map[string]string, len(raw)), raw: raw}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	// Sorted so the first matching pattern is deterministic.
	sort.Strings(keys)

	for _, key := range keys {
		language := raw[key]
		expr, ok := strings.CutPrefix(key, regexPrefix)
		if !ok {
			t.exact[key] = language
			continue
		}
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			slog.Debug("skipping invalid language pattern", "pattern", expr, "error", err)
			continue
		}
		t.patterns = append(t.patterns, pattern{source: expr, re: re, language: language})
	}
	return t
}

// Merge returns a new Table with overlay's entries replacing t's.
func (t *Table) Merge(overlay *Table) *Table {
	if overlay == nil {
		return t
	}
	merged := make(map[string]string, len(t.raw)+len(overlay.raw))
	for k, v := range t.raw {
		merged[k] = v
	}
	for k, v := range overlay.raw {
		merged[k] = v
	}
	return fromMap(merged)
}

// Len returns the number of entries, patterns included.
func (t *Table) Len() int { return len(t.exact) + len(t.patterns) }

// Lookup returns the language for a file name or path.
func (t *Table) Lookup(name string) string {
	if t == nil {
		return Fallback
	}
	filename := filepath.Base(name)
	if filename == "." || filename == string(filepath.Separator) {
		return Fallback
	}
	ext := "." + strings.TrimPrefix(filepath.Ext(filename), ".")

	if lang, ok := t.exact[filename]; ok {
		return lang
	}
	for _, p := range t.patterns {
		if p.re.MatchString(filename) || p.re.MatchString(ext) {
			return p.language
		}
	}
	if lang, ok := t.exact[ext]; ok && ext != "." {
		return lang
	}
	return Fallback
}

// MarshalJSON encodes the table in its source form.
func (t *Table) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.raw)
}

// ///////////////////////////////////////////////
// Built-in Table
// ///////////////////////////////////////////////

var (
	builtinOnce  sync.Once
	builtinTable *Table
)

// Builtin returns the table compiled into the binary.
func Builtin() *Table {
	builtinOnce.Do(func() {
		t, err := Parse(builtinJSON)
		if err != nil {
			panic(fmt.Sprintf("embedded languages.json: %v", err))
		}
		builtinTable = t
	})
	return builtinTable
}

// Lookup resolves name against the built-in table.
func Lookup(name string) string {
	return Builtin().Lookup(name)
}
