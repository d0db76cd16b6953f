// Tests for the language table covering lookup precedence, pattern matching,
// merging, and the remote -> cache -> built-in refresh chain.
package languages

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

// ///////////////////////////////////////////////
// Lookup
// ///////////////////////////////////////////////

func TestBuiltinLookup(t *testing.T) {
	tests := []struct {
		name string
		file string
		want string
	}{
		{name: "extension", file: "main.rs", want: "rust"},
		{name: "path", file: "/home/u/proj/cmd/main.go", want: "go"},
		{name: "php", file: "/home/user/file.php", want: "php"},
		{name: "exact filename beats extension", file: "Cargo.toml", want: "cargo"},
		{name: "exact filename without extension", file: "Dockerfile", want: "docker"},
		{name: "pattern on filename", file: ".env.local", want: "env"},
		{name: "pattern is case insensitive", file: "README.md", want: "readme"},
		{name: "pattern on extension", file: ".bashrc", want: "shell"},
		{name: "unknown extension", file: "notes.unknownext", want: Fallback},
		{name: "no extension", file: "somefile", want: Fallback},
		{name: "empty", file: "", want: Fallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Lookup(tt.file); got != tt.want {
				t.Errorf("Lookup(%q) = %q, want %q", tt.file, got, tt.want)
			}
		})
	}
}

func TestTable_PatternsBeforeExtension(t *testing.T) {
	table, err := Parse([]byte(`{".ts": "typescript", "regex:\\.d\\.ts$": "declaration", "regex:[": "broken"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := table.Lookup("types.d.ts"); got != "declaration" {
		t.Errorf("Lookup(types.d.ts) = %q, want declaration", got)
	}
	if got := table.Lookup("index.ts"); got != "typescript" {
		t.Errorf("Lookup(index.ts) = %q, want typescript", got)
	}
	if table.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (invalid pattern skipped)", table.Len())
	}
}

func TestParse_Errors(t *testing.T) {
	for _, in := range []string{``, `[]`, `{}`, `{"a": 1}`} {
		if _, err := Parse([]byte(in)); err == nil {
			t.Errorf("Parse(%q) expected error", in)
		}
	}
}

func TestTable_Merge(t *testing.T) {
	base, _ := Parse([]byte(`{".a": "one", ".b": "two"}`))
	overlay, _ := Parse([]byte(`{".b": "TWO", ".c": "three"}`))

	merged := base.Merge(overlay)
	for file, want := range map[string]string{"x.a": "one", "x.b": "TWO", "x.c": "three"} {
		if got := merged.Lookup(file); got != want {
			t.Errorf("Lookup(%q) = %q, want %q", file, got, want)
		}
	}
	if base.Lookup("x.b") != "two" {
		t.Error("Merge must not mutate the receiver")
	}
	if base.Merge(nil) != base {
		t.Error("Merge(nil) should return the receiver")
	}
}

func TestNilTableLookup(t *testing.T) {
	var table *Table
	if got := table.Lookup("main.go"); got != Fallback {
		t.Errorf("nil table Lookup = %q, want %q", got, Fallback)
	}
}

// ///////////////////////////////////////////////
// Refresh (via httptest)
// ///////////////////////////////////////////////

func TestRefresh_RemoteWritesCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{".zz": "zedlang"}`))
	}))
	defer server.Close()
	cache := filepath.Join(t.TempDir(), "languages-cache.json")

	table := Refresh(context.Background(), server.URL, cache)
	if got := table.Lookup("a.zz"); got != "zedlang" {
		t.Errorf("remote entry Lookup = %q, want zedlang", got)
	}
	if got := table.Lookup("a.rs"); got != "rust" {
		t.Errorf("built-in entry lost after refresh: %q", got)
	}
	if _, err := os.Stat(cache); err != nil {
		t.Fatalf("cache not written: %v", err)
	}
	if got := Cached(cache).Lookup("a.zz"); got != "zedlang" {
		t.Errorf("Cached Lookup = %q, want zedlang", got)
	}
}

func TestRefresh_FallsBackToCache(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	cache := filepath.Join(t.TempDir(), "languages-cache.json")
	if err := os.WriteFile(cache, []byte(`{".qq": "cached"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	table := Refresh(context.Background(), server.URL, cache)
	if got := table.Lookup("a.qq"); got != "cached" {
		t.Errorf("Lookup = %q, want cached", got)
	}
	if hits.Load() == 0 {
		t.Error("remote was never requested")
	}
}

func TestRefresh_FallsBackToBuiltin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	table := Refresh(context.Background(), server.URL, filepath.Join(t.TempDir(), "missing.json"))
	if table != Builtin() {
		t.Error("expected the built-in table")
	}
}

func TestRefresh_NoURL(t *testing.T) {
	if Refresh(context.Background(), "", "") != Builtin() {
		t.Error("expected the built-in table without a URL or cache")
	}
}

func TestFetchRemote_TooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		big := make([]byte, maxTableSize+10)
		for i := range big {
			big[i] = ' '
		}
		w.Write(big)
	}))
	defer server.Close()

	if _, err := fetchRemote(context.Background(), getHTTPClient(), server.URL); err == nil {
		t.Fatal("expected error for oversized response")
	}
}
