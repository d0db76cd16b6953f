// Command genconfig renders settings.default.toml from config.ExampleSettings
// and the field documentation in config.SettingsDocs.
//
// It runs via the go:generate directive in internal/config/settings.go. With
// --check it writes nothing and fails when the file on disk is stale.
package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"tools.zach/dev/discord-presence/internal/config"
)

// errStale is returned by --check when the output differs from the file.
var errStale = errors.New("settings file is out of date; run go generate ./internal/config")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "genconfig: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		outPath string
		check   bool
	)
	cmd := &cobra.Command{
		Use:           "genconfig",
		Short:         "Generate the documented default settings file",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := render(config.ExampleSettings(), config.SettingsDocs)
			if err != nil {
				return err
			}
			if check {
				current, err := os.ReadFile(outPath)
				if err != nil {
					return fmt.Errorf("read %s: %w", outPath, err)
				}
				if !bytes.Equal(current, data) {
					return fmt.Errorf("%s: %w", outPath, errStale)
				}
				return nil
			}
			if err := os.WriteFile(outPath, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", outPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", outPath)
			return nil
		},
	}
	// go generate runs in internal/config; the file is embedded from the root.
	cmd.Flags().StringVarP(&outPath, "output", "o", "../../settings.default.toml", "file to write")
	cmd.Flags().BoolVar(&check, "check", false, "compare with the existing file instead of writing")
	return cmd
}

// ///////////////////////////////////////////////
// Rendering
// ///////////////////////////////////////////////

// table is one TOML table of the encoded settings. The root table has no name.
type table struct {
	name string
	// lines are "key = value" lines in encoder order.
	lines []string
}

// render encodes s and annotates every key with its documentation. Every
// encoded key must be documented and every doc entry must name a key or a
// table that exists, so the docs cannot drift from the Settings struct.
func render(s *config.Settings, docs map[string]config.FieldDoc) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("example settings: %w", err)
	}
	tables, err := encodeTables(s)
	if err != nil {
		return nil, err
	}
	if err := checkDocs(tables, docs); err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("# ///////////////////////////////////////////////\n")
	b.WriteString("# Discord Presence Settings\n")
	b.WriteString("# ///////////////////////////////////////////////\n")
	for _, t := range tables {
		b.WriteString("\n")
		if t.name != "" {
			fmt.Fprintf(&b, "# ///// %s /////\n\n", sectionTitle(t.name))
			writeComment(&b, docs[t.name].Comment)
			fmt.Fprintf(&b, "[%s]\n", t.name)
		}
		for _, line := range t.lines {
			doc := docs[qualify(t.name, keyOf(line))]
			writeComment(&b, doc.Comment)
			b.WriteString(line + "\n")
			for _, alt := range doc.Alternatives {
				b.WriteString("# " + alt + "\n")
			}
		}
	}
	return []byte(b.String()), nil
}

// encodeTables runs the TOML encoder and splits its output by table header.
func encodeTables(s *config.Settings) ([]table, error) {
	var raw bytes.Buffer
	enc := toml.NewEncoder(&raw)
	enc.Indent = ""
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}

	tables := []table{{}}
	for _, line := range strings.Split(raw.String(), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasPrefix(line, "[["):
			return nil, fmt.Errorf("array tables are not supported: %s", line)
		case strings.HasPrefix(line, "["):
			tables = append(tables, table{name: strings.Trim(line, "[] ")})
		default:
			cur := &tables[len(tables)-1]
			cur.lines = append(cur.lines, line)
		}
	}
	if len(tables[0].lines) == 0 {
		tables = tables[1:]
	}
	return tables, nil
}

// checkDocs reports undocumented keys and doc entries that match nothing.
func checkDocs(tables []table, docs map[string]config.FieldDoc) error {
	known := make(map[string]bool)
	var missing []string
	for _, t := range tables {
		if t.name != "" {
			known[t.name] = true
		}
		for _, line := range t.lines {
			path := qualify(t.name, keyOf(line))
			known[path] = true
			if _, ok := docs[path]; !ok {
				missing = append(missing, path)
			}
		}
	}
	var unknown []string
	for path := range docs {
		if !known[path] {
			unknown = append(unknown, path)
		}
	}
	sort.Strings(missing)
	sort.Strings(unknown)

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("undocumented settings: %s", strings.Join(missing, ", ")))
	}
	if len(unknown) > 0 {
		errs = append(errs, fmt.Errorf("docs for unknown settings: %s", strings.Join(unknown, ", ")))
	}
	return errors.Join(errs...)
}

func writeComment(b *strings.Builder, comment string) {
	if comment == "" {
		return
	}
	for _, line := range strings.Split(comment, "\n") {
		b.WriteString("# " + line + "\n")
	}
}

func keyOf(line string) string {
	key, _, _ := strings.Cut(line, "=")
	return strings.TrimSpace(key)
}

func qualify(table, key string) string {
	if table == "" {
		return key
	}
	return table + "." + key
}

// acronyms are table names shown in upper case in section banners.
var acronyms = map[string]bool{"ipc": true}

// sectionTitle turns a table name into its banner title: "ipc" becomes "IPC"
// and "languages" becomes "Languages".
func sectionTitle(name string) string {
	if name == "" {
		return ""
	}
	if acronyms[name] {
		return strings.ToUpper(name)
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
