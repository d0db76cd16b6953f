// Package main implements discord-presence-lsp, the language server an editor
// launches to publish the user's activity as Discord Rich Presence.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"

	"github.com/spf13/cobra"
	"tools.zach/dev/discord-presence/internal/discord"
	"tools.zach/dev/discord-presence/internal/paths"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time via ldflags:
//   - goreleaser: -X main.version={{.Version}}  -> "0.1.0"
//   - make build: -X main.version=$(VERSION)    -> "0.0.0-dev+05ffee5"
//
// When ldflags are not set (bare go build), resolveVersion reads the VCS info
// that Go embeds automatically.
var version = "dev"

// resolveVersion returns the build version string. If [version] was set via
// ldflags it is returned as-is; otherwise the embedded VCS revision and dirty
// state produce a "dev+<hash>" tag.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// Command Tree
// ///////////////////////////////////////////////

// cli carries what the commands share. Tests replace the streams and the
// Discord dialer.
type cli struct {
	dataDir string
	stdin   io.Reader
	stdout  io.Writer
	// dial opens the Discord endpoint; nil means the platform default.
	dial discord.Dialer
}

// dataPaths returns the data directory selected by --data-dir.
func (c *cli) dataPaths() paths.DataDir {
	return paths.DataDir{Root: c.dataDir}
}

// defaultDataDir returns the platform default data directory. Falls back to
// ./.discord-presence if the user config directory cannot be determined.
func defaultDataDir() string {
	d, err := paths.Default()
	if err != nil {
		return filepath.Join(".", "."+paths.AppDirName)
	}
	return d.Root
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           paths.BinaryName,
		Short:         "Discord Rich Presence language server",
		Long:          "Speaks the Language Server Protocol on stdio and publishes the editor's activity to Discord.",
		Version:       resolveVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), c)
		},
	}
	root.PersistentFlags().StringVar(&c.dataDir, "data-dir", defaultDataDir(), "data directory for settings, logs, and caches")
	addStdioFlag(root)

	root.AddCommand(
		newServeCmd(c),
		newCheckCmd(c),
		newPreviewCmd(c),
		newLogsCmd(c),
		newVersionCmd(),
	)
	return root
}

// addStdioFlag accepts and ignores --stdio, which some clients always pass.
func addStdioFlag(cmd *cobra.Command) {
	cmd.Flags().Bool("stdio", true, "communicate over stdin/stdout (always on)")
	_ = cmd.Flags().MarkHidden("stdio")
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", paths.BinaryName, resolveVersion())
		},
	}
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()

	c := &cli{stdin: os.Stdin, stdout: os.Stdout}
	if err := newRootCmd(c).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", paths.BinaryName, err)
		stop()
		os.Exit(1)
	}
}
