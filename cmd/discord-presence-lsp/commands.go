package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"tools.zach/dev/discord-presence/internal/config"
	"tools.zach/dev/discord-presence/internal/discord"
	"tools.zach/dev/discord-presence/internal/git"
	"tools.zach/dev/discord-presence/internal/languages"
	"tools.zach/dev/discord-presence/internal/logger"
	"tools.zach/dev/discord-presence/internal/presence"
)

// ///////////////////////////////////////////////
// check
// ///////////////////////////////////////////////

func newCheckCmd(c *cli) *cobra.Command {
	var appID string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Connect to Discord, clear the presence, and report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loadSettings(c.dataPaths())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			session := discord.NewSession(appID, sessionOptions(settings, c.dial))
			defer session.Close()

			if err := discord.ConnectWithRetry(cmd.Context(), session, retryPolicy(settings)); err != nil {
				return fmt.Errorf("discord: %w", err)
			}
			user := session.UserID()
			if user == "" {
				user = "unknown"
			}
			fmt.Fprintf(out, "connected to Discord (application %s, user %s)\n", appID, user)

			if err := session.ClearActivity(cmd.Context()); err != nil {
				return fmt.Errorf("clear activity: %w", err)
			}
			fmt.Fprintln(out, "presence cleared")
			return nil
		},
	}
	cmd.Flags().StringVar(&appID, "app-id", config.DefaultApplicationID, "Discord application id to handshake with")
	return cmd
}

// ///////////////////////////////////////////////
// preview
// ///////////////////////////////////////////////

// previewOutput is what preview prints.
type previewOutput struct {
	Variant     string             `json:"variant"`
	Activity    *presence.Activity `json:"activity"`
	Payload     *discord.Activity  `json:"payload"`
	Diagnostics []string           `json:"diagnostics"`
}

func newPreviewCmd(c *cli) *cobra.Command {
	var (
		configPath string
		file       string
		workspace  string
		line       int
		idle       bool
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Render a presence configuration against a file and print the payload",
		Long: "Reads a presence configuration (JSON with comments) and prints the activity that would be\n" +
			"sent for the given file, along with template diagnostics.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.DefaultPresence()
			if configPath != "" {
				data, err := os.ReadFile(configPath)
				if err != nil {
					return fmt.Errorf("read config: %w", err)
				}
				if cfg, err = config.ParseJSONC(data); err != nil {
					return err
				}
			}

			in := presence.Input{
				Languages: languages.Cached(c.dataPaths().LanguagesCache()),
			}
			if file != "" {
				abs, err := filepath.Abs(file)
				if err != nil {
					return fmt.Errorf("resolve file: %w", err)
				}
				in.Document = &presence.Document{Path: abs, Line: line}
			}
			if workspace != "" {
				abs, err := filepath.Abs(workspace)
				if err != nil {
					return fmt.Errorf("resolve workspace: %w", err)
				}
				in.Workspace = abs
				if cfg.GitIntegration {
					g := git.New()
					in.Branch = g.Branch(cmd.Context(), abs)
					in.RemoteURL = g.RemoteURL(cmd.Context(), abs)
				}
			}

			variant := presence.VariantActive
			if idle {
				variant = presence.VariantIdle
			}
			if variant == presence.VariantIdle && cfg.Idle.Action == config.ClearActivity {
				fmt.Fprintln(cmd.ErrOrStderr(), "note: idle action is clear_activity; Discord would show nothing")
			}
			if workspace != "" && !cfg.Rules.Rule().Allowed(in.Workspace) {
				fmt.Fprintln(cmd.ErrOrStderr(), "note: workspace is excluded by rules; presence would be disabled")
			}

			activity, diags := presence.Render(cfg, variant, in)
			out := previewOutput{
				Variant:     variant.String(),
				Activity:    activity,
				Payload:     activity.Discord(),
				Diagnostics: make([]string, 0, len(diags)),
			}
			for _, d := range diags {
				out.Diagnostics = append(out.Diagnostics, d.String())
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "presence configuration file (JSON with comments); defaults when empty")
	cmd.Flags().StringVar(&file, "file", "", "document to render for")
	cmd.Flags().StringVar(&workspace, "workspace", "", "workspace root")
	cmd.Flags().IntVar(&line, "line", 0, "1-based cursor line")
	cmd.Flags().BoolVar(&idle, "idle", false, "render the idle variant")
	return cmd
}

// ///////////////////////////////////////////////
// logs
// ///////////////////////////////////////////////

func newLogsCmd(c *cli) *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the end of the log file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := c.dataPaths().Log()
			tail, err := logger.ReadTail(path, lines)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("no log file at %s", path)
				}
				return err
			}
			if tail != "" {
				fmt.Fprintln(cmd.OutOrStdout(), tail)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "number of lines to show")
	return cmd
}
