package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	discordpresence "tools.zach/dev/discord-presence"
	"tools.zach/dev/discord-presence/internal/atomicfile"
	"tools.zach/dev/discord-presence/internal/config"
	"tools.zach/dev/discord-presence/internal/discord"
	"tools.zach/dev/discord-presence/internal/git"
	"tools.zach/dev/discord-presence/internal/languages"
	"tools.zach/dev/discord-presence/internal/logger"
	"tools.zach/dev/discord-presence/internal/lsp"
	"tools.zach/dev/discord-presence/internal/paths"
	"tools.zach/dev/discord-presence/internal/presence"
)

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the language server on stdin/stdout (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), c)
		},
	}
	addStdioFlag(cmd)
	return cmd
}

// ///////////////////////////////////////////////
// Settings
// ///////////////////////////////////////////////

// loadSettings creates the data directory, writes the documented default
// settings file on first run, and loads it.
func loadSettings(dp paths.DataDir) (*config.Settings, error) {
	if err := dp.Ensure(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(dp.Settings()); errors.Is(err, os.ErrNotExist) {
		if writeErr := atomicfile.Write(dp.Settings(), discordpresence.DefaultSettingsTOML, 0o644); writeErr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to write default settings: %v\n", writeErr)
		}
	}
	settings, err := config.LoadSettings(dp.Settings())
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return settings, nil
}

// sessionOptions maps the [ipc] settings onto session timeouts.
func sessionOptions(s *config.Settings, dial discord.Dialer) discord.Options {
	opts := discord.DefaultOptions()
	opts.HandshakeTimeout = s.IPC.HandshakeTimeout.Duration
	opts.AckTimeout = s.IPC.ReadTimeout.Duration
	opts.ReconnectBackoff = s.IPC.ReconnectBackoff.Duration
	opts.Dial = dial
	return opts
}

// retryPolicy maps the [ipc] retry settings onto a connect policy.
func retryPolicy(s *config.Settings) discord.RetryPolicy {
	return discord.RetryPolicy{
		MaxRetries: s.IPC.RetryMax,
		Initial:    s.IPC.RetryInitial.Duration,
		Max:        s.IPC.RetryMaxDelay.Duration,
	}
}

// openLogger builds the rotating file logger, mirrored to stderr when
// log.stderr is set. Stdout is reserved for the protocol.
func openLogger(dp paths.DataDir, s *config.Settings) (*slog.Logger, io.Closer, error) {
	level := logger.ResolveLevel(os.Getenv(paths.EnvLogLevel), s.Log.Level)
	var extra []io.Writer
	if s.Log.Stderr {
		extra = append(extra, os.Stderr)
	}
	log, closer, err := logger.NewLogger(dp.Log(), level, s.Log.MaxSizeMB, extra...)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return log, closer, nil
}

// ///////////////////////////////////////////////
// Startup Session
// ///////////////////////////////////////////////

// startupRetryBudget caps the total wait of the startup connect retries. The
// first connect runs on the engine goroutine, so editor events queue behind it.
const startupRetryBudget = 2 * time.Second

// startupPolicy is the [ipc] retry policy trimmed to [startupRetryBudget].
func startupPolicy(s *config.Settings) discord.RetryPolicy {
	return retryPolicy(s).Within(startupRetryBudget)
}

// startupSession retries its first connect with the bounded policy so a
// Discord client that is still starting up is picked up. Later connects are
// single attempts driven by editor events.
type startupSession struct {
	*discord.Session
	policy discord.RetryPolicy
	tried  bool
}

func (s *startupSession) Connect(ctx context.Context) error {
	if s.tried {
		return s.Session.Connect(ctx)
	}
	s.tried = true
	return discord.ConnectWithRetry(ctx, s.Session, s.policy)
}

// ///////////////////////////////////////////////
// Serve
// ///////////////////////////////////////////////

// runServe runs the LSP reader, the presence engine and the optional
// language table refresh until the client exits or ctx is cancelled.
func runServe(ctx context.Context, c *cli) error {
	dp := c.dataPaths()
	settings, err := loadSettings(dp)
	if err != nil {
		return err
	}

	log, logCloser, err := openLogger(dp, settings)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	prev := slog.Default()
	slog.SetDefault(log)
	defer slog.SetDefault(prev)

	ver := resolveVersion()
	log.Info("discord-presence-lsp starting", "version", ver, "data_dir", dp.Root)

	var table atomic.Pointer[languages.Table]
	table.Store(languages.Cached(dp.LanguagesCache()))

	opts := sessionOptions(settings, c.dial)
	policy := startupPolicy(settings)
	first := true
	engine := presence.New(presence.Options{
		NewSession: func(appID string) presence.Session {
			s := discord.NewSession(appID, opts)
			if first {
				first = false
				return &startupSession{Session: s, policy: policy}
			}
			return s
		},
		Git: git.New(),
		WatchHead: func(gitDir string) (presence.HeadWatcher, error) {
			return git.NewHeadWatcher(gitDir)
		},
		Languages:    table.Load,
		TickInterval: settings.Engine.TickInterval.Duration,
		Logger:       log,
	})
	srv := lsp.NewServer(c.stdin, c.stdout, engine, lsp.WithLogger(log), lsp.WithVersion(ver))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Run(gctx)
	})
	g.Go(func() error {
		// The client going away ends the process.
		defer cancel()
		return srv.Run(gctx)
	})
	if settings.Languages.Refresh {
		g.Go(func() error {
			table.Store(languages.Refresh(gctx, settings.Languages.URL, dp.LanguagesCache()))
			return nil
		})
	}

	err = g.Wait()
	log.Info("discord-presence-lsp stopped", "engine", engine.ID(), "clean_exit", srv.Exited())
	return err
}
