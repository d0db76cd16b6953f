// Package paths centralizes file and directory names used across the project.
// All data directory file names are defined here as the single source of truth.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	SettingsFile       = "settings.toml"
	LogFile            = "presence.log"
	LanguagesCacheFile = "languages-cache.json"
)

// Binary and directory names.
const (
	BinaryName = "discord-presence-lsp"
	AppDirName = "discord-presence" // relative to os.UserConfigDir
)

// Environment variables consulted at startup.
const (
	EnvDataDir  = "DISCORD_PRESENCE_DATA_DIR"
	EnvLogLevel = "DISCORD_PRESENCE_LOG_LEVEL"
)

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
}

// Settings returns the full path to the settings file.
func (d DataDir) Settings() string { return filepath.Join(d.Root, SettingsFile) }

// Log returns the full path to the log file.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }

// LanguagesCache returns the full path to the cached language table.
func (d DataDir) LanguagesCache() string { return filepath.Join(d.Root, LanguagesCacheFile) }

// Ensure creates the data directory if it does not exist.
func (d DataDir) Ensure() error {
	if err := os.MkdirAll(d.Root, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}

// Default resolves the data directory: $DISCORD_PRESENCE_DATA_DIR if set,
// otherwise <user config dir>/discord-presence.
func Default() (DataDir, error) {
	if dir := os.Getenv(EnvDataDir); dir != "" {
		return DataDir{Root: dir}, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return DataDir{}, fmt.Errorf("resolve user config dir: %w", err)
	}
	return DataDir{Root: filepath.Join(base, AppDirName)}, nil
}
