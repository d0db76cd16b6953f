// Package config provides configuration loading and defaults for the
// presence language server.
//
// Two layers exist. The presence configuration ([PresenceConfig]) is JSON
// delivered by the editor and decides what is shown. The daemon settings
// ([Settings]) are a TOML file in the user's data directory and tune logging,
// IPC timeouts, the engine tick, and the language table source.
package config

//go:generate go run ../../cmd/genconfig

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"tools.zach/dev/discord-presence/internal/atomicfile"
)

// DefaultLanguagesURL is where the language table is refreshed from.
const DefaultLanguagesURL = "https://raw.githubusercontent.com/xhyrom/zed-discord-presence/main/lsp/assets/languages.json"

// ///////////////////////////////////////////////
// Duration
// ///////////////////////////////////////////////

// Duration is a time.Duration that reads and writes TOML strings like "250ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ///////////////////////////////////////////////
// Settings Types
// ///////////////////////////////////////////////

// Settings represents the daemon settings file.
type Settings struct {
	// Version is the settings schema version.
	Version int `toml:"version"`
	// Log holds logging settings.
	Log LogSettings `toml:"log"`
	// IPC holds Discord connection timing.
	IPC IPCSettings `toml:"ipc"`
	// Engine holds presence engine timing.
	Engine EngineSettings `toml:"engine"`
	// Languages holds the language table source.
	Languages LanguageSettings `toml:"languages"`
}

// LogSettings holds logging settings.
type LogSettings struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
	// Stderr mirrors log records to stderr, which editors show in their LSP logs.
	Stderr bool `toml:"stderr"`
}

// IPCSettings holds Discord connection timing.
type IPCSettings struct {
	// HandshakeTimeout bounds the wait for the handshake reply.
	HandshakeTimeout Duration `toml:"handshake_timeout"`
	// ReadTimeout bounds the drain of a command acknowledgment.
	ReadTimeout Duration `toml:"read_timeout"`
	// ReconnectBackoff is the pause before the single reconnect after a broken transport.
	ReconnectBackoff Duration `toml:"reconnect_backoff"`
	// RetryMax is the number of extra connect attempts made at startup and by check.
	RetryMax int `toml:"retry_max"`
	// RetryInitial is the first delay between startup connect attempts.
	RetryInitial Duration `toml:"retry_initial"`
	// RetryMaxDelay caps the doubling delay between startup connect attempts.
	RetryMaxDelay Duration `toml:"retry_max_delay"`
}

// EngineSettings holds presence engine timing.
type EngineSettings struct {
	// TickInterval is how often the idle timer is checked.
	TickInterval Duration `toml:"tick_interval"`
}

// LanguageSettings holds the language table source.
type LanguageSettings struct {
	// URL is the remote language table.
	URL string `toml:"url"`
	// Refresh downloads the table at startup and caches it in the data directory.
	Refresh bool `toml:"refresh"`
}

// CurrentSettingsVersion is the schema version written by [Settings.Save].
const CurrentSettingsVersion = 1

// ///////////////////////////////////////////////
// Default Settings
// ///////////////////////////////////////////////

// DefaultSettings returns Settings populated with sensible defaults.
func DefaultSettings() *Settings {
	return &Settings{
		Version: CurrentSettingsVersion,
		Log: LogSettings{
			Level:     "info",
			MaxSizeMB: 10,
		},
		IPC: IPCSettings{
			HandshakeTimeout: Duration{5 * time.Second},
			ReadTimeout:      Duration{250 * time.Millisecond},
			ReconnectBackoff: Duration{time.Second},
			RetryMax:         5,
			RetryInitial:     Duration{500 * time.Millisecond},
			RetryMaxDelay:    Duration{10 * time.Second},
		},
		Engine: EngineSettings{
			TickInterval: Duration{5 * time.Second},
		},
		Languages: LanguageSettings{
			URL:     DefaultLanguagesURL,
			Refresh: false,
		},
	}
}

// ExampleSettings returns Settings suitable for generating settings.default.toml.
func ExampleSettings() *Settings {
	return DefaultSettings()
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// LoadSettings reads and parses the settings file at path.
// If the file doesn't exist, returns DefaultSettings.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, fmt.Errorf("read settings file: %w", err)
	}

	s := DefaultSettings()
	if err := toml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	if s.Version == 0 {
		s.Version = CurrentSettingsVersion
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("validate settings: %w", err)
	}
	return s, nil
}

// Save writes the settings to disk as TOML using atomic file write.
func (s *Settings) Save(path string) error {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	return atomicfile.Write(path, buf.Bytes(), 0o644)
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that all settings are within acceptable ranges.
func (s *Settings) Validate() error {
	if s.Version > CurrentSettingsVersion {
		return fmt.Errorf("unsupported settings version %d: newest known is %d", s.Version, CurrentSettingsVersion)
	}

	if !validLogLevels[strings.ToLower(s.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", s.Log.Level)
	}

	if s.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0, got %d", s.Log.MaxSizeMB)
	}

	for _, d := range []struct {
		name  string
		value Duration
	}{
		{"ipc.handshake_timeout", s.IPC.HandshakeTimeout},
		{"ipc.read_timeout", s.IPC.ReadTimeout},
		{"ipc.reconnect_backoff", s.IPC.ReconnectBackoff},
		{"ipc.retry_initial", s.IPC.RetryInitial},
		{"ipc.retry_max_delay", s.IPC.RetryMaxDelay},
		{"engine.tick_interval", s.Engine.TickInterval},
	} {
		if d.value.Duration <= 0 {
			return fmt.Errorf("%s must be > 0, got %s", d.name, d.value.Duration)
		}
	}

	if s.IPC.RetryMax < 0 {
		return fmt.Errorf("ipc.retry_max must be >= 0, got %d", s.IPC.RetryMax)
	}

	if s.IPC.RetryMaxDelay.Duration < s.IPC.RetryInitial.Duration {
		return fmt.Errorf("ipc.retry_max_delay %s must be >= ipc.retry_initial %s",
			s.IPC.RetryMaxDelay.Duration, s.IPC.RetryInitial.Duration)
	}

	if s.Languages.Refresh && !strings.HasPrefix(s.Languages.URL, "https://") && !strings.HasPrefix(s.Languages.URL, "http://") {
		return fmt.Errorf("invalid languages.url %q: must be an http or https URL", s.Languages.URL)
	}

	return nil
}
