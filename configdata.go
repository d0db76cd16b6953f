// Package discordpresence provides embedded assets for the presence language server.
//
// The root package exists solely to embed [settings.default.toml] via
// [DefaultSettingsTOML]. The server writes it to the data directory on first
// run so users have a documented file to edit.
package discordpresence

import _ "embed"

// DefaultSettingsTOML holds the raw bytes of settings.default.toml, embedded at
// build time.
//
//go:embed settings.default.toml
var DefaultSettingsTOML []byte
