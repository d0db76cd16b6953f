package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single settings field.
// The genconfig tool uses [FieldDoc] values to annotate the generated settings.default.toml.
type FieldDoc struct {
	// Comment is shown as a header comment above the field in the example file.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// SettingsDocs maps TOML field paths (dot-separated, e.g. "ipc.read_timeout")
// to their [FieldDoc] entries. The genconfig tool uses this map to annotate the
// generated settings.default.toml with inline comments and alternative examples.
var SettingsDocs = map[string]FieldDoc{
	// ── Root ──────────────────────────────────────────────────────
	"version": {
		Comment: "Settings schema version. Do not edit.",
	},

	// ── Log ──────────────────────────────────────────────────────
	"log": {
		Comment: "Logging. DISCORD_PRESENCE_LOG_LEVEL overrides log.level.",
	},
	"log.level": {
		Comment: "Minimum log level. Options: \"trace\", \"debug\", \"info\", \"warn\", \"error\"",
		Alternatives: []string{
			`level = "debug"`,
			`level = "warn"`,
		},
	},
	"log.max_size_mb": {
		Comment: "Maximum log file size in megabytes before rotation.",
	},
	"log.stderr": {
		Comment: "Also write log lines to stderr (shown in the editor's language server log).",
	},

	// ── IPC ──────────────────────────────────────────────────────
	"ipc": {
		Comment: "Discord IPC timing. Durations use Go syntax: \"250ms\", \"5s\", \"1m\".",
	},
	"ipc.handshake_timeout": {
		Comment: "How long to wait for Discord to answer the handshake.",
	},
	"ipc.read_timeout": {
		Comment: "How long to wait for a reply after each activity update.",
	},
	"ipc.reconnect_backoff": {
		Comment: "Pause before the single reconnect attempt after a dropped connection.",
	},
	"ipc.retry_max": {
		Comment: "Extra connect attempts made by check. serve trims these to about 2s of waiting at startup.",
	},
	"ipc.retry_initial": {
		Comment: "First delay between startup connect attempts; doubles each attempt.",
	},
	"ipc.retry_max_delay": {
		Comment: "Upper bound for the startup connect delay.",
	},

	// ── Engine ───────────────────────────────────────────────────
	"engine": {
		Comment: "Presence engine",
	},
	"engine.tick_interval": {
		Comment: "How often the idle timeout is checked.",
		Alternatives: []string{
			`tick_interval = "1s"`,
		},
	},

	// ── Languages ────────────────────────────────────────────────
	"languages": {
		Comment: "Language table used for {language} and icon names.",
	},
	"languages.url": {
		Comment: "Remote table in the same JSON shape as the built-in one.",
	},
	"languages.refresh": {
		Comment: "Download the table at startup and cache it. The built-in table is used on failure.",
	},
}
