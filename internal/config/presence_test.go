// Tests for the presence configuration covering defaults, the absent/null/value
// distinction, per-language merging, lenient fallbacks, schema validation, and
// JSONC input.

package config

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"tools.zach/dev/discord-presence/internal/rules"
)

// ///////////////////////////////////////////////
// Field
// ///////////////////////////////////////////////

func TestField_States(t *testing.T) {
	var absent Field
	require.False(t, absent.IsSet())
	require.False(t, absent.IsNull())
	require.True(t, absent.IsZero())

	null := Null()
	require.True(t, null.IsSet())
	require.True(t, null.IsNull())
	_, ok := null.Get()
	require.False(t, ok)

	v := Value("x")
	got, ok := v.Get()
	require.True(t, ok)
	require.Equal(t, "x", got)
	require.Equal(t, "x", v.String())
}

func TestField_UnmarshalJSON(t *testing.T) {
	var doc struct {
		A Field `json:"a"`
		B Field `json:"b"`
		C Field `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"hello","b":null}`), &doc))
	require.Equal(t, Value("hello"), doc.A)
	require.Equal(t, Null(), doc.B)
	require.False(t, doc.C.IsSet())

	require.Error(t, json.Unmarshal([]byte(`{"a":1}`), &doc))
}

func TestFields_MarshalOmitsAbsent(t *testing.T) {
	out, err := json.Marshal(Fields{State: Value("s"), Details: Null()})
	require.NoError(t, err)
	require.JSONEq(t, `{"state":"s","details":null}`, string(out))
}

// ///////////////////////////////////////////////
// Parse
// ///////////////////////////////////////////////

func TestParse_EmptyYieldsDefaults(t *testing.T) {
	for _, in := range []string{"", "  ", "null"} {
		cfg, err := Parse([]byte(in))
		require.NoError(t, err)
		require.Equal(t, DefaultPresence(), cfg)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`{}`))
	require.NoError(t, err)

	require.Equal(t, DefaultApplicationID, cfg.ApplicationID)
	require.Equal(t, "https://raw.githubusercontent.com/xhyrom/zed-discord-presence/main/assets/icons", cfg.BaseIconsURL)
	require.True(t, cfg.GitIntegration)
	require.Equal(t, "Working on {filename}", cfg.State.String())
	require.Equal(t, "{base_icons_url}/{language:lo}.png", cfg.LargeImage.String())
	require.Equal(t, 300*time.Second, cfg.Idle.Duration())
	require.Equal(t, ChangeActivity, cfg.Idle.Action)
	require.Equal(t, "Idling", cfg.Idle.State.String())
	require.Equal(t, "blacklist", cfg.Rules.Mode)
	require.Empty(t, cfg.Rules.Paths)
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := Parse([]byte(`{
		"application_id": "42",
		"base_icons_url": "https://icons.example.com///",
		"state": "Editing {filename}",
		"details": null,
		"git_integration": false,
		"idle": {"timeout": 60, "action": "clear_activity", "state": "AFK"},
		"rules": {"mode": "whitelist", "paths": ["/work"]}
	}`))
	require.NoError(t, err)

	require.Equal(t, "42", cfg.ApplicationID)
	require.Equal(t, "https://icons.example.com", cfg.BaseIconsURL)
	require.Equal(t, Value("Editing {filename}"), cfg.State)
	require.True(t, cfg.Details.IsNull())
	require.Equal(t, "{language:u}", cfg.LargeText.String(), "absent field keeps default")
	require.False(t, cfg.GitIntegration)
	require.Equal(t, time.Minute, cfg.Idle.Duration())
	require.Equal(t, ClearActivity, cfg.Idle.Action)
	require.Equal(t, "AFK", cfg.Idle.State.String())
	require.Equal(t, "In Zed", cfg.Idle.Details.String(), "idle fields fall back to defaults")
	require.Equal(t, RulesConfig{Mode: "whitelist", Paths: []string{"/work"}}, cfg.Rules)
}

func TestParse_LenientEnums(t *testing.T) {
	cfg, err := Parse([]byte(`{"idle":{"action":"dance"},"rules":{"mode":"graylist"}}`))
	require.NoError(t, err)
	require.Equal(t, ChangeActivity, cfg.Idle.Action)
	require.Equal(t, "blacklist", cfg.Rules.Mode)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "not json", doc: `{`},
		{name: "not an object", doc: `[]`},
		{name: "null base_icons_url", doc: `{"base_icons_url": null}`},
		{name: "empty base_icons_url", doc: `{"base_icons_url": ""}`},
		{name: "null rules", doc: `{"rules": null}`},
		{name: "null rules paths", doc: `{"rules": {"paths": null}}`},
		{name: "null git_integration", doc: `{"git_integration": null}`},
		{name: "string git_integration", doc: `{"git_integration": "yes"}`},
		{name: "numeric template", doc: `{"state": 5}`},
		{name: "fractional timeout", doc: `{"idle": {"timeout": 1.5}}`},
		{name: "zero timeout", doc: `{"idle": {"timeout": 0}}`},
		{name: "language not object", doc: `{"languages": {"rust": "x"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrConfigInvalid), "got %v", err)
		})
	}
}

func TestParseJSONC(t *testing.T) {
	cfg, err := ParseJSONC([]byte(`{
		// comments are allowed
		"state": "Hacking {filename}", /* inline too */
		"rules": {"paths": ["/a"]}
	}`))
	require.NoError(t, err)
	require.Equal(t, "Hacking {filename}", cfg.State.String())
	require.Equal(t, []string{"/a"}, cfg.Rules.Paths)
}

func TestParseJSONC_TrailingCommas(t *testing.T) {
	cfg, err := ParseJSONC([]byte(`{
		"git_integration": false,
		"details": "a,}",
		"rules": {"mode": "whitelist", "paths": ["/a", "/b",],},
	}`))
	require.NoError(t, err)
	require.False(t, cfg.GitIntegration)
	require.Equal(t, "a,}", cfg.Details.String(), "commas inside strings are kept")
	require.Equal(t, []string{"/a", "/b"}, cfg.Rules.Paths)
}

func TestStripTrailingCommas(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{in: `{"a":1,}`, want: `{"a":1}`},
		{in: `[1, 2 ,  ]`, want: `[1, 2   ]`},
		{in: `{"a":"x,]","b":[1,2]}`, want: `{"a":"x,]","b":[1,2]}`},
		{in: `{"a":"q\",}",}`, want: `{"a":"q\",}"}`},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, string(stripTrailingCommas([]byte(tt.in))), "input %s", tt.in)
	}
}

// ///////////////////////////////////////////////
// Per-Language Overrides
// ///////////////////////////////////////////////

func TestActiveFields_LanguageOverride(t *testing.T) {
	cfg, err := Parse([]byte(`{
		"languages": {
			"Rust": {"large_image": "https://example.com/crab.png", "small_text": null}
		}
	}`))
	require.NoError(t, err)

	f := cfg.ActiveFields("rust")
	require.Equal(t, "https://example.com/crab.png", f.LargeImage.String())
	require.Equal(t, "Working on {filename}", f.State.String(), "state falls back to top level")
	require.Equal(t, "In {workspace}", f.Details.String(), "details falls back to top level")
	require.True(t, f.SmallText.IsNull(), "explicit null suppresses the field")

	require.Equal(t, cfg.Fields, cfg.ActiveFields("go"))
	require.Equal(t, f, cfg.ActiveFields("RUST"))
}

func TestFields_Merge(t *testing.T) {
	base := Fields{State: Value("a"), Details: Value("b"), LargeText: Null()}
	over := Fields{Details: Null(), LargeText: Value("c")}

	got := base.Merge(over)
	require.Equal(t, Fields{State: Value("a"), Details: Null(), LargeText: Value("c")}, got)
	require.Equal(t, base, base.Merge(Fields{}))
}

// ///////////////////////////////////////////////
// Rules
// ///////////////////////////////////////////////

func TestRulesConfig_Rule(t *testing.T) {
	r := RulesConfig{Mode: "whitelist", Paths: []string{"/work"}}.Rule()
	require.Equal(t, rules.Whitelist, r.Mode)
	require.True(t, r.Allowed("/work/repo"))
	require.False(t, r.Allowed("/home/repo"))
}

func TestPresenceSchema(t *testing.T) {
	var doc map[string]any
	require.NoError(t, json.Unmarshal(PresenceSchema(), &doc))
	require.Equal(t, "object", doc["type"])
}
