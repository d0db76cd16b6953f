package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/muhammadmuzzammil1998/jsonc"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"tools.zach/dev/discord-presence/internal/rules"
)

// ErrConfigInvalid is returned when a presence configuration document fails
// validation. The previous configuration stays in effect.
var ErrConfigInvalid = errors.New("invalid presence configuration")

// Presence defaults.
const (
	DefaultApplicationID = "1263505205522337886"
	DefaultBaseIconsURL  = "https://raw.githubusercontent.com/xhyrom/zed-discord-presence/main/assets/icons/"
	DefaultIdleTimeout   = 300 * time.Second
)

// ///////////////////////////////////////////////
// Field
// ///////////////////////////////////////////////

// Field is a template value that distinguishes three cases: absent from the
// document (fall back), explicit null (do not render), and a string.
type Field struct {
	present bool
	null    bool
	value   string
}

// Value returns a Field holding s.
func Value(s string) Field { return Field{present: true, value: s} }

// Null returns a Field that suppresses rendering.
func Null() Field { return Field{present: true, null: true} }

// IsSet reports whether the field was present in the document, null included.
func (f Field) IsSet() bool { return f.present }

// IsNull reports whether the field was an explicit null.
func (f Field) IsNull() bool { return f.present && f.null }

// Get returns the template and true when the field holds a string.
func (f Field) Get() (string, bool) {
	if !f.present || f.null {
		return "", false
	}
	return f.value, true
}

// String returns the template text, or "" when absent or null.
func (f Field) String() string {
	s, _ := f.Get()
	return s
}

// IsZero reports whether the field is absent. It lets omitzero drop it.
func (f Field) IsZero() bool { return !f.present }

// UnmarshalJSON implements [json.Unmarshaler]. It is called for null too.
func (f *Field) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = Null()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = Value(s)
	return nil
}

// MarshalJSON implements [json.Marshaler].
func (f Field) MarshalJSON() ([]byte, error) {
	if !f.present || f.null {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}

// ///////////////////////////////////////////////
// Fields
// ///////////////////////////////////////////////

// Fields is the set of activity templates shared by the top level, the idle
// block, and each language override.
type Fields struct {
	State      Field `json:"state,omitzero"`
	Details    Field `json:"details,omitzero"`
	LargeImage Field `json:"large_image,omitzero"`
	LargeText  Field `json:"large_text,omitzero"`
	SmallImage Field `json:"small_image,omitzero"`
	SmallText  Field `json:"small_text,omitzero"`
}

// Merge overlays override on f. Every field the override sets, null
// included, wins; absent fields fall back to f.
func (f Fields) Merge(override Fields) Fields {
	pick := func(base, over Field) Field {
		if over.IsSet() {
			return over
		}
		return base
	}
	return Fields{
		State:      pick(f.State, override.State),
		Details:    pick(f.Details, override.Details),
		LargeImage: pick(f.LargeImage, override.LargeImage),
		LargeText:  pick(f.LargeText, override.LargeText),
		SmallImage: pick(f.SmallImage, override.SmallImage),
		SmallText:  pick(f.SmallText, override.SmallText),
	}
}

// ///////////////////////////////////////////////
// Presence Configuration
// ///////////////////////////////////////////////

// IdleAction is what happens when the idle timeout elapses.
type IdleAction string

const (
	// ChangeActivity replaces the presence with the idle templates.
	ChangeActivity IdleAction = "change_activity"
	// ClearActivity removes the presence.
	ClearActivity IdleAction = "clear_activity"
)

// ParseIdleAction converts a configuration string to an IdleAction.
// Unrecognized values fall back to [ChangeActivity].
func ParseIdleAction(s string) IdleAction {
	if IdleAction(strings.ToLower(s)) == ClearActivity {
		return ClearActivity
	}
	return ChangeActivity
}

// IdleConfig holds the idle policy and its templates.
type IdleConfig struct {
	// Timeout is the inactivity period in seconds.
	Timeout int        `json:"timeout"`
	Action  IdleAction `json:"action"`
	Fields
}

// Duration returns the timeout as a time.Duration.
func (c IdleConfig) Duration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// RulesConfig holds the workspace blacklist or whitelist.
type RulesConfig struct {
	Mode  string   `json:"mode"`
	Paths []string `json:"paths"`
}

// Rule builds the evaluator for this block.
func (c RulesConfig) Rule() *rules.Rule {
	return rules.New(rules.ParseMode(c.Mode), c.Paths)
}

// PresenceConfig is the fully resolved presence configuration. A value is
// never mutated after [Parse] returns it; updates replace it wholesale.
type PresenceConfig struct {
	ApplicationID  string            `json:"application_id"`
	BaseIconsURL   string            `json:"base_icons_url"`
	GitIntegration bool              `json:"git_integration"`
	Idle           IdleConfig        `json:"idle"`
	Rules          RulesConfig       `json:"rules"`
	Languages      map[string]Fields `json:"languages,omitempty"`
	Fields
}

// DefaultPresence returns the built-in configuration.
func DefaultPresence() *PresenceConfig {
	return &PresenceConfig{
		ApplicationID:  DefaultApplicationID,
		BaseIconsURL:   strings.TrimRight(DefaultBaseIconsURL, "/"),
		GitIntegration: true,
		Fields: Fields{
			State:      Value("Working on {filename}"),
			Details:    Value("In {workspace}"),
			LargeImage: Value("{base_icons_url}/{language:lo}.png"),
			LargeText:  Value("{language:u}"),
			SmallImage: Value("{base_icons_url}/zed.png"),
			SmallText:  Value("Zed"),
		},
		Idle: IdleConfig{
			Timeout: int(DefaultIdleTimeout / time.Second),
			Action:  ChangeActivity,
			Fields: Fields{
				State:      Value("Idling"),
				Details:    Value("In Zed"),
				LargeImage: Value("{base_icons_url}/zed.png"),
				LargeText:  Value("Zed"),
				SmallImage: Value("{base_icons_url}/idle.png"),
				SmallText:  Value("Idle"),
			},
		},
		Rules: RulesConfig{
			Mode:  string(rules.Blacklist),
			Paths: []string{},
		},
		Languages: map[string]Fields{},
	}
}

// ActiveFields returns the top-level templates with the override for
// language merged in. Language keys are matched case-insensitively.
func (c *PresenceConfig) ActiveFields(language string) Fields {
	override, ok := c.Languages[strings.ToLower(language)]
	if !ok {
		return c.Fields
	}
	return c.Fields.Merge(override)
}

// ///////////////////////////////////////////////
// Parsing
// ///////////////////////////////////////////////

// Parse validates a JSON presence configuration and decodes it over
// [DefaultPresence]. An empty document or JSON null yields the defaults.
// Validation failures wrap [ErrConfigInvalid].
func Parse(data []byte) (*PresenceConfig, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return DefaultPresence(), nil
	}

	if err := validatePresence(trimmed); err != nil {
		return nil, err
	}

	cfg := DefaultPresence()
	if err := json.Unmarshal(trimmed, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	cfg.normalize()
	return cfg, nil
}

// ParseJSONC strips comments and trailing commas before calling [Parse].
func ParseJSONC(data []byte) (*PresenceConfig, error) {
	return Parse(stripTrailingCommas(jsonc.ToJSON(data)))
}

// stripTrailingCommas drops a comma that is followed, after optional
// whitespace, by a closing bracket or brace. Commas inside strings are kept.
func stripTrailingCommas(data []byte) []byte {
	out := make([]byte, 0, len(data))
	inString, escaped := false, false
	for i := 0; i < len(data); i++ {
		c := data[i]
		if inString {
			out = append(out, c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(data) && isJSONSpace(data[j]) {
				j++
			}
			if j < len(data) && (data[j] == '}' || data[j] == ']') {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// normalize applies lenient fallbacks after decoding.
func (c *PresenceConfig) normalize() {
	c.BaseIconsURL = strings.TrimRight(c.BaseIconsURL, "/")
	c.Idle.Action = ParseIdleAction(string(c.Idle.Action))
	c.Rules.Mode = string(rules.ParseMode(c.Rules.Mode))
	if c.Rules.Paths == nil {
		c.Rules.Paths = []string{}
	}
	if len(c.Languages) > 0 {
		lowered := make(map[string]Fields, len(c.Languages))
		for name, fields := range c.Languages {
			lowered[strings.ToLower(name)] = fields
		}
		c.Languages = lowered
	}
	if c.Languages == nil {
		c.Languages = map[string]Fields{}
	}
}

// ///////////////////////////////////////////////
// Schema Validation
// ///////////////////////////////////////////////

//go:embed presence.schema.json
var presenceSchemaJSON []byte

const presenceSchemaURL = "mem://schemas/presence.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// presenceSchema compiles the embedded schema once.
func presenceSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(presenceSchemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("decode presence schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(presenceSchemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("register presence schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(presenceSchemaURL)
	})
	return schema, schemaErr
}

func validatePresence(data []byte) error {
	s, err := presenceSchema()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	if err := s.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	return nil
}

// PresenceSchema returns the embedded JSON Schema document.
func PresenceSchema() []byte {
	return append([]byte(nil), presenceSchemaJSON...)
}
