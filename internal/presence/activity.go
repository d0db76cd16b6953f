package presence

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"tools.zach/dev/discord-presence/internal/discord"
)

// ///////////////////////////////////////////////
// Activity Payload
// ///////////////////////////////////////////////

// discordMaxLen is the maximum rune length Discord accepts for text fields.
const discordMaxLen = 128

// RepoButtonLabel is the label of the button linking to the git remote.
const RepoButtonLabel = "View Repository"

// Activity is a fully rendered presence payload. Empty strings mean the field
// is not sent.
type Activity struct {
	State      string           `json:"state,omitempty"`
	Details    string           `json:"details,omitempty"`
	LargeImage string           `json:"large_image,omitempty"`
	LargeText  string           `json:"large_text,omitempty"`
	SmallImage string           `json:"small_image,omitempty"`
	SmallText  string           `json:"small_text,omitempty"`
	Start      int64            `json:"start,omitempty"`
	Buttons    []discord.Button `json:"buttons,omitempty"`
}

// Hash returns a SHA-256 hex digest of the activity for dedup comparison.
// Returns an empty string for nil activities.
func (a *Activity) Hash() string {
	if a == nil {
		return ""
	}
	data, err := json.Marshal(a)
	if err != nil {
		slog.Warn("failed to hash activity", "error", err)
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h)
}

// Discord converts the payload into the wire type, omitting empty sections.
func (a *Activity) Discord() *discord.Activity {
	if a == nil {
		return nil
	}
	da := &discord.Activity{
		State:   a.State,
		Details: a.Details,
	}
	if a.Start != 0 {
		da.Timestamps = &discord.Timestamps{Start: a.Start}
	}
	if a.LargeImage != "" || a.LargeText != "" || a.SmallImage != "" || a.SmallText != "" {
		da.Assets = &discord.Assets{
			LargeImage: a.LargeImage,
			LargeText:  a.LargeText,
			SmallImage: a.SmallImage,
			SmallText:  a.SmallText,
		}
	}
	if len(a.Buttons) > 0 {
		da.Buttons = append([]discord.Button(nil), a.Buttons...)
	}
	return da
}

// truncate shortens s to discordMaxLen runes, marking the cut with an ellipsis.
func truncate(s string) string {
	if utf8.RuneCountInString(s) <= discordMaxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:discordMaxLen-1]) + "…"
}
