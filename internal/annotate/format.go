package annotate

import (
	"regexp"
	"strings"

	"emojilens/internal/lexicon"
	"emojilens/internal/prefs"
)

var skinToneClause = regexp.MustCompile(`: (light|medium-light|medium|medium-dark|dark) skin tone$`)

// StripSkinTone removes a trailing skin tone clause from an emoji name.
func StripSkinTone(name string) string {
	return skinToneClause.ReplaceAllString(name, "")
}

// Format builds tooltip text from the glyph, the name and the code points
// enabled in p. It never returns an empty string for a non-empty name.
func Format(emoji, name string, p prefs.Preferences) string {
	parts := make([]string, 0, 3)
	if p.ShowEmoji {
		parts = append(parts, emoji)
	}
	if p.ShowName {
		display := name
		if !p.ShowSkinTone {
			display = StripSkinTone(name)
		}
		parts = append(parts, display)
	}
	if p.ShowCodePoints {
		parts = append(parts, "("+lexicon.CodePoints(emoji)+")")
	}
	if text := strings.Join(parts, " "); text != "" {
		return text
	}
	return name
}
