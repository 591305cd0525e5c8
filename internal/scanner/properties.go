package scanner

import (
	"unicode"

	"golang.org/x/text/unicode/rangetable"
)

// Code points with a fixed role in emoji sequences.
const (
	ZWJ       = '\u200D'
	VS16      = '\uFE0F'
	Keycap    = '\u20E3'
	CancelTag = '\U000E007F'
	firstTag  = '\U000E0020'
	firstRI   = '\U0001F1E6'
	lastRI    = '\U0001F1FF'
	firstTone = '\U0001F3FB'
	lastTone  = '\U0001F3FF'
)

// extendedPictographic is the Extended_Pictographic property (emoji-data.txt, Unicode 15.1).
var extendedPictographic = &unicode.RangeTable{
	R16: []unicode.Range16{
		{0x00A9, 0x00A9, 1}, {0x00AE, 0x00AE, 1},
		{0x203C, 0x203C, 1}, {0x2049, 0x2049, 1}, {0x2122, 0x2122, 1}, {0x2139, 0x2139, 1},
		{0x2194, 0x2199, 1}, {0x21A9, 0x21AA, 1}, {0x231A, 0x231B, 1}, {0x2328, 0x2328, 1},
		{0x2388, 0x2388, 1}, {0x23CF, 0x23CF, 1}, {0x23E9, 0x23F3, 1}, {0x23F8, 0x23FA, 1},
		{0x24C2, 0x24C2, 1}, {0x25AA, 0x25AB, 1}, {0x25B6, 0x25B6, 1}, {0x25C0, 0x25C0, 1},
		{0x25FB, 0x25FE, 1}, {0x2600, 0x2605, 1}, {0x2607, 0x2612, 1}, {0x2614, 0x2685, 1},
		{0x2690, 0x2705, 1}, {0x2708, 0x2712, 1}, {0x2714, 0x2714, 1}, {0x2716, 0x2716, 1},
		{0x271D, 0x271D, 1}, {0x2721, 0x2721, 1}, {0x2728, 0x2728, 1}, {0x2733, 0x2734, 1},
		{0x2744, 0x2744, 1}, {0x2747, 0x2747, 1}, {0x274C, 0x274C, 1}, {0x274E, 0x274E, 1},
		{0x2753, 0x2755, 1}, {0x2757, 0x2757, 1}, {0x2763, 0x2767, 1}, {0x2795, 0x2797, 1},
		{0x27A1, 0x27A1, 1}, {0x27B0, 0x27B0, 1}, {0x27BF, 0x27BF, 1}, {0x2934, 0x2935, 1},
		{0x2B05, 0x2B07, 1}, {0x2B1B, 0x2B1C, 1}, {0x2B50, 0x2B50, 1}, {0x2B55, 0x2B55, 1},
		{0x3030, 0x3030, 1}, {0x303D, 0x303D, 1}, {0x3297, 0x3297, 1}, {0x3299, 0x3299, 1},
	},
	R32: []unicode.Range32{
		{0x1F000, 0x1F0FF, 1}, {0x1F10D, 0x1F10F, 1}, {0x1F12F, 0x1F12F, 1}, {0x1F16C, 0x1F171, 1},
		{0x1F17E, 0x1F17F, 1}, {0x1F18E, 0x1F18E, 1}, {0x1F191, 0x1F19A, 1}, {0x1F1AD, 0x1F1E5, 1},
		{0x1F201, 0x1F20F, 1}, {0x1F21A, 0x1F21A, 1}, {0x1F22F, 0x1F22F, 1}, {0x1F232, 0x1F23A, 1},
		{0x1F23C, 0x1F23F, 1}, {0x1F249, 0x1F3FA, 1}, {0x1F400, 0x1F53D, 1}, {0x1F546, 0x1F64F, 1},
		{0x1F680, 0x1F6FF, 1}, {0x1F774, 0x1F77F, 1}, {0x1F7D5, 0x1F7FF, 1}, {0x1F80C, 0x1F80F, 1},
		{0x1F848, 0x1F84F, 1}, {0x1F85A, 0x1F85F, 1}, {0x1F888, 0x1F88F, 1}, {0x1F8AE, 0x1F8FF, 1},
		{0x1F90C, 0x1F93A, 1}, {0x1F93C, 0x1F945, 1}, {0x1F947, 0x1FAFF, 1}, {0x1FC00, 0x1FFFD, 1},
	},
	LatinOffset: 2,
}

// emojiComponents are the Emoji=Yes code points outside Extended_Pictographic:
// keycap bases, regional indicators and skin-tone modifiers. Every
// Emoji_Presentation code point is covered by one of the two tables.
var emojiComponents = &unicode.RangeTable{
	R16: []unicode.Range16{
		{0x0023, 0x0023, 1}, {0x002A, 0x002A, 1}, {0x0030, 0x0039, 1},
	},
	R32: []unicode.Range32{
		{0x1F1E6, 0x1F1FF, 1}, {0x1F3FB, 0x1F3FF, 1},
	},
	LatinOffset: 3,
}

// pictographic is Extended_Pictographic ∪ Emoji_Presentation ∪ Emoji.
var pictographic = rangetable.Merge(extendedPictographic, emojiComponents)

// IsPictographic reports whether r can start an emoji unit.
func IsPictographic(r rune) bool {
	return unicode.Is(pictographic, r)
}

// IsExtendedPictographic reports the Extended_Pictographic property alone.
func IsExtendedPictographic(r rune) bool {
	return unicode.Is(extendedPictographic, r)
}

// IsRegionalIndicator reports whether r is one of the 26 flag letters.
func IsRegionalIndicator(r rune) bool {
	return r >= firstRI && r <= lastRI
}

// IsKeycapBase reports whether r may precede U+20E3.
func IsKeycapBase(r rune) bool {
	return (r >= '0' && r <= '9') || r == '#' || r == '*'
}

// IsEmojiModifier reports whether r is a Fitzpatrick skin-tone modifier.
func IsEmojiModifier(r rune) bool {
	return r >= firstTone && r <= lastTone
}

// IsTag reports whether r is a tag character, including CANCEL TAG.
func IsTag(r rune) bool {
	return r >= firstTag && r <= CancelTag
}

// IsZWJ reports whether r is ZERO WIDTH JOINER.
func IsZWJ(r rune) bool {
	return r == ZWJ
}

// IsVariationSelector reports whether r is VARIATION SELECTOR-16.
func IsVariationSelector(r rune) bool {
	return r == VS16
}
