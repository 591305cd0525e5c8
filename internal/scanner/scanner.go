// Package scanner finds emoji sequences in text.
//
// The grammar, tried in order at every code point boundary:
//
//	flag    = RI RI
//	keycap  = [0-9#*] VS16? U+20E3
//	unit    = Pictographic VS16? Modifier? Tag*
//	chain   = unit (ZWJ unit)*
//
// Matches never overlap: scanning resumes right after the previous match,
// whether or not the matched sequence has a name.
package scanner

import (
	"iter"
	"unicode/utf8"
)

// Match is one grammar match. Start and End are byte offsets into the
// scanned string, always on code point boundaries.
type Match struct {
	Text  string
	Start int
	End   int
}

// Scan returns a lazy iterator over the matches in text. Every call to the
// returned sequence starts again at offset 0.
func Scan(text string) iter.Seq[Match] {
	return func(yield func(Match) bool) {
		for i := 0; i < len(text); {
			if end := matchAt(text, i); end > i {
				if !yield(Match{Text: text[i:end], Start: i, End: end}) {
					return
				}
				i = end
				continue
			}
			_, size := utf8.DecodeRuneInString(text[i:])
			i += size
		}
	}
}

// All collects every match in text.
func All(text string) []Match {
	var out []Match
	for m := range Scan(text) {
		out = append(out, m)
	}
	return out
}

// Contains reports whether text has at least one match.
func Contains(text string) bool {
	for range Scan(text) {
		return true
	}
	return false
}

// matchAt returns the end offset of the match starting at i, or i if none.
func matchAt(text string, i int) int {
	r, n := decode(text, i)
	if n == 0 {
		return i
	}

	if IsRegionalIndicator(r) {
		if r2, n2 := decode(text, i+n); n2 > 0 && IsRegionalIndicator(r2) {
			return i + n + n2
		}
	}

	if IsKeycapBase(r) {
		if end := keycapAt(text, i+n); end > 0 {
			return end
		}
	}

	end := unitAt(text, i)
	if end == i {
		return i
	}
	for {
		r, n := decode(text, end)
		if n == 0 || !IsZWJ(r) {
			return end
		}
		next := unitAt(text, end+n)
		if next == end+n {
			// A joiner not followed by a unit is left out of the match.
			return end
		}
		end = next
	}
}

// keycapAt expects the position right after a keycap base and returns the
// end of the keycap sequence, or 0.
func keycapAt(text string, j int) int {
	r, n := decode(text, j)
	if n > 0 && IsVariationSelector(r) {
		j += n
		r, n = decode(text, j)
	}
	if n > 0 && r == Keycap {
		return j + n
	}
	return 0
}

// unitAt returns the end of a pictographic unit starting at i, or i.
func unitAt(text string, i int) int {
	r, n := decode(text, i)
	if n == 0 || !IsPictographic(r) {
		return i
	}
	j := i + n

	if r, n := decode(text, j); n > 0 && IsVariationSelector(r) {
		j += n
	}
	if r, n := decode(text, j); n > 0 && IsEmojiModifier(r) {
		j += n
	}
	for {
		r, n := decode(text, j)
		if n == 0 || !IsTag(r) {
			return j
		}
		j += n
	}
}

// decode returns the code point at byte offset i, with size 0 at the end
// of the text or on an invalid encoding.
func decode(text string, i int) (rune, int) {
	if i >= len(text) {
		return 0, 0
	}
	r, n := utf8.DecodeRuneInString(text[i:])
	if r == utf8.RuneError && n <= 1 {
		return r, 0
	}
	return r, n
}
