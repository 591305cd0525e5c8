package annotate

import "emojilens/internal/scanner"

// Resolver maps a matched sequence to its name.
type Resolver interface {
	Resolve(seq string) (string, bool)
}

// Segment is a piece of split text. Emoji segments carry a name.
type Segment struct {
	Text string
	Name string
}

// IsEmoji reports whether s is a resolved emoji.
func (s Segment) IsEmoji() bool {
	return s.Name != ""
}

// Segments splits text into plain runs and resolved emoji. Unresolved
// matches stay inside the surrounding plain text. Concatenating the Text
// of every segment gives back text.
func Segments(text string, r Resolver) []Segment {
	var out []Segment
	last := 0
	for m := range scanner.Scan(text) {
		name, ok := r.Resolve(m.Text)
		if !ok || name == "" {
			continue
		}
		if m.Start > last {
			out = append(out, Segment{Text: text[last:m.Start]})
		}
		out = append(out, Segment{Text: m.Text, Name: name})
		last = m.End
	}
	if last < len(text) {
		out = append(out, Segment{Text: text[last:]})
	}
	return out
}

// HasEmoji reports whether any segment is an emoji.
func HasEmoji(segs []Segment) bool {
	for _, s := range segs {
		if s.IsEmoji() {
			return true
		}
	}
	return false
}
