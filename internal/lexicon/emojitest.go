package lexicon

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// emoji-test.txt data line:
//
//	1F600 ; fully-qualified # 😀 E1.0 grinning face
var emojiTestLine = regexp.MustCompile(`^([0-9A-Fa-f ]+?)\s*;\s*([a-z-]+)\s*#\s*\S+\s+E[\d.]+\s+(.+)$`)

// ParseEmojiTest extracts fully-qualified entries from a Unicode
// emoji-test.txt file. Components (bare skin-tone modifiers, hair styles)
// and minimally/unqualified forms are excluded. Entries are returned in
// code-point order.
func ParseEmojiTest(r io.Reader) ([]Entry, error) {
	seen := make(map[string]string)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		m := emojiTestLine.FindStringSubmatch(line)
		if m == nil || !strings.EqualFold(m[2], "fully-qualified") {
			continue
		}

		seq, err := decodeCodePoints(m[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		seen[seq] = strings.TrimSpace(m[3])
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read emoji-test: %w", err)
	}

	entries := make([]Entry, 0, len(seen))
	for seq, name := range seen {
		entries = append(entries, Entry{Sequence: seq, Name: name})
	}
	SortEntries(entries)
	return entries, nil
}

func decodeCodePoints(s string) (string, error) {
	var b strings.Builder
	for _, field := range strings.Fields(s) {
		v, err := strconv.ParseUint(field, 16, 32)
		if err != nil {
			return "", fmt.Errorf("code point %q: %w", field, err)
		}
		b.WriteRune(rune(v))
	}
	return b.String(), nil
}

// WriteJSON writes entries as a two-space indented JSON object, preserving
// the given order, with a trailing newline.
func WriteJSON(w io.Writer, entries []Entry) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("{\n")
	for i, e := range entries {
		key, err := marshalString(e.Sequence)
		if err != nil {
			return err
		}
		val, err := marshalString(e.Name)
		if err != nil {
			return err
		}
		bw.WriteString("  ")
		bw.WriteString(key)
		bw.WriteString(": ")
		bw.WriteString(val)
		if i < len(entries)-1 {
			bw.WriteByte(',')
		}
		bw.WriteByte('\n')
	}
	bw.WriteString("}\n")
	return bw.Flush()
}

func marshalString(s string) (string, error) {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", fmt.Errorf("encode %q: %w", s, err)
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}
