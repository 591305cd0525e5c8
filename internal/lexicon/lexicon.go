// Package lexicon holds the immutable emoji-sequence → name table and the
// name resolver built on it.
package lexicon

import (
	"bytes"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/crypto/blake2b"
)

// VS16 is the emoji presentation variation selector.
const VS16 = '\uFE0F'

// ErrInvalidLexicon is returned when the resource is not a valid sequence→name object.
var ErrInvalidLexicon = errors.New("invalid lexicon")

//go:embed emoji-data.json
var embeddedData []byte

//go:embed schema.json
var schemaData []byte

const schemaURL = "https://emojilens.invalid/schema/emoji-data.schema.json"

var (
	compiledSchema *jsonschema.Schema
	schemaErr      error
	schemaOnce     sync.Once
)

func lexiconSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaData)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// Entry is one lexicon row.
type Entry struct {
	Sequence string
	Name     string
}

// Lexicon maps canonical emoji sequences to display names. It is never
// mutated after construction and is safe for concurrent use.
type Lexicon struct {
	names  map[string]string
	digest [32]byte
}

// Load reads a lexicon resource: a JSON object whose keys are emoji
// sequences and whose values are names.
func Load(r io.Reader) (*Lexicon, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLexicon, err)
	}

	schema, err := lexiconSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLexicon, err)
	}

	names := make(map[string]string)
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLexicon, err)
	}

	return FromMap(names), nil
}

// LoadFile loads a lexicon resource from disk.
func LoadFile(path string) (*Lexicon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open lexicon: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Embedded returns the lexicon compiled into the binary.
func Embedded() (*Lexicon, error) {
	return Load(bytes.NewReader(embeddedData))
}

// Empty returns a lexicon that resolves nothing. Detection degrades to a
// no-op when it is used.
func Empty() *Lexicon {
	return FromMap(nil)
}

// FromMap builds a lexicon from an in-memory table. The map is copied.
func FromMap(m map[string]string) *Lexicon {
	names := make(map[string]string, len(m))
	for seq, name := range m {
		names[seq] = name
	}
	l := &Lexicon{names: names}
	l.digest = digestOf(l.Entries())
	return l
}

// Lookup returns the name stored for exactly seq.
func (l *Lexicon) Lookup(seq string) (string, bool) {
	name, ok := l.names[seq]
	return name, ok
}

// Resolve looks seq up as-is and then with every U+FE0F removed, since the
// dataset omits qualified forms when the bare form is unambiguous.
func (l *Lexicon) Resolve(seq string) (string, bool) {
	if name, ok := l.names[seq]; ok {
		return name, true
	}
	if !strings.ContainsRune(seq, VS16) {
		return "", false
	}
	name, ok := l.names[StripVS16(seq)]
	return name, ok
}

// Len returns the number of entries.
func (l *Lexicon) Len() int {
	return len(l.names)
}

// Entries returns all entries in code-point order.
func (l *Lexicon) Entries() []Entry {
	entries := make([]Entry, 0, len(l.names))
	for seq, name := range l.names {
		entries = append(entries, Entry{Sequence: seq, Name: name})
	}
	SortEntries(entries)
	return entries
}

// Digest is a blake2b-256 hash over the entries in code-point order.
func (l *Lexicon) Digest() [32]byte {
	return l.digest
}

// DigestHex returns Digest as a hex string.
func (l *Lexicon) DigestHex() string {
	d := l.digest
	return hex.EncodeToString(d[:])
}

func digestOf(entries []Entry) [32]byte {
	h, _ := blake2b.New256(nil)
	for _, e := range entries {
		io.WriteString(h, e.Sequence)
		h.Write([]byte{'\t'})
		io.WriteString(h, e.Name)
		h.Write([]byte{'\n'})
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// SortEntries orders entries by code point sequence. UTF-8 byte order
// coincides with code point order, so a byte comparison is enough.
func SortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Sequence < entries[j].Sequence
	})
}

// StripVS16 removes every U+FE0F from s.
func StripVS16(s string) string {
	return strings.ReplaceAll(s, string(VS16), "")
}

// CodePoints renders s as "U+1F44B U+1F3FD". Values are not zero-padded.
func CodePoints(s string) string {
	var b strings.Builder
	for i, r := range []rune(s) {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "U+%X", r)
	}
	return b.String()
}
