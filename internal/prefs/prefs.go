// Package prefs holds the display preferences, their persistence backends
// and change notification.
package prefs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownKey is returned for a preference key outside the fixed set.
var ErrUnknownKey = errors.New("prefs: unknown key")

// Key names one preference. The values are the persisted wire keys.
type Key string

const (
	KeyEnabled        Key = "enabled"
	KeyShowEmoji      Key = "showEmoji"
	KeyShowName       Key = "showName"
	KeyShowCodePoints Key = "showCodePoints"
	KeyShowSkinTone   Key = "showSkinTone"
)

var allKeys = []Key{KeyEnabled, KeyShowEmoji, KeyShowName, KeyShowCodePoints, KeyShowSkinTone}

// Keys returns every key in a fixed order.
func Keys() []Key {
	return append([]Key(nil), allKeys...)
}

// ParseKey matches s against the key set, ignoring case.
func ParseKey(s string) (Key, error) {
	for _, k := range allKeys {
		if strings.EqualFold(s, string(k)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKey, s)
}

// ParseAssignment parses "key=value" where value is a boolean.
func ParseAssignment(s string) (Key, bool, error) {
	name, raw, ok := strings.Cut(s, "=")
	if !ok {
		return "", false, fmt.Errorf("expected key=value, got %q", s)
	}
	k, err := ParseKey(strings.TrimSpace(name))
	if err != nil {
		return "", false, err
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return "", false, fmt.Errorf("value for %s: %w", k, err)
	}
	return k, v, nil
}

// Preferences is the display configuration consumed by tooltip formatting.
// Values are replaced wholesale, never mutated in place.
type Preferences struct {
	Enabled        bool `json:"enabled" toml:"enabled" yaml:"enabled"`
	ShowEmoji      bool `json:"showEmoji" toml:"showEmoji" yaml:"showEmoji"`
	ShowName       bool `json:"showName" toml:"showName" yaml:"showName"`
	ShowCodePoints bool `json:"showCodePoints" toml:"showCodePoints" yaml:"showCodePoints"`
	ShowSkinTone   bool `json:"showSkinTone" toml:"showSkinTone" yaml:"showSkinTone"`
}

// Defaults returns the documented default preferences.
func Defaults() Preferences {
	return Preferences{
		Enabled:        true,
		ShowEmoji:      false,
		ShowName:       true,
		ShowCodePoints: false,
		ShowSkinTone:   true,
	}
}

// Normalize forces ShowName on when no display flag is set.
func (p Preferences) Normalize() Preferences {
	if !p.ShowEmoji && !p.ShowName && !p.ShowCodePoints {
		p.ShowName = true
	}
	return p
}

// Get returns the value of k. Unknown keys read as false.
func (p Preferences) Get(k Key) bool {
	switch k {
	case KeyEnabled:
		return p.Enabled
	case KeyShowEmoji:
		return p.ShowEmoji
	case KeyShowName:
		return p.ShowName
	case KeyShowCodePoints:
		return p.ShowCodePoints
	case KeyShowSkinTone:
		return p.ShowSkinTone
	}
	return false
}

// With returns a copy of p with k set to v.
func (p Preferences) With(k Key, v bool) Preferences {
	switch k {
	case KeyEnabled:
		p.Enabled = v
	case KeyShowEmoji:
		p.ShowEmoji = v
	case KeyShowName:
		p.ShowName = v
	case KeyShowCodePoints:
		p.ShowCodePoints = v
	case KeyShowSkinTone:
		p.ShowSkinTone = v
	}
	return p
}

// Map returns p keyed by wire name.
func (p Preferences) Map() map[string]bool {
	m := make(map[string]bool, len(allKeys))
	for _, k := range allKeys {
		m[string(k)] = p.Get(k)
	}
	return m
}

// FromMap builds preferences from stored values. Each missing or unknown
// key falls back to its default independently.
func FromMap(m map[string]bool) Preferences {
	p := Defaults()
	for _, k := range allKeys {
		if v, ok := m[string(k)]; ok {
			p = p.With(k, v)
		}
	}
	return p
}

func (p Preferences) String() string {
	parts := make([]string, len(allKeys))
	for i, k := range allKeys {
		parts[i] = fmt.Sprintf("%s=%t", k, p.Get(k))
	}
	return strings.Join(parts, " ")
}

// Diff lists the keys whose values differ, in key order.
func Diff(old, cur Preferences) []Key {
	var keys []Key
	for _, k := range allKeys {
		if old.Get(k) != cur.Get(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Action is the document update a preference change calls for.
type Action int

const (
	ActionNone Action = iota
	// ActionAnnotate runs a full pass over the body.
	ActionAnnotate
	// ActionUnwrap turns every marker back into plain text.
	ActionUnwrap
	// ActionRewrite recomputes tooltip text in place.
	ActionRewrite
)

func (a Action) String() string {
	switch a {
	case ActionAnnotate:
		return "annotate"
	case ActionUnwrap:
		return "unwrap"
	case ActionRewrite:
		return "rewrite"
	default:
		return "none"
	}
}

// Classify picks the update strategy for a change from old to cur.
func Classify(old, cur Preferences) Action {
	if old.Enabled != cur.Enabled {
		if cur.Enabled {
			return ActionAnnotate
		}
		return ActionUnwrap
	}
	if len(Diff(old, cur)) > 0 {
		return ActionRewrite
	}
	return ActionNone
}

// Change is one persisted update.
type Change struct {
	Old  Preferences
	New  Preferences
	Keys []Key
}

// NewChange builds a Change, computing the differing keys.
func NewChange(old, cur Preferences) Change {
	return Change{Old: old, New: cur, Keys: Diff(old, cur)}
}

// Action classifies the change.
func (c Change) Action() Action {
	return Classify(c.Old, c.New)
}
