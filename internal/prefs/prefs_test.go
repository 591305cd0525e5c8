package prefs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	p := Defaults()
	assert.True(t, p.Enabled)
	assert.False(t, p.ShowEmoji)
	assert.True(t, p.ShowName)
	assert.False(t, p.ShowCodePoints)
	assert.True(t, p.ShowSkinTone)
}

func TestNormalize(t *testing.T) {
	allOff := Preferences{Enabled: true, ShowSkinTone: true}
	assert.True(t, allOff.Normalize().ShowName)

	glyphOnly := Preferences{ShowEmoji: true}
	assert.False(t, glyphOnly.Normalize().ShowName, "a display flag is already on")
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey("showcodepoints")
	require.NoError(t, err)
	assert.Equal(t, KeyShowCodePoints, k)

	_, err = ParseKey("fontSize")
	assert.True(t, errors.Is(err, ErrUnknownKey))
}

func TestParseAssignment(t *testing.T) {
	k, v, err := ParseAssignment("showEmoji = true")
	require.NoError(t, err)
	assert.Equal(t, KeyShowEmoji, k)
	assert.True(t, v)

	_, _, err = ParseAssignment("showEmoji")
	assert.Error(t, err)
	_, _, err = ParseAssignment("showEmoji=maybe")
	assert.Error(t, err)
	_, _, err = ParseAssignment("color=true")
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestFromMapDefaultsMissingKeys(t *testing.T) {
	p := FromMap(map[string]bool{"showEmoji": true, "bogus": true})
	want := Defaults()
	want.ShowEmoji = true
	assert.Equal(t, want, p)
	assert.Equal(t, p, FromMap(p.Map()))
}

func TestClassify(t *testing.T) {
	on := Defaults()
	off := on.With(KeyEnabled, false)

	tests := []struct {
		name     string
		old, cur Preferences
		want     Action
	}{
		{"no change", on, on, ActionNone},
		{"disable", on, off, ActionUnwrap},
		{"enable", off, on, ActionAnnotate},
		{"enable with format change", off, on.With(KeyShowEmoji, true), ActionAnnotate},
		{"format only", on, on.With(KeyShowSkinTone, false), ActionRewrite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.old, tt.cur))
		})
	}
}

func TestDiff(t *testing.T) {
	a := Defaults()
	b := a.With(KeyShowEmoji, true).With(KeyEnabled, false)
	assert.Equal(t, []Key{KeyEnabled, KeyShowEmoji}, Diff(a, b))
	assert.Empty(t, Diff(a, a))
}

func TestHubOrderAndCancel(t *testing.T) {
	var h Hub
	var got []string
	cancelA := h.Subscribe(func(Change) { got = append(got, "a") })
	h.Subscribe(func(Change) { got = append(got, "b") })

	change := NewChange(Defaults(), Defaults().With(KeyShowName, false))
	h.Publish(change)
	cancelA()
	h.Publish(change)
	h.Publish(NewChange(Defaults(), Defaults()))

	assert.Equal(t, []string{"a", "b", "b"}, got)
	assert.Equal(t, 1, h.Len())
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(Defaults())
	defer s.Close()

	var changes []Change
	s.Subscribe(func(c Change) { changes = append(changes, c) })

	// All display flags off is forced back to showing the name.
	require.NoError(t, s.Save(ctx, Preferences{Enabled: true}))
	p, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, p.ShowName)
	assert.False(t, p.ShowSkinTone)

	require.Len(t, changes, 1)
	assert.Equal(t, []Key{KeyShowSkinTone}, changes[0].Keys)
	assert.Equal(t, ActionRewrite, changes[0].Action())

	require.NoError(t, s.Save(ctx, p))
	assert.Len(t, changes, 1, "saving identical preferences is not a change")
}

func TestUpdate(t *testing.T) {
	s := NewMemoryStore(Defaults())
	p, err := Update(context.Background(), s, func(p Preferences) Preferences {
		return p.With(KeyShowCodePoints, true)
	})
	require.NoError(t, err)
	assert.True(t, p.ShowCodePoints)

	got, _ := s.Load(context.Background())
	assert.Equal(t, p, got)
}

func TestOpenFallsBackToMemory(t *testing.T) {
	s, err := Open(Options{Backend: "carrier-pigeon"})
	assert.Error(t, err)
	require.NotNil(t, s)
	p, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Defaults(), p)

	s, err = Open(Options{Backend: BackendFile})
	assert.Error(t, err, "file backend needs a path")
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(Options{})
	assert.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
}
