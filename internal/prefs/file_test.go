package prefs

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFormats(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"prefs.toml", "showEmoji = true\nenabled = false\n"},
		{"prefs.json", `{"showEmoji": true, "enabled": false}`},
		{"prefs.yaml", "showEmoji: true\nenabled: false\n"},
	}
	want := Defaults().With(KeyShowEmoji, true).With(KeyEnabled, false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Decode(tt.name, []byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, want, p)

			data, err := Encode(tt.name, p)
			require.NoError(t, err)
			back, err := Decode(tt.name, data)
			require.NoError(t, err)
			assert.Equal(t, p, back)
		})
	}

	_, err := Decode("prefs.ini", nil)
	assert.Error(t, err)
	_, err = Decode("prefs.json", []byte("{"))
	assert.Error(t, err)
}

func TestFileStoreMissingFileReadsDefaults(t *testing.T) {
	s, err := OpenFile(filepath.Join(t.TempDir(), "prefs.toml"), nil)
	require.NoError(t, err)
	defer s.Close()

	p, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Defaults(), p)
}

func TestFileStoreSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	s, err := OpenFile(path, nil)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	want := Defaults().With(KeyShowCodePoints, true)
	require.NoError(t, s.Save(ctx, want))

	other, err := OpenFile(path, nil)
	require.NoError(t, err)
	defer other.Close()
	got, err := other.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFileStoreBroadcastsExternalEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	s, err := OpenFile(path, nil)
	require.NoError(t, err)
	defer s.Close()

	changes := make(chan Change, 4)
	s.Subscribe(func(c Change) { changes <- c })

	require.NoError(t, os.WriteFile(path, []byte("enabled: false\n"), 0644))

	select {
	case c := <-changes:
		assert.Equal(t, []Key{KeyEnabled}, c.Keys)
		assert.Equal(t, ActionUnwrap, c.Action())
	case <-time.After(5 * time.Second):
		t.Fatal("no change broadcast after external edit")
	}
}

func TestFileStoreCorruptFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.toml")
	require.NoError(t, os.WriteFile(path, []byte("enabled = ["), 0644))

	var logs bytes.Buffer
	s, err := OpenFile(path, slog.New(slog.NewTextHandler(&logs, nil)))
	require.NoError(t, err)
	defer s.Close()
	logs.Reset()

	p, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Defaults(), p)
	assert.Contains(t, logs.String(), "preferences file unreadable, using defaults")

	changed := Defaults().With(KeyShowCodePoints, true)
	require.NoError(t, s.Save(context.Background(), changed))
	p, err = s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, changed, p)
}
