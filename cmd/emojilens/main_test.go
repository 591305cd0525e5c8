package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const grinning = "\U0001F600"

type harness struct {
	dir    string
	stdin  *strings.Reader
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("EMOJILENS_DATA_DIR", dir)
	t.Setenv("EMOJILENS_LOG_LEVEL", "error")
	return &harness{dir: dir, stdin: strings.NewReader("")}
}

func (h *harness) run(ctx context.Context, args ...string) int {
	h.stdout.Reset()
	h.stderr.Reset()
	c := &cli{ctx: ctx, stdin: h.stdin, stdout: &h.stdout, stderr: &h.stderr}
	return c.run(args)
}

func (h *harness) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, 2, h.run(context.Background(), "frobnicate"))
	assert.Contains(t, h.stderr.String(), "Unknown command: frobnicate")

	assert.Equal(t, 2, h.run(context.Background()))
	assert.Equal(t, 0, h.run(context.Background(), "help"))
}

func TestAnnotateFile(t *testing.T) {
	h := newHarness(t)
	page := h.write(t, "page.html", "<p>hi "+grinning+"</p><textarea>"+grinning+"</textarea>")

	require.Equal(t, 0, h.run(context.Background(), "annotate", page), h.stderr.String())
	out := h.stdout.String()
	assert.Contains(t, out, `data-emojilens="true"`)
	assert.Contains(t, out, `title="grinning face"`)
	assert.Equal(t, 1, strings.Count(out, "data-emojilens-raw"))
}

func TestAnnotateStdinWithOverrides(t *testing.T) {
	h := newHarness(t)
	h.stdin = strings.NewReader("<p>" + grinning + "</p>")

	code := h.run(context.Background(), "annotate", "-set", "showCodePoints=true", "-set", "showName=false", "-")
	require.Equal(t, 0, code, h.stderr.String())
	assert.Contains(t, h.stdout.String(), `title="(U+1F600)"`)
}

func TestAnnotateWithPrefsFileAndOutput(t *testing.T) {
	h := newHarness(t)
	page := h.write(t, "page.html", "<p>"+grinning+"</p>")
	prefsFile := h.write(t, "off.json", `{"enabled": false}`)
	out := filepath.Join(h.dir, "out.html")

	require.Equal(t, 0, h.run(context.Background(), "annotate", "-prefs", prefsFile, "-o", out, page), h.stderr.String())
	assert.Empty(t, h.stdout.String())
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "data-emojilens")
}

func TestAnnotateDiff(t *testing.T) {
	h := newHarness(t)
	page := h.write(t, "page.html", "<p>hi "+grinning+"</p><p>plain</p>")

	require.Equal(t, 0, h.run(context.Background(), "annotate", "-diff", page), h.stderr.String())
	patch := h.stdout.String()
	assert.Contains(t, patch, "+++ "+page+" (annotated)")
	assert.Contains(t, patch, `+hi <span data-emojilens="true"`)
	assert.NotContains(t, patch, "-plain")
}

func TestAnnotateUsageErrors(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, 2, h.run(context.Background(), "annotate"))
	assert.Equal(t, 2, h.run(context.Background(), "annotate", "-set", "sparkle=true", "x.html"))
	assert.Equal(t, 1, h.run(context.Background(), "annotate", filepath.Join(h.dir, "missing.html")))
	assert.Contains(t, h.stderr.String(), "read input")
}

func TestPrefsCommands(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.Equal(t, 0, h.run(ctx, "prefs", "get"), h.stderr.String())
	assert.Contains(t, h.stdout.String(), "showName        true")

	require.Equal(t, 0, h.run(ctx, "prefs", "set", "showEmoji=true", "showSkinTone=false"), h.stderr.String())
	require.Equal(t, 0, h.run(ctx, "prefs", "get", "showemoji"))
	assert.Equal(t, "true\n", h.stdout.String())

	// The file backend persisted the change under the data dir.
	data, err := os.ReadFile(filepath.Join(h.dir, "preferences.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "showEmoji = true")

	require.Equal(t, 0, h.run(ctx, "prefs", "set", "showName=false", "showEmoji=false"))
	assert.Contains(t, h.stdout.String(), "showName        true", "all display flags off falls back to the name")

	require.Equal(t, 0, h.run(ctx, "prefs", "reset"))
	require.Equal(t, 0, h.run(ctx, "prefs", "get", "showSkinTone"))
	assert.Equal(t, "true\n", h.stdout.String())

	assert.Equal(t, 1, h.run(ctx, "prefs", "set", "bogus=true"))
	assert.Equal(t, 2, h.run(ctx, "prefs", "explode"))
}

func TestPreview(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.Equal(t, 0, h.run(ctx, "preview"), h.stderr.String())
	assert.Equal(t, "waving hand: medium skin tone\n", h.stdout.String())

	require.Equal(t, 0, h.run(ctx, "preview", "-set", "showSkinTone=false", "-set", "showCodePoints=true"))
	assert.Equal(t, "waving hand (U+1F44B U+1F3FD)\n", h.stdout.String())

	require.Equal(t, 0, h.run(ctx, "preview", "-emoji", "U+1F600"))
	assert.Equal(t, "grinning face\n", h.stdout.String())

	assert.Equal(t, 1, h.run(ctx, "preview", "-emoji", "x"))
}

func TestLexiconCommand(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.Equal(t, 0, h.run(ctx, "lexicon", "-check"), h.stderr.String())
	assert.Contains(t, h.stdout.String(), "source:  embedded")

	require.Equal(t, 0, h.run(ctx, "lexicon", "-lookup", "U+1F600"))
	assert.Equal(t, grinning+"\tU+1F600\tgrinning face\n", h.stdout.String())

	assert.Equal(t, 1, h.run(ctx, "lexicon", "-lookup", "U+41"))

	bad := h.write(t, "bad.json", `{"x": ""}`)
	assert.Equal(t, 1, h.run(ctx, "lexicon", "-file", bad))

	good := h.write(t, "small.json", `{"`+grinning+`": "grinning face"}`)
	require.Equal(t, 0, h.run(ctx, "lexicon", "-file", good))
	assert.Contains(t, h.stdout.String(), "entries: 1")
}

func TestBrokenLexiconDegrades(t *testing.T) {
	h := newHarness(t)
	t.Setenv("EMOJILENS_LEXICON_PATH", filepath.Join(h.dir, "missing.json"))
	page := h.write(t, "page.html", "<p>"+grinning+"</p>")

	require.Equal(t, 0, h.run(context.Background(), "annotate", page))
	assert.NotContains(t, h.stdout.String(), "data-emojilens")

	assert.Equal(t, 1, h.run(context.Background(), "lexicon", "-check"))
}

func TestReplay(t *testing.T) {
	h := newHarness(t)
	page := h.write(t, "page.html", "<div id=feed></div><p>hello "+grinning+"</p>")
	ops := h.write(t, "ops.jsonl", strings.Join([]string{
		`{"op":"append","path":"0","html":"<article>new ` + grinning + `</article>"}`,
		`{"op":"append","path":"0","html":"<code>` + grinning + `</code>"}`,
		`{"op":"set-text","path":"1/0","text":"edited"}`,
	}, "\n")+"\n")

	require.Equal(t, 0, h.run(context.Background(), "replay", "-html", page, "-ops", ops), h.stderr.String())
	out := h.stdout.String()
	assert.Contains(t, out, `<article>new <span data-emojilens="true"`)
	assert.Contains(t, out, "<code>"+grinning+"</code>")
	assert.Contains(t, out, "<p>edited<span")
}

func TestReplayUsage(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, 2, h.run(context.Background(), "replay", "-html", "x.html"))
}

func TestWatchAndHistory(t *testing.T) {
	h := newHarness(t)
	site := filepath.Join(h.dir, "site")
	require.NoError(t, os.Mkdir(site, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(site, "index.html"), []byte("<p>"+grinning+"</p>"), 0600))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	var stdout, stderr bytes.Buffer
	c := &cli{ctx: ctx, stdin: strings.NewReader(""), stdout: &stdout, stderr: &stderr}
	go func() {
		done <- c.run([]string{"watch", "-debounce", "50ms", "-record", site})
	}()

	out := filepath.Join(site, "index.annotated.html")
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(out)
		return err == nil && strings.Contains(string(data), "data-emojilens")
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case code := <-done:
		require.Equal(t, 0, code, stderr.String())
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
	assert.Contains(t, stdout.String(), "(1 markers")

	require.Equal(t, 0, h.run(context.Background(), "history"), h.stderr.String())
	assert.Contains(t, h.stdout.String(), filepath.Join(site, "index.html"))
	assert.Contains(t, h.stdout.String(), "markers: 1")
}

func TestHistoryStatus(t *testing.T) {
	h := newHarness(t)
	t.Setenv("EMOJILENS_LOG_LEVEL", "debug")

	require.Equal(t, 0, h.run(context.Background(), "history", "-status"), h.stderr.String())
	assert.Equal(t, "schema version 2 (latest 2)\n", h.stdout.String())
	assert.Contains(t, h.stderr.String(), "log_level=debug")
}

func TestVersion(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, 0, h.run(context.Background(), "version"))
	assert.True(t, strings.HasPrefix(h.stdout.String(), "emojilens dev ("))
}

func TestParseSequence(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{grinning, grinning, false},
		{"U+1F44B U+1F3FD", "\U0001F44B\U0001F3FD", false},
		{"u+a9 u+fe0f", "\u00A9\uFE0F", false},
		{"U+ZZ", "", true},
		{"U+110000", "", true},
	}
	for _, tt := range tests {
		got, err := parseSequence(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
