package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emojilens/internal/clock"
	"emojilens/internal/dom"
	"emojilens/internal/lexicon"
	"emojilens/internal/logging"
	"emojilens/internal/mutation"
	"emojilens/internal/prefs"
)

func testLexicon() *lexicon.Lexicon {
	return lexicon.FromMap(map[string]string{
		"\U0001F600":           "grinning face",
		"\U0001F44B\U0001F3FD": "waving hand: medium skin tone",
	})
}

func newSession(t *testing.T, body string, p prefs.Preferences) (*Session, *clock.Fake) {
	t.Helper()
	doc, err := dom.ParseString(body)
	require.NoError(t, err)
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s := New("test", doc, Options{
		Resolver:    testLexicon(),
		Preferences: p,
		Clock:       fake,
		Logger:      logging.Discard(),
	})
	t.Cleanup(func() { s.Close() })
	return s, fake
}

func bodyOf(t *testing.T, s *Session) string {
	t.Helper()
	out, err := s.HTML(context.Background())
	require.NoError(t, err)
	start := strings.Index(out, "<body>") + len("<body>")
	end := strings.Index(out, "</body>")
	return out[start:end]
}

// drain waits until everything posted so far has run on the loop.
func drain(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.Do(context.Background(), func() error { return nil }))
}

func TestStartAnnotates(t *testing.T) {
	s, _ := newSession(t, "<p>I love \U0001F600 pizza</p>", prefs.Defaults())
	res, err := s.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Markers)
	assert.Contains(t, bodyOf(t, s), `title="grinning face"`)
}

func TestStartWhenDisabled(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t, "<p>\U0001F600</p>", prefs.Defaults().With(prefs.KeyEnabled, false))
	res, err := s.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Markers)
	assert.Equal(t, "<p>\U0001F600</p>", bodyOf(t, s))

	action, err := s.SetPreferences(ctx, prefs.Defaults())
	require.NoError(t, err)
	assert.Equal(t, prefs.ActionAnnotate, action)
	assert.Contains(t, bodyOf(t, s), "data-emojilens")
}

func TestDisableUnwrapsAndRestores(t *testing.T) {
	ctx := context.Background()
	const body = "<p>hi \U0001F600 there \U0001F44B\U0001F3FD</p>"
	s, _ := newSession(t, body, prefs.Defaults())
	_, err := s.Start(ctx)
	require.NoError(t, err)
	require.NotEqual(t, body, bodyOf(t, s))

	action, err := s.SetPreferences(ctx, prefs.Defaults().With(prefs.KeyEnabled, false))
	require.NoError(t, err)
	assert.Equal(t, prefs.ActionUnwrap, action)
	assert.Equal(t, body, bodyOf(t, s))

	info, err := s.Info(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 0, info.Markers)
}

func TestFormatChangeRewritesInPlace(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t, "<p>\U0001F44B\U0001F3FD</p>", prefs.Defaults())
	_, err := s.Start(ctx)
	require.NoError(t, err)
	before := bodyOf(t, s)

	action, err := s.SetPreferences(ctx, prefs.Defaults().With(prefs.KeyShowSkinTone, false))
	require.NoError(t, err)
	assert.Equal(t, prefs.ActionRewrite, action)

	after := bodyOf(t, s)
	assert.Contains(t, after, `title="waving hand"`)
	assert.Equal(t, before, strings.Replace(after, `title="waving hand"`, `title="waving hand: medium skin tone"`, 1))
}

func TestMutationsAreDebounced(t *testing.T) {
	ctx := context.Background()
	s, fake := newSession(t, "<div></div>", prefs.Defaults())
	_, err := s.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Apply(ctx, []Op{{Op: OpAppend, Path: "0", HTML: "<p>new \U0001F600</p>"}}))
	info, err := s.Info(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, mutation.Scheduled.String(), info.State)
	assert.Equal(t, 0, info.Markers)

	fake.Advance(mutation.DefaultDelay)
	drain(t, s)

	info, err = s.Info(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Markers)
	assert.Equal(t, 1, info.Stats.Flushes)
}

func TestApplyOps(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t, "<p>a</p><p>b</p>", prefs.Defaults().With(prefs.KeyEnabled, false))
	_, err := s.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Apply(ctx, []Op{
		{Op: OpInsert, Path: "1", HTML: "<hr>"},
		{Op: OpAppend, Path: "0", Text: "!"},
		{Op: OpSetText, Path: "2/0", Text: "B"},
		{Op: OpReplace, Path: "1", HTML: "<br>"},
	}))
	assert.Equal(t, "<p>a!</p><br/><p>B</p>", bodyOf(t, s))

	require.NoError(t, s.Apply(ctx, []Op{{Op: OpRemove, Path: "1"}}))
	assert.Equal(t, "<p>a!</p><p>B</p>", bodyOf(t, s))

	for _, bad := range []Op{
		{Op: OpSetText, Path: "0", Text: "x"},
		{Op: OpRemove, Path: ""},
		{Op: OpAppend, Path: "7", Text: "x"},
		{Op: OpAppend, Path: "0/0", Text: "x"},
		{Op: "explode", Path: "0"},
	} {
		assert.Error(t, s.Apply(ctx, []Op{bad}), "%+v", bad)
	}
}

func TestReplaySettles(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t, "<main></main>", prefs.Defaults())
	_, err := s.Start(ctx)
	require.NoError(t, err)

	ops, err := DecodeOps(strings.NewReader(
		"{\"op\":\"append\",\"path\":\"0\",\"html\":\"<p>one \U0001F600</p>\"}\n"+
			"{\"op\":\"append\",\"path\":\"0/0\",\"text\":\" and \U0001F44B\U0001F3FD\"}\n"))
	require.NoError(t, err)
	require.Len(t, ops, 2)

	require.NoError(t, s.Replay(ctx, ops))
	info, err := s.Info(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, info.Markers)
	assert.Equal(t, mutation.Idle.String(), info.State)
}

func TestDecodeOpsErrors(t *testing.T) {
	_, err := DecodeOps(strings.NewReader(`{"op":"fly","path":"0"}`))
	assert.Error(t, err)
	_, err = DecodeOps(strings.NewReader(`{"op":"remove","path":"0","extra":1}`))
	assert.Error(t, err)
	_, err = DecodeOps(strings.NewReader(`{"op":"append","path":"0"}`))
	assert.Error(t, err)
	_, err = DecodeOps(strings.NewReader(`{"op":"remove","path":"a/b"}`))
	assert.Error(t, err)

	ops, err := DecodeOps(strings.NewReader(""))
	assert.NoError(t, err)
	assert.Empty(t, ops)
}

func TestClosedSession(t *testing.T) {
	s, _ := newSession(t, "", prefs.Defaults())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	err := s.Do(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.HTML(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
