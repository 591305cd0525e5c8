package mutation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"emojilens/internal/annotate"
	"emojilens/internal/clock"
	"emojilens/internal/dom"
	"emojilens/internal/lexicon"
	"emojilens/internal/logging"
	"emojilens/internal/prefs"
)

type harness struct {
	doc    *dom.Document
	engine *annotate.Engine
	coord  *Coordinator
	clock  *clock.Fake
}

func newHarness(t *testing.T, body string, opts Options) *harness {
	t.Helper()
	doc, err := dom.ParseString(body)
	require.NoError(t, err)
	lex := lexicon.FromMap(map[string]string{
		"\U0001F600":           "grinning face",
		"\U0001F44B\U0001F3FD": "waving hand: medium skin tone",
	})
	h := &harness{
		doc:    doc,
		engine: annotate.New(doc, lex, prefs.Defaults()),
		clock:  clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	opts.Clock = h.clock
	opts.Logger = logging.Discard()
	h.coord = New(doc, h.engine, opts)
	doc.Observe(doc.Body(), h.coord.Handle)
	return h
}

// mutate applies fn and delivers the resulting records, as a session does.
func (h *harness) mutate(fn func()) {
	fn()
	h.doc.Deliver()
}

func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.doc.Deliver()
}

func paragraph(text string) *html.Node {
	p := dom.NewElement(atom.P)
	p.AppendChild(dom.NewText(text))
	return p
}

func TestBurstFlushesOnce(t *testing.T) {
	var flushes []FlushResult
	h := newHarness(t, "", Options{OnFlush: func(r FlushResult) { flushes = append(flushes, r) }})
	body := h.doc.Body()

	assert.Equal(t, Idle, h.coord.State())
	h.mutate(func() { h.doc.AppendChild(body, paragraph("one \U0001F600")) })
	assert.Equal(t, Scheduled, h.coord.State())

	h.advance(50 * time.Millisecond)
	h.mutate(func() { h.doc.AppendChild(body, paragraph("two \U0001F600")) })
	h.advance(40 * time.Millisecond)
	h.mutate(func() { h.doc.AppendChild(body, paragraph("three \U0001F44B\U0001F3FD")) })
	assert.Empty(t, flushes, "no flush before the window closes")
	assert.Equal(t, 3, h.coord.Pending())

	// The deadline was set by the first mutation and never pushed back.
	h.advance(10 * time.Millisecond)
	require.Len(t, flushes, 1)
	assert.Equal(t, 3, flushes[0].Nodes)
	assert.Equal(t, 3, flushes[0].Markers)
	assert.Len(t, annotate.Markers(body), 3)

	// The flush's own mutations start one more cycle, which changes nothing.
	assert.Equal(t, Scheduled, h.coord.State())
	before := h.doc.BodyHTML()
	h.advance(DefaultDelay)
	require.Len(t, flushes, 2)
	assert.Equal(t, 0, flushes[1].Markers)
	assert.Equal(t, before, h.doc.BodyHTML())
	assert.Equal(t, Idle, h.coord.State())
}

func TestDetachedNodesAreSkipped(t *testing.T) {
	h := newHarness(t, "", Options{})
	p := paragraph("gone \U0001F600")

	h.mutate(func() { h.doc.AppendChild(h.doc.Body(), p) })
	h.mutate(func() { h.doc.RemoveChild(h.doc.Body(), p) })
	assert.Equal(t, 1, h.coord.Pending(), "removed nodes are filtered at flush, not on removal")

	res := h.coord.Flush()
	assert.Equal(t, 1, res.Detached)
	assert.Equal(t, 0, res.Markers)
	assert.Empty(t, annotate.Markers(p))
	assert.Equal(t, 1, h.coord.Stats().Detached)
}

func TestDisabledDropsPending(t *testing.T) {
	h := newHarness(t, "", Options{})
	h.engine.SetPreferences(prefs.Defaults().With(prefs.KeyEnabled, false))

	h.mutate(func() { h.doc.AppendChild(h.doc.Body(), paragraph("\U0001F600")) })
	h.advance(DefaultDelay)

	assert.Empty(t, annotate.Markers(h.doc.Body()))
	assert.Equal(t, 1, h.coord.Stats().Dropped)
	assert.Equal(t, Idle, h.coord.State())
}

func TestCharacterDataChange(t *testing.T) {
	h := newHarness(t, "<p>plain</p>", Options{})
	p, err := h.doc.Resolve(dom.Path{0})
	require.NoError(t, err)

	h.mutate(func() { h.doc.SetText(p.FirstChild, "now \U0001F600") })
	h.advance(DefaultDelay)

	markers := annotate.Markers(p)
	require.Len(t, markers, 1)
	_, title := annotate.Tooltip(markers[0])
	assert.Equal(t, "grinning face", title)
}

func TestTextInsideMarkerIsNotReannotated(t *testing.T) {
	h := newHarness(t, "<p>\U0001F600</p>", Options{})
	h.engine.Annotate(h.doc.Body())
	h.doc.Deliver()
	h.advance(DefaultDelay)

	marker := annotate.Markers(h.doc.Body())[0]
	h.mutate(func() { h.doc.SetText(marker.FirstChild, "\U0001F600\U0001F600") })
	res := h.coord.Flush()

	assert.Equal(t, 0, res.Markers)
	assert.Len(t, annotate.Markers(h.doc.Body()), 1)
}

func TestAddedNodesUnderSkippedAncestors(t *testing.T) {
	h := newHarness(t, "<pre></pre><div contenteditable=\"true\"></div>", Options{})
	pre, _ := h.doc.Resolve(dom.Path{0})
	editor, _ := h.doc.Resolve(dom.Path{1})

	h.mutate(func() {
		h.doc.AppendChild(pre, paragraph("\U0001F600"))
		h.doc.AppendChild(editor, dom.NewText("\U0001F600"))
	})
	res := h.coord.Flush()
	assert.Equal(t, 0, res.Markers)
	assert.Empty(t, annotate.Markers(h.doc.Body()))
}

func TestDispatchRunsFlushElsewhere(t *testing.T) {
	var queued []func()
	h := newHarness(t, "", Options{Dispatch: func(f func()) { queued = append(queued, f) }})

	h.mutate(func() { h.doc.AppendChild(h.doc.Body(), paragraph("\U0001F600")) })
	h.clock.Advance(DefaultDelay)

	require.Len(t, queued, 1)
	assert.Equal(t, Scheduled, h.coord.State(), "flush has not run yet")
	assert.Empty(t, annotate.Markers(h.doc.Body()))

	queued[0]()
	assert.Len(t, annotate.Markers(h.doc.Body()), 1)
	assert.Equal(t, 1, h.coord.Stats().Flushes)
}

func TestStaleDispatchAfterManualFlush(t *testing.T) {
	var queued []func()
	h := newHarness(t, "", Options{Dispatch: func(f func()) { queued = append(queued, f) }})

	h.mutate(func() { h.doc.AppendChild(h.doc.Body(), paragraph("\U0001F600")) })
	h.clock.Advance(DefaultDelay)
	require.Len(t, queued, 1)

	h.coord.Flush()
	require.Equal(t, 1, h.coord.Stats().Flushes)

	h.mutate(func() { h.doc.AppendChild(h.doc.Body(), paragraph("\U0001F44B\U0001F3FD")) })
	require.Equal(t, Scheduled, h.coord.State())

	queued[0]()
	assert.Equal(t, 1, h.coord.Stats().Flushes, "stale callback must not flush the new batch")
	assert.Equal(t, Scheduled, h.coord.State(), "fresh timer stays armed")
	assert.Positive(t, h.coord.Pending())
	assert.Len(t, annotate.Markers(h.doc.Body()), 1)

	h.clock.Advance(DefaultDelay)
	require.Len(t, queued, 2)
	queued[1]()
	assert.Equal(t, 2, h.coord.Stats().Flushes)
	assert.Len(t, annotate.Markers(h.doc.Body()), 2)
	assert.Equal(t, Idle, h.coord.State())
}

func TestStop(t *testing.T) {
	h := newHarness(t, "", Options{})
	h.mutate(func() { h.doc.AppendChild(h.doc.Body(), paragraph("\U0001F600")) })
	h.coord.Stop()
	assert.Equal(t, Idle, h.coord.State())

	h.advance(time.Second)
	assert.Empty(t, annotate.Markers(h.doc.Body()))
	assert.Equal(t, 0, h.coord.Stats().Flushes)
}

func TestDuplicateNodesCountOnce(t *testing.T) {
	h := newHarness(t, "<p>x</p>", Options{})
	p, _ := h.doc.Resolve(dom.Path{0})
	text := p.FirstChild

	h.mutate(func() {
		h.doc.SetText(text, "a")
		h.doc.SetText(text, "b \U0001F600")
	})
	assert.Equal(t, 1, h.coord.Pending())
	assert.Equal(t, 1, h.coord.Flush().Markers)
}
