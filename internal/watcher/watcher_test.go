package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"emojilens/internal/lexicon"
	"emojilens/internal/logging"
	"emojilens/internal/metrics"
	"emojilens/internal/prefs"
	"emojilens/internal/store"
)

const grinning = "\U0001F600"

func testOptions(paths ...string) Options {
	return Options{
		Paths:    paths,
		Debounce: 200 * time.Millisecond,
		Resolver: lexicon.FromMap(map[string]string{grinning: "grinning face"}),
		Logger:   logging.Discard(),
	}
}

func waitEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case ev := <-w.Events():
		return ev
	case err := <-w.Errors():
		t.Fatalf("watcher error: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	return Event{}
}

func expectQuiet(t *testing.T, w *Watcher, d time.Duration) {
	t.Helper()
	select {
	case ev := <-w.Events():
		t.Errorf("unexpected event for %s", ev.Source)
	case <-time.After(d):
	}
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New(Options{Resolver: lexicon.Empty()}); err == nil {
		t.Error("expected error without paths")
	}
	if _, err := New(Options{Paths: []string{"."}}); err == nil {
		t.Error("expected error without resolver")
	}
}

func TestIsSourceAndOutputPath(t *testing.T) {
	w, err := New(testOptions(t.TempDir()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.fsWatcher.Close()

	tests := []struct {
		path string
		want bool
	}{
		{"/x/page.html", true},
		{"/x/PAGE.HTM", true},
		{"/x/page.annotated.html", false},
		{"/x/page.txt", false},
		{"/x/page.html.tmp", false},
	}
	for _, tt := range tests {
		if got := w.IsSource(tt.path); got != tt.want {
			t.Errorf("IsSource(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}

	if got := w.OutputPath("/x/page.html"); got != "/x/page.annotated.html" {
		t.Errorf("OutputPath = %q", got)
	}
	w.opts.OutputDir = "/out"
	if got := w.OutputPath("/x/page.htm"); got != "/out/page.annotated.htm" {
		t.Errorf("OutputPath with dir = %q", got)
	}
}

func TestWatcherAnnotatesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "out")
	src := filepath.Join(dir, "page.html")
	if err := os.WriteFile(src, []byte("<p>hi "+grinning+"</p>"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(grinning), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	opts := testOptions(dir)
	opts.OutputDir = outDir
	m := metrics.New(metrics.NewRegistry("test"))
	opts.Metrics = m
	w, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	ev := waitEvent(t, w)
	if ev.Source != src {
		t.Errorf("source = %s, want %s", ev.Source, src)
	}
	if ev.Result.Markers != 1 {
		t.Errorf("markers = %d, want 1", ev.Result.Markers)
	}
	out, err := os.ReadFile(filepath.Join(outDir, "page.annotated.html"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(out), `title="grinning face"`) {
		t.Errorf("output not annotated: %s", out)
	}
	if m.FilesAnnotated.Value() != 1 {
		t.Errorf("files annotated = %d, want 1", m.FilesAnnotated.Value())
	}
	expectQuiet(t, w, 500*time.Millisecond)
}

func TestWatcherDebounce(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(dir)
	opts.Debounce = 300 * time.Millisecond
	w, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	src := filepath.Join(dir, "draft.html")
	for i := range 5 {
		body := "<p>" + strings.Repeat(grinning, i+1) + "</p>"
		if err := os.WriteFile(src, []byte(body), 0600); err != nil {
			t.Fatalf("write: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	ev := waitEvent(t, w)
	if ev.Result.Markers != 5 {
		t.Errorf("markers = %d, want the final write's 5", ev.Result.Markers)
	}
	expectQuiet(t, w, 700*time.Millisecond)
}

func TestWatcherSkipsUnchangedContent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "page.html")
	body := []byte("<p>" + grinning + "</p>")
	if err := os.WriteFile(src, body, 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	w, err := New(testOptions(dir))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	waitEvent(t, w)

	if err := os.WriteFile(src, body, 0600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	expectQuiet(t, w, 700*time.Millisecond)

	if err := os.WriteFile(src, []byte("<p>changed "+grinning+"</p>"), 0600); err != nil {
		t.Fatalf("change: %v", err)
	}
	waitEvent(t, w)
}

func TestWatcherUsesStoredPreferences(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "page.html")
	if err := os.WriteFile(src, []byte("<p>"+grinning+"</p>"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	opts := testOptions(dir)
	opts.Preferences = prefs.NewMemoryStore(prefs.Defaults().With(prefs.KeyEnabled, false))
	w, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	ev := waitEvent(t, w)
	if ev.Result.Markers != 0 {
		t.Errorf("markers = %d while disabled", ev.Result.Markers)
	}
}

func TestWatcherRecordsRuns(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "page.html")
	if err := os.WriteFile(src, []byte("<p>"+grinning+grinning+"</p>"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	db, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()

	opts := testOptions(dir)
	opts.Runs = db
	opts.LexiconDigest = "abc123"
	w, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	waitEvent(t, w)

	runs, err := db.RecentRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].SourcePath != src || runs[0].Markers != 2 || runs[0].LexiconDigest != "abc123" {
		t.Errorf("unexpected run: %+v", runs[0])
	}
}
