// Package watcher monitors HTML files and writes annotated copies when they
// settle.
package watcher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"emojilens/internal/annotate"
	"emojilens/internal/metrics"
	"emojilens/internal/prefs"
	"emojilens/internal/store"
)

// DefaultSuffix is inserted before the extension of output files.
const DefaultSuffix = ".annotated"

// DefaultDebounce is how long a file must stay unchanged before it is
// annotated.
const DefaultDebounce = 500 * time.Millisecond

// RunRecorder persists completed annotation runs.
type RunRecorder interface {
	InsertRun(ctx context.Context, r *store.Run) (int64, error)
}

// Options configures a Watcher.
type Options struct {
	Paths     []string
	OutputDir string // empty writes next to the source
	Suffix    string
	Debounce  time.Duration

	Resolver      annotate.Resolver
	LexiconDigest string
	Preferences   prefs.Store // nil uses defaults
	Runs          RunRecorder // optional

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Event describes an annotated file.
type Event struct {
	Source    string
	Output    string
	Hash      [32]byte
	Result    annotate.Result
	Duration  time.Duration
	Timestamp time.Time
}

// Watcher monitors files and directories for HTML changes.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	opts      Options
	logger    *slog.Logger
	metrics   *metrics.Metrics

	// path -> last modification seen
	state   map[string]time.Time
	hashes  map[string][32]byte
	stateMu sync.Mutex

	events chan Event
	errors chan error

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a watcher. Nothing is watched until Start.
func New(opts Options) (*Watcher, error) {
	if len(opts.Paths) == 0 {
		return nil, errors.New("watcher: no paths")
	}
	if opts.Resolver == nil {
		return nil, errors.New("watcher: no resolver")
	}
	if opts.Suffix == "" {
		opts.Suffix = DefaultSuffix
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		opts:      opts,
		logger:    opts.Logger,
		metrics:   metrics.OrNew(opts.Metrics),
		state:     make(map[string]time.Time),
		hashes:    make(map[string][32]byte),
		events:    make(chan Event, 100),
		errors:    make(chan error, 10),
		done:      make(chan struct{}),
	}, nil
}

// Events returns annotated-file events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns per-file failures.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Start watches every configured path. Existing HTML files are queued for
// an initial annotation.
func (w *Watcher) Start() error {
	if w.opts.OutputDir != "" {
		if err := os.MkdirAll(w.opts.OutputDir, 0755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	for _, path := range w.opts.Paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return err
		}

		if info.IsDir() {
			if err := w.fsWatcher.Add(absPath); err != nil {
				return fmt.Errorf("watch %s: %w", absPath, err)
			}
			entries, err := os.ReadDir(absPath)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				if !entry.IsDir() {
					w.track(filepath.Join(absPath, entry.Name()), time.Time{})
				}
			}
			continue
		}

		if err := w.fsWatcher.Add(filepath.Dir(absPath)); err != nil {
			return fmt.Errorf("watch %s: %w", absPath, err)
		}
		w.track(absPath, time.Time{})
	}

	w.logger.Info("watching", "paths", w.opts.Paths, "output_dir", w.opts.OutputDir)
	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()
	return nil
}

// Stop shuts the watcher down and closes both channels.
func (w *Watcher) Stop() error {
	close(w.done)
	w.wg.Wait()
	close(w.events)
	close(w.errors)
	return w.fsWatcher.Close()
}

// IsSource reports whether path is an HTML file the watcher should
// annotate. Its own outputs are excluded.
func (w *Watcher) IsSource(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".html" && ext != ".htm" {
		return false
	}
	return !strings.HasSuffix(strings.TrimSuffix(path, filepath.Ext(path)), w.opts.Suffix)
}

// OutputPath maps a source file to its annotated copy.
func (w *Watcher) OutputPath(source string) string {
	base := filepath.Base(source)
	name := strings.TrimSuffix(base, filepath.Ext(base)) + w.opts.Suffix + filepath.Ext(base)
	dir := w.opts.OutputDir
	if dir == "" {
		dir = filepath.Dir(source)
	}
	return filepath.Join(dir, name)
}

// track records a modification. The zero time marks a file as already
// stable.
func (w *Watcher) track(path string, mod time.Time) {
	if !w.IsSource(path) {
		return
	}
	w.stateMu.Lock()
	w.state[path] = mod
	w.stateMu.Unlock()
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			info, err := os.Stat(event.Name)
			if err != nil || info.IsDir() {
				continue
			}
			w.track(event.Name, time.Now())

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.report(err)
		}
	}
}

func (w *Watcher) debounceLoop() {
	defer w.wg.Done()

	tick := w.opts.Debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case now := <-ticker.C:
			w.checkStableFiles(now)
		}
	}
}

type stableFile struct {
	path    string
	lastMod time.Time
}

// checkStableFiles annotates files unchanged for the debounce interval.
// The lock is released while files are read and written.
func (w *Watcher) checkStableFiles(now time.Time) {
	threshold := now.Add(-w.opts.Debounce)

	var stable []stableFile
	w.stateMu.Lock()
	for path, lastMod := range w.state {
		if lastMod.Before(threshold) {
			stable = append(stable, stableFile{path: path, lastMod: lastMod})
		}
	}
	w.stateMu.Unlock()

	for _, sf := range stable {
		w.stateMu.Lock()
		current, exists := w.state[sf.path]
		if !exists || !current.Equal(sf.lastMod) {
			w.stateMu.Unlock()
			continue
		}
		delete(w.state, sf.path)
		prev, seen := w.hashes[sf.path]
		w.stateMu.Unlock()

		data, hash, err := readFile(sf.path)
		if err != nil {
			w.report(err)
			continue
		}
		if seen && prev == hash {
			continue
		}

		ev, err := w.annotate(sf.path, data, hash)
		if err != nil {
			w.report(err)
			continue
		}

		w.stateMu.Lock()
		w.hashes[sf.path] = hash
		w.stateMu.Unlock()

		select {
		case w.events <- ev:
		default:
			w.logger.Warn("event channel full, dropping event", "path", sf.path)
		}
	}
}

func (w *Watcher) preferences(ctx context.Context) prefs.Preferences {
	if w.opts.Preferences == nil {
		return prefs.Defaults()
	}
	p, err := w.opts.Preferences.Load(ctx)
	if err != nil {
		w.logger.Warn("preferences unavailable, using defaults", "error", err)
		return prefs.Defaults()
	}
	return p
}

func (w *Watcher) annotate(source string, data []byte, hash [32]byte) (Event, error) {
	ctx := context.Background()
	start := time.Now()

	doc, res, err := annotate.Run(bytes.NewReader(data), w.opts.Resolver, w.preferences(ctx))
	if err != nil {
		return Event{}, fmt.Errorf("annotate %s: %w", source, err)
	}

	out := w.OutputPath(source)
	if err := writeAtomic(out, []byte(doc.HTML())); err != nil {
		return Event{}, err
	}
	elapsed := time.Since(start)

	w.metrics.FilesAnnotated.Inc()
	w.metrics.MarkersCreated.Add(uint64(res.Markers))
	w.logger.Info("annotated file",
		"source", source,
		"output", out,
		"markers", res.Markers,
		"duration", elapsed,
	)

	if w.opts.Runs != nil {
		_, err := w.opts.Runs.InsertRun(ctx, &store.Run{
			SourcePath:    source,
			OutputPath:    out,
			Markers:       res.Markers,
			TextNodes:     res.TextNodes,
			LexiconDigest: w.opts.LexiconDigest,
			StartedAt:     start,
			Duration:      elapsed,
		})
		if err != nil {
			w.logger.Warn("failed to record run", "source", source, "error", err)
		}
	}

	return Event{
		Source:    source,
		Output:    out,
		Hash:      hash,
		Result:    res,
		Duration:  elapsed,
		Timestamp: start,
	}, nil
}

func (w *Watcher) report(err error) {
	select {
	case w.errors <- err:
	default:
		w.logger.Warn("watcher error dropped", "error", err)
	}
}

// TrackedFiles returns the number of files waiting to settle.
func (w *Watcher) TrackedFiles() int {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return len(w.state)
}

func readFile(path string) ([]byte, [32]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, [32]byte{}, fmt.Errorf("read %s: %w", path, err)
	}
	return data, sha256.Sum256(data), nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
