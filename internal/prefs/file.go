package prefs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// reloadDebounce coalesces editor write bursts into one reload.
const reloadDebounce = 100 * time.Millisecond

// record is the on-disk shape. Nil fields were absent from the file.
type record struct {
	Enabled        *bool `json:"enabled,omitempty" toml:"enabled,omitempty" yaml:"enabled,omitempty"`
	ShowEmoji      *bool `json:"showEmoji,omitempty" toml:"showEmoji,omitempty" yaml:"showEmoji,omitempty"`
	ShowName       *bool `json:"showName,omitempty" toml:"showName,omitempty" yaml:"showName,omitempty"`
	ShowCodePoints *bool `json:"showCodePoints,omitempty" toml:"showCodePoints,omitempty" yaml:"showCodePoints,omitempty"`
	ShowSkinTone   *bool `json:"showSkinTone,omitempty" toml:"showSkinTone,omitempty" yaml:"showSkinTone,omitempty"`
}

func (r record) preferences() Preferences {
	m := make(map[string]bool)
	set := func(k Key, v *bool) {
		if v != nil {
			m[string(k)] = *v
		}
	}
	set(KeyEnabled, r.Enabled)
	set(KeyShowEmoji, r.ShowEmoji)
	set(KeyShowName, r.ShowName)
	set(KeyShowCodePoints, r.ShowCodePoints)
	set(KeyShowSkinTone, r.ShowSkinTone)
	return FromMap(m)
}

func toRecord(p Preferences) record {
	b := func(v bool) *bool { return &v }
	return record{
		Enabled:        b(p.Enabled),
		ShowEmoji:      b(p.ShowEmoji),
		ShowName:       b(p.ShowName),
		ShowCodePoints: b(p.ShowCodePoints),
		ShowSkinTone:   b(p.ShowSkinTone),
	}
}

type fileFormat int

const (
	formatTOML fileFormat = iota
	formatJSON
	formatYAML
)

func formatOf(path string) (fileFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml", "":
		return formatTOML, nil
	case ".json":
		return formatJSON, nil
	case ".yaml", ".yml":
		return formatYAML, nil
	default:
		return 0, fmt.Errorf("unsupported preferences file format: %s", filepath.Ext(path))
	}
}

// Decode parses preferences in the format implied by name's extension.
func Decode(name string, data []byte) (Preferences, error) {
	format, err := formatOf(name)
	if err != nil {
		return Preferences{}, err
	}
	var rec record
	switch format {
	case formatJSON:
		err = json.Unmarshal(data, &rec)
	case formatYAML:
		err = yaml.Unmarshal(data, &rec)
	default:
		_, err = toml.Decode(string(data), &rec)
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("decode %s: %w", filepath.Base(name), err)
	}
	return rec.preferences(), nil
}

// Encode writes p in the format implied by name's extension.
func Encode(name string, p Preferences) ([]byte, error) {
	format, err := formatOf(name)
	if err != nil {
		return nil, err
	}
	rec := toRecord(p)
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case formatYAML:
		return yaml.Marshal(rec)
	default:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(rec); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}

// FileStore keeps preferences in a TOML, JSON or YAML file and broadcasts
// edits made to the file by other processes.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	cur     Preferences
	timer   *time.Timer
	hub     Hub
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// OpenFile opens the preferences file at path. A missing file reads as the
// defaults. A file that fails to parse is logged and also reads as the
// defaults until it is fixed.
func OpenFile(path string, logger *slog.Logger) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("preferences file path is empty")
	}
	if _, err := formatOf(path); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &FileStore{path: filepath.Clean(path), logger: logger, done: make(chan struct{})}

	cur, err := s.read()
	if err != nil {
		logger.Warn("preferences file unreadable, using defaults", "path", path, "error", err)
		cur = Defaults()
	}
	s.cur = cur.Normalize()

	if err := s.watch(); err != nil {
		logger.Warn("preferences file not watched", "path", path, "error", err)
	}
	return s, nil
}

// Path returns the file path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) read() (Preferences, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Defaults(), nil
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("read preferences: %w", err)
	}
	return Decode(s.path, data)
}

// Load reads the file. A file that cannot be read or parsed is logged and
// reads as the defaults.
func (s *FileStore) Load(context.Context) (Preferences, error) {
	p, err := s.read()
	if err != nil {
		s.logger.Warn("preferences file unreadable, using defaults", "path", s.path, "error", err)
		return Defaults(), nil
	}
	return p.Normalize(), nil
}

func (s *FileStore) Save(_ context.Context, p Preferences) error {
	p = p.Normalize()
	data, err := Encode(s.path, p)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create preferences directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace preferences: %w", err)
	}

	s.mu.Lock()
	old := s.cur
	s.cur = p
	s.mu.Unlock()

	s.hub.Publish(NewChange(old, p))
	return nil
}

func (s *FileStore) Subscribe(fn func(Change)) func() {
	return s.hub.Subscribe(fn)
}

// watch follows the parent directory so that atomic replacements by
// editors are seen.
func (s *FileStore) watch() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return err
	}
	s.watcher = w
	s.wg.Add(1)
	go s.watchLoop()
	return nil
}

func (s *FileStore) watchLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				s.scheduleReload()
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("preferences watcher error", "error", err)
		}
	}
}

func (s *FileStore) scheduleReload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(reloadDebounce, s.reload)
}

func (s *FileStore) reload() {
	select {
	case <-s.done:
		return
	default:
	}

	p, err := s.read()
	if err != nil {
		s.logger.Warn("preferences reload failed", "path", s.path, "error", err)
		return
	}
	p = p.Normalize()

	s.mu.Lock()
	old := s.cur
	s.cur = p
	s.mu.Unlock()

	change := NewChange(old, p)
	if len(change.Keys) > 0 {
		s.logger.Info("preferences changed on disk", "keys", change.Keys, "action", change.Action().String())
	}
	s.hub.Publish(change)
}

func (s *FileStore) Close() error {
	select {
	case <-s.done:
		return nil
	default:
	}
	close(s.done)

	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	var err error
	if s.watcher != nil {
		err = s.watcher.Close()
	}
	s.wg.Wait()
	return err
}
