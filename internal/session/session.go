// Package session runs annotation for one live document on its own event
// loop, so document work never interleaves.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"emojilens/internal/annotate"
	"emojilens/internal/clock"
	"emojilens/internal/dom"
	"emojilens/internal/metrics"
	"emojilens/internal/mutation"
	"emojilens/internal/prefs"
)

var (
	// ErrClosed is returned for work submitted to a closed session.
	ErrClosed = errors.New("session: closed")
	// ErrNotFound is returned for an unknown session ID.
	ErrNotFound = errors.New("session: not found")
)

// maxSettleRounds bounds Settle. Annotation is idempotent, so a document
// normally settles in two rounds.
const maxSettleRounds = 8

// Options configures sessions.
type Options struct {
	Resolver    annotate.Resolver
	Preferences prefs.Preferences
	Delay       time.Duration
	Clock       clock.Clock
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// Session owns a document and everything that mutates it.
type Session struct {
	id        string
	createdAt time.Time
	doc       *dom.Document
	engine    *annotate.Engine
	coord     *mutation.Coordinator
	logger    *slog.Logger
	metrics   *metrics.Metrics

	stopObserve func()

	tasks     chan func()
	done      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once
}

// New creates a session for doc and starts its loop. Call Start to run
// the initial pass and begin observing mutations.
func New(id string, doc *dom.Document, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	s := &Session{
		id:        id,
		createdAt: opts.Clock.Now(),
		doc:       doc,
		engine:    annotate.New(doc, opts.Resolver, opts.Preferences),
		logger:    logger.With("session", id),
		metrics:   metrics.OrNew(opts.Metrics),
		tasks:     make(chan func(), 64),
		done:      make(chan struct{}),
		loopDone:  make(chan struct{}),
	}
	s.coord = mutation.New(doc, s.engine, mutation.Options{
		Delay:    opts.Delay,
		Clock:    opts.Clock,
		Dispatch: func(f func()) { s.post(f) },
		Logger:   s.logger,
		Metrics:  s.metrics,
	})
	go s.loop()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) loop() {
	defer close(s.loopDone)
	for {
		select {
		case task := <-s.tasks:
			task()
		case <-s.done:
			return
		}
	}
}

// post queues fn on the loop without waiting for it. It reports false if
// the session is closed.
func (s *Session) post(fn func()) bool {
	task := func() {
		fn()
		s.doc.Deliver()
	}
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.tasks <- task:
		return true
	case <-s.done:
		return false
	}
}

// Do runs fn on the loop and waits for it. Mutation records produced by fn
// are delivered before Do returns.
func (s *Session) Do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	if !s.post(func() { errc <- fn() }) {
		return ErrClosed
	}
	select {
	case err := <-errc:
		return err
	case <-s.loopDone:
		select {
		case err := <-errc:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start runs the initial full pass, when enabled, and then begins
// observing the body.
func (s *Session) Start(ctx context.Context) (annotate.Result, error) {
	var res annotate.Result
	err := s.Do(ctx, func() error {
		if s.engine.Enabled() {
			res = s.engine.Annotate(s.doc.Body())
			s.metrics.MarkersCreated.Add(uint64(res.Markers))
		}
		s.stopObserve = s.doc.Observe(s.doc.Body(), s.coord.Handle)
		return nil
	})
	if err == nil {
		s.logger.Info("session started", "markers", res.Markers, "text_nodes", res.TextNodes)
	}
	return res, err
}

// SetPreferences applies p and performs the update it calls for.
func (s *Session) SetPreferences(ctx context.Context, p prefs.Preferences) (prefs.Action, error) {
	var action prefs.Action
	err := s.Do(ctx, func() error {
		action = s.applyPreferences(p)
		return nil
	})
	return action, err
}

// notify applies a broadcast change asynchronously.
func (s *Session) notify(c prefs.Change) {
	s.post(func() { s.applyPreferences(c.New) })
}

func (s *Session) applyPreferences(p prefs.Preferences) prefs.Action {
	action := prefs.Classify(s.engine.Preferences(), p)
	s.engine.SetPreferences(p)

	body := s.doc.Body()
	switch action {
	case prefs.ActionAnnotate:
		res := s.engine.Annotate(body)
		s.metrics.MarkersCreated.Add(uint64(res.Markers))
		s.logger.Info("annotation enabled", "markers", res.Markers)
	case prefs.ActionUnwrap:
		n := s.engine.Unwrap(body)
		s.metrics.MarkersRemoved.Add(uint64(n))
		s.logger.Info("annotation disabled", "markers_removed", n)
	case prefs.ActionRewrite:
		n := s.engine.RewriteTooltips(body)
		s.metrics.TooltipsRewrites.Add(uint64(n))
		s.logger.Debug("tooltips rewritten", "count", n)
	}
	return action
}

// Preferences returns the preferences the session is using.
func (s *Session) Preferences(ctx context.Context) (prefs.Preferences, error) {
	var p prefs.Preferences
	err := s.Do(ctx, func() error {
		p = s.engine.Preferences()
		return nil
	})
	return p, err
}

// Settle flushes pending mutations until the coordinator is idle.
func (s *Session) Settle(ctx context.Context) error {
	for range maxSettleRounds {
		idle := false
		err := s.Do(ctx, func() error {
			if s.coord.State() == mutation.Idle {
				idle = true
				return nil
			}
			s.coord.Flush()
			return nil
		})
		if err != nil || idle {
			return err
		}
	}
	s.logger.Warn("session did not settle", "rounds", maxSettleRounds)
	return nil
}

// HTML renders the document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var out string
	err := s.Do(ctx, func() error {
		out = s.doc.HTML()
		return nil
	})
	return out, err
}

// Info is a snapshot of a session.
type Info struct {
	ID          string            `json:"id"`
	CreatedAt   time.Time         `json:"createdAt"`
	State       string            `json:"state"`
	Markers     int               `json:"markers"`
	Stats       mutation.Stats    `json:"stats"`
	Preferences prefs.Preferences `json:"preferences"`
	HTML        string            `json:"html,omitempty"`
}

// Info snapshots the session. The HTML is included when withHTML is set.
func (s *Session) Info(ctx context.Context, withHTML bool) (Info, error) {
	var info Info
	err := s.Do(ctx, func() error {
		info = Info{
			ID:          s.id,
			CreatedAt:   s.createdAt,
			State:       s.coord.State().String(),
			Markers:     len(annotate.Markers(s.doc.Body())),
			Stats:       s.coord.Stats(),
			Preferences: s.engine.Preferences(),
		}
		if withHTML {
			info.HTML = s.doc.HTML()
		}
		return nil
	})
	return info, err
}

// Close stops observation and the loop. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.Do(context.Background(), func() error {
			s.coord.Stop()
			if s.stopObserve != nil {
				s.stopObserve()
			}
			return nil
		})
		close(s.done)
		<-s.loopDone
		s.logger.Debug("session closed")
	})
	return nil
}
