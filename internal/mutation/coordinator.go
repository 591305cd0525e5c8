// Package mutation turns document mutation records into debounced,
// incremental annotation passes.
package mutation

import (
	"log/slog"
	"time"

	"golang.org/x/net/html"

	"emojilens/internal/annotate"
	"emojilens/internal/clock"
	"emojilens/internal/dom"
	"emojilens/internal/metrics"
)

// DefaultDelay is the debounce window.
const DefaultDelay = 100 * time.Millisecond

// State is the coordinator's position in its debounce cycle.
type State int

const (
	Idle State = iota
	Pending
	Scheduled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Scheduled:
		return "scheduled"
	default:
		return "unknown"
	}
}

// Tree answers whether a node is still attached.
type Tree interface {
	Contains(n *html.Node) bool
}

// Annotator is the part of annotate.Engine a flush drives.
type Annotator interface {
	Enabled() bool
	Eligible(n *html.Node) bool
	Annotate(root *html.Node) annotate.Result
	AnnotateText(n *html.Node) annotate.Result
}

// Options configures a Coordinator.
type Options struct {
	// Delay defaults to DefaultDelay.
	Delay time.Duration
	// Clock defaults to the wall clock.
	Clock clock.Clock
	// Dispatch runs the timer callback. A session passes a function that
	// posts onto its event loop. Nil runs the flush on the timer's goroutine.
	Dispatch func(func())
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	// OnFlush is called after every flush.
	OnFlush func(FlushResult)
}

// FlushResult describes one flush.
type FlushResult struct {
	Nodes    int
	Detached int
	Dropped  int
	annotate.Result
}

// Stats are running totals.
type Stats struct {
	Observed  int `json:"observed"`
	Flushes   int `json:"flushes"`
	Processed int `json:"processed"`
	Detached  int `json:"detached"`
	Dropped   int `json:"dropped"`
	Markers   int `json:"markers"`
}

// Coordinator collects nodes touched by mutations and re-annotates them
// once per debounce window. It is not safe for concurrent use: Handle and
// Flush must run on the same goroutine, which Dispatch arranges.
type Coordinator struct {
	tree     Tree
	engine   Annotator
	clock    clock.Clock
	delay    time.Duration
	dispatch func(func())
	logger   *slog.Logger
	metrics  *metrics.Metrics
	onFlush  func(FlushResult)

	pending *nodeSet
	timer   clock.Timer
	gen     uint64 // bumped on every arm and disarm
	stats   Stats
}

// New creates a coordinator.
func New(tree Tree, engine Annotator, opts Options) *Coordinator {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Coordinator{
		tree:     tree,
		engine:   engine,
		clock:    opts.Clock,
		delay:    opts.Delay,
		dispatch: opts.Dispatch,
		logger:   opts.Logger,
		metrics:  metrics.OrNew(opts.Metrics),
		onFlush:  opts.OnFlush,
		pending:  newNodeSet(),
	}
}

// State returns the current state.
func (c *Coordinator) State() State {
	switch {
	case c.timer != nil:
		return Scheduled
	case c.pending.len() > 0:
		return Pending
	default:
		return Idle
	}
}

// Pending returns the number of nodes awaiting a flush.
func (c *Coordinator) Pending() int {
	return c.pending.len()
}

// Stats returns running totals.
func (c *Coordinator) Stats() Stats {
	return c.stats
}

// Handle is the observer callback. Added nodes and the targets of
// character-data records join the pending set; removed nodes do not.
// Attachment is checked at flush time.
func (c *Coordinator) Handle(records []dom.Record) {
	for _, r := range records {
		for _, n := range r.Added {
			c.add(n)
		}
		if r.Kind == dom.CharacterData && dom.IsText(r.Target) {
			c.add(r.Target)
		}
	}
	if c.pending.len() > 0 {
		c.schedule()
	}
}

func (c *Coordinator) add(n *html.Node) {
	if c.pending.add(n) {
		c.stats.Observed++
	}
}

// schedule arms the timer unless it is already armed. Later mutations
// join the same batch without pushing the deadline back.
func (c *Coordinator) schedule() {
	if c.timer != nil {
		return
	}
	c.gen++
	gen := c.gen
	c.timer = c.clock.AfterFunc(c.delay, func() { c.fire(gen) })
}

// fire flushes the batch armed as generation gen. A callback posted
// through Dispatch can arrive after a manual Flush or Stop; stale
// generations are ignored.
func (c *Coordinator) fire(gen uint64) {
	flush := func() {
		if gen != c.gen {
			return
		}
		c.Flush()
	}
	if c.dispatch != nil {
		c.dispatch(flush)
		return
	}
	flush()
}

func (c *Coordinator) disarm() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

// Flush swaps out the pending set and processes it. Mutations made while
// processing land in the fresh set and start a new cycle. Calling Flush
// before the timer fires disarms it.
func (c *Coordinator) Flush() FlushResult {
	nodes := c.pending.items()
	c.pending = newNodeSet()
	c.disarm()
	c.stats.Flushes++
	c.metrics.Flushes.Inc()

	res := FlushResult{Nodes: len(nodes)}
	if !c.engine.Enabled() {
		res.Dropped = len(nodes)
		c.stats.Dropped += res.Dropped
		c.metrics.PendingDropped.Add(uint64(res.Dropped))
		c.finish(res)
		return res
	}

	start := c.clock.Now()
	for _, n := range nodes {
		if !c.tree.Contains(n) {
			res.Detached++
			continue
		}
		switch n.Type {
		case html.ElementNode:
			if c.engine.Eligible(n) {
				res.Add(c.engine.Annotate(n))
			}
		case html.TextNode:
			if annotate.IsMarker(n.Parent) || !c.engine.Eligible(n) {
				continue
			}
			res.Add(c.engine.AnnotateText(n))
		}
	}
	c.metrics.FlushDuration.ObserveDuration(c.clock.Now().Sub(start))

	c.stats.Processed += res.Nodes - res.Detached
	c.stats.Detached += res.Detached
	c.stats.Markers += res.Markers
	c.metrics.DetachedSkipped.Add(uint64(res.Detached))
	c.metrics.MarkersCreated.Add(uint64(res.Markers))
	c.finish(res)
	return res
}

func (c *Coordinator) finish(res FlushResult) {
	c.logger.Debug("mutation flush",
		"nodes", res.Nodes,
		"detached", res.Detached,
		"dropped", res.Dropped,
		"markers", res.Markers,
	)
	if c.onFlush != nil {
		c.onFlush(res)
	}
}

// Stop disarms the timer and forgets pending nodes.
func (c *Coordinator) Stop() {
	c.disarm()
	c.pending = newNodeSet()
}

// nodeSet is an insertion-ordered set of nodes.
type nodeSet struct {
	seen  map[*html.Node]struct{}
	order []*html.Node
}

func newNodeSet() *nodeSet {
	return &nodeSet{seen: make(map[*html.Node]struct{})}
}

func (s *nodeSet) add(n *html.Node) bool {
	if _, ok := s.seen[n]; ok {
		return false
	}
	s.seen[n] = struct{}{}
	s.order = append(s.order, n)
	return true
}

func (s *nodeSet) len() int {
	return len(s.order)
}

func (s *nodeSet) items() []*html.Node {
	return s.order
}
