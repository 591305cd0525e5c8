// Package annotate wraps emoji in document text with marker elements that
// carry a tooltip, and keeps those markers in step with the preferences.
package annotate

import (
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"emojilens/internal/dom"
	"emojilens/internal/lexicon"
	"emojilens/internal/prefs"
)

// Marker attributes.
const (
	MarkerAttr = "data-emojilens"
	RawAttr    = "data-emojilens-raw"
	TitleAttr  = "title"
)

// Result counts the work done by a pass.
type Result struct {
	TextNodes int `json:"textNodes"`
	Markers   int `json:"markers"`
}

// Add accumulates o into r.
func (r *Result) Add(o Result) {
	r.TextNodes += o.TextNodes
	r.Markers += o.Markers
}

// Engine annotates one document. It is used from a single goroutine.
type Engine struct {
	doc      *dom.Document
	resolver Resolver
	prefs    prefs.Preferences
}

// New returns an engine for doc. A nil resolver resolves nothing.
func New(doc *dom.Document, resolver Resolver, p prefs.Preferences) *Engine {
	if resolver == nil {
		resolver = lexicon.Empty()
	}
	return &Engine{doc: doc, resolver: resolver, prefs: p}
}

// Document returns the annotated document.
func (e *Engine) Document() *dom.Document {
	return e.doc
}

// Preferences returns the current preferences.
func (e *Engine) Preferences() prefs.Preferences {
	return e.prefs
}

// SetPreferences replaces the preferences used for new tooltips.
func (e *Engine) SetPreferences(p prefs.Preferences) {
	e.prefs = p
}

// Enabled reports whether annotation is switched on.
func (e *Engine) Enabled() bool {
	return e.prefs.Enabled
}

// Annotate walks root depth first and wraps every resolved emoji in
// eligible text. Children are snapshotted before descending.
func (e *Engine) Annotate(root *html.Node) Result {
	var res Result
	e.walk(root, &res)
	return res
}

func (e *Engine) walk(n *html.Node, res *Result) {
	switch n.Type {
	case html.TextNode:
		res.Add(e.AnnotateText(n))
		return
	case html.ElementNode:
		if Classify(Wrap(n)) != Eligible {
			return
		}
	case html.DocumentNode:
	default:
		return
	}
	for _, c := range dom.Children(n) {
		e.walk(c, res)
	}
}

// AnnotateText replaces text node n with plain text and marker elements.
// Text under an editable or text-entry ancestor is left alone.
func (e *Engine) AnnotateText(n *html.Node) Result {
	if n.Data == "" || n.Parent == nil {
		return Result{}
	}
	if InEditableContext(Wrap(n.Parent)) {
		return Result{}
	}

	res := Result{TextNodes: 1}
	segs := Segments(n.Data, e.resolver)
	if !HasEmoji(segs) {
		return res
	}

	nodes := make([]*html.Node, 0, len(segs))
	for _, s := range segs {
		if !s.IsEmoji() {
			nodes = append(nodes, dom.NewText(s.Text))
			continue
		}
		nodes = append(nodes, e.marker(s))
		res.Markers++
	}
	e.doc.ReplaceChild(n.Parent, n, nodes...)
	return res
}

func (e *Engine) marker(s Segment) *html.Node {
	span := dom.NewElement(atom.Span,
		html.Attribute{Key: MarkerAttr, Val: "true"},
		html.Attribute{Key: RawAttr, Val: s.Text},
		html.Attribute{Key: TitleAttr, Val: Format(s.Text, s.Name, e.prefs)},
	)
	span.AppendChild(dom.NewText(s.Text))
	return span
}

// Eligible reports whether n may be annotated now: n itself, when an
// element, and every element ancestor below the body must classify as
// eligible.
func (e *Engine) Eligible(n *html.Node) bool {
	start := n.Parent
	if dom.IsElement(n) {
		start = n
	}
	if start == nil {
		return false
	}
	return AncestorClass(Wrap(start)) == Eligible
}

// IsMarker reports whether n is a marker element.
func IsMarker(n *html.Node) bool {
	if !dom.IsElement(n) {
		return false
	}
	_, ok := dom.Attr(n, MarkerAttr)
	return ok
}

// Markers lists the markers under root in document order.
func Markers(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if IsMarker(n) {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

// Tooltip returns a marker's raw emoji and title.
func Tooltip(marker *html.Node) (raw, title string) {
	raw, ok := dom.Attr(marker, RawAttr)
	if !ok {
		raw = dom.TextContent(marker)
	}
	title, _ = dom.Attr(marker, TitleAttr)
	return raw, title
}

// Unwrap replaces every marker under root with its text and merges the
// text back together. It returns the number of markers removed.
func (e *Engine) Unwrap(root *html.Node) int {
	markers := Markers(root)
	parents := make([]*html.Node, 0, len(markers))
	seen := make(map[*html.Node]bool)
	for _, m := range markers {
		parent := m.Parent
		if parent == nil {
			continue
		}
		e.doc.ReplaceChild(parent, m, dom.NewText(dom.TextContent(m)))
		if !seen[parent] {
			seen[parent] = true
			parents = append(parents, parent)
		}
	}
	for _, p := range parents {
		e.doc.MergeText(p)
	}
	return len(markers)
}

// RewriteTooltips recomputes every marker title from its raw emoji and the
// current preferences without scanning text. It returns the number of
// titles that changed.
func (e *Engine) RewriteTooltips(root *html.Node) int {
	changed := 0
	for _, m := range Markers(root) {
		raw, title := Tooltip(m)
		name, ok := e.resolver.Resolve(raw)
		if !ok {
			continue
		}
		if next := Format(raw, name, e.prefs); next != title {
			e.doc.SetAttr(m, TitleAttr, next)
			changed++
		}
	}
	return changed
}
