package annotate

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"emojilens/internal/dom"
)

// Element is the view of a document element that classification needs.
type Element interface {
	Tag() string
	Attr(key string) (string, bool)
	// Parent returns nil at the top of the tree.
	Parent() Element
}

// Class is the outcome of classifying an element.
type Class int

const (
	Eligible Class = iota
	SkipTag
	SkipEditable
	SkipProcessed
	SkipHidden
	SkipTextEntry
)

func (c Class) String() string {
	switch c {
	case Eligible:
		return "eligible"
	case SkipTag:
		return "skip-tag"
	case SkipEditable:
		return "skip-editable"
	case SkipProcessed:
		return "skip-processed"
	case SkipHidden:
		return "skip-hidden"
	case SkipTextEntry:
		return "skip-text-entry"
	default:
		return "unknown"
	}
}

// skipTags hold scripts, preformatted code, media, embedded content and
// form widgets.
var skipTags = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Textarea: true,
	atom.Input:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Object:   true,
	atom.Embed:    true,
	atom.Svg:      true,
	atom.Canvas:   true,
	atom.Code:     true,
	atom.Pre:      true,
	atom.Img:      true,
	atom.Video:    true,
	atom.Audio:    true,
	atom.Select:   true,
	atom.Option:   true,
}

// IsSkipTag reports whether tag is never scanned.
func IsSkipTag(tag string) bool {
	return skipTags[atom.Lookup([]byte(strings.ToLower(tag)))]
}

// Classify decides whether an element may be descended into. It looks at
// the element alone and is recomputed on every visit.
func Classify(e Element) Class {
	if IsSkipTag(e.Tag()) {
		return SkipTag
	}
	if editable(e) {
		return SkipEditable
	}
	if _, ok := e.Attr(MarkerAttr); ok {
		return SkipProcessed
	}
	if v, _ := e.Attr("aria-hidden"); v == "true" {
		return SkipHidden
	}
	if textEntryRole(e) {
		return SkipTextEntry
	}
	return Eligible
}

func editable(e Element) bool {
	v, ok := e.Attr("contenteditable")
	return ok && v != "false"
}

func textEntryRole(e Element) bool {
	role, _ := e.Attr("role")
	return role == "textbox" || role == "searchbox"
}

func isBody(e Element) bool {
	return strings.EqualFold(e.Tag(), "body")
}

// InEditableContext reports whether e or an ancestor below the body is
// editable or has a text-entry role.
func InEditableContext(e Element) bool {
	for ; e != nil && !isBody(e); e = e.Parent() {
		if editable(e) || textEntryRole(e) {
			return true
		}
	}
	return false
}

// AncestorClass returns the first non-eligible class found on e or its
// ancestors below the body.
func AncestorClass(e Element) Class {
	for ; e != nil && !isBody(e); e = e.Parent() {
		if c := Classify(e); c != Eligible {
			return c
		}
	}
	return Eligible
}

type htmlElement struct {
	n *html.Node
}

// Wrap adapts an element node. Non-element nodes give nil.
func Wrap(n *html.Node) Element {
	if n == nil || n.Type != html.ElementNode {
		return nil
	}
	return htmlElement{n: n}
}

func (e htmlElement) Tag() string {
	return e.n.Data
}

func (e htmlElement) Attr(key string) (string, bool) {
	return dom.Attr(e.n, key)
}

func (e htmlElement) Parent() Element {
	return Wrap(e.n.Parent)
}
