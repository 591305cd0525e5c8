// Package dom is the host document: a mutable HTML tree with
// mutation-record delivery modeled on the browser's MutationObserver.
//
// A Document is not safe for concurrent use. Callers serialize access,
// which the session event loop does.
package dom

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrNoBody is returned when a parsed tree has no body element.
var ErrNoBody = errors.New("dom: document has no body")

// Document wraps a parsed HTML tree.
type Document struct {
	root *html.Node
	body *html.Node

	observers  []*observer
	nextID     int
	delivering bool
}

// Parse reads an HTML document. The HTML5 parser always synthesizes a body.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	body := findBody(root)
	if body == nil {
		return nil, ErrNoBody
	}
	return &Document{root: root, body: body}, nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// New returns an empty document.
func New() *Document {
	doc, _ := ParseString("")
	return doc
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

// Root returns the document node.
func (d *Document) Root() *html.Node {
	return d.root
}

// Body returns the body element.
func (d *Document) Body() *html.Node {
	return d.body
}

// Contains reports whether n is attached to the document.
func (d *Document) Contains(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == d.root {
			return true
		}
	}
	return false
}

// NewText creates a detached text node.
func NewText(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// NewElement creates a detached element.
func NewElement(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

// IsElement reports whether n is an element node.
func IsElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

// IsText reports whether n is a text node.
func IsText(n *html.Node) bool {
	return n != nil && n.Type == html.TextNode
}

// Children returns a snapshot of n's children.
func Children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

// AppendChild appends child to parent, detaching it first if needed.
func (d *Document) AppendChild(parent, child *html.Node) {
	d.detach(child)
	parent.AppendChild(child)
	d.queue(Record{Kind: ChildList, Target: parent, Added: []*html.Node{child}})
}

// InsertBefore inserts child before ref, or appends when ref is nil.
func (d *Document) InsertBefore(parent, child, ref *html.Node) {
	d.detach(child)
	parent.InsertBefore(child, ref)
	d.queue(Record{Kind: ChildList, Target: parent, Added: []*html.Node{child}})
}

// RemoveChild removes child from parent.
func (d *Document) RemoveChild(parent, child *html.Node) {
	parent.RemoveChild(child)
	d.queue(Record{Kind: ChildList, Target: parent, Removed: []*html.Node{child}})
}

// ReplaceChild replaces old with the replacement nodes, in order, as a
// single child-list mutation.
func (d *Document) ReplaceChild(parent, old *html.Node, replacement ...*html.Node) {
	for _, n := range replacement {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		parent.InsertBefore(n, old)
	}
	parent.RemoveChild(old)
	d.queue(Record{Kind: ChildList, Target: parent, Added: replacement, Removed: []*html.Node{old}})
}

func (d *Document) detach(n *html.Node) {
	if n.Parent != nil {
		d.RemoveChild(n.Parent, n)
	}
}

// SetText replaces the data of a text node.
func (d *Document) SetText(n *html.Node, text string) {
	if n.Data == text {
		return
	}
	n.Data = text
	d.queue(Record{Kind: CharacterData, Target: n})
}

// Attr returns the value of an attribute.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets an attribute. Attribute changes are not observed.
func (d *Document) SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// MergeText joins adjacent text children of n and drops empty ones.
func (d *Document) MergeText(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type != html.TextNode {
			c = next
			continue
		}
		if c.Data == "" {
			d.RemoveChild(n, c)
			c = next
			continue
		}
		for next != nil && next.Type == html.TextNode {
			after := next.NextSibling
			d.SetText(c, c.Data+next.Data)
			d.RemoveChild(n, next)
			next = after
		}
		c = next
	}
}

// ParseFragment parses s in the context of the given element.
func (d *Document) ParseFragment(context *html.Node, s string) ([]*html.Node, error) {
	if context == nil {
		context = d.body
	}
	nodes, err := html.ParseFragment(strings.NewReader(s), context)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	return nodes, nil
}

// Render writes the whole document.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// RenderBody writes the children of the body element.
func (d *Document) RenderBody(w io.Writer) error {
	for c := d.body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(w, c); err != nil {
			return err
		}
	}
	return nil
}

// HTML renders the whole document to a string.
func (d *Document) HTML() string {
	var buf bytes.Buffer
	d.Render(&buf)
	return buf.String()
}

// BodyHTML renders the body contents to a string.
func (d *Document) BodyHTML() string {
	var buf bytes.Buffer
	d.RenderBody(&buf)
	return buf.String()
}

// TextContent concatenates all text beneath n.
func TextContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
