package dom

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Path addresses a node by child indexes starting at the body.
// The empty path is the body itself.
type Path []int

// ParsePath parses "0/2/1". The empty string and "/" are the body.
func ParsePath(s string) (Path, error) {
	s = strings.Trim(s, "/")
	if s == "" {
		return Path{}, nil
	}
	parts := strings.Split(s, "/")
	p := make(Path, len(parts))
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid path segment %q", part)
		}
		p[i] = n
	}
	return p, nil
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, n := range p {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, "/")
}

// Resolve returns the node at p.
func (d *Document) Resolve(p Path) (*html.Node, error) {
	n := d.body
	for depth, idx := range p {
		c := n.FirstChild
		for i := 0; c != nil && i < idx; i++ {
			c = c.NextSibling
		}
		if c == nil {
			return nil, fmt.Errorf("path %s: no child %d at depth %d", p, idx, depth)
		}
		n = c
	}
	return n, nil
}

// PathOf returns the path of n, which must be inside the body.
func (d *Document) PathOf(n *html.Node) (Path, error) {
	var p Path
	for n != d.body {
		if n == nil || n.Parent == nil {
			return nil, fmt.Errorf("node is not inside the body")
		}
		idx := 0
		for c := n.Parent.FirstChild; c != n; c = c.NextSibling {
			idx++
		}
		p = append(Path{idx}, p...)
		n = n.Parent
	}
	return p, nil
}
