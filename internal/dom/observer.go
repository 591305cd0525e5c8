package dom

import "golang.org/x/net/html"

// Kind is the type of a mutation record.
type Kind int

const (
	// ChildList records nodes added to or removed from Target.
	ChildList Kind = iota + 1
	// CharacterData records a change to the data of text node Target.
	CharacterData
)

func (k Kind) String() string {
	switch k {
	case ChildList:
		return "childList"
	case CharacterData:
		return "characterData"
	default:
		return "unknown"
	}
}

// Record describes one mutation.
type Record struct {
	Kind    Kind
	Target  *html.Node
	Added   []*html.Node
	Removed []*html.Node
}

type observer struct {
	id      int
	root    *html.Node
	fn      func([]Record)
	pending []Record
}

// Observe registers fn for mutations whose target is root or a descendant
// of root. Records are queued until Deliver. The returned function stops
// observation and discards queued records.
func (d *Document) Observe(root *html.Node, fn func([]Record)) (stop func()) {
	d.nextID++
	o := &observer{id: d.nextID, root: root, fn: fn}
	d.observers = append(d.observers, o)
	return func() {
		for i, cur := range d.observers {
			if cur.id == o.id {
				o.pending = nil
				d.observers = append(d.observers[:i], d.observers[i+1:]...)
				return
			}
		}
	}
}

func (d *Document) queue(r Record) {
	for _, o := range d.observers {
		if inclusiveAncestor(o.root, r.Target) {
			o.pending = append(o.pending, r)
		}
	}
}

func inclusiveAncestor(a, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == a {
			return true
		}
	}
	return false
}

// Pending returns the number of queued records across observers.
func (d *Document) Pending() int {
	total := 0
	for _, o := range d.observers {
		total += len(o.pending)
	}
	return total
}

// Deliver hands queued records to their observers. Records queued by a
// callback are delivered in a later round of the same call. A call made
// from inside a callback returns immediately.
func (d *Document) Deliver() {
	if d.delivering {
		return
	}
	d.delivering = true
	defer func() { d.delivering = false }()

	for {
		delivered := false
		for _, o := range append([]*observer(nil), d.observers...) {
			if len(o.pending) == 0 {
				continue
			}
			batch := o.pending
			o.pending = nil
			o.fn(batch)
			delivered = true
		}
		if !delivered {
			return
		}
	}
}
