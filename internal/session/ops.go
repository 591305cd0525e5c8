package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/net/html"

	"emojilens/internal/dom"
)

// Op kinds.
const (
	OpAppend  = "append"
	OpInsert  = "insert"
	OpRemove  = "remove"
	OpSetText = "set-text"
	OpReplace = "replace"
)

// Op is one document mutation addressed by a body-relative node path.
// Append, insert and replace take HTML, or Text for a bare text node.
type Op struct {
	Op   string `json:"op"`
	Path string `json:"path"`
	HTML string `json:"html,omitempty"`
	Text string `json:"text,omitempty"`
}

// Validate checks that the op is well formed.
func (o Op) Validate() error {
	if _, err := dom.ParsePath(o.Path); err != nil {
		return err
	}
	switch o.Op {
	case OpAppend, OpInsert, OpReplace:
		if o.HTML == "" && o.Text == "" {
			return fmt.Errorf("%s needs html or text", o.Op)
		}
	case OpRemove, OpSetText:
	default:
		return fmt.Errorf("unknown op %q", o.Op)
	}
	return nil
}

// DecodeOps reads a stream of JSON ops, one object per line.
func DecodeOps(r io.Reader) ([]Op, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var ops []Op
	for {
		var op Op
		if err := dec.Decode(&op); err != nil {
			if errors.Is(err, io.EOF) {
				return ops, nil
			}
			return nil, fmt.Errorf("op %d: %w", len(ops)+1, err)
		}
		if err := op.Validate(); err != nil {
			return nil, fmt.Errorf("op %d: %w", len(ops)+1, err)
		}
		ops = append(ops, op)
	}
}

// Apply runs ops on the loop as one batch. The first failing op stops
// the batch; earlier ops stay applied.
func (s *Session) Apply(ctx context.Context, ops []Op) error {
	return s.Do(ctx, func() error {
		for i, op := range ops {
			if err := s.applyOp(op); err != nil {
				return fmt.Errorf("op %d (%s %s): %w", i+1, op.Op, op.Path, err)
			}
		}
		return nil
	})
}

func (s *Session) applyOp(op Op) error {
	if err := op.Validate(); err != nil {
		return err
	}
	path, _ := dom.ParsePath(op.Path)
	target, err := s.doc.Resolve(path)
	if err != nil {
		return err
	}

	switch op.Op {
	case OpAppend:
		if !dom.IsElement(target) {
			return errors.New("append target is not an element")
		}
		nodes, err := s.content(target, op)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			s.doc.AppendChild(target, n)
		}
	case OpInsert, OpReplace:
		parent := target.Parent
		if target == s.doc.Body() || parent == nil {
			return fmt.Errorf("cannot %s at the body", op.Op)
		}
		nodes, err := s.content(parent, op)
		if err != nil {
			return err
		}
		if op.Op == OpReplace {
			s.doc.ReplaceChild(parent, target, nodes...)
			return nil
		}
		for _, n := range nodes {
			s.doc.InsertBefore(parent, n, target)
		}
	case OpRemove:
		if target == s.doc.Body() {
			return errors.New("cannot remove the body")
		}
		s.doc.RemoveChild(target.Parent, target)
	case OpSetText:
		if !dom.IsText(target) {
			return errors.New("set-text target is not a text node")
		}
		s.doc.SetText(target, op.Text)
	}
	return nil
}

func (s *Session) content(parent *html.Node, op Op) ([]*html.Node, error) {
	if op.HTML == "" {
		return []*html.Node{dom.NewText(op.Text)}, nil
	}
	return s.doc.ParseFragment(parent, op.HTML)
}

// Replay applies each op as its own batch, the way separate script tasks
// would, and settles the session at the end.
func (s *Session) Replay(ctx context.Context, ops []Op) error {
	for i, op := range ops {
		if err := s.Apply(ctx, []Op{op}); err != nil {
			return fmt.Errorf("replay: %w", err)
		}
		s.logger.Debug("replayed op", "index", i+1, "op", op.Op, "path", op.Path)
	}
	return s.Settle(ctx)
}
