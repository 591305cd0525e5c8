package annotate

import (
	"io"

	"emojilens/internal/dom"
	"emojilens/internal/prefs"
)

// Run parses r and annotates the body when p is enabled.
func Run(r io.Reader, resolver Resolver, p prefs.Preferences) (*dom.Document, Result, error) {
	doc, err := dom.Parse(r)
	if err != nil {
		return nil, Result{}, err
	}
	e := New(doc, resolver, p)
	if !e.Enabled() {
		return doc, Result{}, nil
	}
	return doc, e.Annotate(doc.Body()), nil
}
