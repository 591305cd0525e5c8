// Package diff renders unified diffs between original and annotated HTML
// using github.com/pmezard/go-difflib/difflib.
package diff

import (
	"fmt"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"
)

// DefaultContext is the number of context lines around each hunk.
const DefaultContext = 3

// Options controls patch generation.
type Options struct {
	// Context lines per hunk. Zero means DefaultContext.
	Context int

	// MaxBytes guards input size (a+b). Zero means no limit.
	MaxBytes int

	// SplitTags breaks lines after every '>' so single-line markup
	// produces readable hunks.
	SplitTags bool
}

// Unified returns a unified patch turning a into b, or "" when they are
// equal. oversize reports that MaxBytes was exceeded and a placeholder was
// returned instead.
func Unified(aName, bName string, a, b []byte, opt Options) (patch string, oversize bool, err error) {
	if opt.MaxBytes > 0 && len(a)+len(b) > opt.MaxBytes {
		return omitted(aName, bName), true, nil
	}
	if string(a) == string(b) {
		return "", false, nil
	}

	ctx := opt.Context
	if ctx <= 0 {
		ctx = DefaultContext
	}

	u := difflib.UnifiedDiff{
		A:        lines(string(a), opt.SplitTags),
		B:        lines(string(b), opt.SplitTags),
		FromFile: aName,
		ToFile:   bName,
		Context:  ctx,
	}
	patch, err = difflib.GetUnifiedDiffString(u)
	if err != nil {
		return "", false, fmt.Errorf("unified diff: %w", err)
	}
	return patch, false, nil
}

// Stats counts added and removed lines in a unified patch.
func Stats(patch string) (added, removed int) {
	for _, line := range strings.Split(patch, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			added++
		case strings.HasPrefix(line, "-"):
			removed++
		}
	}
	return added, removed
}

// lines splits s keeping line terminators. The last line gets a newline so
// difflib does not glue it to the next hunk header.
func lines(s string, splitTags bool) []string {
	if s == "" {
		return []string{}
	}
	if splitTags {
		s = strings.ReplaceAll(s, ">", ">\n")
		s = strings.ReplaceAll(s, ">\n\n", ">\n")
	}
	out := strings.SplitAfter(s, "\n")
	if out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	if last := out[len(out)-1]; !strings.HasSuffix(last, "\n") {
		out[len(out)-1] = last + "\n"
	}
	return out
}

func omitted(aName, bName string) string {
	return fmt.Sprintf("--- %s\n+++ %s\n@@\n# diff omitted (oversize)\n", aName, bName)
}
