package main

import (
	"fmt"

	"emojilens/internal/annotate"
	"emojilens/internal/lexicon"
)

const (
	previewEmoji = "\U0001F44B\U0001F3FD"
	previewName  = "waving hand: medium skin tone"
)

func (c *cli) cmdPreview(args []string) error {
	fs, configPath := c.newFlagSet("preview")
	emoji := fs.String("emoji", previewEmoji, "emoji to preview (literal or U+XXXX code points)")
	name := fs.String("name", "", "name to format (default: looked up in the lexicon)")
	prefsFile := fs.String("prefs", "", "preferences file used instead of the store")
	var sets assignments
	fs.Var(&sets, "set", "override one preference, key=value (repeatable)")
	if err := parse(fs, args); err != nil {
		return err
	}

	e, err := c.setup(*configPath)
	if err != nil {
		return err
	}
	defer e.close()

	seq, err := parseSequence(*emoji)
	if err != nil {
		return err
	}
	n := *name
	if n == "" {
		var ok bool
		if n, ok = e.lex.Resolve(seq); !ok {
			if seq != previewEmoji {
				return fmt.Errorf("no name for %s", lexicon.CodePoints(seq))
			}
			n = previewName
		}
	}

	p, err := e.preferences(c.ctx, *prefsFile, sets)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, annotate.Format(seq, n, p))
	return nil
}
