package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"emojilens/internal/annotate"
	"emojilens/internal/diff"
	"emojilens/internal/dom"
)

func (c *cli) cmdAnnotate(args []string) error {
	fs, configPath := c.newFlagSet("annotate")
	prefsFile := fs.String("prefs", "", "preferences file (toml, json or yaml) used instead of the store")
	var sets assignments
	fs.Var(&sets, "set", "override one preference, key=value (repeatable)")
	showDiff := fs.Bool("diff", false, "print a unified diff against the input instead of the document")
	output := fs.String("o", "", "output file (default: stdout)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usagef("emojilens annotate [-prefs file] [-set key=value] [-diff] [-o out] <file.html|->")
	}

	e, err := c.setup(*configPath)
	if err != nil {
		return err
	}
	defer e.close()

	name := fs.Arg(0)
	data, err := c.readInput(name)
	if err != nil {
		return err
	}

	p, err := e.preferences(c.ctx, *prefsFile, sets)
	if err != nil {
		return err
	}

	doc, res, err := annotate.Run(bytes.NewReader(data), e.lex, p)
	if err != nil {
		return fmt.Errorf("annotate %s: %w", name, err)
	}
	e.logger.Info("annotated document",
		"input", name,
		"markers", res.Markers,
		"text_nodes", res.TextNodes,
		"enabled", p.Enabled,
	)

	result := doc.HTML()
	if *showDiff {
		// Diff against the re-rendered input so parser normalization does
		// not show up as changes.
		orig, err := dom.Parse(bytes.NewReader(data))
		if err != nil {
			return err
		}
		patch, _, err := diff.Unified(name, name+" (annotated)", []byte(orig.HTML()), []byte(result), diff.Options{SplitTags: true})
		if err != nil {
			return err
		}
		result = patch
	}

	return c.writeOutput(*output, result)
}

func (c *cli) readInput(name string) ([]byte, error) {
	if name == "-" {
		data, err := io.ReadAll(c.stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

func (c *cli) writeOutput(path, s string) error {
	if path == "" || path == "-" {
		_, err := io.WriteString(c.stdout, s)
		return err
	}
	if err := os.WriteFile(path, []byte(s), 0644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
