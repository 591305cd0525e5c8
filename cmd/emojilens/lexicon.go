package main

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"emojilens/internal/lexicon"
)

func (c *cli) cmdLexicon(args []string) error {
	fs, configPath := c.newFlagSet("lexicon")
	file := fs.String("file", "", "lexicon file to inspect (default: configured or embedded)")
	check := fs.Bool("check", false, "fail unless the lexicon loads and validates")
	lookup := fs.String("lookup", "", "sequence to resolve (literal or U+XXXX code points)")
	if err := parse(fs, args); err != nil {
		return err
	}

	e, err := c.setup(*configPath)
	if err != nil {
		return err
	}
	defer e.close()

	source := "embedded"
	lex := e.lex
	switch {
	case *file != "":
		source = *file
		if lex, err = lexicon.LoadFile(*file); err != nil {
			return err
		}
	case e.cfg.Lexicon.Path != "":
		source = e.cfg.Lexicon.Path
		if *check {
			// The environment already degraded to an empty lexicon on
			// failure; reload to surface the error.
			if lex, err = lexicon.LoadFile(source); err != nil {
				return err
			}
		}
	case *check:
		if lex, err = lexicon.Embedded(); err != nil {
			return err
		}
	}

	if *lookup != "" {
		seq, err := parseSequence(*lookup)
		if err != nil {
			return err
		}
		name, ok := lex.Resolve(seq)
		if !ok {
			return fmt.Errorf("%s: not in lexicon", lexicon.CodePoints(seq))
		}
		fmt.Fprintf(c.stdout, "%s\t%s\t%s\n", seq, lexicon.CodePoints(seq), name)
		return nil
	}

	if *check {
		fmt.Fprintf(c.stdout, "ok: %d entries\n", lex.Len())
	}
	fmt.Fprintf(c.stdout, "source:  %s\n", source)
	fmt.Fprintf(c.stdout, "entries: %d\n", lex.Len())
	fmt.Fprintf(c.stdout, "digest:  %s\n", lex.DigestHex())
	return nil
}

func (c *cli) cmdVersion(args []string) error {
	fs, _ := c.newFlagSet("version")
	if err := parse(fs, args); err != nil {
		return err
	}
	lex, err := lexicon.Embedded()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "emojilens %s (%s, lexicon %d entries, digest %.12s)\n",
		version, runtime.Version(), lex.Len(), lex.DigestHex())
	return nil
}

// parseSequence accepts a literal sequence or space separated code points
// such as "U+1F44B U+1F3FD".
func parseSequence(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(strings.ToUpper(s), "U+") {
		return s, nil
	}
	var b strings.Builder
	for _, f := range strings.Fields(s) {
		if len(f) < 3 || !strings.EqualFold(f[:2], "U+") {
			return "", fmt.Errorf("bad code point %q", f)
		}
		v, err := strconv.ParseUint(f[2:], 16, 32)
		if err != nil || v > 0x10FFFF {
			return "", fmt.Errorf("bad code point %q", f)
		}
		b.WriteRune(rune(v))
	}
	return b.String(), nil
}
