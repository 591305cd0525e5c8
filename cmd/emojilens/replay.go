package main

import (
	"bytes"
	"fmt"
	"os"

	"emojilens/internal/dom"
	"emojilens/internal/metrics"
	"emojilens/internal/session"
)

func (c *cli) cmdReplay(args []string) error {
	fs, configPath := c.newFlagSet("replay")
	htmlPath := fs.String("html", "", "initial document")
	opsPath := fs.String("ops", "", "newline-delimited JSON mutation ops")
	prefsFile := fs.String("prefs", "", "preferences file used instead of the store")
	var sets assignments
	fs.Var(&sets, "set", "override one preference, key=value (repeatable)")
	output := fs.String("o", "", "output file (default: stdout)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *htmlPath == "" || *opsPath == "" || fs.NArg() != 0 {
		return usagef("emojilens replay -html page.html -ops ops.jsonl [-o out]")
	}

	e, err := c.setup(*configPath)
	if err != nil {
		return err
	}
	defer e.close()

	data, err := c.readInput(*htmlPath)
	if err != nil {
		return err
	}
	doc, err := dom.Parse(bytes.NewReader(data))
	if err != nil {
		return err
	}

	f, err := os.Open(*opsPath)
	if err != nil {
		return fmt.Errorf("open ops: %w", err)
	}
	ops, err := session.DecodeOps(f)
	f.Close()
	if err != nil {
		return err
	}

	p, err := e.preferences(c.ctx, *prefsFile, sets)
	if err != nil {
		return err
	}

	m := metrics.New(nil)
	s := session.New("replay", doc, session.Options{
		Resolver:    e.lex,
		Preferences: p,
		Delay:       e.cfg.ObserverDelay(),
		Logger:      e.log.WithComponent("session"),
		Metrics:     m,
	})
	defer s.Close()

	if _, err := s.Start(c.ctx); err != nil {
		return err
	}
	if err := s.Replay(c.ctx, ops); err != nil {
		return err
	}

	info, err := s.Info(c.ctx, true)
	if err != nil {
		return err
	}
	e.logger.Info("replay finished",
		"ops", len(ops),
		"markers", info.Markers,
		"flushes", info.Stats.Flushes,
		"detached", info.Stats.Detached,
	)
	return c.writeOutput(*output, info.HTML)
}
