package main

import (
	"fmt"
	"time"

	"emojilens/internal/metrics"
	"emojilens/internal/store"
	"emojilens/internal/watcher"
)

func (c *cli) cmdWatch(args []string) error {
	fs, configPath := c.newFlagSet("watch")
	outDir := fs.String("out", "", "directory for annotated copies (default: next to each source)")
	suffix := fs.String("suffix", "", "inserted before the extension of output files")
	debounce := fs.Duration("debounce", 0, "how long a file must be unchanged before annotation")
	record := fs.Bool("record", false, "record each run in the history database")
	if err := parse(fs, args); err != nil {
		return err
	}

	e, err := c.setup(*configPath)
	if err != nil {
		return err
	}
	defer e.close()

	wc := e.cfg.Watch
	paths := wc.Paths
	if fs.NArg() > 0 {
		paths = fs.Args()
	}
	if len(paths) == 0 {
		return usagef("emojilens watch [-out dir] [-suffix s] [-debounce d] [-record] <path...> (or set watch.paths)")
	}
	if *outDir != "" {
		wc.OutputDir = *outDir
	}
	if *suffix != "" {
		wc.Suffix = *suffix
	}
	delay := time.Duration(wc.DebounceMs) * time.Millisecond
	if *debounce > 0 {
		delay = *debounce
	}

	prefsStore := e.openStore()
	defer prefsStore.Close()

	opts := watcher.Options{
		Paths:         paths,
		OutputDir:     wc.OutputDir,
		Suffix:        wc.Suffix,
		Debounce:      delay,
		Resolver:      e.lex,
		LexiconDigest: e.lex.DigestHex(),
		Preferences:   prefsStore,
		Logger:        e.log.WithComponent("watcher"),
		Metrics:       metrics.New(nil),
	}
	if *record || wc.RecordRuns {
		db, err := store.Open(wc.RunsPath)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer db.Close()
		opts.Runs = db
	}

	w, err := watcher.New(opts)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		w.Stop()
		return err
	}
	defer w.Stop()

	for {
		select {
		case <-c.ctx.Done():
			e.logger.Info("watch stopped")
			return nil
		case ev := <-w.Events():
			fmt.Fprintf(c.stdout, "%s -> %s (%d markers, %s)\n",
				ev.Source, ev.Output, ev.Result.Markers, ev.Duration.Round(time.Millisecond))
		case err := <-w.Errors():
			e.logger.Warn("watch error", "error", err)
		}
	}
}

func (c *cli) cmdHistory(args []string) error {
	fs, configPath := c.newFlagSet("history")
	limit := fs.Int("n", 20, "number of runs to show")
	schema := fs.Bool("status", false, "show the database schema version instead of runs")
	if err := parse(fs, args); err != nil {
		return err
	}

	e, err := c.setup(*configPath)
	if err != nil {
		return err
	}
	defer e.close()

	db, err := store.Open(e.cfg.Watch.RunsPath)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer db.Close()

	if *schema {
		status, err := store.GetMigrationStatus(db.DB())
		if err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "schema version %d (latest %d)\n", status.CurrentVersion, status.LatestVersion)
		for _, m := range status.Pending {
			fmt.Fprintf(c.stdout, "  pending %d: %s\n", m.Version, m.Description)
		}
		return nil
	}

	runs, err := db.RecentRuns(c.ctx, *limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(c.stdout, "No runs recorded.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(c.stdout, "[%d] %s  %s -> %s\n", r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.SourcePath, r.OutputPath)
		fmt.Fprintf(c.stdout, "    markers: %d  text nodes: %d  took: %s  lexicon: %.12s\n",
			r.Markers, r.TextNodes, r.Duration.Round(time.Millisecond), r.LexiconDigest)
	}
	return nil
}
