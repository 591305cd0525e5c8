package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"emojilens/internal/config"
	"emojilens/internal/lexicon"
	"emojilens/internal/logging"
	"emojilens/internal/prefs"
)

// env is the shared state every command builds from the configuration.
type env struct {
	cfg    *config.Config
	log    *logging.Logger
	logger *slog.Logger
	lex    *lexicon.Lexicon
}

func (c *cli) setup(configPath string) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return c.setupWith(cfg)
}

func (c *cli) setupWith(cfg *config.Config) (*env, error) {
	lc := cfg.LoggerConfig()
	if lc.Output == "stderr" {
		lc.Writer = c.stderr
	}
	log, err := logging.New(lc)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	logging.SetDefault(log)

	e := &env{cfg: cfg, log: log, logger: log.WithComponent("cli")}
	e.logger.Debug("logging ready", "log_level", logging.LevelString(lc.Level), "output", lc.Output)
	e.lex = e.loadLexicon()
	return e, nil
}

// loadLexicon falls back to an empty lexicon, which disables detection
// without failing the command.
func (e *env) loadLexicon() *lexicon.Lexicon {
	var (
		lex *lexicon.Lexicon
		err error
	)
	if path := e.cfg.Lexicon.Path; path != "" {
		lex, err = lexicon.LoadFile(path)
	} else {
		lex, err = lexicon.Embedded()
	}
	if err != nil {
		e.logger.Error("lexicon unavailable, emoji will not be annotated", "error", err)
		return lexicon.Empty()
	}
	e.logger.Debug("lexicon loaded", "entries", lex.Len(), "digest", lex.DigestHex())
	return lex
}

// openStore opens the configured preferences backend, degrading to memory.
func (e *env) openStore() prefs.Store {
	opts := e.cfg.PreferencesOptions()
	opts.Logger = e.log.WithComponent("prefs")
	store, err := prefs.Open(opts)
	if err != nil {
		e.logger.Error("preferences backend unavailable, using defaults in memory",
			"backend", opts.Backend, "error", err)
	}
	return store
}

// preferences resolves the preferences for one-shot commands: a file given
// with -prefs wins over the store, then -set assignments apply.
func (e *env) preferences(ctx context.Context, file string, sets assignments) (prefs.Preferences, error) {
	var p prefs.Preferences
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return p, fmt.Errorf("read preferences: %w", err)
		}
		if p, err = prefs.Decode(file, data); err != nil {
			return p, err
		}
	} else {
		store := e.openStore()
		defer store.Close()
		loaded, err := store.Load(ctx)
		if err != nil {
			e.logger.Warn("preferences unavailable, using defaults", "error", err)
			loaded = prefs.Defaults()
		}
		p = loaded
	}
	return sets.apply(p)
}

func (e *env) close() {
	e.log.Close()
}

// assignments collects repeated -set key=value flags.
type assignments []string

func (a *assignments) String() string {
	return fmt.Sprint([]string(*a))
}

func (a *assignments) Set(v string) error {
	if _, _, err := prefs.ParseAssignment(v); err != nil {
		return err
	}
	*a = append(*a, v)
	return nil
}

func (a assignments) apply(p prefs.Preferences) (prefs.Preferences, error) {
	for _, s := range a {
		k, v, err := prefs.ParseAssignment(s)
		if err != nil {
			return p, err
		}
		p = p.With(k, v)
	}
	return p.Normalize(), nil
}
