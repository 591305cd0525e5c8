package main

import (
	"fmt"

	"emojilens/internal/config"
	"emojilens/internal/health"
	"emojilens/internal/metrics"
	"emojilens/internal/prefs"
	"emojilens/internal/server"
	"emojilens/internal/session"
)

func (c *cli) cmdServe(args []string) error {
	fs, configPath := c.newFlagSet("serve")
	listen := fs.String("listen", "", "listen address (overrides server.listen)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return usagef("emojilens serve [-config path] [-listen addr]")
	}

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	defer loader.Close()

	e, err := c.setupWith(cfg)
	if err != nil {
		return err
	}
	defer e.close()

	store := e.openStore()
	defer store.Close()

	m := metrics.New(nil)
	mgr := session.NewManager(store, session.Options{
		Resolver: e.lex,
		Delay:    cfg.ObserverDelay(),
		Logger:   e.log.WithComponent("session"),
		Metrics:  m,
	})
	defer mgr.CloseAll()

	checker := health.NewChecker()
	checker.RegisterFunc("lexicon", false, health.LexiconCheck(e.lex))
	checker.RegisterFunc("preferences", true, health.PreferencesCheck(store))
	if sq, ok := store.(*prefs.SQLiteStore); ok {
		checker.RegisterFunc("schema", true, health.SchemaCheck(sq.DB().DB()))
	}

	sc := cfg.ServerOptions()
	if *listen != "" {
		sc.Listen = *listen
	}
	srv := server.New(sc, server.Deps{
		Manager: mgr,
		Store:   store,
		Lexicon: e.lex,
		Health:  checker,
		Metrics: m,
		Logger:  e.log.WithComponent("server"),
	})

	loader.OnChange(func(_, cur *config.Config) {
		srv.SetRateLimit(cur.Server.RateLimit, cur.Server.Burst)
	})
	if err := loader.Watch(); err != nil {
		e.logger.Debug("config reload disabled", "path", loader.Path(), "error", err)
	}

	return srv.ListenAndServe(c.ctx)
}
