package main

import (
	"fmt"

	"emojilens/internal/prefs"
)

func (c *cli) cmdPrefs(args []string) error {
	fs, configPath := c.newFlagSet("prefs")
	if err := parse(fs, args); err != nil {
		return err
	}
	const usage = "emojilens prefs get [key] | set key=value... | reset"
	if fs.NArg() < 1 {
		return usagef(usage)
	}

	e, err := c.setup(*configPath)
	if err != nil {
		return err
	}
	defer e.close()

	store := e.openStore()
	defer store.Close()

	action, rest := fs.Arg(0), fs.Args()[1:]
	switch action {
	case "get":
		p, err := store.Load(c.ctx)
		if err != nil {
			return err
		}
		switch len(rest) {
		case 0:
			c.printPreferences(p)
		case 1:
			k, err := prefs.ParseKey(rest[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(c.stdout, p.Get(k))
		default:
			return usagef(usage)
		}
		return nil

	case "set":
		if len(rest) == 0 {
			return usagef(usage)
		}
		var sets assignments
		for _, a := range rest {
			if err := sets.Set(a); err != nil {
				return err
			}
		}
		var applyErr error
		p, err := prefs.Update(c.ctx, store, func(cur prefs.Preferences) prefs.Preferences {
			next, err := sets.apply(cur)
			if err != nil {
				applyErr = err
				return cur
			}
			return next
		})
		if applyErr != nil {
			return applyErr
		}
		if err != nil {
			return err
		}
		c.printPreferences(p)
		return nil

	case "reset":
		if len(rest) != 0 {
			return usagef(usage)
		}
		if err := store.Save(c.ctx, prefs.Defaults()); err != nil {
			return err
		}
		c.printPreferences(prefs.Defaults())
		return nil

	default:
		return usagef(usage)
	}
}

func (c *cli) printPreferences(p prefs.Preferences) {
	for _, k := range prefs.Keys() {
		fmt.Fprintf(c.stdout, "%-15s %t\n", k, p.Get(k))
	}
}
