package health

import (
	"context"
	"database/sql"
	"fmt"

	"emojilens/internal/lexicon"
	"emojilens/internal/prefs"
	"emojilens/internal/store"
)

// LexiconCheck reports the loaded lexicon. An empty lexicon means
// detection is a no-op, which is degraded rather than down.
func LexiconCheck(lex *lexicon.Lexicon) Check {
	return func(context.Context) CheckResult {
		if lex == nil || lex.Len() == 0 {
			return CheckResult{Status: StatusDegraded, Message: "lexicon empty, detection disabled"}
		}
		return CheckResult{
			Status:  StatusHealthy,
			Details: map[string]any{"entries": lex.Len(), "digest": lex.DigestHex()},
		}
	}
}

// PreferencesCheck loads from the store.
func PreferencesCheck(store prefs.Store) Check {
	return func(ctx context.Context) CheckResult {
		p, err := store.Load(ctx)
		if err != nil {
			return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
		}
		return CheckResult{Status: StatusHealthy, Details: map[string]any{"enabled": p.Enabled}}
	}
}

// SchemaCheck verifies the SQLite tables and reports the schema version.
// Pending migrations degrade the component.
func SchemaCheck(db *sql.DB) Check {
	return func(context.Context) CheckResult {
		if err := store.ValidateSchema(db); err != nil {
			return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
		}
		status, err := store.GetMigrationStatus(db)
		if err != nil {
			return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
		}
		res := CheckResult{
			Status:  StatusHealthy,
			Details: map[string]any{"version": status.CurrentVersion, "latest": status.LatestVersion},
		}
		if n := len(status.Pending); n > 0 {
			res.Status = StatusDegraded
			res.Message = fmt.Sprintf("%d migrations pending", n)
		}
		return res
	}
}
