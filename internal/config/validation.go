package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"emojilens/internal/prefs"
)

// ErrInvalid matches any validation failure via errors.Is.
var ErrInvalid = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

func (e ValidationErrors) Unwrap() error {
	return ErrInvalid
}

// Fields lists the fields that failed validation.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, len(e))
	for i, err := range e {
		fields[i] = err.Field
	}
	return fields
}

// ValidateConfig checks every section and returns all problems at once.
func ValidateConfig(c *Config) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateLexicon(&c.Lexicon)...)
	errs = append(errs, validatePreferences(&c.Preferences)...)
	errs = append(errs, validateObserver(&c.Observer)...)
	errs = append(errs, validateServer(&c.Server)...)
	errs = append(errs, validateWatch(&c.Watch)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateLexicon(l *LexiconConfig) ValidationErrors {
	if l.Path == "" {
		return nil
	}
	info, err := os.Stat(expandPath(l.Path))
	if err == nil && info.IsDir() {
		return ValidationErrors{{Field: "lexicon.path", Message: "must be a file, not a directory"}}
	}
	return nil
}

func validatePreferences(p *PreferencesConfig) ValidationErrors {
	var errs ValidationErrors

	switch p.Backend {
	case prefs.BackendMemory:
	case prefs.BackendFile, prefs.BackendSQLite:
		if p.Path == "" {
			errs = append(errs, ValidationError{
				Field:   "preferences.path",
				Message: fmt.Sprintf("path is required for the %s backend", p.Backend),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "preferences.backend",
			Message: fmt.Sprintf("invalid backend: %s (valid: memory, file, sqlite)", p.Backend),
		})
	}

	if p.Backend == prefs.BackendFile && p.Path != "" {
		switch strings.ToLower(filepath.Ext(p.Path)) {
		case "", ".toml", ".json", ".yaml", ".yml":
		default:
			errs = append(errs, ValidationError{
				Field:   "preferences.path",
				Message: fmt.Sprintf("unsupported preferences file format: %s", filepath.Ext(p.Path)),
			})
		}
	}

	return errs
}

func validateObserver(o *ObserverConfig) ValidationErrors {
	if o.DebounceMs < 0 || o.DebounceMs > 60000 {
		return ValidationErrors{{Field: "observer.debounce_ms", Message: "must be between 0 and 60000"}}
	}
	return nil
}

func validateServer(s *ServerConfig) ValidationErrors {
	var errs ValidationErrors

	if s.Listen == "" {
		errs = append(errs, ValidationError{Field: "server.listen", Message: "listen address is required"})
	} else if _, _, err := net.SplitHostPort(s.Listen); err != nil {
		errs = append(errs, ValidationError{
			Field:   "server.listen",
			Message: fmt.Sprintf("invalid address %q: %v", s.Listen, err),
		})
	}

	if s.RateLimit < 0 {
		errs = append(errs, ValidationError{Field: "server.rate_limit", Message: "cannot be negative"})
	}
	if s.RateLimit > 0 && s.Burst < 1 {
		errs = append(errs, ValidationError{Field: "server.burst", Message: "must be at least 1 when rate limiting"})
	}
	if s.MaxBodyBytes < 1024 {
		errs = append(errs, ValidationError{Field: "server.max_body_bytes", Message: "must be at least 1024"})
	}

	return errs
}

func validateWatch(w *WatchConfig) ValidationErrors {
	var errs ValidationErrors

	for i, p := range w.Paths {
		if p == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("watch.paths[%d]", i),
				Message: "path cannot be empty",
			})
		}
	}
	if w.Suffix == "" {
		errs = append(errs, ValidationError{Field: "watch.suffix", Message: "suffix is required"})
	} else if strings.ContainsRune(w.Suffix, filepath.Separator) {
		errs = append(errs, ValidationError{Field: "watch.suffix", Message: "suffix cannot contain a path separator"})
	}
	if w.DebounceMs < 0 {
		errs = append(errs, ValidationError{Field: "watch.debounce_ms", Message: "cannot be negative"})
	}
	if w.RecordRuns && w.RunsPath == "" {
		errs = append(errs, ValidationError{Field: "watch.runs_path", Message: "required when record_runs is set"})
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: fmt.Sprintf("file path is required when output is '%s'", l.Output),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}

	return errs
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
