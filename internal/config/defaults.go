package config

import (
	"os"
	"path/filepath"
)

// DataDir returns the base emojilens directory, ~/.emojilens unless
// EMOJILENS_DATA_DIR overrides it.
func DataDir() string {
	if envDir := os.Getenv("EMOJILENS_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".emojilens"
	}
	return filepath.Join(home, ".emojilens")
}

// SupportedConfigFormats lists the config file extensions Load understands.
func SupportedConfigFormats() []string {
	return []string{"toml", "json", "yaml", "yml"}
}

// FindConfigFile searches the working directory, then DataDir, for
// config.<ext>. It returns "" when none exists.
func FindConfigFile() string {
	for _, dir := range []string{".", DataDir()} {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
