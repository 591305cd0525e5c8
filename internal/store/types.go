// Package store provides SQLite storage for emojilens preferences and
// annotation history.
package store

import "time"

// Run records one annotation of an HTML file.
type Run struct {
	ID            int64
	SourcePath    string
	OutputPath    string
	Markers       int
	TextNodes     int
	LexiconDigest string
	StartedAt     time.Time
	Duration      time.Duration
}
