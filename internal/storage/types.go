package storage

import (
	"context"
	"time"
)

// Document is the persisted layout: guild ID -> category name -> channel ID.
type Document map[string]map[string]string

// Clone returns a deep copy.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for g, cats := range d {
		inner := make(map[string]string, len(cats))
		for c, ch := range cats {
			inner[c] = ch
		}
		out[g] = inner
	}
	return out
}

// Len counts (guild, category) entries.
func (d Document) Len() int {
	n := 0
	for _, cats := range d {
		n += len(cats)
	}
	return n
}

// Store is the persistence API used by the registry service.
type Store interface {
	// Load returns the persisted document, or an empty one if none exists.
	Load(ctx context.Context) (Document, error)
	// Save replaces the persisted document. Readers never observe a partial write.
	Save(ctx context.Context, doc Document) error
	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "file" (default): JSON document at Path
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
