// Package store persists the fragment list behind vector.Persister.
//
// Three backends are available, chosen from a DSN:
//   - postgres:// or postgresql://: PostgreSQL
//   - sqlite:<path>, or a path ending in .db, .sqlite or .sqlite3: SQLite
//   - anything else: a JSON document at that path (default vector_store.json)
package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hubenschmidt/ultrarelay/vector"
)

// DefaultFilePath is used when the DSN is empty.
const DefaultFilePath = "vector_store.json"

// NewPersister creates the persister selected by dsn.
func NewPersister(ctx context.Context, dsn string) (vector.Persister, error) {
	if dsn == "" {
		return NewFilePersister(DefaultFilePath), nil
	}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		p, err := NewPostgresPersister(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return p, nil
	}

	if path, ok := strings.CutPrefix(dsn, "sqlite:"); ok {
		return NewSQLitePersister(ctx, path)
	}

	switch strings.ToLower(filepath.Ext(dsn)) {
	case ".db", ".sqlite", ".sqlite3":
		return NewSQLitePersister(ctx, dsn)
	}

	return NewFilePersister(dsn), nil
}

// Kind names the backend for logging.
func Kind(p vector.Persister) string {
	switch p.(type) {
	case *PostgresPersister:
		return "postgres"
	case *SQLitePersister:
		return "sqlite"
	case *FilePersister:
		return "file"
	default:
		return fmt.Sprintf("%T", p)
	}
}
