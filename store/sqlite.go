package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hubenschmidt/ultrarelay/store/migrations"
	"github.com/hubenschmidt/ultrarelay/vector"
	_ "modernc.org/sqlite"
)

// SQLitePersister keeps fragments in a SQLite table ordered by insertion.
type SQLitePersister struct {
	db *sql.DB
}

// NewSQLitePersister opens (and creates, if needed) the database at path.
func NewSQLitePersister(ctx context.Context, path string) (*SQLitePersister, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := runSQLiteMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLitePersister{db: db}, nil
}

func runSQLiteMigrations(ctx context.Context, db *sql.DB) error {
	data, err := migrations.SQLite.ReadFile("sqlite/001_init.sql")
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(data)); err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	return nil
}

func (p *SQLitePersister) Load(ctx context.Context) ([]vector.Fragment, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, text, embedding, source, created_at
		FROM fragments ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query fragments: %w", err)
	}
	defer rows.Close()

	var fragments []vector.Fragment
	for rows.Next() {
		var f vector.Fragment
		var embeddingJSON, createdAt string
		if err := rows.Scan(&f.ID, &f.Text, &embeddingJSON, &f.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scan fragment: %w", err)
		}
		if err := json.Unmarshal([]byte(embeddingJSON), &f.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding of %s: %w", f.ID, err)
		}
		if f.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at of %s: %w", f.ID, err)
		}
		fragments = append(fragments, f)
	}
	return fragments, rows.Err()
}

// Save inserts every fragment not yet present. Fragments are immutable, so
// rows that already exist are left untouched.
func (p *SQLitePersister) Save(ctx context.Context, fragments []vector.Fragment) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO fragments (id, text, embedding, source, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range fragments {
		embedding, err := json.Marshal(f.Embedding)
		if err != nil {
			return fmt.Errorf("marshal embedding of %s: %w", f.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, f.ID, f.Text, string(embedding), f.Source, f.CreatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("insert fragment %s: %w", f.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *SQLitePersister) Close() error {
	return p.db.Close()
}
