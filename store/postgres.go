package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hubenschmidt/ultrarelay/store/migrations"
	"github.com/hubenschmidt/ultrarelay/vector"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresPersister keeps fragments in a PostgreSQL table ordered by insertion.
type PostgresPersister struct {
	db *sql.DB
}

func NewPostgresPersister(ctx context.Context, dsn string) (*PostgresPersister, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := runPostgresMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresPersister{db: db}, nil
}

func runPostgresMigrations(ctx context.Context, db *sql.DB) error {
	data, err := migrations.Postgres.ReadFile("postgres/001_init.sql")
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(data)); err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	return nil
}

func (p *PostgresPersister) Load(ctx context.Context) ([]vector.Fragment, error) {
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
		var embeddingJSON []byte
		if err := rows.Scan(&f.ID, &f.Text, &embeddingJSON, &f.Source, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan fragment: %w", err)
		}
		if err := json.Unmarshal(embeddingJSON, &f.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding of %s: %w", f.ID, err)
		}
		fragments = append(fragments, f)
	}
	return fragments, rows.Err()
}

func (p *PostgresPersister) Save(ctx context.Context, fragments []vector.Fragment) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, f := range fragments {
		embedding, err := json.Marshal(f.Embedding)
		if err != nil {
			return fmt.Errorf("marshal embedding of %s: %w", f.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO fragments (id, text, embedding, source, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING`,
			f.ID, f.Text, embedding, f.Source, f.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert fragment %s: %w", f.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *PostgresPersister) Close() error {
	return p.db.Close()
}
