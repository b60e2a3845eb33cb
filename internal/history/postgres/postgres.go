package postgres

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/publr/sidekick/internal/history"
)

// DB implements history.Store for PostgreSQL via the pgx stdlib driver.
type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sidecar_events(
			id BIGSERIAL PRIMARY KEY,
			type TEXT NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			pid INTEGER NOT NULL,
			restart_count INTEGER NOT NULL,
			detail TEXT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sidecar_events_type ON sidecar_events(type);`,
		`CREATE INDEX IF NOT EXISTS idx_sidecar_events_occurred_at ON sidecar_events(occurred_at);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) Append(ctx context.Context, e history.Event) error {
	var detail sql.NullString
	if e.Detail != "" {
		detail = sql.NullString{String: e.Detail, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO sidecar_events(type, occurred_at, pid, restart_count, detail)
		VALUES($1, $2, $3, $4, $5);`,
		string(e.Type), e.OccurredAt.UTC(), e.PID, e.RestartCount, detail)
	return err
}

func (p *DB) Recent(ctx context.Context, limit int) ([]history.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT type, occurred_at, pid, restart_count, COALESCE(detail, '')
		FROM sidecar_events ORDER BY id DESC LIMIT $1;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []history.Event
	for rows.Next() {
		var e history.Event
		var typ string
		if err := rows.Scan(&typ, &e.OccurredAt, &e.PID, &e.RestartCount, &e.Detail); err != nil {
			return nil, err
		}
		e.Type = history.EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}
