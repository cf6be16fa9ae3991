package store

import (
    "context"
    "database/sql"
    "errors"

    _ "github.com/jackc/pgx/v5/stdlib"
)

const schema = `
CREATE TABLE IF NOT EXISTS call_counts (
    date_key   TEXT PRIMARY KEY,
    calls      INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres keeps the daily call counter in a single table. Unlike the
// spreadsheet backend it increments with one atomic statement.
type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        _ = db.Close()
        return nil, err
    }
    return &Postgres{db: db}, nil
}

// Migrate creates the counter table if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
    _, err := p.db.ExecContext(ctx, schema)
    return err
}

// IncrementCalls bumps the row for dateKey, creating it with 1, and returns the new count.
func (p *Postgres) IncrementCalls(ctx context.Context, dateKey string) (int, error) {
    if dateKey == "" { return 0, errors.New("date key required") }
    var n int
    err := p.db.QueryRowContext(ctx, `
        INSERT INTO call_counts (date_key, calls) VALUES ($1, 1)
        ON CONFLICT (date_key) DO UPDATE SET calls = call_counts.calls + 1, updated_at = now()
        RETURNING calls`, dateKey).Scan(&n)
    return n, err
}

// Calls returns the stored count for dateKey, 0 when there is no row.
func (p *Postgres) Calls(ctx context.Context, dateKey string) (int, error) {
    var n int
    err := p.db.QueryRowContext(ctx, `SELECT calls FROM call_counts WHERE date_key=$1`, dateKey).Scan(&n)
    if errors.Is(err, sql.ErrNoRows) { return 0, nil }
    return n, err
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }
