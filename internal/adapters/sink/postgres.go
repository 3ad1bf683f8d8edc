package sink

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/okian/solcast/internal/domain/model"
)

// DefaultTable is the table the Postgres sink writes to.
const DefaultTable = "solar_forecasts"

const (
	maxOpenConns    = 10
	maxIdleConns    = 2
	connMaxLifetime = 5 * time.Minute
)

// Postgres upserts forecast rows keyed by (horizon, plant_id, datetime, revision).
type Postgres struct {
	db    *sql.DB
	table string
}

// PostgresOption applies a configuration option to the Postgres sink.
type PostgresOption func(*Postgres)

// WithTable overrides DefaultTable.
func WithTable(name string) PostgresOption {
	return func(p *Postgres) {
		if name != "" {
			p.table = name
		}
	}
}

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string, opts ...PostgresOption) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewPostgres(db, opts...), nil
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB, opts ...PostgresOption) *Postgres {
	p := &Postgres{db: db, table: DefaultTable}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// EnsureSchema creates the forecast table when it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		owner_id   TEXT NOT NULL,
		plant_id   TEXT NOT NULL,
		horizon    TEXT NOT NULL,
		datetime   TIMESTAMPTZ NOT NULL,
		revision   INTEGER NOT NULL,
		forecast   DOUBLE PRECISION,
		run_id     TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (horizon, plant_id, datetime, revision)
	)`, pq.QuoteIdentifier(p.table)))
	if err != nil {
		return fmt.Errorf("ensure forecast table: %w", err)
	}
	return nil
}

// Write implements Sink. The whole batch is written in one transaction.
func (p *Postgres) Write(ctx context.Context, b Batch) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("forecast sink: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s
		(owner_id, plant_id, horizon, datetime, revision, forecast, run_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (horizon, plant_id, datetime, revision)
		DO UPDATE SET forecast = EXCLUDED.forecast, run_id = EXCLUDED.run_id, created_at = EXCLUDED.created_at`,
		pq.QuoteIdentifier(p.table)))
	if err != nil {
		return fmt.Errorf("forecast sink: %w", err)
	}
	defer stmt.Close()

	created := b.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	for _, r := range b.Records {
		forecast := sql.NullFloat64{Float64: r.Forecast, Valid: r.Valid}
		if _, err := stmt.ExecContext(ctx, r.OwnerID, r.PlantID, string(b.Horizon), r.Timestamp, r.Revision, forecast, b.RunID, created); err != nil {
			return fmt.Errorf("forecast sink %s/%s: %w", b.Horizon, b.PlantID, err)
		}
	}
	return tx.Commit()
}

// Count returns how many rows a plant has for a horizon.
func (p *Postgres) Count(ctx context.Context, h model.Horizon, plantID string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE horizon = $1 AND plant_id = $2`, pq.QuoteIdentifier(p.table)),
		string(h), plantID,
	).Scan(&n)
	return n, err
}

// Close closes the database handle.
func (p *Postgres) Close() error {
	return p.db.Close()
}
