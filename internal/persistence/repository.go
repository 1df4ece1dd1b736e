package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/terminal-bench/assetdao/internal/audit"
	"github.com/terminal-bench/assetdao/pkg/address"
)

var (
	ErrNoSnapshot  = errors.New("no snapshot stored")
	ErrNotMigrated = errors.New("schema missing, run migrate")
)

// undefined_table
const codeUndefinedTable = "42P01"

// Config holds database configuration
type Config struct {
	URL             string        `mapstructure:"url"`
	TablePrefix     string        `mapstructure:"table_prefix"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// Open connects to Postgres and applies pool limits
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return db, nil
}

// Snapshot is a stored vault snapshot
type Snapshot struct {
	Seq     int64
	TakenAt time.Time
	Data    []byte
}

// Repository stores the audit journal and vault snapshots
type Repository struct {
	db        *sql.DB
	entries   string
	snapshots string
}

// NewRepository returns a repository over db. Table names are prefixed
// with prefix, which may be empty.
func NewRepository(db *sql.DB, prefix string) *Repository {
	return &Repository{
		db:        db,
		entries:   pq.QuoteIdentifier(prefix + "audit_entries"),
		snapshots: pq.QuoteIdentifier(prefix + "snapshots"),
	}
}

// Migrate creates the tables if they do not exist
func (r *Repository) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + r.entries + ` (
			seq BIGINT PRIMARY KEY,
			id UUID NOT NULL,
			kind TEXT NOT NULL,
			actor TEXT NOT NULL,
			at TIMESTAMPTZ NOT NULL,
			attrs JSONB NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS ` + r.snapshots + ` (
			seq BIGINT PRIMARY KEY,
			taken_at TIMESTAMPTZ NOT NULL,
			data BYTEA NOT NULL
		)`,
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return tx.Commit()
}

// AppendEntry stores an audit entry. Re-appending a sequence number
// already stored is a no-op.
func (r *Repository) AppendEntry(ctx context.Context, e audit.Entry) error {
	attrs := e.Attrs
	if attrs == nil {
		attrs = map[string]string{}
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("failed to encode attrs: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO `+r.entries+` (seq, id, kind, actor, at, attrs) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (seq) DO NOTHING`,
		e.Seq, e.ID.String(), string(e.Kind), e.Actor.String(), e.At, raw,
	)
	if err != nil {
		return r.classify(fmt.Errorf("failed to append entry %d: %w", e.Seq, err))
	}
	return nil
}

// Entries returns up to limit entries with seq greater than after, oldest first
func (r *Repository) Entries(ctx context.Context, after int64, limit int) ([]audit.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, id, kind, actor, at, attrs FROM `+r.entries+` WHERE seq > $1 ORDER BY seq ASC LIMIT $2`,
		after, limit,
	)
	if err != nil {
		return nil, r.classify(fmt.Errorf("failed to query entries: %w", err))
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var (
			e             audit.Entry
			id, kind, who string
			raw           []byte
		)
		if err := rows.Scan(&e.Seq, &id, &kind, &who, &e.At, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("entry %d has bad id: %w", e.Seq, err)
		}
		e.Kind = audit.Kind(kind)
		e.Actor = address.Address(who)
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Attrs); err != nil {
				return nil, fmt.Errorf("entry %d has bad attrs: %w", e.Seq, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveSnapshot stores data as the snapshot at seq
func (r *Repository) SaveSnapshot(ctx context.Context, s Snapshot) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO `+r.snapshots+` (seq, taken_at, data) VALUES ($1, $2, $3) ON CONFLICT (seq) DO UPDATE SET taken_at = EXCLUDED.taken_at, data = EXCLUDED.data`,
		s.Seq, s.TakenAt, s.Data,
	)
	if err != nil {
		return r.classify(fmt.Errorf("failed to save snapshot %d: %w", s.Seq, err))
	}
	return nil
}

// LatestSnapshot returns the snapshot with the highest seq
func (r *Repository) LatestSnapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := r.db.QueryRowContext(ctx,
		`SELECT seq, taken_at, data FROM `+r.snapshots+` ORDER BY seq DESC LIMIT 1`,
	).Scan(&s.Seq, &s.TakenAt, &s.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, r.classify(fmt.Errorf("failed to load snapshot: %w", err))
	}
	return s, nil
}

// PruneSnapshots deletes all but the newest keep snapshots
func (r *Repository) PruneSnapshots(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM `+r.snapshots+` WHERE seq NOT IN (SELECT seq FROM `+r.snapshots+` ORDER BY seq DESC LIMIT $1)`,
		keep,
	)
	if err != nil {
		return 0, r.classify(fmt.Errorf("failed to prune snapshots: %w", err))
	}
	return res.RowsAffected()
}

func (r *Repository) classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == codeUndefinedTable {
		return fmt.Errorf("%w: %v", ErrNotMigrated, err)
	}
	return err
}
