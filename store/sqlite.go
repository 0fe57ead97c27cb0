// Package store keeps the history of submitted opportunities in SQLite
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/michaelpento.lv/flashscan/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS submissions (
    id          TEXT PRIMARY KEY,
    token_in    TEXT NOT NULL,
    token_out   TEXT NOT NULL,
    amount_in   TEXT NOT NULL DEFAULT '',
    profit      TEXT NOT NULL DEFAULT '',
    state       TEXT NOT NULL,
    bundle_hash TEXT NOT NULL DEFAULT '',
    tx_hash     TEXT NOT NULL DEFAULT '',
    error       TEXT NOT NULL DEFAULT '',
    reserved_at TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_submissions_updated ON submissions(updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_submissions_state   ON submissions(state);
`

// SQLiteStore persists terminal submission records. A fingerprint that is
// submitted again after its dedupe TTL overwrites its previous row.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dsn and applies the schema
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store.NewSQLiteStore: open %q: %w", dsn, err)
	}
	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store.NewSQLiteStore: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRecord upserts rec
func (s *SQLiteStore) SaveRecord(ctx context.Context, rec *types.SubmissionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO submissions
			(id, token_in, token_out, amount_in, profit, state, bundle_hash, tx_hash, error, reserved_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			amount_in   = excluded.amount_in,
			profit      = excluded.profit,
			state       = excluded.state,
			bundle_hash = excluded.bundle_hash,
			tx_hash     = excluded.tx_hash,
			error       = excluded.error,
			reserved_at = excluded.reserved_at,
			updated_at  = excluded.updated_at`,
		rec.ID, rec.TokenIn, rec.TokenOut, rec.AmountIn, rec.Profit, string(rec.State),
		rec.BundleHash, rec.TxHash, rec.Error,
		formatTime(rec.ReservedAt), formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("store.SaveRecord %s: %w", rec.ID, err)
	}
	return nil
}

// ListFilter narrows ListRecords. Zero values match everything.
type ListFilter struct {
	State types.RecordState
	Limit int
}

// ListRecords returns records newest first
func (s *SQLiteStore) ListRecords(ctx context.Context, f ListFilter) ([]*types.SubmissionRecord, error) {
	query := `SELECT id, token_in, token_out, amount_in, profit, state, bundle_hash, tx_hash, error, reserved_at, updated_at
		FROM submissions`
	var args []interface{}
	if f.State != "" {
		query += ` WHERE state = ?`
		args = append(args, string(f.State))
	}
	query += ` ORDER BY updated_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store.ListRecords: %w", err)
	}
	defer rows.Close()

	var out []*types.SubmissionRecord
	for rows.Next() {
		var (
			rec                  types.SubmissionRecord
			state                string
			reservedAt, updateAt string
		)
		if err := rows.Scan(&rec.ID, &rec.TokenIn, &rec.TokenOut, &rec.AmountIn, &rec.Profit, &state,
			&rec.BundleHash, &rec.TxHash, &rec.Error, &reservedAt, &updateAt); err != nil {
			return nil, fmt.Errorf("store.ListRecords: scan: %w", err)
		}
		rec.State = types.RecordState(state)
		rec.ReservedAt = parseTime(reservedAt)
		rec.UpdatedAt = parseTime(updateAt)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// Prune deletes records last updated before cutoff
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM submissions WHERE updated_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("store.Prune: %w", err)
	}
	return res.RowsAffected()
}

// timestamps are stored as fixed-width UTC strings so they sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
