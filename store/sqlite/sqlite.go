/*
Package sqlite provides the SQLite-backed implementation of the version store.

PURPOSE:
  Persists bitemporal version rows. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

SCHEMA:
  One versions table for every entity kind. Each row is a single immutable
  version: bitemporal envelope in columns, domain fields in a JSON blob
  decoded through the temporal kind registry.

IMMUTABILITY ENFORCEMENT:
  - INSERT for new versions
  - The only UPDATEs close temporal boundaries, and both are conditioned on
    system_to still being the infinity sentinel
  - No DELETE statements exist

OPTIMISTIC CONCURRENCY:
  CloseVersion is a conditional UPDATE; RowsAffected reporting zero means
  another writer already closed the version and the caller gets
  ConcurrentModificationError. This is the "zero rows affected" mapping of
  the compare-and-swap.

INDEXES:
  idx_versions_current: (kind, logical_id, system_to, valid_to) - current lookups
  idx_versions_asof:    (kind, logical_id, valid_from)          - history/as-of

WAL MODE:
  The database is opened with WAL for better concurrency: readers don't
  block, single writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/ledger.db")   // ":memory:" for tests
  svc := ledger.NewService(store)

SEE ALSO:
  - temporal/store.go: Interface definitions
  - temporal/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/clearbooks/ledger-engine/temporal"
)

// timeLayout is fixed-width so text timestamps compare lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements temporal.TxStore over SQLite.
type Store struct {
	db *sql.DB
}

// New opens (and migrates) a SQLite store at the given path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps SQLite's writer semantics simple and makes
	// ":memory:" behave as one database rather than one per connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Version rows (immutable once inserted; only boundary closes update)
	CREATE TABLE IF NOT EXISTS versions (
		kind TEXT NOT NULL,
		version_id TEXT NOT NULL,
		logical_id TEXT NOT NULL,
		previous_version_id TEXT,
		valid_from TEXT NOT NULL,
		valid_to TEXT NOT NULL,
		system_from TEXT NOT NULL,
		system_to TEXT NOT NULL,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		deleted_at TEXT,
		deleted_by TEXT,
		changed_by TEXT,
		data_json TEXT NOT NULL,
		PRIMARY KEY (kind, version_id)
	);

	-- Current lookups (hot path)
	CREATE INDEX IF NOT EXISTS idx_versions_current
		ON versions(kind, logical_id, system_to, valid_to);

	-- History and as-of lookups
	CREATE INDEX IF NOT EXISTS idx_versions_asof
		ON versions(kind, logical_id, valid_from);
	`
	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// STORE INTERFACE (temporal.TxStore)
// =============================================================================

// view implements temporal.Store against any dbtx; both the root Store and
// the WithTx unit-of-work view embed it.
type view struct {
	db dbtx
}

func (s *Store) Insert(ctx context.Context, e temporal.Entity) error {
	return view{s.db}.Insert(ctx, e)
}

func (s *Store) Version(ctx context.Context, kind string, versionID temporal.VersionID) (temporal.Entity, error) {
	return view{s.db}.Version(ctx, kind, versionID)
}

func (s *Store) Current(ctx context.Context, kind string, logicalID temporal.LogicalID) (temporal.Entity, error) {
	return view{s.db}.Current(ctx, kind, logicalID)
}

func (s *Store) AllCurrent(ctx context.Context, kind string) ([]temporal.Entity, error) {
	return view{s.db}.AllCurrent(ctx, kind)
}

func (s *Store) LogicalIDs(ctx context.Context, kind string) ([]temporal.LogicalID, error) {
	return view{s.db}.LogicalIDs(ctx, kind)
}

func (s *Store) History(ctx context.Context, kind string, logicalID temporal.LogicalID) ([]temporal.Entity, error) {
	return view{s.db}.History(ctx, kind, logicalID)
}

func (s *Store) CloseVersion(ctx context.Context, kind string, versionID temporal.VersionID, now time.Time) error {
	return view{s.db}.CloseVersion(ctx, kind, versionID, now)
}

func (s *Store) CloseDeleted(ctx context.Context, kind string, versionID temporal.VersionID, now time.Time, actor string) error {
	return view{s.db}.CloseDeleted(ctx, kind, versionID, now, actor)
}

// WithTx runs fn against a transactional view. Any error rolls back every
// write made through the view.
func (s *Store) WithTx(ctx context.Context, fn func(temporal.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(view{sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// VIEW OPERATIONS
// =============================================================================

func (v view) Insert(ctx context.Context, e temporal.Entity) error {
	m := e.Envelope()
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode %s version: %w", e.Kind(), err)
	}

	_, err = v.db.ExecContext(ctx, `
		INSERT INTO versions
		(kind, version_id, logical_id, previous_version_id,
		 valid_from, valid_to, system_from, system_to,
		 is_deleted, deleted_at, deleted_by, changed_by, data_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Kind(),
		m.VersionID,
		m.LogicalID,
		nullString(string(m.PreviousVersionID)),
		formatTime(m.ValidFrom),
		formatTime(m.ValidTo),
		formatTime(m.SystemFrom),
		formatTime(m.SystemTo),
		boolToInt(m.IsDeleted),
		nullTime(m.DeletedAt),
		nullString(m.DeletedBy),
		nullString(m.ChangedBy),
		string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s version: %w", e.Kind(), err)
	}
	return nil
}

func (v view) Version(ctx context.Context, kind string, versionID temporal.VersionID) (temporal.Entity, error) {
	return v.queryOne(ctx, kind,
		`WHERE kind = ? AND version_id = ?`, kind, versionID)
}

func (v view) Current(ctx context.Context, kind string, logicalID temporal.LogicalID) (temporal.Entity, error) {
	e, err := v.queryOne(ctx, kind,
		`WHERE kind = ? AND logical_id = ? AND system_to = ? AND valid_to = ? AND is_deleted = 0`,
		kind, logicalID, formatTime(temporal.Infinity), formatTime(temporal.Infinity))
	if temporal.IsNotFound(err) {
		return nil, &temporal.NotFoundError{Kind: kind, LogicalID: logicalID}
	}
	return e, err
}

func (v view) AllCurrent(ctx context.Context, kind string) ([]temporal.Entity, error) {
	return v.queryMany(ctx, kind,
		`WHERE kind = ? AND system_to = ? AND valid_to = ? AND is_deleted = 0
		 ORDER BY logical_id`,
		kind, formatTime(temporal.Infinity), formatTime(temporal.Infinity))
}

func (v view) LogicalIDs(ctx context.Context, kind string) ([]temporal.LogicalID, error) {
	rows, err := v.db.QueryContext(ctx,
		`SELECT DISTINCT logical_id FROM versions WHERE kind = ?`, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to query logical ids: %w", err)
	}
	defer rows.Close()

	var ids []temporal.LogicalID
	for rows.Next() {
		var id temporal.LogicalID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (v view) History(ctx context.Context, kind string, logicalID temporal.LogicalID) ([]temporal.Entity, error) {
	return v.queryMany(ctx, kind,
		`WHERE kind = ? AND logical_id = ?
		 ORDER BY system_from DESC, valid_from DESC, rowid DESC`,
		kind, logicalID)
}

// CloseVersion is the compare-and-swap: the UPDATE only matches while
// system_to still holds the infinity sentinel. Zero rows affected means the
// race was lost.
func (v view) CloseVersion(ctx context.Context, kind string, versionID temporal.VersionID, now time.Time) error {
	res, err := v.db.ExecContext(ctx, `
		UPDATE versions SET valid_to = ?, system_to = ?
		WHERE kind = ? AND version_id = ? AND system_to = ?`,
		formatTime(now), formatTime(now),
		kind, versionID, formatTime(temporal.Infinity))
	if err != nil {
		return fmt.Errorf("failed to close %s version: %w", kind, err)
	}
	return checkAffected(res, kind, versionID)
}

func (v view) CloseDeleted(ctx context.Context, kind string, versionID temporal.VersionID, now time.Time, actor string) error {
	res, err := v.db.ExecContext(ctx, `
		UPDATE versions SET valid_to = ?, system_to = ?,
			is_deleted = 1, deleted_at = ?, deleted_by = ?
		WHERE kind = ? AND version_id = ? AND system_to = ?`,
		formatTime(now), formatTime(now), formatTime(now), actor,
		kind, versionID, formatTime(temporal.Infinity))
	if err != nil {
		return fmt.Errorf("failed to close %s version: %w", kind, err)
	}
	return checkAffected(res, kind, versionID)
}

func checkAffected(res sql.Result, kind string, versionID temporal.VersionID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &temporal.ConcurrentModificationError{Kind: kind, VersionID: versionID}
	}
	return nil
}

const versionColumns = `version_id, logical_id, previous_version_id,
	valid_from, valid_to, system_from, system_to,
	is_deleted, deleted_at, deleted_by, changed_by, data_json`

func (v view) queryOne(ctx context.Context, kind, where string, args ...any) (temporal.Entity, error) {
	row := v.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM versions `+where+` LIMIT 1`, args...)
	e, err := scanVersion(row, kind)
	if err == sql.ErrNoRows {
		return nil, &temporal.NotFoundError{Kind: kind}
	}
	return e, err
}

func (v view) queryMany(ctx context.Context, kind, where string, args ...any) ([]temporal.Entity, error) {
	rows, err := v.db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM versions `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s versions: %w", kind, err)
	}
	defer rows.Close()

	var out []temporal.Entity
	for rows.Next() {
		e, err := scanVersion(rows, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanVersion(sc scanner, kind string) (temporal.Entity, error) {
	var (
		versionID, logicalID            string
		previousVersionID               sql.NullString
		validFrom, validTo              string
		systemFrom, systemTo            string
		isDeleted                       int
		deletedAt, deletedBy, changedBy sql.NullString
		dataJSON                        string
	)
	if err := sc.Scan(
		&versionID, &logicalID, &previousVersionID,
		&validFrom, &validTo, &systemFrom, &systemTo,
		&isDeleted, &deletedAt, &deletedBy, &changedBy, &dataJSON,
	); err != nil {
		return nil, err
	}

	e, err := temporal.NewOfKind(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(dataJSON), e); err != nil {
		return nil, fmt.Errorf("failed to decode %s version %s: %w", kind, versionID, err)
	}

	// The envelope lives in columns; the JSON blob only carries domain fields.
	m := e.Envelope()
	m.VersionID = temporal.VersionID(versionID)
	m.LogicalID = temporal.LogicalID(logicalID)
	m.PreviousVersionID = temporal.VersionID(previousVersionID.String)
	if m.ValidFrom, err = parseTime(validFrom); err != nil {
		return nil, err
	}
	if m.ValidTo, err = parseTime(validTo); err != nil {
		return nil, err
	}
	if m.SystemFrom, err = parseTime(systemFrom); err != nil {
		return nil, err
	}
	if m.SystemTo, err = parseTime(systemTo); err != nil {
		return nil, err
	}
	m.IsDeleted = isDeleted != 0
	if deletedAt.Valid {
		t, err := parseTime(deletedAt.String)
		if err != nil {
			return nil, err
		}
		m.DeletedAt = &t
	}
	m.DeletedBy = deletedBy.String
	m.ChangedBy = changedBy.String
	return e, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
