package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

// migrations are applied in order; the applied set is tracked in
// schema_versions.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS action_log (
    id           TEXT PRIMARY KEY,
    insight_id   TEXT NOT NULL DEFAULT '',
    action       TEXT NOT NULL,
    status       TEXT NOT NULL,
    params       TEXT NOT NULL DEFAULT '{}',
    result       TEXT NOT NULL DEFAULT '{}',
    error        TEXT NOT NULL DEFAULT '',
    approval_id  TEXT NOT NULL DEFAULT '',
    actor        TEXT NOT NULL DEFAULT '',
    duration_ms  INTEGER NOT NULL DEFAULT 0,
    timestamp    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_action_log_timestamp ON action_log(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_action_log_insight   ON action_log(insight_id);
CREATE INDEX IF NOT EXISTS idx_action_log_action    ON action_log(action);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS approvals (
    id           TEXT PRIMARY KEY,
    insight_id   TEXT NOT NULL DEFAULT '',
    category     TEXT NOT NULL DEFAULT '',
    action       TEXT NOT NULL,
    params       TEXT NOT NULL DEFAULT '{}',
    impact       TEXT NOT NULL DEFAULT '',
    reason       TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL,
    created_at   TEXT NOT NULL,
    expires_at   TEXT NOT NULL,
    resolved_at  TEXT NOT NULL DEFAULT '',
    resolved_by  TEXT NOT NULL DEFAULT '',
    note         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_approvals_status  ON approvals(status, created_at DESC);
`,
	},
}

// sqliteStore is the SQLite-backed implementation of Store.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// runs all pending schema migrations. Pass ":memory:" for an in-memory store.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// Each pooled connection to ":memory:" would be a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *sqliteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue // already applied
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}

		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Action log ──────────────────────────────────────────────────────────────

func (s *sqliteStore) AppendAction(ctx context.Context, rec *ActionRecord) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT OR IGNORE INTO action_log(id, insight_id, action, status, params, result, error, approval_id, actor, duration_ms, timestamp)
        VALUES(?,?,?,?,?,?,?,?,?,?,?)
    `,
		rec.ID, rec.InsightID, rec.Action, rec.Status, orEmptyJSON(rec.Params), orEmptyJSON(rec.Result),
		rec.Error, rec.ApprovalID, rec.Actor, rec.DurationMs, formatTime(rec.Timestamp),
	)
	return err
}

func (s *sqliteStore) QueryActions(ctx context.Context, q ActionQuery) ([]*ActionRecord, error) {
	query := `SELECT id,insight_id,action,status,params,result,error,approval_id,actor,duration_ms,timestamp FROM action_log WHERE 1=1`
	args := []any{}

	if q.InsightID != "" {
		query += ` AND insight_id = ?`
		args = append(args, q.InsightID)
	}
	if q.Action != "" {
		query += ` AND action = ?`
		args = append(args, q.Action)
	}
	if q.Status != "" {
		query += ` AND status = ?`
		args = append(args, q.Status)
	}
	if !q.From.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, formatTime(q.From))
	}
	if !q.To.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, formatTime(q.To))
	}
	query += ` ORDER BY timestamp DESC, id DESC`
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d OFFSET %d`, q.Limit, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*ActionRecord
	for rows.Next() {
		rec := &ActionRecord{}
		var ts string
		if err := rows.Scan(&rec.ID, &rec.InsightID, &rec.Action, &rec.Status, &rec.Params, &rec.Result,
			&rec.Error, &rec.ApprovalID, &rec.Actor, &rec.DurationMs, &ts); err != nil {
			return nil, err
		}
		rec.Timestamp, _ = parseTime(ts)
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *sqliteStore) ActionSummary(ctx context.Context, from, to time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT status, COUNT(*) FROM action_log
        WHERE timestamp >= ? AND timestamp <= ?
        GROUP BY status
    `, formatTime(from), formatTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		summary[status] = count
	}
	return summary, rows.Err()
}

// ─── Approvals ───────────────────────────────────────────────────────────────

func (s *sqliteStore) SaveApproval(ctx context.Context, rec *ApprovalRecord) error {
	resolvedAt := ""
	if rec.ResolvedAt != nil {
		resolvedAt = formatTime(*rec.ResolvedAt)
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO approvals(id, insight_id, category, action, params, impact, reason, status, created_at, expires_at, resolved_at, resolved_by, note)
        VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)
        ON CONFLICT(id) DO UPDATE SET
            status      = excluded.status,
            resolved_at = excluded.resolved_at,
            resolved_by = excluded.resolved_by,
            note        = excluded.note
    `,
		rec.ID, rec.InsightID, rec.Category, rec.Action, orEmptyJSON(rec.Params), rec.Impact, rec.Reason,
		rec.Status, formatTime(rec.CreatedAt), formatTime(rec.ExpiresAt), resolvedAt, rec.ResolvedBy, rec.Note,
	)
	return err
}

const approvalColumns = `id,insight_id,category,action,params,impact,reason,status,created_at,expires_at,resolved_at,resolved_by,note`

func (s *sqliteStore) GetApproval(ctx context.Context, id string) (*ApprovalRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE id = ?`, id)
	rec, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (s *sqliteStore) ListApprovals(ctx context.Context, status string, limit int) ([]*ApprovalRecord, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*ApprovalRecord
	for rows.Next() {
		rec, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApproval(row rowScanner) (*ApprovalRecord, error) {
	rec := &ApprovalRecord{}
	var created, expires, resolved string
	if err := row.Scan(&rec.ID, &rec.InsightID, &rec.Category, &rec.Action, &rec.Params, &rec.Impact,
		&rec.Reason, &rec.Status, &created, &expires, &resolved, &rec.ResolvedBy, &rec.Note); err != nil {
		return nil, err
	}
	rec.CreatedAt, _ = parseTime(created)
	rec.ExpiresAt, _ = parseTime(expires)
	if resolved != "" {
		if t, err := parseTime(resolved); err == nil {
			rec.ResolvedAt = &t
		}
	}
	return rec, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// formatTime stores times as fixed-width UTC text so lexical order matches
// chronological order.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}

// parseTime handles multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}

func orEmptyJSON(s string) string {
	if s == "" {
		return "{}"
	}
	return s
}
