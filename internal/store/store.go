// Package store archives committed debug contexts and insights in SQLite so
// history survives across CLI invocations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vburojevic/dcw/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS contexts (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL,
	event_type    TEXT NOT NULL,
	timestamp     INTEGER NOT NULL,
	has_exception INTEGER NOT NULL DEFAULT 0,
	body          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS insights (
	context_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	text       TEXT NOT NULL,
	fallback   INTEGER NOT NULL DEFAULT 0,
	error      TEXT,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contexts_session ON contexts(session_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_insights_session ON insights(session_id);
`

// Store is a SQLite-backed history archive
type Store struct {
	db *sql.DB
}

// SessionInfo summarizes one archived session
type SessionInfo struct {
	ID       string    `json:"session_id"`
	Contexts int       `json:"contexts"`
	First    time.Time `json:"first"`
	Last     time.Time `json:"last"`
}

// Summary aggregates the archive contents
type Summary struct {
	Type       string                   `json:"type"` // "archive_stats"
	Contexts   int                      `json:"contexts"`
	Sessions   int                      `json:"sessions"`
	ByType     map[domain.EventType]int `json:"by_type"`
	Exceptions int                      `json:"exceptions"`
	Insights   int                      `json:"insights"`
	Fallbacks  int                      `json:"fallbacks"`
}

// Open opens or creates the archive at path. ":memory:" is accepted for tests.
func Open(path string) (*Store, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, path[1:])
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps :memory: databases coherent and serializes writers
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`PRAGMA busy_timeout = 5000; PRAGMA journal_mode = WAL;`); err != nil {
		return fmt.Errorf("configure archive: %w", err)
	}
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate archive: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveContext stores a committed context, replacing any earlier copy
func (s *Store) SaveContext(ctx context.Context, dc *domain.DebugContext) error {
	if dc == nil {
		return errors.New("nil context")
	}
	body, err := json.Marshal(dc)
	if err != nil {
		return fmt.Errorf("encode context %s: %w", dc.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO contexts (id, session_id, event_type, timestamp, has_exception, body)
		VALUES (?, ?, ?, ?, ?, ?)`,
		dc.ID, dc.SessionID, string(dc.EventType), dc.Timestamp.UnixNano(), boolInt(dc.HasException()), string(body))
	return err
}

// SaveInsight stores an analysis result
func (s *Store) SaveInsight(ctx context.Context, in domain.Insight, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO insights (context_id, session_id, text, fallback, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		in.ContextID, in.SessionID, in.Text, boolInt(in.Fallback), in.Error, at.UnixNano())
	return err
}

// History returns archived contexts oldest first. An empty sessionID spans
// all sessions; limit > 0 keeps only the newest limit entries.
func (s *Store) History(ctx context.Context, sessionID string, limit int) ([]*domain.DebugContext, error) {
	query := `SELECT body FROM contexts`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY timestamp DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.DebugContext
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var dc domain.DebugContext
		if err := json.Unmarshal([]byte(body), &dc); err != nil {
			return nil, fmt.Errorf("decode archived context: %w", err)
		}
		out = append(out, &dc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Insights returns archived insights for a session, or all when sessionID is empty
func (s *Store) Insights(ctx context.Context, sessionID string) ([]domain.Insight, error) {
	query := `SELECT context_id, session_id, text, fallback, COALESCE(error, '') FROM insights`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Insight
	for rows.Next() {
		var in domain.Insight
		var fallback int
		if err := rows.Scan(&in.ContextID, &in.SessionID, &in.Text, &fallback, &in.Error); err != nil {
			return nil, err
		}
		in.Fallback = fallback != 0
		out = append(out, in)
	}
	return out, rows.Err()
}

// Sessions lists archived sessions by ID
func (s *Store) Sessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, COUNT(*), MIN(timestamp), MAX(timestamp)
		FROM contexts GROUP BY session_id ORDER BY session_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var first, last int64
		if err := rows.Scan(&info.ID, &info.Contexts, &first, &last); err != nil {
			return nil, err
		}
		info.First = time.Unix(0, first).UTC()
		info.Last = time.Unix(0, last).UTC()
		out = append(out, info)
	}
	return out, rows.Err()
}

// Stats summarizes the archive
func (s *Store) Stats(ctx context.Context) (Summary, error) {
	sum := Summary{Type: "archive_stats", ByType: make(map[domain.EventType]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT event_type, COUNT(*), SUM(has_exception) FROM contexts GROUP BY event_type`)
	if err != nil {
		return sum, err
	}
	for rows.Next() {
		var eventType string
		var count, exceptions int
		if err := rows.Scan(&eventType, &count, &exceptions); err != nil {
			rows.Close()
			return sum, err
		}
		sum.ByType[domain.EventType(eventType)] = count
		sum.Contexts += count
		sum.Exceptions += exceptions
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return sum, err
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT session_id) FROM contexts`).Scan(&sum.Sessions)
	if err != nil {
		return sum, err
	}
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(fallback), 0) FROM insights`).Scan(&sum.Insights, &sum.Fallbacks)
	return sum, err
}

// Clear deletes a session's archive, or everything when sessionID is empty.
// It returns the number of contexts removed.
func (s *Store) Clear(ctx context.Context, sessionID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var res sql.Result
	if sessionID == "" {
		res, err = tx.ExecContext(ctx, `DELETE FROM contexts`)
		if err == nil {
			_, err = tx.ExecContext(ctx, `DELETE FROM insights`)
		}
	} else {
		res, err = tx.ExecContext(ctx, `DELETE FROM contexts WHERE session_id = ?`, sessionID)
		if err == nil {
			_, err = tx.ExecContext(ctx, `DELETE FROM insights WHERE session_id = ?`, sessionID)
		}
	}
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), tx.Commit()
}

// Prune applies a retention policy to the archive: contexts older than
// now-MaxAge go first, then each session keeps its newest MaxSize.
func (s *Store) Prune(ctx context.Context, policy domain.RetentionPolicy, now time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	removed := 0
	if policy.MaxAge > 0 {
		res, err := tx.ExecContext(ctx, `DELETE FROM contexts WHERE timestamp < ?`, now.Add(-policy.MaxAge).UnixNano())
		if err != nil {
			return 0, err
		}
		n, _ := res.RowsAffected()
		removed += int(n)
	}
	if policy.MaxSize > 0 {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM contexts WHERE id IN (
				SELECT id FROM (
					SELECT id, ROW_NUMBER() OVER (
						PARTITION BY session_id ORDER BY timestamp DESC, rowid DESC
					) AS rn FROM contexts
				) WHERE rn > ?
			)`, policy.MaxSize)
		if err != nil {
			return 0, err
		}
		n, _ := res.RowsAffected()
		removed += int(n)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM insights WHERE context_id NOT IN (SELECT id FROM contexts)`); err != nil {
		return 0, err
	}
	return removed, tx.Commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
