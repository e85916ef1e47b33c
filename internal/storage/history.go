// Package storage persists query history and imports datasets from SQL
// databases.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"chartbot/internal/models"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS query_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT    NOT NULL,
	query       TEXT    NOT NULL,
	status      TEXT    NOT NULL,
	error       TEXT    NOT NULL DEFAULT '',
	resolved    TEXT,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_query_history_session ON query_history(session_id, id);
`

// HistoryStore records submitted queries in SQLite.
type HistoryStore struct {
	db *sql.DB
}

// OpenHistory opens (and migrates) the store at path. Use ":memory:" for a
// throwaway database.
func OpenHistory(ctx context.Context, path string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// SQLite serializes writers; one connection also keeps ":memory:" alive.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &HistoryStore{db: db}, nil
}

// Record appends an entry and returns its id.
func (h *HistoryStore) Record(ctx context.Context, entry models.HistoryEntry) (int64, error) {
	var resolved sql.NullString
	if entry.Resolved != nil {
		data, err := json.Marshal(entry.Resolved)
		if err != nil {
			return 0, fmt.Errorf("marshal resolved intent: %w", err)
		}
		resolved = sql.NullString{String: string(data), Valid: true}
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	res, err := h.db.ExecContext(ctx,
		`INSERT INTO query_history (session_id, query, status, error, resolved, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.SessionID, entry.Query, entry.Status, entry.Error, resolved, entry.CreatedAt.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert history: %w", err)
	}
	return res.LastInsertId()
}

// List returns a session's entries oldest first, at most limit of the most
// recent ones when limit > 0.
func (h *HistoryStore) List(ctx context.Context, sessionID string, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, session_id, query, status, error, resolved, created_at FROM (
			SELECT * FROM query_history WHERE session_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := []models.HistoryEntry{}
	for rows.Next() {
		var (
			e        models.HistoryEntry
			resolved sql.NullString
			created  int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Query, &e.Status, &e.Error, &resolved, &created); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if resolved.Valid {
			e.Resolved = &models.ResolvedIntent{}
			if err := json.Unmarshal([]byte(resolved.String), e.Resolved); err != nil {
				return nil, fmt.Errorf("decode resolved intent: %w", err)
			}
		}
		e.CreatedAt = time.Unix(0, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database.
func (h *HistoryStore) Close() error {
	return h.db.Close()
}
