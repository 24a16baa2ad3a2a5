// Package library persists finished playbooks in the same SQLite database
// as the job queue.
package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"offbook/internal/playbook"
)

// ErrPlaybookNotFound is returned when a playbook id does not exist.
var ErrPlaybookNotFound = errors.New("playbook not found")

const createTableSQL = `
CREATE TABLE IF NOT EXISTS playbooks (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL,
    author      TEXT NOT NULL,
    acts        INTEGER NOT NULL,
    characters  INTEGER NOT NULL,
    lines       INTEGER NOT NULL,
    document    TEXT NOT NULL,
    created_at  TEXT NOT NULL
);
`

// Library stores finished playbooks.
type Library struct {
	db     *sql.DB
	logger *slog.Logger
}

// New prepares the playbooks table on an already-open database.
func New(db *sql.DB, logger *slog.Logger) (*Library, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create playbooks table: %w", err)
	}
	return &Library{db: db, logger: logger}, nil
}

// Summary is the list-view projection of a stored playbook.
type Summary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	Acts       int       `json:"acts"`
	Characters int       `json:"characters"`
	Lines      int       `json:"lines"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SavePlaybook stores a playbook and returns its generated id.
func (l *Library) SavePlaybook(ctx context.Context, p *playbook.Playbook) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	stored := *p
	stored.ID = id
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}

	document, err := json.Marshal(&stored)
	if err != nil {
		return "", fmt.Errorf("failed to serialize playbook: %w", err)
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO playbooks (id, title, author, acts, characters, lines, document, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, stored.Title, stored.Author,
		len(stored.Acts), len(stored.Characters), stored.LineCount(),
		string(document), stored.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert playbook: %w", err)
	}

	l.logger.Info("playbook saved", "playbook_id", id, "title", stored.Title, "lines", stored.LineCount())
	return id, nil
}

// Get loads a playbook by id.
func (l *Library) Get(ctx context.Context, id string) (*playbook.Playbook, error) {
	var document string
	err := l.db.QueryRowContext(ctx, `SELECT document FROM playbooks WHERE id = ?`, id).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlaybookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load playbook: %w", err)
	}

	var p playbook.Playbook
	if err := json.Unmarshal([]byte(document), &p); err != nil {
		return nil, fmt.Errorf("corrupt playbook document %s: %w", id, err)
	}
	return &p, nil
}

// List returns summaries of all stored playbooks, newest first.
func (l *Library) List(ctx context.Context) ([]Summary, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, title, author, acts, characters, lines, created_at
		FROM playbooks
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list playbooks: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var s Summary
		var createdAt string
		if err := rows.Scan(&s.ID, &s.Title, &s.Author, &s.Acts, &s.Characters, &s.Lines, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan playbook row: %w", err)
		}
		s.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("invalid created_at for %s: %w", s.ID, err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Delete removes a playbook.
func (l *Library) Delete(ctx context.Context, id string) error {
	result, err := l.db.ExecContext(ctx, `DELETE FROM playbooks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete playbook: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPlaybookNotFound
	}
	return nil
}
