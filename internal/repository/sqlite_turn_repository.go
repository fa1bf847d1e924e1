package repository

import (
	"context"
	"database/sql"
	"fmt"

	"chai-assistant/internal/model"
)

// SQLiteTurnRepository stores turns in an embedded database file.
type SQLiteTurnRepository struct {
	db *sql.DB
}

func NewSQLiteTurnRepository(db *sql.DB) *SQLiteTurnRepository {
	return &SQLiteTurnRepository{db: db}
}

func (r *SQLiteTurnRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS chat_turns (
			thread_id TEXT NOT NULL,
			id        TEXT NOT NULL,
			role      TEXT NOT NULL,
			content   TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			PRIMARY KEY (thread_id, id)
		);
		CREATE INDEX IF NOT EXISTS idx_chat_turns_thread_ts ON chat_turns (thread_id, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("create chat_turns table failed: %w", err)
	}
	return nil
}

func (r *SQLiteTurnRepository) Append(ctx context.Context, turn model.Turn) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_turns (thread_id, id, role, content, timestamp) VALUES (?, ?, ?, ?, ?)`,
		turn.ThreadID, turn.ID, turn.Role, turn.Content, turn.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert turn failed: %w", err)
	}
	return nil
}

func (r *SQLiteTurnRepository) List(ctx context.Context, threadID string) ([]model.Turn, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT thread_id, id, role, content, timestamp FROM chat_turns WHERE thread_id = ? ORDER BY timestamp ASC`,
		threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns failed: %w", err)
	}
	defer rows.Close()

	turns := []model.Turn{}
	for rows.Next() {
		var t model.Turn
		if err := rows.Scan(&t.ThreadID, &t.ID, &t.Role, &t.Content, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan turn failed: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns failed: %w", err)
	}
	return turns, nil
}

func (r *SQLiteTurnRepository) Clear(ctx context.Context, threadID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chat_turns WHERE thread_id = ?`, threadID)
	if err != nil {
		return 0, fmt.Errorf("delete turns failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted turns failed: %w", err)
	}
	return n, nil
}

func (r *SQLiteTurnRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
