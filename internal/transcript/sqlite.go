package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

const createExchanges = `CREATE TABLE IF NOT EXISTS exchanges (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	session_id TEXT NOT NULL,
	model TEXT NOT NULL,
	user_message TEXT NOT NULL,
	assistant_message TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS exchanges_session ON exchanges (session_id, seq);`

// SQLiteRecorder implements Recorder on an embedded SQLite database.
// Messages are stored as JSON documents.
type SQLiteRecorder struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(10000)")
	if err != nil {
		return nil, fmt.Errorf("transcript: open sqlite %q: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, createExchanges); err != nil {
		db.Close()
		return nil, fmt.Errorf("transcript: create schema: %w", err)
	}

	return &SQLiteRecorder{db: db}, nil
}

func (r *SQLiteRecorder) Record(ctx context.Context, ex Exchange) error {
	user, err := json.Marshal(ex.User)
	if err != nil {
		return fmt.Errorf("transcript: encode user message: %w", err)
	}
	assistant, err := json.Marshal(ex.Assistant)
	if err != nil {
		return fmt.Errorf("transcript: encode assistant message: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO exchanges (id, session_id, model, user_message, assistant_message, created_at) VALUES (?,?,?,?,?,?);`,
		ex.ID, ex.SessionID, ex.Model, string(user), string(assistant), ex.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("transcript: insert exchange %q: %w", ex.ID, err)
	}
	return nil
}

func (r *SQLiteRecorder) List(ctx context.Context, sessionID string) ([]Exchange, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, model, user_message, assistant_message, created_at FROM exchanges WHERE session_id = ? ORDER BY seq ASC;`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("transcript: query session %q: %w", sessionID, err)
	}
	defer rows.Close()

	out := []Exchange{}
	for rows.Next() {
		var (
			ex                    Exchange
			user, assistant, when string
		)
		if err := rows.Scan(&ex.ID, &ex.SessionID, &ex.Model, &user, &assistant, &when); err != nil {
			return nil, fmt.Errorf("transcript: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(user), &ex.User); err != nil {
			return nil, fmt.Errorf("transcript: decode user message: %w", err)
		}
		if err := json.Unmarshal([]byte(assistant), &ex.Assistant); err != nil {
			return nil, fmt.Errorf("transcript: decode assistant message: %w", err)
		}
		if ex.CreatedAt, err = time.Parse(time.RFC3339Nano, when); err != nil {
			return nil, fmt.Errorf("transcript: parse created_at: %w", err)
		}
		out = append(out, ex)
	}

	return out, rows.Err()
}

func (r *SQLiteRecorder) Close(context.Context) error {
	return r.db.Close()
}
