package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/KaramelBytes/datachat-cli/internal/insight"
	"github.com/KaramelBytes/datachat-cli/internal/utils"
)

// SQLiteStore keeps transcripts in a single table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating as needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection serializes writers
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS transcripts (
			key TEXT PRIMARY KEY,
			turns TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create transcripts table: %w", err)
	}
	if err := addSummaryColumn(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// addSummaryColumn upgrades tables created before summaries were stored.
func addSummaryColumn(db *sql.DB) error {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('transcripts') WHERE name = 'summary'`).Scan(&n); err != nil {
		return fmt.Errorf("inspect transcripts table: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := db.Exec(`ALTER TABLE transcripts ADD COLUMN summary TEXT NOT NULL DEFAULT ''`); err != nil {
		return fmt.Errorf("add summary column: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Get(ctx context.Context, key string) (Transcript, bool, error) {
	var raw, summary string
	err := s.db.QueryRowContext(ctx, "SELECT turns, summary FROM transcripts WHERE key = ?", key).Scan(&raw, &summary)
	if errors.Is(err, sql.ErrNoRows) {
		return Transcript{}, false, nil
	}
	if err != nil {
		return Transcript{}, false, fmt.Errorf("query transcript: %w", err)
	}
	tr := Transcript{Summary: summary}
	if err := json.Unmarshal([]byte(raw), &tr.Turns); err != nil {
		return Transcript{}, false, fmt.Errorf("decode transcript %q: %w", key, err)
	}
	return tr, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, tr Transcript) error {
	turns := tr.Turns
	if turns == nil {
		turns = []insight.ConversationTurn{}
	}
	b, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transcripts (key, turns, summary, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET turns = excluded.turns, summary = excluded.summary, updated_at = excluded.updated_at
	`, key, string(b), tr.Summary, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM transcripts WHERE key = ?", key); err != nil {
		return fmt.Errorf("remove transcript: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM transcripts ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
