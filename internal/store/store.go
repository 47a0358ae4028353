// Package store persists chat transcripts keyed by the uploaded file name.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/datachat-cli/internal/insight"
)

// Transcript is a saved conversation: its settled turns and the rolling
// summary of turns older than the recent window.
type Transcript struct {
	Turns   []insight.ConversationTurn `json:"turns"`
	Summary string                     `json:"summary,omitempty"`
}

// TranscriptStore is a key to transcript mapping. Get reports false when the
// key has never been written or was removed.
type TranscriptStore interface {
	Get(ctx context.Context, key string) (Transcript, bool, error)
	Set(ctx context.Context, key string, tr Transcript) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

const keyPrefix = "transcript:"

// KeyFor derives the store key for an uploaded file.
func KeyFor(fileName string) string {
	return keyPrefix + filepath.Base(strings.TrimSpace(fileName))
}

// FileName returns the file name a key was derived from.
func FileName(key string) string {
	return strings.TrimPrefix(key, keyPrefix)
}

// Drivers accepted by Open.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// DefaultPath returns ~/.datachat/<leaf> for the given driver.
func DefaultPath(driver string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	leaf := "transcripts"
	if driver == DriverSQLite {
		leaf = "transcripts.db"
	}
	return filepath.Join(home, ".datachat", leaf), nil
}

// Open builds a store for driver. An empty path selects DefaultPath.
func Open(driver, path string) (TranscriptStore, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" {
		driver = DriverFile
	}
	if driver == DriverMemory {
		return NewMemoryStore(), nil
	}
	if path == "" {
		p, err := DefaultPath(driver)
		if err != nil {
			return nil, err
		}
		path = p
	}
	switch driver {
	case DriverFile:
		return NewFileStore(path)
	case DriverSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown store driver %q (available: file, sqlite, memory)", driver)
	}
}

// Close releases resources held by s, if any.
func Close(s TranscriptStore) error {
	if c, ok := s.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func (tr Transcript) clone() Transcript {
	if tr.Turns != nil {
		tr.Turns = append([]insight.ConversationTurn(nil), tr.Turns...)
	}
	return tr
}
