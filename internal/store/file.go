package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/KaramelBytes/datachat-cli/internal/insight"
	"github.com/KaramelBytes/datachat-cli/internal/utils"
)

const fileSuffix = ".json"

// record is the on-disk form. The key is kept because file names are lossy.
type record struct {
	Key       string                     `json:"key"`
	Turns     []insight.ConversationTurn `json:"turns"`
	Summary   string                     `json:"summary,omitempty"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

// FileStore keeps one JSON file per key in a directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, utils.SafeFileName(key)+fileSuffix)
}

func (s *FileStore) read(path string) (*record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return &r, nil
}

func (s *FileStore) Get(_ context.Context, key string) (Transcript, bool, error) {
	r, err := s.read(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Transcript{}, false, nil
		}
		return Transcript{}, false, fmt.Errorf("read transcript: %w", err)
	}
	if r.Key != key {
		// another key mapped to the same file name
		return Transcript{}, false, nil
	}
	return Transcript{Turns: r.Turns, Summary: r.Summary}, true, nil
}

func (s *FileStore) Set(_ context.Context, key string, tr Transcript) error {
	b, err := utils.PrettyJSON(record{Key: key, Turns: tr.Turns, Summary: tr.Summary, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := utils.SafeWriteFile(s.path(key), b); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

func (s *FileStore) Remove(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove transcript: %w", err)
	}
	return nil
}

func (s *FileStore) Keys(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list store dir: %w", err)
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileSuffix) {
			continue
		}
		r, err := s.read(filepath.Join(s.dir, e.Name()))
		if err != nil || r.Key == "" {
			continue
		}
		keys = append(keys, r.Key)
	}
	sort.Strings(keys)
	return keys, nil
}
