package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"whopays/internal/core"
)

// FileStore keeps each record as a flat JSON object in its own file.
type FileStore struct {
	dir   string
	paths map[string]string
}

var _ KeyValueStore = (*FileStore)(nil)

// NewFileStore stores records under dir as <key>.json unless a path is
// registered for the key with WithPath.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir, paths: make(map[string]string)}
}

// WithPath maps key to an explicit file path. Empty paths are ignored.
func (s *FileStore) WithPath(key, path string) *FileStore {
	if path != "" {
		s.paths[key] = path
	}
	return s
}

// Path returns the file backing key.
func (s *FileStore) Path(key string) string {
	if p, ok := s.paths[key]; ok {
		return p
	}
	return filepath.Join(s.dir, key+".json")
}

// Load reads the record for key. A missing file is an empty record.
func (s *FileStore) Load(ctx context.Context, key string) (core.Amounts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.Path(key)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return core.Amounts{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return core.Amounts{}, nil
	}

	var values core.Amounts
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode %s: %w: %v", path, ErrCorrupt, err)
	}
	return values, nil
}

// Save atomically replaces the record for key.
func (s *FileStore) Save(ctx context.Context, key string, values core.Amounts) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if values == nil {
		values = core.Amounts{}
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	path := s.Path(key)
	err = writeFileAtomic(path, func(w io.Writer) error {
		if _, err := w.Write(data); err != nil {
			return err
		}
		_, err := io.WriteString(w, "\n")
		return err
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}

	slog.DebugContext(ctx, "Record saved", "record", key, "path", path, "entries", len(values))
	return nil
}
