// Package file stores usage records as one JSON document per key.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/goodtune/ontime/internal/storage"
)

const fileExt = ".json"

// Store implements storage.Store on a directory of JSON files.
type Store struct {
	records *recordStore
}

// Open returns a file-backed store rooted at dir. The directory is created
// on first save.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("file storage requires a directory")
	}
	return &Store{records: &recordStore{dir: dir}}, nil
}

// Close is a no-op; files are closed after every operation.
func (s *Store) Close() error {
	return nil
}

// Records returns the RecordStore implementation.
func (s *Store) Records() storage.RecordStore {
	return s.records
}

type recordStore struct {
	mu  sync.Mutex
	dir string
}

// path maps a key to a file. Absolute paths and names ending in .json are
// used verbatim so a sensor can point at an existing state file.
func (s *recordStore) path(key string) (string, error) {
	if filepath.IsAbs(key) {
		return key, nil
	}
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	if strings.HasSuffix(key, fileExt) {
		return filepath.Join(s.dir, key), nil
	}
	return filepath.Join(s.dir, key+fileExt), nil
}

// Load reads and validates the record stored under key.
func (s *recordStore) Load(ctx context.Context, key string) (*storage.UsageRecord, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	fields, err := decodeFields(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", storage.ErrMalformed, path, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s: empty document", storage.ErrMalformed, path)
	}

	return storage.ParseFields(fields)
}

// Save writes the record to a temporary file and renames it over the
// previous one, so readers see either the old or the new document.
func (s *recordStore) Save(ctx context.Context, key string, record storage.UsageRecord) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := storage.EnsureDir(dir); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// Delete removes the record file. Missing files are not an error.
func (s *recordStore) Delete(ctx context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Keys lists the keys of every record file in the store directory.
func (s *recordStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, fileExt))
	}
	sort.Strings(keys)
	return keys, nil
}

// decodeFields flattens a JSON object into string fields. Numbers keep
// their literal text so no precision is lost before ParseFields.
func decodeFields(data []byte) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			fields[k] = val
		case json.Number:
			fields[k] = val.String()
		case nil:
			// null counts as missing
		default:
			return nil, fmt.Errorf("field %s has unsupported type %T", k, v)
		}
	}
	return fields, nil
}
