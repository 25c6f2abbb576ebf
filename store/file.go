package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const recordExt = ".json"

type fileStore struct {
	root string
}

// NewFileStore creates a Store backed by the filesystem. Each record is one
// JSON file named <task id>.json directly under root, written by atomic
// rename.
func NewFileStore(root string) Store {
	return &fileStore{root: root}
}

func (s *fileStore) path(taskID string) (string, error) {
	if taskID == "" {
		return "", ErrEmptyTaskID
	}
	if strings.ContainsAny(taskID, `/\`) || strings.HasPrefix(taskID, ".") {
		return "", fmt.Errorf("%w: invalid task id %q", ErrSaveFailed, taskID)
	}
	return filepath.Join(s.root, taskID+recordExt), nil
}

func (s *fileStore) Save(_ context.Context, rec Record) error {
	path, err := s.path(rec.TaskID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, rec.TaskID, err)
	}

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, rec.TaskID, err)
	}

	tmp, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, rec.TaskID, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, rec.TaskID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, rec.TaskID, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, rec.TaskID, err)
	}

	return nil
}

func (s *fileStore) Load(_ context.Context, taskID string) (Record, error) {
	path, err := s.path(taskID)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, fmt.Errorf("%w: %s", ErrNotFound, taskID)
		}
		return Record{}, fmt.Errorf("%w: %s: %v", ErrLoadFailed, taskID, err)
	}
	return decodeRecord(taskID, data)
}

func (s *fileStore) List(_ context.Context, limit int) ([]Record, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != recordExt {
			continue
		}

		taskID := strings.TrimSuffix(name, recordExt)
		data, err := os.ReadFile(filepath.Join(s.root, name))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailed, taskID, err)
		}
		rec, err := decodeRecord(taskID, data)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return newestFirst(records, limit), nil
}

func (s *fileStore) Delete(_ context.Context, taskID string) error {
	path, err := s.path(taskID)
	if err != nil {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete failed: %s: %w", taskID, err)
	}
	return nil
}

func (s *fileStore) Close() error { return nil }
