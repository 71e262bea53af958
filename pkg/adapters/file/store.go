package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/aretw0/conductor/pkg/domain"
)

// DefaultDir is where tasks and logs live when no directory is given.
var DefaultDir = filepath.Join(".conductor", "tasks")

// Store implements ports.TaskStore using the local filesystem.
// Each task is a JSON file named after its id.
type Store struct {
	BasePath string
}

// New creates a Store rooted at basePath, or DefaultDir when empty.
func New(basePath string) *Store {
	if basePath == "" {
		basePath = DefaultDir
	}
	return &Store{BasePath: basePath}
}

func (s *Store) path(taskID string) (string, error) {
	if taskID == "" {
		return "", errors.New("task id cannot be empty")
	}
	if strings.ContainsAny(taskID, `/\`) || taskID == "." || taskID == ".." {
		return "", fmt.Errorf("invalid task id '%s'", taskID)
	}
	return filepath.Join(s.BasePath, taskID+".json"), nil
}

// Save persists the task to a JSON file atomically: temp file, fsync, rename.
func (s *Store) Save(ctx context.Context, task domain.Task) error {
	destPath, err := s.path(task.ID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure task directory: %w", err)
	}

	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	// Same directory as the destination so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-"+task.ID+"-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Windows refuses to rename over an existing file. Elsewhere the rename
	// replaces it atomically and readers never see the task missing.
	if runtime.GOOS == "windows" {
		if _, err := os.Stat(destPath); err == nil {
			if err := os.Remove(destPath); err != nil {
				return fmt.Errorf("failed to remove existing task file for overwrite: %w", err)
			}
		}
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Load reads the task file.
func (s *Store) Load(ctx context.Context, taskID string) (domain.Task, error) {
	filePath, err := s.path(taskID)
	if err != nil {
		return domain.Task{}, err
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Task{}, domain.ErrTaskNotFound
		}
		return domain.Task{}, fmt.Errorf("failed to read task file: %w", err)
	}

	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return domain.Task{}, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return task, nil
}

// Delete removes the task file.
func (s *Store) Delete(ctx context.Context, taskID string) error {
	filePath, err := s.path(taskID)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete task file: %w", err)
	}
	return nil
}

// List returns task ids ordered by creation time.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	type item struct {
		id   string
		task domain.Task
	}
	var items []item
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, "tmp-") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		task, err := s.Load(ctx, id)
		if err != nil {
			// Deleted concurrently or unreadable; neither is listable.
			continue
		}
		items = append(items, item{id: id, task: task})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].task.CreatedAt.Equal(items[j].task.CreatedAt) {
			return items[i].id < items[j].id
		}
		return items[i].task.CreatedAt.Before(items[j].task.CreatedAt)
	})

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.id
	}
	return ids, nil
}
