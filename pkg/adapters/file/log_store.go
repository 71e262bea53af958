package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aretw0/conductor/pkg/domain"
)

// LogStore implements ports.LogStore as a JSON Lines file.
type LogStore struct {
	Path string
	mu   sync.Mutex
}

// NewLogStore creates a log store writing to path.
func NewLogStore(path string) *LogStore {
	if path == "" {
		path = filepath.Join(filepath.Dir(DefaultDir), "logs.jsonl")
	}
	return &LogStore{Path: path}
}

// Append writes one line and syncs it.
func (s *LogStore) Append(ctx context.Context, entry domain.InvocationLog) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.Path), 0755); err != nil {
		return fmt.Errorf("failed to ensure log directory: %w", err)
	}
	f, err := os.OpenFile(s.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return f.Sync()
}

// List returns every entry in append order.
func (s *LogStore) List(ctx context.Context) ([]domain.InvocationLog, error) {
	return s.read(func(domain.InvocationLog) bool { return true })
}

// ListByTask returns the entries of one task in append order.
func (s *LogStore) ListByTask(ctx context.Context, taskID string) ([]domain.InvocationLog, error) {
	return s.read(func(l domain.InvocationLog) bool { return l.TaskID == taskID })
}

func (s *LogStore) read(keep func(domain.InvocationLog) bool) ([]domain.InvocationLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	var out []domain.InvocationLog
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry domain.InvocationLog
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal log line: %w", err)
		}
		if keep(entry) {
			out = append(out, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}
	return out, nil
}
