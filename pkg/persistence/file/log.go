package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sync"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/flowmesh/flowmesh/pkg/persistence"
)

// LogRepository stores execution logs as one JSON Lines file per execution.
type LogRepository struct {
	mu   sync.Mutex
	root string
}

// NewLogRepository creates a new log repository.
func NewLogRepository(root string) *LogRepository {
	return &LogRepository{root: root}
}

func (lr *LogRepository) path(executionID string) string {
	return path.Join(lr.root, "logs", executionID+".jsonl")
}

// Append adds a single entry to the execution's log file.
func (lr *LogRepository) Append(_ context.Context, entry *models.LogEntry) error {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	if err := os.MkdirAll(path.Join(lr.root, "logs"), 0o755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry %s: %w", entry.ID, err)
	}

	file, err := os.OpenFile(lr.path(entry.ExecutionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file for execution %s: %w", entry.ExecutionID, err)
	}
	defer file.Close()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append log entry %s: %w", entry.ID, err)
	}

	return nil
}

// List reads the execution's log file and applies the filters in order.
func (lr *LogRepository) List(_ context.Context, executionID string, opts persistence.ListLogsOptions) ([]*models.LogEntry, error) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	file, err := os.Open(lr.path(executionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to open log file for execution %s: %w", executionID, err)
	}
	defer file.Close()

	var entries []*models.LogEntry

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry models.LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal log entry for execution %s: %w", executionID, err)
		}

		if opts.NodeID != "" && entry.NodeID != opts.NodeID {
			continue
		}

		if opts.Level != "" && entry.Level != opts.Level {
			continue
		}

		entries = append(entries, &entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file for execution %s: %w", executionID, err)
	}

	return entries, nil
}
