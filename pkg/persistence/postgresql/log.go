package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/flowmesh/flowmesh/pkg/persistence"
)

// LogRepository handles execution log database operations.
type LogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewLogRepository creates a new log repository.
func NewLogRepository(db *sql.DB, logger *slog.Logger) *LogRepository {
	return &LogRepository{db: db, logger: logger}
}

// Append inserts a single log entry.
func (r *LogRepository) Append(ctx context.Context, entry *models.LogEntry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata for log entry %s: %w", entry.ID, err)
	}

	query := `
		INSERT INTO execution_logs (id, execution_id, node_id, timestamp, level, message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.ExecutionID,
		entry.NodeID,
		entry.Timestamp,
		entry.Level,
		entry.Message,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to append log entry %s: %w", entry.ID, err)
	}

	return nil
}

// List returns log entries for an execution in insertion order.
func (r *LogRepository) List(ctx context.Context, executionID string, opts persistence.ListLogsOptions) ([]*models.LogEntry, error) {
	query := `
		SELECT
			id
		  , execution_id
		  , node_id
		  , timestamp
		  , level
		  , message
		  , metadata
		FROM execution_logs
		WHERE execution_id = $1
		  AND ($2 = '' OR node_id = $2)
		  AND ($3 = '' OR level = $3)
		ORDER BY timestamp ASC
	`

	rows, err := r.db.QueryContext(ctx, query, executionID, opts.NodeID, string(opts.Level))
	if err != nil {
		return nil, fmt.Errorf("failed to query logs for execution %s: %w", executionID, err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	var entries []*models.LogEntry

	for rows.Next() {
		var (
			entry    models.LogEntry
			metadata []byte
		)

		err := rows.Scan(
			&entry.ID,
			&entry.ExecutionID,
			&entry.NodeID,
			&entry.Timestamp,
			&entry.Level,
			&entry.Message,
			&metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}

		if metadata != nil {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal log metadata: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating logs: %w", err)
	}

	return entries, nil
}
