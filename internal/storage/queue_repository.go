package storage

import (
	"context"
	"fmt"

	"github.com/calmirror/backend/internal/storage/models"
)

// QueueRepository provides data access for the mutation queue.
type QueueRepository struct {
	BaseRepository
}

// NewQueueRepository creates a new queue repository.
func NewQueueRepository(db *DB) *QueueRepository {
	return &QueueRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Enqueue appends a deferred remote mutation to the queue.
func (r *QueueRepository) Enqueue(ctx context.Context, item *models.QueueItem) error {
	item.ID = GenerateID()
	item.CreatedAt = r.Now()

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO sync_queue (
			id, event_id, remote_event_id, calendar_id, action, payload, attempts, created_at
		) VALUES (?, ?, ?, ?, ?, ?, 0, ?)
	`,
		item.ID, item.EventID, item.RemoteEventID, item.CalendarID,
		item.Action, item.Payload, item.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("enqueuing mutation: %w", err)
	}

	return nil
}

// List returns all queued mutations, oldest first. Drains apply them in this
// order and never reorder or coalesce.
func (r *QueueRepository) List(ctx context.Context) ([]models.QueueItem, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, event_id, remote_event_id, calendar_id, action, payload, attempts, last_error, created_at
		FROM sync_queue
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying queue: %w", err)
	}
	defer rows.Close()

	var items []models.QueueItem
	for rows.Next() {
		var item models.QueueItem
		if err := rows.Scan(
			&item.ID, &item.EventID, &item.RemoteEventID, &item.CalendarID,
			&item.Action, &item.Payload, &item.Attempts, &item.LastError, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning queue item: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// MarkDone removes a queue item after its mutation was applied remotely.
func (r *QueueRepository) MarkDone(ctx context.Context, id string) error {
	_, err := r.DB().ExecContext(ctx, "DELETE FROM sync_queue WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting queue item: %w", err)
	}
	return nil
}

// MarkFailed retains a queue item after a failed attempt, incrementing the
// attempt count and recording the error for diagnostics.
func (r *QueueRepository) MarkFailed(ctx context.Context, id string, attemptErr error) error {
	msg := attemptErr.Error()
	_, err := r.DB().ExecContext(ctx, `
		UPDATE sync_queue SET attempts = attempts + 1, last_error = ? WHERE id = ?
	`, msg, id)
	if err != nil {
		return fmt.Errorf("updating queue item: %w", err)
	}
	return nil
}

// Count returns the number of queued mutations.
func (r *QueueRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM sync_queue").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting queue items: %w", err)
	}
	return count, nil
}
