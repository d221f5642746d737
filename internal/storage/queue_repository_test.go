package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calmirror/backend/internal/storage/models"
)

func TestQueueRepository_ListInEnqueueOrder(t *testing.T) {
	db := testDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	for i, action := range []string{models.ActionCreate, models.ActionUpdate, models.ActionDelete} {
		item := &models.QueueItem{CalendarID: "cal-1", Action: action, Payload: "{}"}
		require.NoError(t, repo.Enqueue(ctx, item))
		// created_at resolution is coarse; separate the stamps.
		_, err := db.Exec("UPDATE sync_queue SET created_at = ? WHERE id = ?",
			time.Date(2026, 9, 1, 0, 0, i, 0, time.UTC), item.ID)
		require.NoError(t, err)
	}

	items, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, models.ActionCreate, items[0].Action)
	assert.Equal(t, models.ActionUpdate, items[1].Action)
	assert.Equal(t, models.ActionDelete, items[2].Action)
}

func TestQueueRepository_MarkFailedRetains(t *testing.T) {
	db := testDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	item := &models.QueueItem{CalendarID: "cal-1", Action: models.ActionUpdate, Payload: "{}"}
	require.NoError(t, repo.Enqueue(ctx, item))

	require.NoError(t, repo.MarkFailed(ctx, item.ID, errors.New("remote unavailable")))
	require.NoError(t, repo.MarkFailed(ctx, item.ID, errors.New("still unavailable")))

	items, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Attempts)
	require.NotNil(t, items[0].LastError)
	assert.Equal(t, "still unavailable", *items[0].LastError)
}

func TestQueueRepository_MarkDoneRemoves(t *testing.T) {
	db := testDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	item := &models.QueueItem{CalendarID: "cal-1", Action: models.ActionRSVP, Payload: models.ResponseAccepted}
	require.NoError(t, repo.Enqueue(ctx, item))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, repo.MarkDone(ctx, item.ID))

	count, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
