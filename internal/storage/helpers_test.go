package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/calmirror/backend/internal/storage/models"
)

// testDB opens a fresh migrated database in a per-test temp directory.
func testDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, RunMigrations(db))
	return db
}

// seedCalendar inserts a visible calendar to satisfy the foreign key on
// events.
func seedCalendar(t *testing.T, db *DB, id string) {
	t.Helper()

	repo := NewCalendarRepository(db)
	err := repo.Upsert(context.Background(), &models.Calendar{
		ID:         id,
		Summary:    "Test calendar " + id,
		AccessRole: models.AccessRoleOwner,
		Visible:    true,
	})
	require.NoError(t, err)
}

func strPtr(s string) *string { return &s }

// remoteEvent builds a confirmed remote-sourced event within the given
// interval.
func remoteEvent(remoteID, calendarID, title string, start, end time.Time) *models.Event {
	return &models.Event{
		RemoteID:   strPtr(remoteID),
		CalendarID: calendarID,
		Title:      title,
		Start:      start,
		End:        end,
		Status:     models.EventStatusConfirmed,
	}
}
