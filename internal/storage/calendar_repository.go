package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/calmirror/backend/internal/storage/models"
)

// CalendarRepository provides data access for mirrored calendars.
type CalendarRepository struct {
	BaseRepository
}

// NewCalendarRepository creates a new calendar repository.
func NewCalendarRepository(db *DB) *CalendarRepository {
	return &CalendarRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Upsert inserts or updates a calendar by its remote id. Local-only fields
// (visibility, color override, sync token) are preserved on conflict; only
// the remote-sourced fields are overwritten.
func (r *CalendarRepository) Upsert(ctx context.Context, cal *models.Calendar) error {
	now := r.Now()

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO calendars (
			id, summary, color, access_role, is_primary, visible, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			summary = excluded.summary,
			color = excluded.color,
			access_role = excluded.access_role,
			is_primary = excluded.is_primary,
			updated_at = excluded.updated_at
	`,
		cal.ID, cal.Summary, cal.Color, cal.AccessRole, cal.Primary, cal.Visible, now, now,
	)

	if err != nil {
		return fmt.Errorf("upserting calendar: %w", err)
	}

	return nil
}

// GetByID retrieves a calendar by its remote id.
func (r *CalendarRepository) GetByID(ctx context.Context, id string) (*models.Calendar, error) {
	cal := &models.Calendar{}

	err := r.DB().QueryRowContext(ctx, `
		SELECT id, summary, color, color_override, access_role, is_primary,
		       visible, sync_token, last_synced_at, created_at, updated_at
		FROM calendars WHERE id = ?
	`, id).Scan(
		&cal.ID, &cal.Summary, &cal.Color, &cal.ColorOverride, &cal.AccessRole,
		&cal.Primary, &cal.Visible, &cal.SyncToken, &cal.LastSyncedAt,
		&cal.CreatedAt, &cal.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying calendar: %w", err)
	}

	return cal, nil
}

// List retrieves all calendars.
func (r *CalendarRepository) List(ctx context.Context) ([]models.Calendar, error) {
	return r.list(ctx, `
		SELECT id, summary, color, color_override, access_role, is_primary,
		       visible, sync_token, last_synced_at, created_at, updated_at
		FROM calendars
		ORDER BY is_primary DESC, summary
	`)
}

// ListVisible retrieves the calendars the user has marked visible. Sync
// passes only pull events for these.
func (r *CalendarRepository) ListVisible(ctx context.Context) ([]models.Calendar, error) {
	return r.list(ctx, `
		SELECT id, summary, color, color_override, access_role, is_primary,
		       visible, sync_token, last_synced_at, created_at, updated_at
		FROM calendars
		WHERE visible = 1
		ORDER BY is_primary DESC, summary
	`)
}

func (r *CalendarRepository) list(ctx context.Context, query string) ([]models.Calendar, error) {
	rows, err := r.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying calendars: %w", err)
	}
	defer rows.Close()

	var calendars []models.Calendar
	for rows.Next() {
		var cal models.Calendar
		if err := rows.Scan(
			&cal.ID, &cal.Summary, &cal.Color, &cal.ColorOverride, &cal.AccessRole,
			&cal.Primary, &cal.Visible, &cal.SyncToken, &cal.LastSyncedAt,
			&cal.CreatedAt, &cal.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning calendar: %w", err)
		}
		calendars = append(calendars, cal)
	}

	return calendars, rows.Err()
}

// UpdateSyncToken stores the incremental sync token returned by a listing and
// stamps the last-synced time. A nil token clears the stored one, forcing the
// next incremental pass to fall back to a windowed listing.
func (r *CalendarRepository) UpdateSyncToken(ctx context.Context, id string, token *string) error {
	now := r.Now()

	_, err := r.DB().ExecContext(ctx, `
		UPDATE calendars SET sync_token = ?, last_synced_at = ?, updated_at = ?
		WHERE id = ?
	`, token, now, now, id)

	if err != nil {
		return fmt.Errorf("updating sync token: %w", err)
	}

	return nil
}

// SetVisible toggles whether a calendar's events appear in queries and sync.
func (r *CalendarRepository) SetVisible(ctx context.Context, id string, visible bool) error {
	result, err := r.DB().ExecContext(ctx, `
		UPDATE calendars SET visible = ?, updated_at = ? WHERE id = ?
	`, visible, r.Now(), id)
	if err != nil {
		return fmt.Errorf("updating visibility: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("calendar not found: %s", id)
	}

	return nil
}

// SetColorOverride sets or clears (empty string) the user's color override.
func (r *CalendarRepository) SetColorOverride(ctx context.Context, id string, color string) error {
	var override *string
	if color != "" {
		override = &color
	}

	result, err := r.DB().ExecContext(ctx, `
		UPDATE calendars SET color_override = ?, updated_at = ? WHERE id = ?
	`, override, r.Now(), id)
	if err != nil {
		return fmt.Errorf("updating color override: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("calendar not found: %s", id)
	}

	return nil
}
