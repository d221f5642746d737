// Package models contains the domain models for the application.
package models

import (
	"time"
)

// Calendar represents a remote calendar mirrored into the local store.
// The remote provider's identifier is the primary key; visibility, color
// override and the incremental sync token are local-only state that survives
// re-sync.
type Calendar struct {
	ID            string     `json:"id"`
	Summary       string     `json:"summary"`
	Color         string     `json:"color"`
	ColorOverride *string    `json:"color_override,omitempty"`
	AccessRole    string     `json:"access_role"`
	Primary       bool       `json:"primary"`
	Visible       bool       `json:"visible"`
	SyncToken     *string    `json:"-"`
	LastSyncedAt  *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// DisplayColor returns the user's color override when set, otherwise the
// provider-assigned color.
func (c *Calendar) DisplayColor() string {
	if c.ColorOverride != nil && *c.ColorOverride != "" {
		return *c.ColorOverride
	}
	return c.Color
}

// Access role constants, mirroring the remote provider's vocabulary.
const (
	AccessRoleOwner    = "owner"
	AccessRoleWriter   = "writer"
	AccessRoleReader   = "reader"
	AccessRoleFreeBusy = "freeBusyReader"
)
