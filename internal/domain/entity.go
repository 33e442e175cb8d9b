// Package domain holds the engine's aggregates: owned, optionally shared
// records with collaborator lists, plus the access policy and the
// storage-to-public field mapping applied at the service boundary.
package domain

import "time"

// Permission is a collaborator's access level on an entity.
type Permission string

const (
	PermissionView  Permission = "view"
	PermissionEdit  Permission = "edit"
	PermissionAdmin Permission = "admin"
)

// ValidPermission reports whether p is a recognized level.
func ValidPermission(p Permission) bool {
	switch p {
	case PermissionView, PermissionEdit, PermissionAdmin:
		return true
	}
	return false
}

// Collaborator is a non-owner identity granted access to one entity. An
// identity holds at most one permission record per entity; re-granting
// updates the record in place.
type Collaborator struct {
	ID         string     `json:"id"`
	EntityID   string     `json:"entity_id"`
	UserID     string     `json:"user_id"`
	Email      string     `json:"email"`
	Permission Permission `json:"permission"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Watchlist is the collection aggregate: a named list of symbols owned by
// one user and optionally shared with collaborators.
type Watchlist struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"owner_id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	IsShared      bool            `json:"is_shared"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Items         []WatchlistItem `json:"items,omitempty"`
	Collaborators []Collaborator  `json:"collaborators,omitempty"`
}

// WatchlistItem is one symbol in a watchlist. The (watchlist, symbol) pair
// is the natural key: adding the same symbol twice is rejected.
type WatchlistItem struct {
	ID          string    `json:"id"`
	WatchlistID string    `json:"watchlist_id"`
	Symbol      string    `json:"symbol"`
	Position    int       `json:"position"`
	AddedAt     time.Time `json:"added_at"`
}

// Note is the collaborative document aggregate: research text attached to
// an optional symbol.
type Note struct {
	ID            string         `json:"id"`
	OwnerID       string         `json:"owner_id"`
	Title         string         `json:"title"`
	Content       string         `json:"content"`
	Symbol        string         `json:"symbol,omitempty"`
	IsShared      bool           `json:"is_shared"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Collaborators []Collaborator `json:"collaborators,omitempty"`
}
