package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldMap_ToPublic(t *testing.T) {
	row := map[string]any{
		"id":          "wl-1",
		"user_id":     "u-1",
		"is_public":   true,
		"title":       "Tech",
		"description": "Growth names",
		"internal_v":  7,
	}

	got := WatchlistFields.ToPublic(row)

	assert.Equal(t, "u-1", got["owner_id"])
	assert.Equal(t, true, got["is_shared"])
	assert.Equal(t, "Tech", got["name"])
	_, leaked := got["internal_v"]
	assert.False(t, leaked, "unmapped storage columns must not leak")
	_, hasOld := got["user_id"]
	assert.False(t, hasOld)
}

func TestFieldMap_ToStorage(t *testing.T) {
	record := map[string]any{
		"owner_id":  "u-1",
		"is_shared": false,
		"name":      "Energy",
		"unknown":   "x",
	}

	got := WatchlistFields.ToStorage(record)

	assert.Equal(t, "u-1", got["user_id"])
	assert.Equal(t, false, got["is_public"])
	assert.Equal(t, "Energy", got["title"])
	_, leaked := got["unknown"]
	assert.False(t, leaked)
}

func TestFieldMap_RoundTrip(t *testing.T) {
	for name, m := range map[string]FieldMap{
		"watchlist": WatchlistFields,
		"note":      NoteFields,
		"item":      ItemFields,
	} {
		t.Run(name, func(t *testing.T) {
			row := make(map[string]any, len(m))
			i := 0
			for storageName := range m {
				row[storageName] = i
				i++
			}
			back := m.ToStorage(m.ToPublic(row))
			require.Equal(t, row, back)
		})
	}
}

func TestAccess_Policies(t *testing.T) {
	acc := Access{
		OwnerID:  "owner",
		IsShared: false,
		Collaborators: []Collaborator{
			{UserID: "viewer", Permission: PermissionView},
			{UserID: "editor", Permission: PermissionEdit},
			{UserID: "admin", Permission: PermissionAdmin},
		},
	}

	tests := []struct {
		userID    string
		canAccess bool
		canModify bool
		canManage bool
	}{
		{"owner", true, true, true},
		{"viewer", true, false, false},
		{"editor", true, true, false},
		{"admin", true, true, true},
		{"stranger", false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.userID, func(t *testing.T) {
			assert.Equal(t, tt.canAccess, acc.CanAccess(tt.userID))
			assert.Equal(t, tt.canModify, acc.CanModify(tt.userID))
			assert.Equal(t, tt.canManage, acc.CanManage(tt.userID))
		})
	}
}

func TestAccess_SharedGrantsRead(t *testing.T) {
	acc := Access{OwnerID: "owner", IsShared: true}
	assert.True(t, acc.CanAccess("stranger"))
	assert.False(t, acc.CanModify("stranger"))
}

func TestValidPermission(t *testing.T) {
	assert.True(t, ValidPermission("view"))
	assert.True(t, ValidPermission("edit"))
	assert.True(t, ValidPermission("admin"))
	assert.False(t, ValidPermission("owner"))
	assert.False(t, ValidPermission(""))
}
