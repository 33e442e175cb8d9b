package domain

// FieldMap translates storage column names to public field names. Storage
// and public names intentionally differ (the backend schema predates the
// public API), so every row crosses this table at the service boundary.
type FieldMap map[string]string

// WatchlistFields maps watchlist storage columns to public names.
var WatchlistFields = FieldMap{
	"user_id":     "owner_id",
	"is_public":   "is_shared",
	"title":       "name",
	"description": "description",
	"created_at":  "created_at",
	"updated_at":  "updated_at",
	"id":          "id",
}

// NoteFields maps note storage columns to public names.
var NoteFields = FieldMap{
	"user_id":    "owner_id",
	"is_public":  "is_shared",
	"title":      "title",
	"body":       "content",
	"ticker":     "symbol",
	"created_at": "created_at",
	"updated_at": "updated_at",
	"id":         "id",
}

// WatchlistCollaboratorFields maps watchlist collaborator rows.
var WatchlistCollaboratorFields = FieldMap{
	"id":           "id",
	"watchlist_id": "entity_id",
	"user_id":      "user_id",
	"email":        "email",
	"permission":   "permission",
	"created_at":   "created_at",
}

// NoteCollaboratorFields maps note collaborator rows.
var NoteCollaboratorFields = FieldMap{
	"id":         "id",
	"note_id":    "entity_id",
	"user_id":    "user_id",
	"email":      "email",
	"permission": "permission",
	"created_at": "created_at",
}

// ItemFields maps watchlist-item storage columns to public names.
var ItemFields = FieldMap{
	"id":         "id",
	"list_id":    "watchlist_id",
	"ticker":     "symbol",
	"sort_order": "position",
	"created_at": "added_at",
}

// ToPublic renames a storage row's keys to public field names. Unmapped
// keys are dropped so internal columns never leak to callers.
func (m FieldMap) ToPublic(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for storageName, v := range row {
		if publicName, ok := m[storageName]; ok {
			out[publicName] = v
		}
	}
	return out
}

// ToStorage renames a public record's keys back to storage column names,
// the exact inverse of ToPublic for mapped fields.
func (m FieldMap) ToStorage(record map[string]any) map[string]any {
	inverse := make(map[string]string, len(m))
	for storageName, publicName := range m {
		inverse[publicName] = storageName
	}
	out := make(map[string]any, len(record))
	for publicName, v := range record {
		if storageName, ok := inverse[publicName]; ok {
			out[storageName] = v
		}
	}
	return out
}
