package domain

import "time"

// Decoders from public-shaped rows (after FieldMap.ToPublic) into the
// aggregate types. Backend rows arrive JSON-decoded, so values may be
// strings, float64 numbers, or already-typed Go values; the coercion
// helpers accept both.

func WatchlistFromRow(row map[string]any) Watchlist {
	return Watchlist{
		ID:          asString(row["id"]),
		OwnerID:     asString(row["owner_id"]),
		Name:        asString(row["name"]),
		Description: asString(row["description"]),
		IsShared:    asBool(row["is_shared"]),
		CreatedAt:   asTime(row["created_at"]),
		UpdatedAt:   asTime(row["updated_at"]),
	}
}

func NoteFromRow(row map[string]any) Note {
	return Note{
		ID:        asString(row["id"]),
		OwnerID:   asString(row["owner_id"]),
		Title:     asString(row["title"]),
		Content:   asString(row["content"]),
		Symbol:    asString(row["symbol"]),
		IsShared:  asBool(row["is_shared"]),
		CreatedAt: asTime(row["created_at"]),
		UpdatedAt: asTime(row["updated_at"]),
	}
}

func ItemFromRow(row map[string]any) WatchlistItem {
	return WatchlistItem{
		ID:          asString(row["id"]),
		WatchlistID: asString(row["watchlist_id"]),
		Symbol:      asString(row["symbol"]),
		Position:    asInt(row["position"]),
		AddedAt:     asTime(row["added_at"]),
	}
}

func CollaboratorFromRow(row map[string]any) Collaborator {
	return Collaborator{
		ID:         asString(row["id"]),
		EntityID:   asString(row["entity_id"]),
		UserID:     asString(row["user_id"]),
		Email:      asString(row["email"]),
		Permission: Permission(asString(row["permission"])),
		CreatedAt:  asTime(row["created_at"]),
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed
			}
		}
	}
	return time.Time{}
}
