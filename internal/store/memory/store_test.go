package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "tickerdesk-backend/internal/errors"
	"tickerdesk-backend/internal/store"
)

func TestStore_CRUD(t *testing.T) {
	s := New()
	ctx := context.Background()

	inserted, err := s.Insert(ctx, "watchlists", store.Row{"name": "Tech", "user_id": "u1"})
	require.NoError(t, err)
	require.NotEmpty(t, inserted["id"])

	rows, err := s.Select(ctx, "watchlists", store.Filter{Column: "user_id", Value: "u1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Tech", rows[0]["name"])

	updated, err := s.Update(ctx, "watchlists", store.Row{"name": "Tech 2"},
		store.Filter{Column: "id", Value: inserted["id"].(string)})
	require.NoError(t, err)
	assert.Equal(t, "Tech 2", updated[0]["name"])

	require.NoError(t, s.Delete(ctx, "watchlists",
		store.Filter{Column: "id", Value: inserted["id"].(string)}))

	rows, err = s.Select(ctx, "watchlists")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStore_UpdateNoMatchReportsNotFoundCode(t *testing.T) {
	s := New()
	_, err := s.Update(context.Background(), "notes", store.Row{"title": "x"},
		store.Filter{Column: "id", Value: "missing"})

	require.Error(t, err)
	assert.Equal(t, apperrors.StatusNotFound, apperrors.Classify(err).Status)
}

func TestStore_SelectDoesNotAliasStoredRows(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Insert(ctx, "notes", store.Row{"id": "n1", "title": "orig"})
	require.NoError(t, err)

	rows, err := s.Select(ctx, "notes")
	require.NoError(t, err)
	rows[0]["title"] = "mutated"

	again, err := s.Select(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, "orig", again[0]["title"])
}
