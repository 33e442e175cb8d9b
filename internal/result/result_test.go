package result

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "tickerdesk-backend/internal/errors"
)

func TestOk(t *testing.T) {
	r := Ok(42)
	assert.True(t, r.IsSuccess())
	assert.False(t, r.IsError())
	assert.Equal(t, 42, r.Data)
	assert.Empty(t, r.ErrorMessage())
}

func TestFail_SurfacesStatusAndMeta(t *testing.T) {
	err := apperrors.Validation("DUPLICATE_ITEM", "item already exists").
		WithMeta("existing_item_id", "i-1")
	r := Fail[string](err)

	assert.True(t, r.IsError())
	assert.Equal(t, apperrors.StatusValidation, r.Status)
	assert.Equal(t, "i-1", r.Meta["existing_item_id"])
	assert.Equal(t, "item already exists", r.ErrorMessage())
}

func TestTimeout_MarksOutcomeUnknown(t *testing.T) {
	r := Timeout[int]("ListWatchlists", 250*time.Millisecond)

	require.True(t, r.IsError())
	assert.Equal(t, apperrors.StatusTimeout, r.Status)
	assert.Equal(t, "unknown", r.Meta["outcome"])
	assert.Equal(t, int64(250), r.Meta["timeout_ms"])
}

func TestNotFound(t *testing.T) {
	r := NotFound[any]("note", "n-9")
	assert.Equal(t, apperrors.StatusNotFound, r.Status)
	assert.Equal(t, "n-9", r.Meta["id"])
}
