package note

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tickerdesk-backend/internal/domain"
	apperrors "tickerdesk-backend/internal/errors"
	"tickerdesk-backend/internal/executor"
	"tickerdesk-backend/internal/store"
	"tickerdesk-backend/internal/store/memory"
)

func newTestService() *Service {
	exec := executor.New(nil, nil, zap.NewNop())
	policy := executor.Policy{MaxRetries: 0, RetryDelay: time.Millisecond, Timeout: time.Second}
	return NewService(memory.New(), exec, policy, zap.NewNop())
}

func TestCreateAndGet(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	created := svc.Create(ctx, "owner", CreateInput{
		Title: "Q3 thesis", Content: "Margins expanding.", Symbol: "nvda",
	})
	require.True(t, created.IsSuccess(), created.ErrorMessage())
	assert.Equal(t, "NVDA", created.Data.Symbol)
	assert.Equal(t, "owner", created.Data.OwnerID)

	got := svc.Get(ctx, "owner", created.Data.ID)
	require.True(t, got.IsSuccess())
	assert.Equal(t, "Margins expanding.", got.Data.Content)
}

func TestGet_SharedNoteReadableByAnyone(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	created := svc.Create(ctx, "owner", CreateInput{Title: "Public memo", IsShared: true})
	require.True(t, created.IsSuccess())

	got := svc.Get(ctx, "stranger", created.Data.ID)
	require.True(t, got.IsSuccess())

	// Shared grants read, not write.
	content := "defaced"
	updated := svc.Update(ctx, "stranger", created.Data.ID, UpdateInput{Content: &content})
	require.True(t, updated.IsError())
	assert.Equal(t, apperrors.StatusForbidden, updated.Status)
}

func TestUpdate_EditorMayChangeContentNotSharing(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	id := svc.Create(ctx, "owner", CreateInput{Title: "Draft"}).Data.ID
	svc.AddCollaborator(ctx, "owner", id, CollaboratorInput{
		UserID: "editor-1", Email: "e@example.com", Permission: domain.PermissionEdit,
	})

	content := "revised"
	updated := svc.Update(ctx, "editor-1", id, UpdateInput{Content: &content})
	require.True(t, updated.IsSuccess(), updated.ErrorMessage())
	assert.Equal(t, "revised", updated.Data.Content)

	shared := true
	flipped := svc.Update(ctx, "editor-1", id, UpdateInput{IsShared: &shared})
	require.True(t, flipped.IsError())
	assert.Equal(t, apperrors.StatusForbidden, flipped.Status)
}

func TestAddCollaborator_LastWriteWinsOnPermission(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	id := svc.Create(ctx, "owner", CreateInput{Title: "Draft"}).Data.ID
	first := svc.AddCollaborator(ctx, "owner", id, CollaboratorInput{
		UserID: "c-1", Email: "c@example.com", Permission: domain.PermissionEdit,
	})
	require.True(t, first.IsSuccess())

	second := svc.AddCollaborator(ctx, "owner", id, CollaboratorInput{
		UserID: "c-1", Email: "c@example.com", Permission: domain.PermissionView,
	})
	require.True(t, second.IsSuccess())
	assert.Equal(t, domain.PermissionView, second.Data.Permission)
	assert.Equal(t, true, second.Meta["updated"])

	got := svc.Get(ctx, "owner", id)
	require.Len(t, got.Data.Collaborators, 1)
}

func TestRemoveCollaborator_RevokesAccess(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	id := svc.Create(ctx, "owner", CreateInput{Title: "Draft"}).Data.ID
	svc.AddCollaborator(ctx, "owner", id, CollaboratorInput{
		UserID: "c-1", Email: "c@example.com", Permission: domain.PermissionView,
	})
	require.True(t, svc.Get(ctx, "c-1", id).IsSuccess())

	removed := svc.RemoveCollaborator(ctx, "owner", id, "c-1")
	require.True(t, removed.IsSuccess())

	denied := svc.Get(ctx, "c-1", id)
	require.True(t, denied.IsError())
	assert.Equal(t, apperrors.StatusForbidden, denied.Status)
}

func TestList_UnionOwnedAndShared(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	mine := svc.Create(ctx, "user-u", CreateInput{Title: "Mine"})
	theirs := svc.Create(ctx, "other", CreateInput{Title: "Theirs"})
	svc.AddCollaborator(ctx, "other", theirs.Data.ID, CollaboratorInput{
		UserID: "user-u", Email: "u@example.com", Permission: domain.PermissionView,
	})

	listed := svc.List(ctx, "user-u")
	require.True(t, listed.IsSuccess())
	require.Len(t, listed.Data, 2)
	titles := map[string]bool{}
	for _, n := range listed.Data {
		titles[n.Title] = true
	}
	assert.True(t, titles["Mine"] && titles["Theirs"])
	_ = mine
}

func TestDelete_RemovesCollaboratorRecords(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	id := svc.Create(ctx, "owner", CreateInput{Title: "Draft"}).Data.ID
	svc.AddCollaborator(ctx, "owner", id, CollaboratorInput{
		UserID: "c-1", Email: "c@example.com", Permission: domain.PermissionView,
	})

	deleted := svc.Delete(ctx, "owner", id)
	require.True(t, deleted.IsSuccess())

	// The note is gone and so is the membership that pointed at it.
	listed := svc.List(ctx, "c-1")
	require.True(t, listed.IsSuccess())
	assert.Empty(t, listed.Data)
}

func TestCreate_RequiresTitle(t *testing.T) {
	svc := newTestService()
	created := svc.Create(context.Background(), "owner", CreateInput{Title: ""})
	require.True(t, created.IsError())
	assert.Equal(t, apperrors.StatusValidation, created.Status)
}

// emptyUpdateStore answers updates with zero rows, as the real backend
// does when the target row was deleted underneath us.
type emptyUpdateStore struct {
	*memory.Store
}

func (e *emptyUpdateStore) Update(ctx context.Context, table string, changes store.Row, filters ...store.Filter) ([]store.Row, error) {
	return []store.Row{}, nil
}

func TestUpdate_RowGoneUnderneathIsNotFound(t *testing.T) {
	mem := memory.New()
	exec := executor.New(nil, nil, zap.NewNop())
	policy := executor.Policy{MaxRetries: 0, RetryDelay: time.Millisecond, Timeout: time.Second}
	svc := NewService(mem, exec, policy, zap.NewNop())
	ctx := context.Background()

	id := svc.Create(ctx, "owner", CreateInput{Title: "Draft"}).Data.ID
	newTitle := "Renamed"

	svc = NewService(&emptyUpdateStore{Store: mem}, exec, policy, zap.NewNop())
	updated := svc.Update(ctx, "owner", id, UpdateInput{Title: &newTitle})
	require.True(t, updated.IsError())
	assert.Equal(t, apperrors.StatusNotFound, updated.Status)
}
