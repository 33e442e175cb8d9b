// Package note implements the collaborative document aggregate: research
// notes optionally attached to a symbol, shared through the same
// owner/collaborator policy as watchlists.
package note

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"tickerdesk-backend/internal/domain"
	apperrors "tickerdesk-backend/internal/errors"
	"tickerdesk-backend/internal/executor"
	"tickerdesk-backend/internal/result"
	"tickerdesk-backend/internal/store"
)

const (
	tableNotes         = "notes"
	tableCollaborators = "note_collaborators"
)

// Service executes note operations against the row store.
type Service struct {
	rows     store.RowStore
	exec     *executor.Executor
	policy   executor.Policy
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// NewService builds the service.
func NewService(rows store.RowStore, exec *executor.Executor, policy executor.Policy, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		rows:     rows,
		exec:     exec,
		policy:   policy,
		validate: validator.New(),
		logger:   logger.Named("note_service"),
		now:      time.Now,
	}
}

// CreateInput is the payload for Create.
type CreateInput struct {
	Title    string `json:"title" validate:"required,min=1,max=200"`
	Content  string `json:"content" validate:"max=50000"`
	Symbol   string `json:"symbol" validate:"omitempty,min=1,max=12"`
	IsShared bool   `json:"is_shared"`
}

// UpdateInput carries partial updates; nil fields are left unchanged.
type UpdateInput struct {
	Title    *string `json:"title" validate:"omitempty,min=1,max=200"`
	Content  *string `json:"content" validate:"omitempty,max=50000"`
	Symbol   *string `json:"symbol" validate:"omitempty,max=12"`
	IsShared *bool   `json:"is_shared"`
}

// CollaboratorInput is the payload for AddCollaborator.
type CollaboratorInput struct {
	UserID     string            `json:"user_id" validate:"required"`
	Email      string            `json:"email" validate:"required,email"`
	Permission domain.Permission `json:"permission" validate:"required,oneof=view edit admin"`
}

// Create inserts a new note owned by userID.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) result.Result[domain.Note] {
	if err := s.validateInput(in); err != nil {
		return result.Fail[domain.Note](err)
	}

	now := s.now().UTC().Format(time.RFC3339Nano)
	row := store.Row{
		"user_id":    userID,
		"title":      in.Title,
		"body":       in.Content,
		"ticker":     strings.ToUpper(strings.TrimSpace(in.Symbol)),
		"is_public":  in.IsShared,
		"created_at": now,
		"updated_at": now,
	}

	res := executor.Execute(ctx, s.exec, "note.create", s.policy, func(ctx context.Context) (store.Row, error) {
		return s.rows.Insert(ctx, tableNotes, row)
	})
	if res.IsError() {
		return result.Fail[domain.Note](res.Err)
	}
	return result.Ok(domain.NoteFromRow(domain.NoteFields.ToPublic(res.Data)))
}

// Get loads one note with its collaborators, subject to the read policy.
func (s *Service) Get(ctx context.Context, userID, id string) result.Result[domain.Note] {
	note, access, err := s.load(ctx, id)
	if err != nil {
		return result.Fail[domain.Note](err)
	}
	if !access.CanAccess(userID) {
		return result.Fail[domain.Note](forbidden(id))
	}
	note.Collaborators = access.Collaborators
	return result.Ok(note)
}

// List unions notes owned by userID with notes shared with them,
// de-duplicated by id. Sub-queries fail independently.
func (s *Service) List(ctx context.Context, userID string) result.Result[[]domain.Note] {
	seen := make(map[string]bool)
	var out []domain.Note
	partial := false
	var firstErr *apperrors.Error

	ownedRes := executor.Execute(ctx, s.exec, "note.list.owned", s.policy, func(ctx context.Context) ([]store.Row, error) {
		return s.rows.Select(ctx, tableNotes, store.Filter{Column: "user_id", Value: userID})
	})
	if ownedRes.IsError() {
		partial = true
		firstErr = ownedRes.Err
		s.logger.Warn("owned sub-query failed", zap.String("user_id", userID), zap.Error(ownedRes.Err))
	} else {
		for _, row := range ownedRes.Data {
			n := domain.NoteFromRow(domain.NoteFields.ToPublic(row))
			seen[n.ID] = true
			out = append(out, n)
		}
	}

	collabRes := executor.Execute(ctx, s.exec, "note.list.shared", s.policy, func(ctx context.Context) ([]store.Row, error) {
		return s.rows.Select(ctx, tableCollaborators, store.Filter{Column: "user_id", Value: userID})
	})
	if collabRes.IsError() {
		partial = true
		if firstErr == nil {
			firstErr = collabRes.Err
		}
		s.logger.Warn("shared sub-query failed", zap.String("user_id", userID), zap.Error(collabRes.Err))
	} else {
		for _, row := range collabRes.Data {
			noteID := domain.CollaboratorFromRow(domain.NoteCollaboratorFields.ToPublic(row)).EntityID
			if seen[noteID] {
				continue
			}
			noteRes := executor.Execute(ctx, s.exec, "note.list.shared.load", s.policy, func(ctx context.Context) ([]store.Row, error) {
				return s.rows.Select(ctx, tableNotes, store.Filter{Column: "id", Value: noteID})
			})
			if noteRes.IsError() || len(noteRes.Data) == 0 {
				partial = partial || noteRes.IsError()
				continue
			}
			n := domain.NoteFromRow(domain.NoteFields.ToPublic(noteRes.Data[0]))
			seen[n.ID] = true
			out = append(out, n)
		}
	}

	if out == nil && ownedRes.IsError() && collabRes.IsError() {
		return result.Fail[[]domain.Note](firstErr)
	}
	if partial {
		return result.OkMeta(out, map[string]any{"partial": true})
	}
	return result.Ok(out)
}

// Update applies partial changes. Payload fields need modify permission;
// flipping the shared flag needs manage permission.
func (s *Service) Update(ctx context.Context, userID, id string, in UpdateInput) result.Result[domain.Note] {
	if err := s.validateInput(in); err != nil {
		return result.Fail[domain.Note](err)
	}
	_, access, err := s.load(ctx, id)
	if err != nil {
		return result.Fail[domain.Note](err)
	}
	if !access.CanModify(userID) {
		return result.Fail[domain.Note](forbidden(id))
	}
	if in.IsShared != nil && !access.CanManage(userID) {
		return result.Fail[domain.Note](forbidden(id))
	}

	changes := store.Row{"updated_at": s.now().UTC().Format(time.RFC3339Nano)}
	if in.Title != nil {
		changes["title"] = *in.Title
	}
	if in.Content != nil {
		changes["body"] = *in.Content
	}
	if in.Symbol != nil {
		changes["ticker"] = strings.ToUpper(strings.TrimSpace(*in.Symbol))
	}
	if in.IsShared != nil {
		changes["is_public"] = *in.IsShared
	}

	res := executor.Execute(ctx, s.exec, "note.update", s.policy, func(ctx context.Context) ([]store.Row, error) {
		return s.rows.Update(ctx, tableNotes, changes, store.Filter{Column: "id", Value: id})
	})
	if res.IsError() {
		return result.Fail[domain.Note](res.Err)
	}
	if len(res.Data) == 0 {
		// The row vanished between the access check and the write.
		return result.Fail[domain.Note](
			apperrors.NotFound("NOTE_NOT_FOUND", "note not found").WithMeta("id", id))
	}
	return result.Ok(domain.NoteFromRow(domain.NoteFields.ToPublic(res.Data[0])))
}

// Delete removes the note and its collaborator records. Owner or
// admin-level collaborator only.
func (s *Service) Delete(ctx context.Context, userID, id string) result.Result[struct{}] {
	_, access, err := s.load(ctx, id)
	if err != nil {
		return result.Fail[struct{}](err)
	}
	if !access.CanManage(userID) {
		return result.Fail[struct{}](forbidden(id))
	}

	collabDel := executor.Execute(ctx, s.exec, "note.delete.collaborators", s.policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.rows.Delete(ctx, tableCollaborators, store.Filter{Column: "note_id", Value: id})
	})
	if collabDel.IsError() {
		return result.Fail[struct{}](collabDel.Err)
	}
	noteDel := executor.Execute(ctx, s.exec, "note.delete", s.policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.rows.Delete(ctx, tableNotes, store.Filter{Column: "id", Value: id})
	})
	if noteDel.IsError() {
		return result.Fail[struct{}](noteDel.Err)
	}
	return result.Ok(struct{}{})
}

// AddCollaborator grants or updates a user's permission on the note,
// last write wins on the permission level.
func (s *Service) AddCollaborator(ctx context.Context, userID, noteID string, in CollaboratorInput) result.Result[domain.Collaborator] {
	if err := s.validateInput(in); err != nil {
		return result.Fail[domain.Collaborator](err)
	}
	_, access, err := s.load(ctx, noteID)
	if err != nil {
		return result.Fail[domain.Collaborator](err)
	}
	if !access.CanManage(userID) {
		return result.Fail[domain.Collaborator](forbidden(noteID))
	}
	if in.UserID == access.OwnerID {
		return result.Fail[domain.Collaborator](
			apperrors.Validation("OWNER_IMPLICIT", "the owner cannot be added as a collaborator"))
	}

	for _, existing := range access.Collaborators {
		if existing.UserID != in.UserID {
			continue
		}
		res := executor.Execute(ctx, s.exec, "note.collaborator.update", s.policy, func(ctx context.Context) ([]store.Row, error) {
			return s.rows.Update(ctx, tableCollaborators, store.Row{"permission": string(in.Permission)},
				store.Filter{Column: "id", Value: existing.ID})
		})
		if res.IsError() {
			return result.Fail[domain.Collaborator](res.Err)
		}
		if len(res.Data) == 0 {
			return result.Fail[domain.Collaborator](
				apperrors.NotFound("COLLABORATOR_NOT_FOUND", "collaborator not found").WithMeta("id", existing.ID))
		}
		collab := domain.CollaboratorFromRow(domain.NoteCollaboratorFields.ToPublic(res.Data[0]))
		return result.OkMeta(collab, map[string]any{"updated": true})
	}

	row := store.Row{
		"note_id":    noteID,
		"user_id":    in.UserID,
		"email":      in.Email,
		"permission": string(in.Permission),
		"created_at": s.now().UTC().Format(time.RFC3339Nano),
	}
	res := executor.Execute(ctx, s.exec, "note.collaborator.add", s.policy, func(ctx context.Context) (store.Row, error) {
		return s.rows.Insert(ctx, tableCollaborators, row)
	})
	if res.IsError() {
		return result.Fail[domain.Collaborator](res.Err)
	}
	return result.Ok(domain.CollaboratorFromRow(domain.NoteCollaboratorFields.ToPublic(res.Data)))
}

// ListCollaborators returns the collaborator records for a note the caller
// can access.
func (s *Service) ListCollaborators(ctx context.Context, userID, noteID string) result.Result[[]domain.Collaborator] {
	_, access, err := s.load(ctx, noteID)
	if err != nil {
		return result.Fail[[]domain.Collaborator](err)
	}
	if !access.CanAccess(userID) {
		return result.Fail[[]domain.Collaborator](forbidden(noteID))
	}
	return result.Ok(access.Collaborators)
}

// RemoveCollaborator revokes a user's access. Owner or admin only.
func (s *Service) RemoveCollaborator(ctx context.Context, userID, noteID, collaboratorUserID string) result.Result[struct{}] {
	_, access, err := s.load(ctx, noteID)
	if err != nil {
		return result.Fail[struct{}](err)
	}
	if !access.CanManage(userID) {
		return result.Fail[struct{}](forbidden(noteID))
	}
	res := executor.Execute(ctx, s.exec, "note.collaborator.remove", s.policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.rows.Delete(ctx, tableCollaborators,
			store.Filter{Column: "note_id", Value: noteID},
			store.Filter{Column: "user_id", Value: collaboratorUserID})
	})
	if res.IsError() {
		return result.Fail[struct{}](res.Err)
	}
	return result.Ok(struct{}{})
}

func (s *Service) load(ctx context.Context, id string) (domain.Note, domain.Access, *apperrors.Error) {
	noteRes := executor.Execute(ctx, s.exec, "note.get", s.policy, func(ctx context.Context) ([]store.Row, error) {
		return s.rows.Select(ctx, tableNotes, store.Filter{Column: "id", Value: id})
	})
	if noteRes.IsError() {
		return domain.Note{}, domain.Access{}, noteRes.Err
	}
	if len(noteRes.Data) == 0 {
		return domain.Note{}, domain.Access{},
			apperrors.NotFound("NOTE_NOT_FOUND", "note not found").WithMeta("id", id)
	}
	note := domain.NoteFromRow(domain.NoteFields.ToPublic(noteRes.Data[0]))

	collabRes := executor.Execute(ctx, s.exec, "note.collaborators", s.policy, func(ctx context.Context) ([]store.Row, error) {
		return s.rows.Select(ctx, tableCollaborators, store.Filter{Column: "note_id", Value: id})
	})
	if collabRes.IsError() {
		return domain.Note{}, domain.Access{}, collabRes.Err
	}
	access := domain.Access{OwnerID: note.OwnerID, IsShared: note.IsShared}
	for _, row := range collabRes.Data {
		access.Collaborators = append(access.Collaborators,
			domain.CollaboratorFromRow(domain.NoteCollaboratorFields.ToPublic(row)))
	}
	return note, access, nil
}

func (s *Service) validateInput(in any) *apperrors.Error {
	if err := s.validate.Struct(in); err != nil {
		appErr := apperrors.Validation("INVALID_INPUT", "input failed validation")
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]any, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			appErr.WithMeta("fields", fields)
		}
		return appErr
	}
	return nil
}

func forbidden(id string) *apperrors.Error {
	return apperrors.Forbidden("ACCESS_DENIED", "caller may not perform this operation").
		WithMeta("id", id)
}
