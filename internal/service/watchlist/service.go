// Package watchlist implements the collection aggregate's operations:
// owned lists of symbols with optional sharing and collaborators. Every
// operation validates input, checks the caller's permission against the
// entity's access view, issues its backend calls through the resilient
// executor, and returns a Result.
package watchlist

import (
	"context"
	"errors"
	"sort"
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
	tableWatchlists    = "watchlists"
	tableItems         = "watchlist_items"
	tableCollaborators = "watchlist_collaborators"
)

// Service executes watchlist operations against the row store.
type Service struct {
	rows     store.RowStore
	exec     *executor.Executor
	policy   executor.Policy
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// NewService builds the service. The executor and policy are shared with
// the other entity services.
func NewService(rows store.RowStore, exec *executor.Executor, policy executor.Policy, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		rows:     rows,
		exec:     exec,
		policy:   policy,
		validate: validator.New(),
		logger:   logger.Named("watchlist_service"),
		now:      time.Now,
	}
}

// CreateInput is the payload for Create.
type CreateInput struct {
	Name        string `json:"name" validate:"required,min=1,max=100"`
	Description string `json:"description" validate:"max=500"`
	IsShared    bool   `json:"is_shared"`
}

// UpdateInput carries partial updates; nil fields are left unchanged.
type UpdateInput struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	IsShared    *bool   `json:"is_shared"`
}

// AddItemInput is the payload for AddItem.
type AddItemInput struct {
	Symbol string `json:"symbol" validate:"required,min=1,max=12"`
}

// CollaboratorInput is the payload for AddCollaborator.
type CollaboratorInput struct {
	UserID     string            `json:"user_id" validate:"required"`
	Email      string            `json:"email" validate:"required,email"`
	Permission domain.Permission `json:"permission" validate:"required,oneof=view edit admin"`
}

// Create inserts a new watchlist owned by userID.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) result.Result[domain.Watchlist] {
	if err := s.validateInput(in); err != nil {
		return result.Fail[domain.Watchlist](err)
	}

	now := s.now().UTC().Format(time.RFC3339Nano)
	row := store.Row{
		"user_id":     userID,
		"title":       in.Name,
		"description": in.Description,
		"is_public":   in.IsShared,
		"created_at":  now,
		"updated_at":  now,
	}

	res := executor.Execute(ctx, s.exec, "watchlist.create", s.policy, func(ctx context.Context) (store.Row, error) {
		return s.rows.Insert(ctx, tableWatchlists, row)
	})
	if res.IsError() {
		return result.Fail[domain.Watchlist](res.Err)
	}
	return result.Ok(domain.WatchlistFromRow(domain.WatchlistFields.ToPublic(res.Data)))
}

// Get loads one watchlist with its items and collaborators. The caller
// must be the owner, a collaborator, or the list must be shared.
func (s *Service) Get(ctx context.Context, userID, id string) result.Result[domain.Watchlist] {
	wl, access, err := s.load(ctx, id)
	if err != nil {
		return result.Fail[domain.Watchlist](err)
	}
	if !access.CanAccess(userID) {
		return result.Fail[domain.Watchlist](forbidden(id))
	}

	itemsRes := executor.Execute(ctx, s.exec, "watchlist.items", s.policy, func(ctx context.Context) ([]store.Row, error) {
		return s.rows.Select(ctx, tableItems, store.Filter{Column: "list_id", Value: id})
	})
	if itemsRes.IsError() {
		return result.Fail[domain.Watchlist](itemsRes.Err)
	}
	for _, row := range itemsRes.Data {
		wl.Items = append(wl.Items, domain.ItemFromRow(domain.ItemFields.ToPublic(row)))
	}
	sortItems(wl.Items)
	wl.Collaborators = access.Collaborators
	return result.Ok(wl)
}

// List unions watchlists owned by userID with those shared with them,
// de-duplicated by id. Either sub-query may fail without aborting the
// union; partial results carry a meta flag.
func (s *Service) List(ctx context.Context, userID string) result.Result[[]domain.Watchlist] {
	seen := make(map[string]bool)
	var out []domain.Watchlist
	partial := false
	var firstErr *apperrors.Error

	ownedRes := executor.Execute(ctx, s.exec, "watchlist.list.owned", s.policy, func(ctx context.Context) ([]store.Row, error) {
		return s.rows.Select(ctx, tableWatchlists, store.Filter{Column: "user_id", Value: userID})
	})
	if ownedRes.IsError() {
		partial = true
		firstErr = ownedRes.Err
		s.logger.Warn("owned sub-query failed", zap.String("user_id", userID), zap.Error(ownedRes.Err))
	} else {
		for _, row := range ownedRes.Data {
			wl := domain.WatchlistFromRow(domain.WatchlistFields.ToPublic(row))
			seen[wl.ID] = true
			out = append(out, wl)
		}
	}

	collabRes := executor.Execute(ctx, s.exec, "watchlist.list.shared", s.policy, func(ctx context.Context) ([]store.Row, error) {
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
			listID := domain.CollaboratorFromRow(domain.WatchlistCollaboratorFields.ToPublic(row)).EntityID
			if seen[listID] {
				continue
			}
			wlRes := executor.Execute(ctx, s.exec, "watchlist.list.shared.load", s.policy, func(ctx context.Context) ([]store.Row, error) {
				return s.rows.Select(ctx, tableWatchlists, store.Filter{Column: "id", Value: listID})
			})
			if wlRes.IsError() || len(wlRes.Data) == 0 {
				partial = partial || wlRes.IsError()
				continue
			}
			wl := domain.WatchlistFromRow(domain.WatchlistFields.ToPublic(wlRes.Data[0]))
			seen[wl.ID] = true
			out = append(out, wl)
		}
	}

	if out == nil && ownedRes.IsError() && collabRes.IsError() {
		return result.Fail[[]domain.Watchlist](firstErr)
	}
	if partial {
		return result.OkMeta(out, map[string]any{"partial": true})
	}
	return result.Ok(out)
}

// Update applies partial changes. Payload fields need modify permission;
// flipping the shared flag needs manage permission.
func (s *Service) Update(ctx context.Context, userID, id string, in UpdateInput) result.Result[domain.Watchlist] {
	if err := s.validateInput(in); err != nil {
		return result.Fail[domain.Watchlist](err)
	}
	_, access, err := s.load(ctx, id)
	if err != nil {
		return result.Fail[domain.Watchlist](err)
	}
	if !access.CanModify(userID) {
		return result.Fail[domain.Watchlist](forbidden(id))
	}
	if in.IsShared != nil && !access.CanManage(userID) {
		return result.Fail[domain.Watchlist](forbidden(id))
	}

	changes := store.Row{"updated_at": s.now().UTC().Format(time.RFC3339Nano)}
	if in.Name != nil {
		changes["title"] = *in.Name
	}
	if in.Description != nil {
		changes["description"] = *in.Description
	}
	if in.IsShared != nil {
		changes["is_public"] = *in.IsShared
	}

	res := executor.Execute(ctx, s.exec, "watchlist.update", s.policy, func(ctx context.Context) ([]store.Row, error) {
		return s.rows.Update(ctx, tableWatchlists, changes, store.Filter{Column: "id", Value: id})
	})
	if res.IsError() {
		return result.Fail[domain.Watchlist](res.Err)
	}
	if len(res.Data) == 0 {
		// The row vanished between the access check and the write.
		return result.Fail[domain.Watchlist](
			apperrors.NotFound("WATCHLIST_NOT_FOUND", "watchlist not found").WithMeta("id", id))
	}
	return result.Ok(domain.WatchlistFromRow(domain.WatchlistFields.ToPublic(res.Data[0])))
}

// Delete removes the watchlist with its items and collaborator records.
// Owner or admin-level collaborator only.
func (s *Service) Delete(ctx context.Context, userID, id string) result.Result[struct{}] {
	_, access, err := s.load(ctx, id)
	if err != nil {
		return result.Fail[struct{}](err)
	}
	if !access.CanManage(userID) {
		return result.Fail[struct{}](forbidden(id))
	}

	for _, del := range []struct {
		op     string
		table  string
		column string
	}{
		{"watchlist.delete.items", tableItems, "list_id"},
		{"watchlist.delete.collaborators", tableCollaborators, "watchlist_id"},
		{"watchlist.delete", tableWatchlists, "id"},
	} {
		res := executor.Execute(ctx, s.exec, del.op, s.policy, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.rows.Delete(ctx, del.table, store.Filter{Column: del.column, Value: id})
		})
		if res.IsError() {
			return result.Fail[struct{}](res.Err)
		}
	}
	return result.Ok(struct{}{})
}

// AddItem appends a symbol to the watchlist. The (watchlist, symbol) pair
// is the natural key: a duplicate is rejected with validation, and the
// conflicting item's id is returned in metadata instead of upserting.
func (s *Service) AddItem(ctx context.Context, userID, watchlistID string, in AddItemInput) result.Result[domain.WatchlistItem] {
	if err := s.validateInput(in); err != nil {
		return result.Fail[domain.WatchlistItem](err)
	}
	_, access, err := s.load(ctx, watchlistID)
	if err != nil {
		return result.Fail[domain.WatchlistItem](err)
	}
	if !access.CanModify(userID) {
		return result.Fail[domain.WatchlistItem](forbidden(watchlistID))
	}

	symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))

	existingRes := executor.Execute(ctx, s.exec, "watchlist.item.lookup", s.policy, func(ctx context.Context) ([]store.Row, error) {
		return s.rows.Select(ctx, tableItems, store.Filter{Column: "list_id", Value: watchlistID})
	})
	if existingRes.IsError() {
		return result.Fail[domain.WatchlistItem](existingRes.Err)
	}
	maxPosition := -1
	for _, row := range existingRes.Data {
		item := domain.ItemFromRow(domain.ItemFields.ToPublic(row))
		if item.Symbol == symbol {
			return result.Fail[domain.WatchlistItem](
				apperrors.Validation("DUPLICATE_SYMBOL", "symbol already on watchlist").
					WithMeta("existing_item_id", item.ID).
					WithMeta("symbol", symbol))
		}
		if item.Position > maxPosition {
			maxPosition = item.Position
		}
	}

	row := store.Row{
		"list_id":    watchlistID,
		"ticker":     symbol,
		"sort_order": maxPosition + 1,
		"created_at": s.now().UTC().Format(time.RFC3339Nano),
	}
	res := executor.Execute(ctx, s.exec, "watchlist.item.add", s.policy, func(ctx context.Context) (store.Row, error) {
		return s.rows.Insert(ctx, tableItems, row)
	})
	if res.IsError() {
		return result.Fail[domain.WatchlistItem](res.Err)
	}
	return result.Ok(domain.ItemFromRow(domain.ItemFields.ToPublic(res.Data)))
}

// RemoveItem deletes one item by id.
func (s *Service) RemoveItem(ctx context.Context, userID, watchlistID, itemID string) result.Result[struct{}] {
	_, access, err := s.load(ctx, watchlistID)
	if err != nil {
		return result.Fail[struct{}](err)
	}
	if !access.CanModify(userID) {
		return result.Fail[struct{}](forbidden(watchlistID))
	}
	res := executor.Execute(ctx, s.exec, "watchlist.item.remove", s.policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.rows.Delete(ctx, tableItems,
			store.Filter{Column: "id", Value: itemID},
			store.Filter{Column: "list_id", Value: watchlistID})
	})
	if res.IsError() {
		return result.Fail[struct{}](res.Err)
	}
	return result.Ok(struct{}{})
}

// MoveItem changes an item's position within the list.
func (s *Service) MoveItem(ctx context.Context, userID, watchlistID, itemID string, position int) result.Result[domain.WatchlistItem] {
	if position < 0 {
		return result.Fail[domain.WatchlistItem](
			apperrors.Validation("INVALID_POSITION", "position must not be negative"))
	}
	_, access, err := s.load(ctx, watchlistID)
	if err != nil {
		return result.Fail[domain.WatchlistItem](err)
	}
	if !access.CanModify(userID) {
		return result.Fail[domain.WatchlistItem](forbidden(watchlistID))
	}
	res := executor.Execute(ctx, s.exec, "watchlist.item.move", s.policy, func(ctx context.Context) ([]store.Row, error) {
		return s.rows.Update(ctx, tableItems, store.Row{"sort_order": position},
			store.Filter{Column: "id", Value: itemID},
			store.Filter{Column: "list_id", Value: watchlistID})
	})
	if res.IsError() {
		return result.Fail[domain.WatchlistItem](res.Err)
	}
	if len(res.Data) == 0 {
		return result.Fail[domain.WatchlistItem](
			apperrors.NotFound("ITEM_NOT_FOUND", "item not found").WithMeta("id", itemID))
	}
	return result.Ok(domain.ItemFromRow(domain.ItemFields.ToPublic(res.Data[0])))
}

// AddCollaborator grants or updates a user's permission on the list.
// Granting twice updates the existing record in place, last write wins.
func (s *Service) AddCollaborator(ctx context.Context, userID, watchlistID string, in CollaboratorInput) result.Result[domain.Collaborator] {
	if err := s.validateInput(in); err != nil {
		return result.Fail[domain.Collaborator](err)
	}
	_, access, err := s.load(ctx, watchlistID)
	if err != nil {
		return result.Fail[domain.Collaborator](err)
	}
	if !access.CanManage(userID) {
		return result.Fail[domain.Collaborator](forbidden(watchlistID))
	}
	if in.UserID == access.OwnerID {
		return result.Fail[domain.Collaborator](
			apperrors.Validation("OWNER_IMPLICIT", "the owner cannot be added as a collaborator"))
	}

	existing := findCollaborator(access.Collaborators, in.UserID)
	if existing != nil {
		res := executor.Execute(ctx, s.exec, "watchlist.collaborator.update", s.policy, func(ctx context.Context) ([]store.Row, error) {
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
		collab := domain.CollaboratorFromRow(domain.WatchlistCollaboratorFields.ToPublic(res.Data[0]))
		return result.OkMeta(collab, map[string]any{"updated": true})
	}

	row := store.Row{
		"watchlist_id": watchlistID,
		"user_id":      in.UserID,
		"email":        in.Email,
		"permission":   string(in.Permission),
		"created_at":   s.now().UTC().Format(time.RFC3339Nano),
	}
	res := executor.Execute(ctx, s.exec, "watchlist.collaborator.add", s.policy, func(ctx context.Context) (store.Row, error) {
		return s.rows.Insert(ctx, tableCollaborators, row)
	})
	if res.IsError() {
		return result.Fail[domain.Collaborator](res.Err)
	}
	return result.Ok(domain.CollaboratorFromRow(domain.WatchlistCollaboratorFields.ToPublic(res.Data)))
}

// ListCollaborators returns the collaborator records for a watchlist the
// caller can access.
func (s *Service) ListCollaborators(ctx context.Context, userID, watchlistID string) result.Result[[]domain.Collaborator] {
	_, access, err := s.load(ctx, watchlistID)
	if err != nil {
		return result.Fail[[]domain.Collaborator](err)
	}
	if !access.CanAccess(userID) {
		return result.Fail[[]domain.Collaborator](forbidden(watchlistID))
	}
	return result.Ok(access.Collaborators)
}

// RemoveCollaborator revokes a user's access. Owner or admin only.
func (s *Service) RemoveCollaborator(ctx context.Context, userID, watchlistID, collaboratorUserID string) result.Result[struct{}] {
	_, access, err := s.load(ctx, watchlistID)
	if err != nil {
		return result.Fail[struct{}](err)
	}
	if !access.CanManage(userID) {
		return result.Fail[struct{}](forbidden(watchlistID))
	}
	res := executor.Execute(ctx, s.exec, "watchlist.collaborator.remove", s.policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.rows.Delete(ctx, tableCollaborators,
			store.Filter{Column: "watchlist_id", Value: watchlistID},
			store.Filter{Column: "user_id", Value: collaboratorUserID})
	})
	if res.IsError() {
		return result.Fail[struct{}](res.Err)
	}
	return result.Ok(struct{}{})
}

// load fetches the watchlist row and its collaborator rows and builds the
// access view the permission checks run against.
func (s *Service) load(ctx context.Context, id string) (domain.Watchlist, domain.Access, *apperrors.Error) {
	wlRes := executor.Execute(ctx, s.exec, "watchlist.get", s.policy, func(ctx context.Context) ([]store.Row, error) {
		return s.rows.Select(ctx, tableWatchlists, store.Filter{Column: "id", Value: id})
	})
	if wlRes.IsError() {
		return domain.Watchlist{}, domain.Access{}, wlRes.Err
	}
	if len(wlRes.Data) == 0 {
		return domain.Watchlist{}, domain.Access{},
			apperrors.NotFound("WATCHLIST_NOT_FOUND", "watchlist not found").WithMeta("id", id)
	}
	wl := domain.WatchlistFromRow(domain.WatchlistFields.ToPublic(wlRes.Data[0]))

	collabRes := executor.Execute(ctx, s.exec, "watchlist.collaborators", s.policy, func(ctx context.Context) ([]store.Row, error) {
		return s.rows.Select(ctx, tableCollaborators, store.Filter{Column: "watchlist_id", Value: id})
	})
	if collabRes.IsError() {
		return domain.Watchlist{}, domain.Access{}, collabRes.Err
	}
	access := domain.Access{OwnerID: wl.OwnerID, IsShared: wl.IsShared}
	for _, row := range collabRes.Data {
		access.Collaborators = append(access.Collaborators,
			domain.CollaboratorFromRow(domain.WatchlistCollaboratorFields.ToPublic(row)))
	}
	return wl, access, nil
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

func findCollaborator(collaborators []domain.Collaborator, userID string) *domain.Collaborator {
	for i := range collaborators {
		if collaborators[i].UserID == userID {
			return &collaborators[i]
		}
	}
	return nil
}

func forbidden(id string) *apperrors.Error {
	return apperrors.Forbidden("ACCESS_DENIED", "caller may not perform this operation").
		WithMeta("id", id)
}

func sortItems(items []domain.WatchlistItem) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].Position < items[j].Position
	})
}
