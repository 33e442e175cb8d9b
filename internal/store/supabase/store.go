// Package supabase implements the engine's backend ports against a
// Supabase project: PostgREST for row operations and GoTrue for session
// primitives.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	apperrors "tickerdesk-backend/internal/errors"
	"tickerdesk-backend/internal/store"
)

// TokenSource supplies the current access token for row operations, so the
// backend's row-level security sees the calling user. The session manager
// implements it.
type TokenSource interface {
	AccessToken() string
}

// Store talks to one Supabase project.
type Store struct {
	client *supa.Client
	rest   *postgrest.Client
	tokens TokenSource
	logger *zap.Logger
}

// New creates a Store for the given project URL and anon key.
func New(projectURL, anonKey string, tokens TokenSource, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := supa.NewClient(projectURL, anonKey, nil)
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}

	rest := postgrest.NewClient(projectURL+"/rest/v1", "", map[string]string{
		"apikey": anonKey,
	})
	if rest.ClientError != nil {
		return nil, fmt.Errorf("create postgrest client: %w", rest.ClientError)
	}

	return &Store{
		client: client,
		rest:   rest,
		tokens: tokens,
		logger: logger.Named("supabase"),
	}, nil
}

// authed returns the postgrest client with the caller's current token set
// on it (SetAuthToken mutates the shared client's auth header). Without a
// token the anon role applies and RLS denies protected rows.
func (s *Store) authed() *postgrest.Client {
	if s.tokens == nil {
		return s.rest
	}
	token := s.tokens.AccessToken()
	if token == "" {
		return s.rest
	}
	return s.rest.SetAuthToken(token)
}

// Select implements store.RowStore.
func (s *Store) Select(ctx context.Context, table string, filters ...store.Filter) ([]store.Row, error) {
	fb := s.authed().From(table).Select("*", "", false)
	for _, f := range filters {
		fb = fb.Eq(f.Column, f.Value)
	}

	data, _, err := fb.ExecuteString()
	if err != nil {
		return nil, translateError(err)
	}

	var rows []store.Row
	if err := json.Unmarshal([]byte(data), &rows); err != nil {
		return nil, apperrors.Server("DECODE", "decode select response").WithCause(err)
	}
	return rows, nil
}

// Insert implements store.RowStore. The inserted row is returned so callers
// see server-assigned defaults.
func (s *Store) Insert(ctx context.Context, table string, row store.Row) (store.Row, error) {
	data, _, err := s.authed().From(table).
		Insert(row, false, "", "representation", "").
		ExecuteString()
	if err != nil {
		return nil, translateError(err)
	}

	var rows []store.Row
	if err := json.Unmarshal([]byte(data), &rows); err != nil {
		return nil, apperrors.Server("DECODE", "decode insert response").WithCause(err)
	}
	if len(rows) == 0 {
		return nil, &apperrors.BackendError{Code: "PGRST116", Message: "insert returned no rows"}
	}
	return rows[0], nil
}

// Update implements store.RowStore.
func (s *Store) Update(ctx context.Context, table string, changes store.Row, filters ...store.Filter) ([]store.Row, error) {
	fb := s.authed().From(table).Update(changes, "representation", "")
	for _, f := range filters {
		fb = fb.Eq(f.Column, f.Value)
	}

	data, _, err := fb.ExecuteString()
	if err != nil {
		return nil, translateError(err)
	}

	var rows []store.Row
	if err := json.Unmarshal([]byte(data), &rows); err != nil {
		return nil, apperrors.Server("DECODE", "decode update response").WithCause(err)
	}
	return rows, nil
}

// Delete implements store.RowStore.
func (s *Store) Delete(ctx context.Context, table string, filters ...store.Filter) error {
	fb := s.authed().From(table).Delete("", "")
	for _, f := range filters {
		fb = fb.Eq(f.Column, f.Value)
	}

	if _, _, err := fb.ExecuteString(); err != nil {
		return translateError(err)
	}
	return nil
}

// translateError normalizes a PostgREST failure into a BackendError so the
// classifier can match on its code. PostgREST reports errors as a JSON body
// with code/message/details fields.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
	}
	if jsonErr := json.Unmarshal([]byte(err.Error()), &payload); jsonErr == nil && payload.Code != "" {
		return &apperrors.BackendError{
			Code:    payload.Code,
			Message: payload.Message,
			Details: payload.Details,
		}
	}

	return &apperrors.BackendError{Message: err.Error()}
}

// sessionFromToken converts a GoTrue token response into the engine shape.
func sessionFromToken(accessToken, refreshToken string, expiresIn int, userID, email string) *store.Session {
	now := time.Now()
	return &store.Session{
		UserID:       userID,
		Email:        email,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    now.Add(time.Duration(expiresIn) * time.Second).Unix(),
		LastRefresh:  now.Unix(),
	}
}
