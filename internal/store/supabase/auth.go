package supabase

import (
	"context"
	"errors"
	"net/url"

	"github.com/supabase-community/gotrue-go/types"

	apperrors "tickerdesk-backend/internal/errors"
	"tickerdesk-backend/internal/store"
)

// SignIn implements store.SessionAPI via the password grant.
func (s *Store) SignIn(ctx context.Context, email, password string) (*store.Session, error) {
	resp, err := s.client.Auth.Token(types.TokenRequest{
		GrantType: "password",
		Email:     email,
		Password:  password,
	})
	if err != nil {
		return nil, apperrors.Unauthorized("SIGN_IN_FAILED", "invalid credentials").WithCause(err)
	}

	return sessionFromToken(resp.AccessToken, resp.RefreshToken, resp.ExpiresIn,
		resp.User.ID.String(), resp.User.Email), nil
}

// Refresh implements store.SessionAPI via the refresh-token grant.
func (s *Store) Refresh(ctx context.Context, refreshToken string) (*store.Session, error) {
	resp, err := s.client.Auth.Token(types.TokenRequest{
		GrantType:    "refresh_token",
		RefreshToken: refreshToken,
	})
	if err != nil {
		// Only an answer from the backend is a verdict on the token. A
		// transport failure stays retryable; the token may still be good.
		var netErr *url.Error
		if errors.As(err, &netErr) {
			return nil, apperrors.Server("REFRESH_UNREACHABLE", "session refresh unreachable").WithCause(err)
		}
		return nil, apperrors.Unauthorized("REFRESH_REJECTED", "session refresh rejected").WithCause(err)
	}

	return sessionFromToken(resp.AccessToken, resp.RefreshToken, resp.ExpiresIn,
		resp.User.ID.String(), resp.User.Email), nil
}

// SignOut implements store.SessionAPI.
func (s *Store) SignOut(ctx context.Context, accessToken string) error {
	if err := s.client.Auth.WithToken(accessToken).Logout(); err != nil {
		return apperrors.Server("SIGN_OUT_FAILED", "sign out failed").WithCause(err)
	}
	return nil
}
