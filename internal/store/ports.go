// Package store defines the ports the engine depends on: authenticated row
// operations, session primitives, and the change-feed channel. The real
// implementations live in the supabase subpackage; the memory subpackage
// provides the local fallback source.
package store

import "context"

// Row is a single backend record keyed by storage column name.
type Row map[string]any

// Filter is an equality predicate on a storage column.
type Filter struct {
	Column string
	Value  string
}

// RowStore is the authenticated row-operation port. Implementations return
// *errors.BackendError (or taxonomy errors) so failures classify cleanly.
type RowStore interface {
	Select(ctx context.Context, table string, filters ...Filter) ([]Row, error)
	Insert(ctx context.Context, table string, row Row) (Row, error)
	Update(ctx context.Context, table string, changes Row, filters ...Filter) ([]Row, error)
	Delete(ctx context.Context, table string, filters ...Filter) error
}

// Session is the authoritative session snapshot held by the session manager.
type Session struct {
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"` // epoch seconds
	LastRefresh  int64  `json:"last_refresh"`
}

// SessionAPI is the backend's session-primitive port.
type SessionAPI interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// EventType enumerates change-feed notifications.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// ChangeEvent is one change-feed notification for a subscribed row scope.
type ChangeEvent struct {
	Type  EventType
	Table string
	Old   Row
	New   Row
}

// ChannelStatus reports connection transitions of a change-feed channel.
type ChannelStatus string

const (
	ChannelSubscribed ChannelStatus = "SUBSCRIBED"
	ChannelError      ChannelStatus = "CHANNEL_ERROR"
	ChannelClosed     ChannelStatus = "CLOSED"
)

// Channel is an open change-feed subscription. Close releases the
// underlying connection and must be safe to call more than once.
type Channel interface {
	Close() error
}

// ChangeFeed opens change-feed channels scoped to one table and filter.
type ChangeFeed interface {
	Open(ctx context.Context, table string, filter Filter,
		onEvent func(ChangeEvent), onStatus func(ChannelStatus)) (Channel, error)
}
