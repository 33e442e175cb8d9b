package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"tickerdesk-backend/internal/store"
)

const (
	heartbeatInterval = 30 * time.Second
	joinTimeout       = 10 * time.Second
)

// phoenixMessage is the wire frame of the realtime protocol.
type phoenixMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

type joinPayload struct {
	Config joinConfig `json:"config"`
}

type joinConfig struct {
	PostgresChanges []postgresChangesConfig `json:"postgres_changes"`
}

type postgresChangesConfig struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

type changePayload struct {
	Data struct {
		Type      string    `json:"type"`
		Table     string    `json:"table"`
		Record    store.Row `json:"record"`
		OldRecord store.Row `json:"old_record"`
	} `json:"data"`
}

type replyPayload struct {
	Status string `json:"status"`
}

// Feed opens realtime change channels against the project's realtime
// endpoint. It implements store.ChangeFeed.
type Feed struct {
	wsURL   string
	anonKey string
	tokens  TokenSource
	logger  *zap.Logger
}

// NewFeed builds a change feed for the given project URL. tokens may be
// nil, in which case channels join with the anon key only.
func NewFeed(projectURL, anonKey string, tokens TokenSource, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	wsURL := strings.Replace(projectURL, "http", "ws", 1) +
		"/realtime/v1/websocket?apikey=" + anonKey + "&vsn=1.0.0"
	return &Feed{
		wsURL:   wsURL,
		anonKey: anonKey,
		tokens:  tokens,
		logger:  logger.Named("realtime_feed"),
	}
}

// Open dials the realtime endpoint and joins one postgres_changes channel
// scoped to table and filter. Status transitions and row events are
// delivered on the read goroutine until the channel closes or errors.
func (f *Feed) Open(ctx context.Context, table string, filter store.Filter,
	onEvent func(store.ChangeEvent), onStatus func(store.ChannelStatus)) (store.Channel, error) {

	conn, _, err := websocket.Dial(ctx, f.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial realtime: %w", err)
	}

	chCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ch := &channel{
		conn:   conn,
		topic:  fmt.Sprintf("realtime:public:%s:%s", table, filter.Value),
		cancel: cancel,
		logger: f.logger.With(zap.String("table", table), zap.String("entity_id", filter.Value)),
	}

	cfg := postgresChangesConfig{Event: "*", Schema: "public", Table: table}
	if filter.Column != "" {
		cfg.Filter = fmt.Sprintf("%s=eq.%s", filter.Column, filter.Value)
	}
	payload, err := json.Marshal(joinPayload{Config: joinConfig{
		PostgresChanges: []postgresChangesConfig{cfg},
	}})
	if err != nil {
		cancel()
		conn.Close(websocket.StatusInternalError, "encode join")
		return nil, err
	}

	joinCtx, joinCancel := context.WithTimeout(chCtx, joinTimeout)
	defer joinCancel()
	if err := ch.send(joinCtx, phoenixMessage{
		Topic:   ch.topic,
		Event:   "phx_join",
		Payload: payload,
		Ref:     ch.nextRef(),
	}); err != nil {
		cancel()
		conn.Close(websocket.StatusInternalError, "join failed")
		return nil, fmt.Errorf("join channel: %w", err)
	}

	// Row-level security on the feed follows the user token, not the anon
	// key, so pass it along when we have one.
	if f.tokens != nil {
		if token := f.tokens.AccessToken(); token != "" {
			tokenPayload, _ := json.Marshal(map[string]string{"access_token": token})
			if err := ch.send(joinCtx, phoenixMessage{
				Topic:   ch.topic,
				Event:   "access_token",
				Payload: tokenPayload,
				Ref:     ch.nextRef(),
			}); err != nil {
				f.logger.Warn("sending access token failed", zap.Error(err))
			}
		}
	}

	go ch.readLoop(chCtx, onEvent, onStatus)
	go ch.heartbeatLoop(chCtx)
	return ch, nil
}

// channel is one joined realtime topic over a dedicated connection.
type channel struct {
	conn   *websocket.Conn
	topic  string
	cancel context.CancelFunc
	logger *zap.Logger

	refMu sync.Mutex
	ref   int

	closeOnce sync.Once
	writeMu   sync.Mutex
}

func (c *channel) nextRef() string {
	c.refMu.Lock()
	defer c.refMu.Unlock()
	c.ref++
	return strconv.Itoa(c.ref)
}

func (c *channel) send(ctx context.Context, msg phoenixMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsjson.Write(ctx, c.conn, msg)
}

// Close leaves the topic and tears down the connection. Safe to call
// more than once.
func (c *channel) Close() error {
	c.closeOnce.Do(func() {
		leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = c.send(leaveCtx, phoenixMessage{
			Topic:   c.topic,
			Event:   "phx_leave",
			Payload: json.RawMessage(`{}`),
			Ref:     c.nextRef(),
		})
		leaveCancel()
		c.cancel()
		c.conn.Close(websocket.StatusNormalClosure, "unsubscribed")
	})
	return nil
}

func (c *channel) readLoop(ctx context.Context, onEvent func(store.ChangeEvent), onStatus func(store.ChannelStatus)) {
	for {
		var msg phoenixMessage
		if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
			if ctx.Err() != nil {
				onStatus(store.ChannelClosed)
			} else {
				c.logger.Warn("realtime read failed", zap.Error(err))
				onStatus(store.ChannelError)
			}
			return
		}
		switch msg.Event {
		case "phx_reply":
			var reply replyPayload
			if err := json.Unmarshal(msg.Payload, &reply); err != nil {
				continue
			}
			if msg.Topic != c.topic {
				continue
			}
			if reply.Status == "ok" {
				onStatus(store.ChannelSubscribed)
			} else {
				c.logger.Warn("channel join rejected", zap.String("status", reply.Status))
				onStatus(store.ChannelError)
				return
			}
		case "phx_error":
			onStatus(store.ChannelError)
			return
		case "phx_close":
			onStatus(store.ChannelClosed)
			return
		case "postgres_changes":
			var change changePayload
			if err := json.Unmarshal(msg.Payload, &change); err != nil {
				c.logger.Warn("malformed change event", zap.Error(err))
				continue
			}
			onEvent(store.ChangeEvent{
				Type:  store.EventType(change.Data.Type),
				Table: change.Data.Table,
				Old:   change.Data.OldRecord,
				New:   change.Data.Record,
			})
		}
	}
}

func (c *channel) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hbCtx, hbCancel := context.WithTimeout(ctx, 5*time.Second)
			err := c.send(hbCtx, phoenixMessage{
				Topic:   "phoenix",
				Event:   "heartbeat",
				Payload: json.RawMessage(`{}`),
				Ref:     c.nextRef(),
			})
			hbCancel()
			if err != nil {
				return
			}
		}
	}
}
