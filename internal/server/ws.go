package server

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ldi/metis/internal/errors"
	"github.com/ldi/metis/internal/events"
)

const (
	registrationTimeout = 30 * time.Second
	maxMessageSize      = 64 << 10
)

// Message types a client may send after registering.
const (
	msgPing        = "ping"
	msgSubscribe   = "subscribe"
	msgUnsubscribe = "unsubscribe"
)

// wsRegistration is the first frame a client sends.
type wsRegistration struct {
	ClientID    string   `json:"client_id"`
	SubscribeTo []string `json:"subscribe_to"`
}

type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type wsReply struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type wsSubscription struct {
	EventTypes []string `json:"event_types"`
}

// wsClient is the hub sink for one connection. gorilla connections allow
// one concurrent writer, so every write goes through mu.
type wsClient struct {
	conn    *websocket.Conn
	timeout time.Duration

	mu        sync.Mutex
	closeOnce sync.Once
}

func (c *wsClient) Deliver(ctx context.Context, e events.Event) error {
	return c.write(ctx, e)
}

func (c *wsClient) write(ctx context.Context, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

func (c *wsClient) reply(typ string, data any) error {
	return c.write(context.Background(), wsReply{Type: typ, Data: data})
}

func (c *wsClient) replyError(err error) {
	_ = c.reply("error", map[string]any{"message": err.Error(), "status_code": statusFor(err)})
}

func (c *wsClient) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.conn.Close() })
	return err
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.isAllowedOrigin(origin)
		},
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	client := &wsClient{conn: conn, timeout: s.wsWriteTimeout}
	defer client.Close()
	conn.SetReadLimit(maxMessageSize)

	_ = conn.SetReadDeadline(time.Now().Add(registrationTimeout))
	var reg wsRegistration
	if err := conn.ReadJSON(&reg); err != nil {
		client.replyError(errors.InvalidArgumentf("expected registration message: %v", err))
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	clientID := reg.ClientID
	if clientID == "" {
		clientID = uuid.New().String()
	}
	types, err := parseEventTypes(reg.SubscribeTo)
	if err != nil {
		client.replyError(err)
		return
	}

	if err := s.hub.Connect(clientID, client); err != nil {
		client.replyError(err)
		return
	}
	defer s.hub.Disconnect(clientID)

	if err := client.reply("registration_success", map[string]any{
		"client_id":     clientID,
		"subscriptions": uniqueSorted(types),
	}); err != nil {
		return
	}
	if err := s.hub.Subscribe(clientID, types...); err != nil {
		client.replyError(err)
		return
	}
	s.logger.Info("websocket client registered", "client_id", clientID, "event_types", types)

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read failed", "client_id", clientID, "error", err)
			}
			return
		}
		if err := s.handleClientMessage(client, clientID, msg); err != nil {
			return
		}
	}
}

// handleClientMessage answers one frame. A returned error means the
// connection is unusable.
func (s *Server) handleClientMessage(client *wsClient, clientID string, msg wsMessage) error {
	switch msg.Type {
	case msgPing:
		return client.reply("pong", map[string]any{})

	case msgSubscribe, msgUnsubscribe:
		var sub wsSubscription
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &sub); err != nil {
				client.replyError(errors.InvalidArgumentf("malformed %s data: %v", msg.Type, err))
				return nil
			}
		}
		types, err := parseEventTypes(sub.EventTypes)
		if err == nil {
			if msg.Type == msgSubscribe {
				err = s.hub.Subscribe(clientID, types...)
			} else {
				err = s.hub.Unsubscribe(clientID, types...)
			}
		}
		if err != nil {
			client.replyError(err)
			return nil
		}
		current, err := s.hub.Subscriptions(clientID)
		if err != nil {
			return err
		}
		return client.reply("subscriptions_updated", map[string]any{"subscriptions": current})

	default:
		client.replyError(errors.InvalidArgumentf("unknown message type %q", msg.Type))
		return nil
	}
}

func parseEventTypes(raw []string) ([]events.Type, error) {
	out := make([]events.Type, 0, len(raw))
	for _, r := range raw {
		t := events.Type(r)
		if !t.Valid() {
			return nil, errors.InvalidArgumentf("unknown event type %q", r)
		}
		out = append(out, t)
	}
	return out, nil
}

func uniqueSorted(types []events.Type) []events.Type {
	out := slices.Clone(types)
	slices.Sort(out)
	return slices.Compact(out)
}
