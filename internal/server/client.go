package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/ldi/metis/internal/errors"
	"github.com/ldi/metis/internal/events"
)

// Watcher is a WebSocket client that registers with a metis server and
// streams the events it is subscribed to.
type Watcher struct {
	conn     *websocket.Conn
	clientID string
	subs     []string
	events   chan events.Event

	mu  sync.Mutex
	err error

	done      chan struct{}
	closeOnce sync.Once
}

// WebSocketURL turns an http(s) base address into the ws(s) address of the
// event stream.
func WebSocketURL(base, path string) string {
	base = strings.TrimSuffix(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	case !strings.HasPrefix(base, "ws://") && !strings.HasPrefix(base, "wss://"):
		base = "ws://" + base
	}
	if path == "" {
		path = DefaultWebSocketPath
	}
	return base + path
}

// Watch dials url, registers clientID (the server assigns one when empty)
// for types and starts streaming. The stream ends when ctx is done, the
// server goes away or Close is called.
func Watch(ctx context.Context, url, clientID string, types ...events.Type) (*Watcher, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Upstream("dial "+url, err)
	}

	subscribe := make([]string, len(types))
	for i, t := range types {
		subscribe[i] = string(t)
	}
	if err := conn.WriteJSON(wsRegistration{ClientID: clientID, SubscribeTo: subscribe}); err != nil {
		conn.Close()
		return nil, errors.Upstream("send registration", err)
	}

	var reply wsMessage
	if err := conn.ReadJSON(&reply); err != nil {
		conn.Close()
		return nil, errors.Upstream("read registration reply", err)
	}
	if reply.Type != "registration_success" {
		conn.Close()
		return nil, replyError(reply)
	}
	var reg struct {
		ClientID      string   `json:"client_id"`
		Subscriptions []string `json:"subscriptions"`
	}
	if err := json.Unmarshal(reply.Data, &reg); err != nil {
		conn.Close()
		return nil, errors.Upstream("decode registration reply", err)
	}

	w := &Watcher{
		conn:     conn,
		clientID: reg.ClientID,
		subs:     reg.Subscriptions,
		events:   make(chan events.Event, 64),
		done:     make(chan struct{}),
	}
	go w.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			w.Close()
		case <-w.done:
		}
	}()
	return w, nil
}

func replyError(reply wsMessage) error {
	var body struct {
		Message    string `json:"message"`
		StatusCode int    `json:"status_code"`
	}
	_ = json.Unmarshal(reply.Data, &body)
	if body.Message == "" {
		body.Message = fmt.Sprintf("unexpected %q reply", reply.Type)
	}
	if body.StatusCode >= 400 && body.StatusCode < 500 {
		return errors.InvalidArgumentf("registration rejected: %s", body.Message)
	}
	return errors.Upstream("registration rejected: "+body.Message, nil)
}

func (w *Watcher) readLoop() {
	defer close(w.events)
	for {
		var e events.Event
		if err := w.conn.ReadJSON(&e); err != nil {
			select {
			case <-w.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					w.setErr(err)
				}
			}
			return
		}
		// control replies share the connection with events
		if e.Type == events.All || !e.Type.Valid() {
			continue
		}
		select {
		case w.events <- e:
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}

// Events is closed when the stream ends.
func (w *Watcher) Events() <-chan events.Event {
	return w.events
}

// Err explains an abnormal end of the stream. It is nil while streaming and
// after a clean close.
func (w *Watcher) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *Watcher) ClientID() string {
	return w.clientID
}

func (w *Watcher) Subscriptions() []string {
	return w.subs
}

func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		_ = w.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = w.conn.Close()
	})
	return err
}
