package events

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ldi/metis/internal/errors"
)

const (
	DefaultQueueSize       = 64
	DefaultDeliveryTimeout = 5 * time.Second
)

// ErrQueueFull is the removal reason for a subscriber that fell too far
// behind.
var ErrQueueFull = errors.New("subscriber queue full")

// Sink receives events for one subscriber. Deliver must honour ctx; the hub
// gives up on a delivery once ctx is done.
//
// A sink that also implements io.Closer is closed when the hub removes the
// subscriber after a failed delivery.
type Sink interface {
	Deliver(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Deliver(ctx context.Context, e Event) error { return f(ctx, e) }

type subscriber struct {
	id        string
	sink      Sink
	interests map[Type]struct{}
	queue     chan Event
	done      chan struct{}
}

func (s *subscriber) wants(t Type) bool {
	if _, ok := s.interests[All]; ok {
		return true
	}
	_, ok := s.interests[t]
	return ok
}

type Hub struct {
	mu   sync.RWMutex
	subs map[string]*subscriber

	// pubMu keeps sequence numbers in enqueue order.
	pubMu sync.Mutex
	seq   atomic.Uint64

	queueSize int
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time

	wg     sync.WaitGroup
	closed bool
}

type Option func(*Hub)

func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

func WithDeliveryTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subs:      make(map[string]*subscriber),
		queueSize: DefaultQueueSize,
		timeout:   DefaultDeliveryTimeout,
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Connect registers a subscriber with an empty interest set and starts its
// delivery goroutine.
func (h *Hub) Connect(id string, sink Sink, types ...Type) error {
	if id == "" {
		return errors.InvalidArgumentf("subscriber id is required")
	}
	if sink == nil {
		return errors.InvalidArgumentf("subscriber %s has no sink", id)
	}
	if err := validateTypes(types); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return fmt.Errorf("event hub is closed")
	}
	if _, exists := h.subs[id]; exists {
		return errors.InvalidArgumentf("subscriber %s already connected", id)
	}

	sub := &subscriber{
		id:        id,
		sink:      sink,
		interests: make(map[Type]struct{}, len(types)),
		queue:     make(chan Event, h.queueSize),
		done:      make(chan struct{}),
	}
	for _, t := range types {
		sub.interests[t] = struct{}{}
	}
	h.subs[id] = sub

	h.wg.Add(1)
	go h.run(sub)

	h.logger.Debug("subscriber connected", "subscriber_id", id, "event_types", types)
	return nil
}

// Disconnect removes the subscriber. Queued events are discarded.
func (h *Hub) Disconnect(id string) {
	if h.remove(id, nil) {
		h.logger.Debug("subscriber disconnected", "subscriber_id", id)
	}
}

// Subscribe adds types to the subscriber's interest set. Adding a type
// already present is a no-op.
func (h *Hub) Subscribe(id string, types ...Type) error {
	if err := validateTypes(types); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subs[id]
	if !ok {
		return errors.NotFound("subscriber", id)
	}
	for _, t := range types {
		sub.interests[t] = struct{}{}
	}
	return nil
}

// Unsubscribe removes types from the subscriber's interest set. Removing a
// type that is absent is a no-op.
func (h *Hub) Unsubscribe(id string, types ...Type) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subs[id]
	if !ok {
		return errors.NotFound("subscriber", id)
	}
	for _, t := range types {
		delete(sub.interests, t)
	}
	return nil
}

// Subscriptions returns the subscriber's interest set, sorted.
func (h *Hub) Subscriptions(id string) ([]Type, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sub, ok := h.subs[id]
	if !ok {
		return nil, errors.NotFound("subscriber", id)
	}
	out := make([]Type, 0, len(sub.interests))
	for t := range sub.interests {
		out = append(out, t)
	}
	slices.Sort(out)
	return out, nil
}

func (h *Hub) Connected(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.subs[id]
	return ok
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish stamps the event and queues it for every interested subscriber.
// It never blocks on a subscriber: one whose queue is full is removed.
func (h *Hub) Publish(t Type, data any) Event {
	h.pubMu.Lock()
	defer h.pubMu.Unlock()

	e := Event{
		Type:      t,
		Data:      data,
		Seq:       h.seq.Add(1),
		Timestamp: h.now(),
	}

	var full []string
	h.mu.RLock()
	for id, sub := range h.subs {
		if !sub.wants(t) {
			continue
		}
		select {
		case sub.queue <- e:
		case <-sub.done:
		default:
			full = append(full, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range full {
		h.fail(id, ErrQueueFull)
	}
	return e
}

// Close removes every subscriber, closes sinks that are io.Closers and
// waits for the delivery goroutines to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		if h.remove(sub.id, sub) {
			if c, ok := sub.sink.(io.Closer); ok {
				c.Close()
			}
		}
	}
	h.wg.Wait()
}

func (h *Hub) run(sub *subscriber) {
	defer h.wg.Done()
	for {
		select {
		case <-sub.done:
			return
		case e := <-sub.queue:
			if err := h.deliver(sub, e); err != nil {
				h.fail(sub.id, err)
				return
			}
		}
	}
}

// deliver runs one Sink.Deliver bounded by the hub's timeout. A sink that
// ignores its context is abandoned when the timeout fires.
func (h *Hub) deliver(sub *subscriber, e Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("event sink panicked",
					"subscriber_id", sub.id, "event_type", e.Type, "panic", r, "stack", string(debug.Stack()))
				result <- fmt.Errorf("sink panicked: %v", r)
			}
		}()
		result <- sub.sink.Deliver(ctx, e)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return fmt.Errorf("delivery of %s timed out after %s", e.Type, h.timeout)
	case <-sub.done:
		return nil
	}
}

func (h *Hub) fail(id string, reason error) {
	h.mu.RLock()
	sub, ok := h.subs[id]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if h.remove(id, sub) {
		h.logger.Warn("dropping event subscriber", "subscriber_id", id, "error", reason)
		if c, ok := sub.sink.(io.Closer); ok {
			c.Close()
		}
	}
}

// remove deletes the subscriber with id. When want is non-nil it is only
// removed if it is still that subscriber.
func (h *Hub) remove(id string, want *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subs[id]
	if !ok || (want != nil && sub != want) {
		return false
	}
	delete(h.subs, id)
	close(sub.done)
	return true
}

func validateTypes(types []Type) error {
	for _, t := range types {
		if !t.Valid() {
			return errors.InvalidArgumentf("unknown event type %q", t)
		}
	}
	return nil
}
