package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/servicehub/internal/marketplace"
	mware "github.com/sudo-init-do/servicehub/internal/middleware"
)

// topicAll receives every event regardless of the service it concerns.
const topicAll = "*"

const (
	writeWait = 5 * time.Second
	// sendBuffer is how many events a subscriber may fall behind before it
	// is dropped.
	sendBuffer = 16
)

// Feed pushes committed events to websocket subscribers. Clients subscribe to
// a single service record or to the whole marketplace.
type Feed struct {
	mu     sync.RWMutex
	topics map[string]map[*subscriber]struct{}
	logger *slog.Logger

	upgrader websocket.Upgrader
}

// wsConn is the part of *websocket.Conn the writer needs.
type wsConn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// subscriber owns one connection. Publish only ever enqueues; writePump is
// the single writer.
type subscriber struct {
	conn wsConn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newSubscriber(conn wsConn) *subscriber {
	return &subscriber{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// stop is safe to call from Publish, writePump and Serve.
func (s *subscriber) stop() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// enqueue reports false when the subscriber is too slow to keep up.
func (s *subscriber) enqueue(payload []byte) bool {
	select {
	case <-s.done:
		return true
	default:
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

func (s *subscriber) writePump() error {
	defer s.stop()
	for {
		select {
		case <-s.done:
			return nil
		case payload := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return err
			}
		}
	}
}

func NewFeed(logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		topics: make(map[string]map[*subscriber]struct{}),
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (f *Feed) register(topic string, s *subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	subs, ok := f.topics[topic]
	if !ok {
		subs = make(map[*subscriber]struct{})
		f.topics[topic] = subs
	}
	subs[s] = struct{}{}
}

func (f *Feed) unregister(topic string, s *subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	subs, ok := f.topics[topic]
	if !ok {
		return
	}
	delete(subs, s)
	if len(subs) == 0 {
		delete(f.topics, topic)
	}
}

// Subscribers reports how many connections listen on a topic. An empty
// serviceID counts marketplace-wide subscribers.
func (f *Feed) Subscribers(serviceID string) int {
	if serviceID == "" {
		serviceID = topicAll
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.topics[serviceID])
}

// Publish queues evt for the subscribers of its service and for the
// marketplace-wide topic. It never waits on a socket; a subscriber whose
// queue is full is disconnected.
func (f *Feed) Publish(ctx context.Context, evt marketplace.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	type target struct {
		topic string
		sub   *subscriber
	}
	f.mu.RLock()
	var targets []target
	for _, topic := range []string{serviceIDOf(evt), topicAll} {
		for s := range f.topics[topic] {
			targets = append(targets, target{topic: topic, sub: s})
		}
	}
	f.mu.RUnlock()

	for _, t := range targets {
		if !t.sub.enqueue(payload) {
			f.logger.WarnContext(ctx, "dropping slow feed subscriber", "topic", t.topic)
			f.unregister(t.topic, t.sub)
			t.sub.stop()
		}
	}
	return nil
}

func serviceIDOf(evt marketplace.Event) string {
	switch d := evt.Data.(type) {
	case marketplace.ServicePurchased:
		return d.ServiceID
	case marketplace.ServiceNftTransferred:
		return d.ServiceID
	case marketplace.ServiceNftResold:
		return d.ServiceID
	}
	return ""
}

// Serve upgrades the request and streams events until the client goes away.
// Mounted at /events/ws (everything) and /services/:id/events (one record).
func (f *Feed) Serve(c echo.Context) error {
	if _, ok := mware.UserID(c); !ok {
		return mware.RespondError(c, mware.Unauthorized("unauthorized"))
	}
	topic := c.Param("id")
	if topic == "" {
		topic = topicAll
	}

	conn, err := f.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	s := newSubscriber(conn)
	f.register(topic, s)
	defer func() {
		f.unregister(topic, s)
		s.stop()
	}()

	go func() {
		if err := s.writePump(); err != nil {
			f.logger.DebugContext(c.Request().Context(), "feed write failed", "topic", topic, "error", err)
		}
	}()

	// Server push only; reads just detect the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}

func (f *Feed) RegisterRoutes(api *echo.Group) {
	api.GET("/events/ws", f.Serve)
	api.GET("/services/:id/events", f.Serve)
}
