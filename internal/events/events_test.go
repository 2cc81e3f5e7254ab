package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/sudo-init-do/servicehub/internal/marketplace"
	mware "github.com/sudo-init-do/servicehub/internal/middleware"
)

var purchased = marketplace.Event{
	Type:       marketplace.EventServicePurchased,
	OccurredAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	Data: marketplace.ServicePurchased{
		Buyer: "buyer-1", Seller: "vendor-1", ServiceID: "svc-1", ListingID: "lst-1", Price: 1000,
	},
}

type sinkFunc func(ctx context.Context, evt marketplace.Event) error

func (f sinkFunc) Publish(ctx context.Context, evt marketplace.Event) error { return f(ctx, evt) }

func TestFanoutDeliversToEverySink(t *testing.T) {
	var calls []string
	record := func(name string, err error) marketplace.EventSink {
		return sinkFunc(func(context.Context, marketplace.Event) error {
			calls = append(calls, name)
			return err
		})
	}
	boom := errors.New("boom")
	f := Fanout{record("a", nil), nil, record("b", boom), record("c", nil)}

	err := f.Publish(context.Background(), purchased)
	if !errors.Is(err, boom) {
		t.Errorf("expected joined error to contain boom, got %v", err)
	}
	if strings.Join(calls, ",") != "a,b,c" {
		t.Errorf("expected every sink to be called, got %v", calls)
	}
}

// fakeRedis records XADD calls; every other Cmdable method is left nil.
type fakeRedis struct {
	redis.Cmdable
	args []*redis.XAddArgs
	err  error
}

func (f *fakeRedis) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.args = append(f.args, a)
	return redis.NewStringResult("1-0", f.err)
}

func TestStreamPublisher(t *testing.T) {
	client := &fakeRedis{}
	p := NewStreamPublisher(client, "servicehub:events", 500)

	if err := p.Publish(context.Background(), purchased); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(client.args) != 1 {
		t.Fatalf("expected one XADD, got %d", len(client.args))
	}
	a := client.args[0]
	if a.Stream != "servicehub:events" || a.MaxLen != 500 || !a.Approx {
		t.Errorf("unexpected XADD args: %+v", a)
	}
	values := a.Values.(map[string]any)
	if values["type"] != marketplace.EventServicePurchased {
		t.Errorf("expected type field, got %v", values["type"])
	}
	var decoded struct {
		Type string `json:"type"`
		Data struct {
			ServiceID string `json:"service_id"`
			Price     uint64 `json:"price"`
		} `json:"data"`
	}
	if err := json.Unmarshal(values["event"].([]byte), &decoded); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if decoded.Data.ServiceID != "svc-1" || decoded.Data.Price != 1000 {
		t.Errorf("unexpected event body: %+v", decoded)
	}

	client.err = errors.New("connection refused")
	if err := p.Publish(context.Background(), purchased); err == nil {
		t.Error("expected redis failure to be returned")
	}
}

func TestFeedBroadcastsToSubscribers(t *testing.T) {
	feed := NewFeed(nil)
	e := echo.New()
	api := e.Group("", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(mware.ContextUserID, "watcher")
			return next(c)
		}
	})
	feed.RegisterRoutes(api)
	srv := httptest.NewServer(e)
	defer srv.Close()

	base := "ws" + strings.TrimPrefix(srv.URL, "http")
	dial := func(path string) *websocket.Conn {
		t.Helper()
		conn, _, err := websocket.DefaultDialer.Dial(base+path, nil)
		if err != nil {
			t.Fatalf("dial %s: %v", path, err)
		}
		t.Cleanup(func() { conn.Close() })
		return conn
	}
	one := dial("/services/svc-1/events")
	other := dial("/services/svc-2/events")
	all := dial("/events/ws")

	deadline := time.Now().Add(2 * time.Second)
	for feed.Subscribers("svc-1") != 1 || feed.Subscribers("svc-2") != 1 || feed.Subscribers("") != 1 {
		if time.Now().After(deadline) {
			t.Fatal("subscribers did not register")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := feed.Publish(context.Background(), purchased); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for name, conn := range map[string]*websocket.Conn{"service": one, "all": all} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var got marketplace.Event
		if err := conn.ReadJSON(&got); err != nil {
			t.Fatalf("[%s] read: %v", name, err)
		}
		if got.Type != marketplace.EventServicePurchased {
			t.Errorf("[%s] expected purchase event, got %s", name, got.Type)
		}
	}

	_ = other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Error("subscriber of another service received the event")
	}
}

// stalledConn never finishes a write until it is closed.
type stalledConn struct {
	closed chan struct{}
	once   sync.Once
}

func (c *stalledConn) SetWriteDeadline(time.Time) error { return nil }

func (c *stalledConn) WriteMessage(int, []byte) error {
	<-c.closed
	return errors.New("use of closed connection")
}

func (c *stalledConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func TestFeedDropsSlowSubscriber(t *testing.T) {
	feed := NewFeed(nil)
	conn := &stalledConn{closed: make(chan struct{})}
	s := newSubscriber(conn)
	feed.register("svc-1", s)
	pumpDone := make(chan error, 1)
	go func() { pumpDone <- s.writePump() }()

	start := time.Now()
	for i := 0; i < sendBuffer+2; i++ {
		if err := feed.Publish(context.Background(), purchased); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed >= writeWait {
		t.Errorf("publish blocked on a stalled client for %s", elapsed)
	}

	if n := feed.Subscribers("svc-1"); n != 0 {
		t.Errorf("expected slow subscriber to be dropped, %d remain", n)
	}
	select {
	case <-conn.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("slow subscriber connection was not closed")
	}
	select {
	case <-pumpDone:
	case <-time.After(2 * time.Second):
		t.Fatal("writer goroutine did not exit")
	}
}

func TestServiceIDOf(t *testing.T) {
	tests := []struct {
		evt  marketplace.Event
		want string
	}{
		{purchased, "svc-1"},
		{marketplace.Event{Data: marketplace.ServiceNftTransferred{ServiceID: "svc-2"}}, "svc-2"},
		{marketplace.Event{Data: marketplace.ServiceNftResold{ServiceID: "svc-3"}}, "svc-3"},
		{marketplace.Event{Data: "unknown"}, ""},
	}
	for _, tt := range tests {
		if got := serviceIDOf(tt.evt); got != tt.want {
			t.Errorf("serviceIDOf(%T) = %q, want %q", tt.evt.Data, got, tt.want)
		}
	}
}
