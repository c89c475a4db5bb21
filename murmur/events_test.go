package murmur

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/gorilla/websocket"
)

func newTestEventServer(t *testing.T, events chan []byte) (*httptest.Server, chan string) {
	upgrader := websocket.Upgrader{}
	auths := make(chan string, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auths <- r.Header.Get("Authorization")

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		for message := range events {
			if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		}
	}))
	return server, auths
}

func waitForStale(t *testing.T, store *Store, key CacheKey) {
	timeout := time.After(2 * time.Second)
	for {
		if store.Stale(key) {
			return
		}
		select {
		case <-timeout:
			t.Fatalf("%s never became stale", key)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestEventStreamInvalidates(t *testing.T) {
	events := make(chan []byte)
	server, auths := newTestEventServer(t, events)
	defer server.Close()
	defer close(events)

	store := NewStore()
	store.Write(NotificationsKey(), &NotificationPages{})
	store.Write(UnreadNotificationCountKey(), int64(0))
	store.Write(GlobalFeedKey(), &FeedPages{})
	store.Write(HomeFeedKey(), &FeedPages{})

	eventsUrl := "ws" + strings.TrimPrefix(server.URL, "http")
	eventStream := NewEventStreamWithDefaults(context.Background(), store, eventsUrl, "session-token")
	defer eventStream.Close()

	received := make(chan *Event, 8)
	eventStream.AddEventCallback(func(event *Event) {
		received <- event
	})

	// the stream authenticates with the session token
	assert.Equal(t, "Bearer session-token", <-auths)

	events <- []byte(`{"type": "notification"}`)
	waitForStale(t, store, NotificationsKey())
	waitForStale(t, store, UnreadNotificationCountKey())
	assert.Equal(t, false, store.Stale(GlobalFeedKey()))

	event := <-received
	assert.Equal(t, EventTypeNotification, event.Type)

	// a post event invalidates the feeds, never writes into them
	events <- []byte(`{"type": "post", "post_id": 42}`)
	waitForStale(t, store, GlobalFeedKey())
	waitForStale(t, store, HomeFeedKey())

	value, ok := store.Read(GlobalFeedKey())
	assert.Equal(t, true, ok)
	assert.Equal(t, 0, len(value.(*FeedPages).Pages))
}

func TestEventStreamIgnoresUnknownEvents(t *testing.T) {
	events := make(chan []byte)
	server, auths := newTestEventServer(t, events)
	defer server.Close()
	defer close(events)

	store := NewStore()
	store.Write(GlobalFeedKey(), &FeedPages{})

	eventsUrl := "ws" + strings.TrimPrefix(server.URL, "http")
	eventStream := NewEventStreamWithDefaults(context.Background(), store, eventsUrl, "")
	defer eventStream.Close()

	received := make(chan *Event, 8)
	eventStream.AddEventCallback(func(event *Event) {
		received <- event
	})

	<-auths

	events <- []byte(`{"type": "something-new"}`)
	event := <-received
	assert.Equal(t, "something-new", event.Type)
	assert.Equal(t, false, store.Stale(GlobalFeedKey()))
}

func TestPollerInvalidatesOnInterval(t *testing.T) {
	store := NewStore()
	store.Write(NotificationsKey(), &NotificationPages{})
	store.Write(GlobalFeedKey(), &FeedPages{})

	poller := NewPoller(context.Background(), store, &PollerSettings{
		NotificationPollTimeout: 10 * time.Millisecond,
		FeedPollTimeout:         20 * time.Millisecond,
	})
	defer poller.Close()

	waitForStale(t, store, NotificationsKey())
	waitForStale(t, store, GlobalFeedKey())

	// the value stays readable, polling only marks it for reconciliation
	_, ok := store.Read(GlobalFeedKey())
	assert.Equal(t, true, ok)
}
