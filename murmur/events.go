package murmur

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// Server push over a websocket. The stream carries small JSON envelopes that
// name what changed; the payload is never applied to the store directly. An
// event only invalidates the affected keys, and the next read reconciles with
// the backend. That keeps the stream an optimization: losing it degrades to
// invalidate-on-mutation behavior, never to wrong data.

const (
	EventTypeNotification = "notification"
	EventTypePost         = "post"
)

type Event struct {
	Type   string     `json:"type"`
	PostId *PostId    `json:"post_id,omitempty"`
	Actor  *Principal `json:"actor,omitempty"`
}

type EventFunction = func(event *Event)

type EventStreamSettings struct {
	WsHandshakeTimeout time.Duration
	ReconnectTimeout   time.Duration
	PingTimeout        time.Duration
	WriteTimeout       time.Duration
	ReadTimeout        time.Duration
}

func DefaultEventStreamSettings() *EventStreamSettings {
	return &EventStreamSettings{
		WsHandshakeTimeout: 2 * time.Second,
		ReconnectTimeout:   5 * time.Second,
		PingTimeout:        15 * time.Second,
		WriteTimeout:       5 * time.Second,
		ReadTimeout:        60 * time.Second,
	}
}

type EventStream struct {
	ctx    context.Context
	cancel context.CancelFunc

	store     *Store
	eventsUrl string
	auth      string

	settings *EventStreamSettings

	eventCallbacks *CallbackList[EventFunction]
}

func NewEventStreamWithDefaults(
	ctx context.Context,
	store *Store,
	eventsUrl string,
	auth string,
) *EventStream {
	return NewEventStream(ctx, store, eventsUrl, auth, DefaultEventStreamSettings())
}

func NewEventStream(
	ctx context.Context,
	store *Store,
	eventsUrl string,
	auth string,
	settings *EventStreamSettings,
) *EventStream {
	cancelCtx, cancel := context.WithCancel(ctx)
	eventStream := &EventStream{
		ctx:            cancelCtx,
		cancel:         cancel,
		store:          store,
		eventsUrl:      eventsUrl,
		auth:           auth,
		settings:       settings,
		eventCallbacks: NewCallbackList[EventFunction](),
	}
	go eventStream.run()
	return eventStream
}

// returns a function to remove the callback
func (self *EventStream) AddEventCallback(callback EventFunction) func() {
	return self.eventCallbacks.Add(callback)
}

func (self *EventStream) run() {
	defer self.cancel()

	dialer := &websocket.Dialer{
		HandshakeTimeout: self.settings.WsHandshakeTimeout,
	}
	header := http.Header{}
	if self.auth != "" {
		header.Set("Authorization", fmt.Sprintf("Bearer %s", self.auth))
	}

	for {
		reconnect := NewReconnect(self.settings.ReconnectTimeout)

		connect := func() (*websocket.Conn, error) {
			ws, _, err := dialer.DialContext(self.ctx, self.eventsUrl, header)
			return ws, err
		}

		var ws *websocket.Conn
		var err error
		if glog.V(2) {
			ws, err = TraceWithReturnError("[events]connect", connect)
		} else {
			ws, err = connect()
		}
		if err != nil {
			glog.Infof("[events]connect error = %s\n", err)
			select {
			case <-self.ctx.Done():
				return
			case <-reconnect.After():
				continue
			}
		}

		c := func() {
			defer ws.Close()

			handleCtx, handleCancel := context.WithCancel(self.ctx)
			defer handleCancel()

			go func() {
				defer handleCancel()

				for {
					select {
					case <-handleCtx.Done():
						return
					case <-time.After(self.settings.PingTimeout):
						ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
						if err := ws.WriteMessage(websocket.PingMessage, make([]byte, 0)); err != nil {
							return
						}
					}
				}
			}()

			for {
				select {
				case <-handleCtx.Done():
					return
				default:
				}

				ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
				messageType, message, err := ws.ReadMessage()
				if err != nil {
					glog.Infof("[events]read error = %s\n", err)
					return
				}

				switch messageType {
				case websocket.TextMessage:
					var event Event
					if err := json.Unmarshal(message, &event); err != nil {
						glog.Infof("[events]decode error = %s\n", err)
						continue
					}
					self.handle(&event)
				default:
					glog.V(2).Infof("[events]other=%d<-\n", messageType)
				}
			}
		}
		c()

		select {
		case <-self.ctx.Done():
			return
		case <-reconnect.After():
		}
	}
}

func (self *EventStream) handle(event *Event) {
	glog.V(2).Infof("[events]%s<-\n", event.Type)

	switch event.Type {
	case EventTypeNotification:
		for _, prefix := range notificationPrefixes() {
			self.store.Invalidate(prefix)
		}
	case EventTypePost:
		self.store.Invalidate(ResourcePrefix(ResourceGlobalFeed))
		self.store.Invalidate(ResourcePrefix(ResourceHomeFeed))
		if event.PostId != nil {
			self.store.Invalidate(ExactPrefix(PostKey(*event.PostId)))
		}
	default:
		// unknown events are ignored so new server event types can roll out
		// ahead of clients
	}

	for _, callback := range self.eventCallbacks.Get() {
		callback(event)
	}
}

func (self *EventStream) Close() {
	self.cancel()
}

// Polling fallback when no push stream is configured. Marks the notification
// and feed keys stale on an interval, so the next observation reconciles.
// Nothing is fetched eagerly; an unobserved view costs no requests.

type PollerSettings struct {
	NotificationPollTimeout time.Duration
	FeedPollTimeout         time.Duration
}

func DefaultPollerSettings() *PollerSettings {
	return &PollerSettings{
		NotificationPollTimeout: 15 * time.Second,
		FeedPollTimeout:         30 * time.Second,
	}
}

type Poller struct {
	ctx    context.Context
	cancel context.CancelFunc

	store    *Store
	settings *PollerSettings
}

func NewPollerWithDefaults(ctx context.Context, store *Store) *Poller {
	return NewPoller(ctx, store, DefaultPollerSettings())
}

func NewPoller(ctx context.Context, store *Store, settings *PollerSettings) *Poller {
	cancelCtx, cancel := context.WithCancel(ctx)
	poller := &Poller{
		ctx:      cancelCtx,
		cancel:   cancel,
		store:    store,
		settings: settings,
	}
	go poller.run()
	return poller
}

func (self *Poller) run() {
	defer self.cancel()

	notificationTicker := time.NewTicker(self.settings.NotificationPollTimeout)
	defer notificationTicker.Stop()
	feedTicker := time.NewTicker(self.settings.FeedPollTimeout)
	defer feedTicker.Stop()

	for {
		select {
		case <-self.ctx.Done():
			return
		case <-notificationTicker.C:
			for _, prefix := range notificationPrefixes() {
				self.store.Invalidate(prefix)
			}
		case <-feedTicker.C:
			self.store.Invalidate(ResourcePrefix(ResourceGlobalFeed))
			self.store.Invalidate(ResourcePrefix(ResourceHomeFeed))
		}
	}
}

func (self *Poller) Close() {
	self.cancel()
}
