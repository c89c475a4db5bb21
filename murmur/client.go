package murmur

import (
	"context"
	"sync"

	"github.com/golang/glog"
)

type ClientSettings struct {
	ApiUrl    string
	EventsUrl string

	// push invalidation when an events url is set, interval polling otherwise
	EnableEventStream bool
	EnablePolling     bool

	QueriesSettings         *QueriesSettings
	EventStreamSettings     *EventStreamSettings
	PollerSettings          *PollerSettings
	UsernameCheckerSettings *UsernameCheckerSettings
}

func DefaultClientSettings(apiUrl string) *ClientSettings {
	return &ClientSettings{
		ApiUrl:                  apiUrl,
		EnableEventStream:       false,
		EnablePolling:           true,
		QueriesSettings:         DefaultQueriesSettings(),
		EventStreamSettings:     DefaultEventStreamSettings(),
		PollerSettings:          DefaultPollerSettings(),
		UsernameCheckerSettings: DefaultUsernameCheckerSettings(),
	}
}

// Top level wiring: one store, one api client, the read side (queries), the
// write side (coordinator), and optionally the push event stream. The store is
// scoped to a single session; `SetSession` clears it so entries from one
// principal are never served to another.
type Client struct {
	ctx    context.Context
	cancel context.CancelFunc

	instanceId Id

	settings *ClientSettings

	store       *Store
	api         *MurmurApi
	queries     *Queries
	coordinator *Coordinator

	mutex       sync.Mutex
	session     *Session
	eventStream *EventStream
	poller      *Poller
}

func NewClientWithDefaults(ctx context.Context, apiUrl string) *Client {
	return NewClient(ctx, DefaultClientSettings(apiUrl))
}

func NewClient(ctx context.Context, settings *ClientSettings) *Client {
	cancelCtx, cancel := context.WithCancel(ctx)

	store := NewStore()
	api := NewMurmurApiWithContext(cancelCtx, settings.ApiUrl)

	client := &Client{
		ctx:         cancelCtx,
		cancel:      cancel,
		instanceId:  NewId(),
		settings:    settings,
		store:       store,
		api:         api,
		queries:     NewQueries(cancelCtx, api, store, settings.QueriesSettings),
		coordinator: NewCoordinator(cancelCtx, api, store),
	}
	return client
}

func (self *Client) InstanceId() Id {
	return self.instanceId
}

func (self *Client) Store() *Store {
	return self.store
}

func (self *Client) Api() *MurmurApi {
	return self.api
}

func (self *Client) Queries() *Queries {
	return self.queries
}

func (self *Client) Coordinator() *Coordinator {
	return self.coordinator
}

func (self *Client) NewUsernameChecker() *UsernameChecker {
	return NewUsernameChecker(self.ctx, self.api, self.store, self.settings.UsernameCheckerSettings)
}

func (self *Client) Session() *Session {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.session
}

// switches the client to a new session. The previous session's cached state
// and event stream are discarded.
func (self *Client) SetSession(session *Session) error {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	if self.eventStream != nil {
		self.eventStream.Close()
		self.eventStream = nil
	}
	if self.poller != nil {
		self.poller.Close()
		self.poller = nil
	}

	self.session = session
	self.store.Clear()

	if session == nil {
		self.api.SetSessionToken("")
		return nil
	}

	glog.V(2).Infof("[client]%s session %s\n", self.instanceId, session.Principal)
	self.api.SetSessionToken(session.Token)

	if self.settings.EnableEventStream && self.settings.EventsUrl != "" {
		self.eventStream = NewEventStream(
			self.ctx,
			self.store,
			self.settings.EventsUrl,
			session.Token,
			self.settings.EventStreamSettings,
		)
	} else if self.settings.EnablePolling {
		self.poller = NewPoller(self.ctx, self.store, self.settings.PollerSettings)
	}
	return nil
}

// parses the token and installs the session it carries
func (self *Client) SetSessionToken(token string) (*Session, error) {
	session, err := ParseSessionToken(token)
	if err != nil {
		return nil, err
	}
	if err := self.SetSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (self *Client) AddEventCallback(callback EventFunction) func() {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if self.eventStream == nil {
		return func() {}
	}
	return self.eventStream.AddEventCallback(callback)
}

func (self *Client) Close() {
	self.mutex.Lock()
	if self.eventStream != nil {
		self.eventStream.Close()
		self.eventStream = nil
	}
	if self.poller != nil {
		self.poller.Close()
		self.poller = nil
	}
	self.mutex.Unlock()

	self.api.Close()
	self.cancel()
}
