package murmur

import (
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/exp/slices"
)

// comparable
type Id [16]byte

func NewId() Id {
	return Id(ulid.Make())
}

func IdFromBytes(idBytes []byte) (Id, error) {
	if len(idBytes) != 16 {
		return Id{}, errors.New("Id must be 16 bytes")
	}
	return Id(idBytes), nil
}

func ParseId(idStr string) (Id, error) {
	parsed, err := ulid.Parse(idStr)
	if err != nil {
		return Id{}, err
	}
	return Id(parsed), nil
}

func (self Id) String() string {
	return ulid.ULID(self).String()
}

// makes a copy of the list on update,
// so that iteration never observes a partial edit
type CallbackList[T any] struct {
	mutex     sync.Mutex
	nextId    int
	callbacks []callbackEntry[T]
}

type callbackEntry[T any] struct {
	callbackId int
	callback   T
}

func NewCallbackList[T any]() *CallbackList[T] {
	return &CallbackList[T]{}
}

func (self *CallbackList[T]) Get() []T {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	callbacks := make([]T, 0, len(self.callbacks))
	for _, entry := range self.callbacks {
		callbacks = append(callbacks, entry.callback)
	}
	return callbacks
}

// returns a function to remove the callback
func (self *CallbackList[T]) Add(callback T) func() {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	callbackId := self.nextId
	self.nextId += 1

	nextCallbacks := slices.Clone(self.callbacks)
	nextCallbacks = append(nextCallbacks, callbackEntry[T]{
		callbackId: callbackId,
		callback:   callback,
	})
	self.callbacks = nextCallbacks

	return func() {
		self.remove(callbackId)
	}
}

func (self *CallbackList[T]) remove(callbackId int) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	i := slices.IndexFunc(self.callbacks, func(entry callbackEntry[T]) bool {
		return entry.callbackId == callbackId
	})
	if i < 0 {
		// not present
		return
	}
	nextCallbacks := slices.Clone(self.callbacks)
	nextCallbacks = slices.Delete(nextCallbacks, i, i+1)
	self.callbacks = nextCallbacks
}

// a view can select on `NotifyChannel` to wake up when state it may have
// rendered from the store has changed
type Monitor struct {
	mutex  sync.Mutex
	update chan struct{}
}

func NewMonitor() *Monitor {
	return &Monitor{
		update: make(chan struct{}),
	}
}

func (self *Monitor) NotifyChannel() <-chan struct{} {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.update
}

// closes the current notify channel and replaces it with a new one
func (self *Monitor) NotifyAll() {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	close(self.update)
	self.update = make(chan struct{})
}

// paces reconnect attempts. The timeout is measured from creation, so work
// done between creation and `After` counts against the wait.
type Reconnect struct {
	startTime time.Time
	timeout   time.Duration
}

func NewReconnect(timeout time.Duration) *Reconnect {
	return &Reconnect{
		startTime: time.Now(),
		timeout:   timeout,
	}
}

func (self *Reconnect) After() <-chan time.Time {
	remaining := self.timeout - time.Since(self.startTime)
	if remaining <= 0 {
		c := make(chan time.Time, 1)
		c <- time.Now()
		return c
	}
	return time.After(remaining)
}
