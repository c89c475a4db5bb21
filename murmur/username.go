package murmur

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 20
)

const DefaultUsernameDebounceTimeout = 400 * time.Millisecond

// usernames are ascii letters, digits and underscore only
func ValidateUsername(username string) error {
	if len(username) < MinUsernameLength {
		return fmt.Errorf("username must be at least %d characters", MinUsernameLength)
	}
	if MaxUsernameLength < len(username) {
		return fmt.Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	for _, c := range []byte(username) {
		switch {
		case 'a' <= c && c <= 'z':
		case 'A' <= c && c <= 'Z':
		case '0' <= c && c <= '9':
		case c == '_':
		default:
			return errors.New("username may contain only letters, digits and underscore")
		}
	}
	return nil
}

type UsernameCheckState int

const (
	UsernameCheckIdle UsernameCheckState = iota
	UsernameCheckInvalid
	UsernameCheckPending
	UsernameCheckAvailable
	UsernameCheckTaken
	UsernameCheckError
)

type UsernameCheck struct {
	Username string
	State    UsernameCheckState
	Err      error
}

type UsernameCheckFunction = func(check *UsernameCheck)

type UsernameCheckerSettings struct {
	DebounceTimeout time.Duration
}

func DefaultUsernameCheckerSettings() *UsernameCheckerSettings {
	return &UsernameCheckerSettings{
		DebounceTimeout: DefaultUsernameDebounceTimeout,
	}
}

// Debounced username availability checker for live input. Each keystroke is
// fed via `SetInput`. Locally invalid input is rejected without any network
// call. Valid input triggers one availability call per settled value, after
// the debounce timeout with no further edits. Results are cached in the store
// so a value already checked does not hit the network again.
type UsernameChecker struct {
	ctx    context.Context
	cancel context.CancelFunc

	api      *MurmurApi
	store    *Store
	settings *UsernameCheckerSettings

	checkCallbacks *CallbackList[UsernameCheckFunction]

	mutex   sync.Mutex
	input   string
	pending *time.Timer
}

func NewUsernameCheckerWithDefaults(ctx context.Context, api *MurmurApi, store *Store) *UsernameChecker {
	return NewUsernameChecker(ctx, api, store, DefaultUsernameCheckerSettings())
}

func NewUsernameChecker(ctx context.Context, api *MurmurApi, store *Store, settings *UsernameCheckerSettings) *UsernameChecker {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &UsernameChecker{
		ctx:            cancelCtx,
		cancel:         cancel,
		api:            api,
		store:          store,
		settings:       settings,
		checkCallbacks: NewCallbackList[UsernameCheckFunction](),
	}
}

// returns a function to remove the callback
func (self *UsernameChecker) AddCheckCallback(callback UsernameCheckFunction) func() {
	return self.checkCallbacks.Add(callback)
}

func (self *UsernameChecker) emit(check *UsernameCheck) {
	for _, callback := range self.checkCallbacks.Get() {
		callback(check)
	}
}

func (self *UsernameChecker) SetInput(username string) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	self.input = username
	if self.pending != nil {
		self.pending.Stop()
		self.pending = nil
	}

	if username == "" {
		self.emit(&UsernameCheck{
			Username: username,
			State:    UsernameCheckIdle,
		})
		return
	}

	if err := ValidateUsername(username); err != nil {
		self.emit(&UsernameCheck{
			Username: username,
			State:    UsernameCheckInvalid,
			Err:      err,
		})
		return
	}

	if value, ok := self.store.Read(CheckUsernameKey(username)); ok && !self.store.Stale(CheckUsernameKey(username)) {
		if available, ok := value.(bool); ok {
			self.emit(self.resultCheck(username, available))
			return
		}
	}

	self.emit(&UsernameCheck{
		Username: username,
		State:    UsernameCheckPending,
	})
	self.pending = time.AfterFunc(self.settings.DebounceTimeout, func() {
		self.check(username)
	})
}

// the settled value may have been superseded by the time the call returns
func (self *UsernameChecker) check(username string) {
	self.mutex.Lock()
	if self.input != username {
		self.mutex.Unlock()
		return
	}
	self.mutex.Unlock()

	key := CheckUsernameKey(username)
	fetchSeq := self.store.BeginFetch(key)

	callback, c := NewBlockingApiCallback[*CheckUsernameResult]()
	self.api.CheckUsernameAvailability(username, callback)
	result, err := await(self.ctx, c)
	if err != nil {
		glog.Infof("[username]check %s failed = %s\n", username, err)
		if self.current(username) {
			self.emit(&UsernameCheck{
				Username: username,
				State:    UsernameCheckError,
				Err:      err,
			})
		}
		return
	}

	self.store.CompleteFetch(key, fetchSeq, result.Available)
	if self.current(username) {
		self.emit(self.resultCheck(username, result.Available))
	}
}

func (self *UsernameChecker) current(username string) bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.input == username
}

func (self *UsernameChecker) resultCheck(username string, available bool) *UsernameCheck {
	state := UsernameCheckTaken
	if available {
		state = UsernameCheckAvailable
	}
	return &UsernameCheck{
		Username: username,
		State:    state,
	}
}

func (self *UsernameChecker) Close() {
	self.mutex.Lock()
	if self.pending != nil {
		self.pending.Stop()
		self.pending = nil
	}
	self.mutex.Unlock()
	self.cancel()
}
