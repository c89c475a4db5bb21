package murmur

import (
	"fmt"
	"sync"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"
	"golang.org/x/exp/maps"
)

// In-memory, key-addressed store of server-derived results.
// The store is the only shared mutable resource of the client. Values written
// into the store are treated as immutable. Transforms must return fresh values
// and never edit a value in place, so that a snapshot taken before an
// optimistic transform still points at the exact pre-transform state.

// logical resource name plus a discriminating parameter,
// e.g. {replies 42} or {profileByUsername alice}
type CacheKey struct {
	Resource string
	Param    string
}

func (self CacheKey) String() string {
	if self.Param == "" {
		return self.Resource
	}
	return fmt.Sprintf("%s(%s)", self.Resource, self.Param)
}

// an empty `Param` matches every key of the resource
type KeyPrefix struct {
	Resource string
	Param    string
}

func (self KeyPrefix) Matches(key CacheKey) bool {
	if self.Resource != key.Resource {
		return false
	}
	return self.Param == "" || self.Param == key.Param
}

func (self KeyPrefix) String() string {
	if self.Param == "" {
		return fmt.Sprintf("%s(*)", self.Resource)
	}
	return fmt.Sprintf("%s(%s)", self.Resource, self.Param)
}

func ExactPrefix(key CacheKey) KeyPrefix {
	return KeyPrefix{Resource: key.Resource, Param: key.Param}
}

func ResourcePrefix(resource string) KeyPrefix {
	return KeyPrefix{Resource: resource}
}

type SnapshotToken string

type InvalidateFunction = func(prefix KeyPrefix)

type cacheEntry struct {
	value any
	stale bool
}

type capturedEntry struct {
	key     CacheKey
	value   any
	stale   bool
	present bool
}

type Store struct {
	mutex sync.Mutex

	entries map[CacheKey]*cacheEntry

	// per-key fetch generation. A fetch started under an older generation is
	// discarded on completion, which functionally cancels in-flight fetches.
	fetchSeqs map[CacheKey]uint64

	snapshots map[SnapshotToken][]capturedEntry

	invalidateCallbacks *CallbackList[InvalidateFunction]
	update              *Monitor
}

func NewStore() *Store {
	return &Store{
		entries:             map[CacheKey]*cacheEntry{},
		fetchSeqs:           map[CacheKey]uint64{},
		snapshots:           map[SnapshotToken][]capturedEntry{},
		invalidateCallbacks: NewCallbackList[InvalidateFunction](),
		update:              NewMonitor(),
	}
}

// wakes up whenever any entry is written or invalidated
func (self *Store) UpdateMonitor() *Monitor {
	return self.update
}

// returns a function to remove the callback
func (self *Store) AddInvalidateCallback(callback InvalidateFunction) func() {
	return self.invalidateCallbacks.Add(callback)
}

func (self *Store) Read(key CacheKey) (any, bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	entry, ok := self.entries[key]
	if !ok {
		return nil, false
	}
	return entry.value, true
}

func (self *Store) Stale(key CacheKey) bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	entry, ok := self.entries[key]
	if !ok {
		return false
	}
	return entry.stale
}

// last write wins, no merge semantics
func (self *Store) Write(key CacheKey, value any) {
	self.mutex.Lock()
	self.entries[key] = &cacheEntry{
		value: value,
	}
	self.mutex.Unlock()

	glog.V(2).Infof("[cache]write %s\n", key)
	self.update.NotifyAll()
}

func (self *Store) Remove(key CacheKey) {
	self.mutex.Lock()
	delete(self.entries, key)
	self.mutex.Unlock()

	self.update.NotifyAll()
}

// applies `transform` to every currently cached entry whose key matches the
// prefix. The transform result replaces the entry value. Staleness is kept,
// since a locally patched derivative of a stale value is still stale.
func (self *Store) WriteByPredicate(prefix KeyPrefix, transform func(value any) any) {
	self.mutex.Lock()
	for key, entry := range self.entries {
		if prefix.Matches(key) {
			self.entries[key] = &cacheEntry{
				value: transform(entry.value),
				stale: entry.stale,
			}
		}
	}
	self.mutex.Unlock()

	glog.V(2).Infof("[cache]write by predicate %s\n", prefix)
	self.update.NotifyAll()
}

// marks all matching entries stale. The value stays readable until the next
// reconciling fetch replaces it. Does not block.
func (self *Store) Invalidate(prefix KeyPrefix) {
	self.mutex.Lock()
	for key, entry := range self.entries {
		if prefix.Matches(key) {
			entry.stale = true
		}
	}
	self.mutex.Unlock()

	glog.V(2).Infof("[cache]invalidate %s\n", prefix)
	for _, callback := range self.invalidateCallbacks.Get() {
		callback(prefix)
	}
	self.update.NotifyAll()
}

// captures the current value of every entry under the given prefixes,
// including "entry absent". The token stays valid until `Restore` or
// `Release`.
func (self *Store) Snapshot(prefixes []KeyPrefix) SnapshotToken {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	captured := []capturedEntry{}
	for _, prefix := range prefixes {
		if prefix.Param != "" {
			// exact prefixes capture absence, so that a restore can remove an
			// entry that appeared after the snapshot
			key := CacheKey{Resource: prefix.Resource, Param: prefix.Param}
			if entry, ok := self.entries[key]; ok {
				captured = append(captured, capturedEntry{
					key:     key,
					value:   entry.value,
					stale:   entry.stale,
					present: true,
				})
			} else {
				captured = append(captured, capturedEntry{
					key: key,
				})
			}
		} else {
			for key, entry := range self.entries {
				if prefix.Matches(key) {
					captured = append(captured, capturedEntry{
						key:     key,
						value:   entry.value,
						stale:   entry.stale,
						present: true,
					})
				}
			}
		}
	}

	token := SnapshotToken(ulid.Make().String())
	self.snapshots[token] = captured
	return token
}

// writes back every captured value verbatim,
// re-marking previously absent entries absent
func (self *Store) Restore(token SnapshotToken) {
	self.mutex.Lock()
	captured, ok := self.snapshots[token]
	if !ok {
		self.mutex.Unlock()
		return
	}
	delete(self.snapshots, token)
	for _, entry := range captured {
		if entry.present {
			self.entries[entry.key] = &cacheEntry{
				value: entry.value,
				stale: entry.stale,
			}
		} else {
			delete(self.entries, entry.key)
		}
	}
	self.mutex.Unlock()

	glog.V(2).Infof("[cache]restore %s (%d entries)\n", token, len(captured))
	self.update.NotifyAll()
}

// drops a snapshot without restoring it
func (self *Store) Release(token SnapshotToken) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	delete(self.snapshots, token)
}

// marks the start of a fetch for the key and returns the fetch generation,
// to be passed back to `CompleteFetch`. Starting a new fetch supersedes any
// earlier in-flight fetch for the same key.
func (self *Store) BeginFetch(key CacheKey) uint64 {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.fetchSeqs[key] += 1
	return self.fetchSeqs[key]
}

// writes the fetched value unless the fetch was superseded while in flight.
// returns whether the value was written.
func (self *Store) CompleteFetch(key CacheKey, fetchSeq uint64, value any) bool {
	self.mutex.Lock()
	if self.fetchSeqs[key] != fetchSeq {
		self.mutex.Unlock()
		glog.V(2).Infof("[cache]drop superseded fetch %s\n", key)
		return false
	}
	self.entries[key] = &cacheEntry{
		value: value,
	}
	self.mutex.Unlock()

	self.update.NotifyAll()
	return true
}

// supersedes any in-flight fetch for matching keys, so that a stale response
// cannot overwrite a later optimistic value
func (self *Store) CancelFetches(prefix KeyPrefix) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	for _, key := range maps.Keys(self.fetchSeqs) {
		if prefix.Matches(key) {
			self.fetchSeqs[key] += 1
		}
	}
}

// drops every entry, snapshot and fetch generation.
// used when the session changes.
func (self *Store) Clear() {
	self.mutex.Lock()
	maps.Clear(self.entries)
	maps.Clear(self.fetchSeqs)
	maps.Clear(self.snapshots)
	self.mutex.Unlock()

	glog.V(2).Infof("[cache]clear\n")
	self.update.NotifyAll()
}

func (self *Store) Keys() []CacheKey {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return maps.Keys(self.entries)
}
