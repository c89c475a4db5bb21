package murmur

import (
	"context"
	"sync"

	"golang.org/x/exp/slices"
)

const DefaultPageSize = 20

func DefaultQueriesSettings() *QueriesSettings {
	return &QueriesSettings{
		PageSize:         DefaultPageSize,
		SearchUsersLimit: 20,
		TrendingLimit:    10,
	}
}

type QueriesSettings struct {
	PageSize         int64
	SearchUsersLimit int64
	TrendingLimit    int64
}

// Read side of the client. Every read goes through the store: a present,
// non-stale entry is served as is; anything else triggers a reconciling fetch
// on observation. Fetch results are dropped if superseded while in flight.
type Queries struct {
	ctx      context.Context
	api      *MurmurApi
	store    *Store
	settings *QueriesSettings
}

func NewQueriesWithDefaults(ctx context.Context, api *MurmurApi, store *Store) *Queries {
	return NewQueries(ctx, api, store, DefaultQueriesSettings())
}

func NewQueries(ctx context.Context, api *MurmurApi, store *Store, settings *QueriesSettings) *Queries {
	return &Queries{
		ctx:      ctx,
		api:      api,
		store:    store,
		settings: settings,
	}
}

func (self *Queries) Store() *Store {
	return self.store
}

func (self *Queries) freshRead(key CacheKey) (any, bool) {
	if value, ok := self.store.Read(key); ok && !self.store.Stale(key) {
		return value, true
	}
	return nil, false
}

// await blocks on an api callback channel or the caller's context
func await[R any](ctx context.Context, c chan ApiCallbackResult[R]) (R, error) {
	select {
	case r := <-c:
		return r.Result, r.Error
	case <-ctx.Done():
		var empty R
		return empty, ctx.Err()
	}
}

// the caller's own profile. nil without error means no profile is set up yet.
func (self *Queries) Profile(ctx context.Context) (*UserProfile, error) {
	key := ProfileKey()
	if value, ok := self.freshRead(key); ok {
		profile, _ := value.(*UserProfile)
		return profile, nil
	}

	fetchSeq := self.store.BeginFetch(key)
	callback, c := NewBlockingApiCallback[*GetProfileResult]()
	self.api.GetProfile(callback)
	result, err := await(ctx, c)
	if err != nil {
		return nil, err
	}
	self.store.CompleteFetch(key, fetchSeq, result.Profile)
	return result.Profile, nil
}

// nil without error renders as a "doesn't exist" state, not an error
func (self *Queries) UserProfile(ctx context.Context, user Principal) (*UserProfileResponse, error) {
	key := UserProfileKey(user)
	if value, ok := self.freshRead(key); ok {
		profile, _ := value.(*UserProfileResponse)
		return profile, nil
	}

	fetchSeq := self.store.BeginFetch(key)
	callback, c := NewBlockingApiCallback[*GetUserProfileResult]()
	self.api.GetUserProfile(user, callback)
	result, err := await(ctx, c)
	if err != nil {
		return nil, err
	}
	self.store.CompleteFetch(key, fetchSeq, result.Profile)
	return result.Profile, nil
}

func (self *Queries) ProfileByUsername(ctx context.Context, username string) (*UserProfileResponse, error) {
	key := ProfileByUsernameKey(username)
	if value, ok := self.freshRead(key); ok {
		profile, _ := value.(*UserProfileResponse)
		return profile, nil
	}

	fetchSeq := self.store.BeginFetch(key)
	callback, c := NewBlockingApiCallback[*GetUserProfileResult]()
	self.api.GetProfileByUsername(username, callback)
	result, err := await(ctx, c)
	if err != nil {
		return nil, err
	}
	self.store.CompleteFetch(key, fetchSeq, result.Profile)
	return result.Profile, nil
}

func (self *Queries) PrincipalByUsername(ctx context.Context, username string) (*Principal, error) {
	callback, c := NewBlockingApiCallback[*GetPrincipalResult]()
	self.api.GetPrincipalByUsername(username, callback)
	result, err := await(ctx, c)
	if err != nil {
		return nil, err
	}
	return result.Principal, nil
}

func (self *Queries) Post(ctx context.Context, postId PostId) (*Post, error) {
	key := PostKey(postId)
	if value, ok := self.freshRead(key); ok {
		post, _ := value.(*Post)
		return post, nil
	}

	fetchSeq := self.store.BeginFetch(key)
	callback, c := NewBlockingApiCallback[*GetPostResult]()
	self.api.GetPost(postId, callback)
	result, err := await(ctx, c)
	if err != nil {
		return nil, err
	}
	self.store.CompleteFetch(key, fetchSeq, result.Post)
	return result.Post, nil
}

func (self *Queries) SearchUsers(ctx context.Context, searchText string) ([]*UserProfileResponse, error) {
	key := SearchUsersKey(searchText)
	if value, ok := self.freshRead(key); ok {
		users, _ := value.([]*UserProfileResponse)
		return users, nil
	}

	fetchSeq := self.store.BeginFetch(key)
	callback, c := NewBlockingApiCallback[*SearchUsersResult]()
	self.api.SearchUsers(searchText, self.settings.SearchUsersLimit, callback)
	result, err := await(ctx, c)
	if err != nil {
		return nil, err
	}
	self.store.CompleteFetch(key, fetchSeq, result.Users)
	return result.Users, nil
}

func (self *Queries) TrendingHashtags(ctx context.Context) ([]*TrendingHashtag, error) {
	key := TrendingHashtagsKey()
	if value, ok := self.freshRead(key); ok {
		hashtags, _ := value.([]*TrendingHashtag)
		return hashtags, nil
	}

	fetchSeq := self.store.BeginFetch(key)
	callback, c := NewBlockingApiCallback[*TrendingHashtagsResult]()
	self.api.GetTrendingHashtags(self.settings.TrendingLimit, callback)
	result, err := await(ctx, c)
	if err != nil {
		return nil, err
	}
	self.store.CompleteFetch(key, fetchSeq, result.Hashtags)
	return result.Hashtags, nil
}

func (self *Queries) UnreadNotificationCount(ctx context.Context) (int64, error) {
	key := UnreadNotificationCountKey()
	if value, ok := self.freshRead(key); ok {
		count, _ := value.(int64)
		return count, nil
	}

	fetchSeq := self.store.BeginFetch(key)
	callback, c := NewBlockingApiCallback[*UnreadNotificationCountResult]()
	self.api.GetUnreadNotificationCount(callback)
	result, err := await(ctx, c)
	if err != nil {
		return 0, err
	}
	self.store.CompleteFetch(key, fetchSeq, result.Count)
	return result.Count, nil
}

func (self *Queries) GlobalFeed() *FeedView {
	return newFeedView(self, GlobalFeedKey(), func(ctx context.Context, cursor *PostId, limit int64) (*PaginatedPosts, error) {
		callback, c := NewBlockingApiCallback[*PaginatedPosts]()
		self.api.GetGlobalFeed(cursor, limit, callback)
		return await(ctx, c)
	})
}

func (self *Queries) HomeFeed() *FeedView {
	return newFeedView(self, HomeFeedKey(), func(ctx context.Context, cursor *PostId, limit int64) (*PaginatedPosts, error) {
		callback, c := NewBlockingApiCallback[*PaginatedPosts]()
		self.api.GetHomeFeed(cursor, limit, callback)
		return await(ctx, c)
	})
}

func (self *Queries) UserPosts(user Principal) *FeedView {
	return newFeedView(self, UserPostsKey(user), func(ctx context.Context, cursor *PostId, limit int64) (*PaginatedPosts, error) {
		callback, c := NewBlockingApiCallback[*PaginatedPosts]()
		self.api.GetPostsByUser(user, cursor, limit, callback)
		return await(ctx, c)
	})
}

func (self *Queries) PostsByUsername(username string) *FeedView {
	return newFeedView(self, PostsByUsernameKey(username), func(ctx context.Context, cursor *PostId, limit int64) (*PaginatedPosts, error) {
		callback, c := NewBlockingApiCallback[*PaginatedPosts]()
		self.api.GetPostsByUsername(username, cursor, limit, callback)
		return await(ctx, c)
	})
}

func (self *Queries) PostsByHashtag(tag string) *FeedView {
	return newFeedView(self, PostsByHashtagKey(tag), func(ctx context.Context, cursor *PostId, limit int64) (*PaginatedPosts, error) {
		callback, c := NewBlockingApiCallback[*PaginatedPosts]()
		self.api.GetPostsByHashtag(tag, cursor, limit, callback)
		return await(ctx, c)
	})
}

func (self *Queries) SearchPosts(searchText string) *FeedView {
	return newFeedView(self, SearchPostsKey(searchText), func(ctx context.Context, cursor *PostId, limit int64) (*PaginatedPosts, error) {
		callback, c := NewBlockingApiCallback[*PaginatedPosts]()
		self.api.SearchPosts(searchText, cursor, limit, callback)
		return await(ctx, c)
	})
}

func (self *Queries) Replies(postId PostId) *FeedView {
	return newFeedView(self, RepliesKey(postId), func(ctx context.Context, cursor *PostId, limit int64) (*PaginatedPosts, error) {
		callback, c := NewBlockingApiCallback[*PaginatedPosts]()
		self.api.GetReplies(postId, cursor, limit, callback)
		return await(ctx, c)
	})
}

// cached shape of the notification listing
type NotificationPages struct {
	Pages []*PaginatedNotifications
}

func (self *NotificationPages) All() []*Notification {
	notifications := []*Notification{}
	seen := map[NotificationId]bool{}
	for _, page := range self.Pages {
		for _, notification := range page.Notifications {
			if seen[notification.Id] {
				continue
			}
			seen[notification.Id] = true
			notifications = append(notifications, notification)
		}
	}
	return notifications
}

func (self *NotificationPages) HasMore() bool {
	if len(self.Pages) == 0 {
		return true
	}
	lastPage := self.Pages[len(self.Pages)-1]
	return lastPage.HasMore && lastPage.NextCursor != nil
}

type NotificationsView struct {
	queries *Queries
	key     CacheKey
	mutex   sync.Mutex
}

func (self *Queries) Notifications() *NotificationsView {
	return &NotificationsView{
		queries: self,
		key:     NotificationsKey(),
	}
}

func (self *NotificationsView) pages() *NotificationPages {
	if value, ok := self.queries.store.Read(self.key); ok {
		if pages, ok := value.(*NotificationPages); ok {
			return pages
		}
	}
	return nil
}

func (self *NotificationsView) Items(ctx context.Context) ([]*Notification, error) {
	pages := self.pages()
	if pages == nil || self.queries.store.Stale(self.key) {
		if err := self.Refresh(ctx); err != nil {
			if pages == nil {
				return nil, err
			}
		}
		pages = self.pages()
		if pages == nil {
			return []*Notification{}, nil
		}
	}
	return pages.All(), nil
}

func (self *NotificationsView) HasMore() bool {
	pages := self.pages()
	if pages == nil {
		return true
	}
	return pages.HasMore()
}

func (self *NotificationsView) FetchNextPage(ctx context.Context) (bool, error) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	pages := self.pages()
	if pages == nil {
		if err := self.Refresh(ctx); err != nil {
			return true, err
		}
		return self.HasMore(), nil
	}
	if !pages.HasMore() {
		return false, nil
	}

	fetchSeq := self.queries.store.BeginFetch(self.key)
	lastPage := pages.Pages[len(pages.Pages)-1]
	page, err := self.fetchPage(ctx, lastPage.NextCursor)
	if err != nil {
		return true, err
	}

	nextPages := &NotificationPages{
		Pages: append(slices.Clone(pages.Pages), page),
	}
	self.queries.store.CompleteFetch(self.key, fetchSeq, nextPages)
	return nextPages.HasMore(), nil
}

func (self *NotificationsView) Refresh(ctx context.Context) error {
	fetchSeq := self.queries.store.BeginFetch(self.key)
	page, err := self.fetchPage(ctx, nil)
	if err != nil {
		return err
	}
	self.queries.store.CompleteFetch(self.key, fetchSeq, &NotificationPages{
		Pages: []*PaginatedNotifications{page},
	})
	return nil
}

func (self *NotificationsView) fetchPage(ctx context.Context, cursor *NotificationId) (*PaginatedNotifications, error) {
	callback, c := NewBlockingApiCallback[*PaginatedNotifications]()
	self.queries.api.GetNotifications(cursor, self.queries.settings.PageSize, callback)
	return await(ctx, c)
}

// cached shape of a follower/following listing, paginated by offset
type FollowPages struct {
	Pages []*PaginatedFollows
}

func (self *FollowPages) All() []*FollowUser {
	users := []*FollowUser{}
	seen := map[Principal]bool{}
	for _, page := range self.Pages {
		for _, user := range page.Users {
			if seen[user.Principal] {
				continue
			}
			seen[user.Principal] = true
			users = append(users, user)
		}
	}
	return users
}

func (self *FollowPages) HasMore() bool {
	if len(self.Pages) == 0 {
		return true
	}
	lastPage := self.Pages[len(self.Pages)-1]
	return lastPage.HasMore && lastPage.NextOffset != nil
}

type followPageFetchFunction = func(ctx context.Context, offset int64, limit int64) (*PaginatedFollows, error)

type FollowsView struct {
	queries   *Queries
	key       CacheKey
	fetchPage followPageFetchFunction
	mutex     sync.Mutex
}

func (self *Queries) Followers(username string) *FollowsView {
	return &FollowsView{
		queries: self,
		key:     FollowersKey(username),
		fetchPage: func(ctx context.Context, offset int64, limit int64) (*PaginatedFollows, error) {
			callback, c := NewBlockingApiCallback[*PaginatedFollows]()
			self.api.GetFollowers(username, offset, limit, callback)
			return await(ctx, c)
		},
	}
}

func (self *Queries) Following(username string) *FollowsView {
	return &FollowsView{
		queries: self,
		key:     FollowingKey(username),
		fetchPage: func(ctx context.Context, offset int64, limit int64) (*PaginatedFollows, error) {
			callback, c := NewBlockingApiCallback[*PaginatedFollows]()
			self.api.GetFollowing(username, offset, limit, callback)
			return await(ctx, c)
		},
	}
}

func (self *FollowsView) pages() *FollowPages {
	if value, ok := self.queries.store.Read(self.key); ok {
		if pages, ok := value.(*FollowPages); ok {
			return pages
		}
	}
	return nil
}

func (self *FollowsView) Items(ctx context.Context) ([]*FollowUser, error) {
	pages := self.pages()
	if pages == nil || self.queries.store.Stale(self.key) {
		if err := self.Refresh(ctx); err != nil {
			if pages == nil {
				return nil, err
			}
		}
		pages = self.pages()
		if pages == nil {
			return []*FollowUser{}, nil
		}
	}
	return pages.All(), nil
}

func (self *FollowsView) HasMore() bool {
	pages := self.pages()
	if pages == nil {
		return true
	}
	return pages.HasMore()
}

func (self *FollowsView) FetchNextPage(ctx context.Context) (bool, error) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	pages := self.pages()
	if pages == nil {
		if err := self.Refresh(ctx); err != nil {
			return true, err
		}
		return self.HasMore(), nil
	}
	if !pages.HasMore() {
		return false, nil
	}

	fetchSeq := self.queries.store.BeginFetch(self.key)
	lastPage := pages.Pages[len(pages.Pages)-1]
	page, err := self.fetchPage(ctx, *lastPage.NextOffset, self.queries.settings.PageSize)
	if err != nil {
		return true, err
	}

	nextPages := &FollowPages{
		Pages: append(slices.Clone(pages.Pages), page),
	}
	self.queries.store.CompleteFetch(self.key, fetchSeq, nextPages)
	return nextPages.HasMore(), nil
}

func (self *FollowsView) Refresh(ctx context.Context) error {
	fetchSeq := self.queries.store.BeginFetch(self.key)
	page, err := self.fetchPage(ctx, 0, self.queries.settings.PageSize)
	if err != nil {
		return err
	}
	self.queries.store.CompleteFetch(self.key, fetchSeq, &FollowPages{
		Pages: []*PaginatedFollows{page},
	})
	return nil
}
