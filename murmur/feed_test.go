package murmur

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/go-playground/assert/v2"
)

// serves a descending post listing with cursor pagination, like the backend
type feedBackend struct {
	mutex        sync.Mutex
	postIds      []PostId
	fail         bool
	requestCount int
}

func (self *feedBackend) SetPostIds(postIds []PostId) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.postIds = postIds
}

func (self *feedBackend) SetFail(fail bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.fail = fail
}

func (self *feedBackend) RequestCount() int {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.requestCount
}

func (self *feedBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	self.requestCount += 1

	if self.fail {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	limit := 2
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, _ = strconv.Atoi(limitStr)
	}

	postIds := self.postIds
	if cursorStr := r.URL.Query().Get("cursor"); cursorStr != "" {
		cursor, _ := ParsePostId(cursorStr)
		// the cursor is the last post of the previous page
		for i, postId := range postIds {
			if postId == cursor {
				postIds = postIds[i+1:]
				break
			}
		}
	}

	page := &PaginatedPosts{}
	for i := 0; i < len(postIds) && i < limit; i += 1 {
		page.Posts = append(page.Posts, &Post{Id: postIds[i]})
	}
	if limit < len(postIds) {
		nextCursor := page.Posts[len(page.Posts)-1].Id
		page.NextCursor = &nextCursor
		page.HasMore = true
	}
	json.NewEncoder(w).Encode(page)
}

func newTestFeed(t *testing.T, pageSize int64) (*feedBackend, *Queries, func()) {
	backend := &feedBackend{}
	server := httptest.NewServer(backend)

	cancelCtx, cancel := context.WithCancel(context.Background())
	api := NewMurmurApiWithContext(cancelCtx, server.URL)
	settings := DefaultQueriesSettings()
	settings.PageSize = pageSize
	queries := NewQueries(cancelCtx, api, NewStore(), settings)

	return backend, queries, func() {
		cancel()
		server.Close()
	}
}

func postIdsOf(posts []*Post) []PostId {
	postIds := []PostId{}
	for _, post := range posts {
		postIds = append(postIds, post.Id)
	}
	return postIds
}

func TestFeedPagination(t *testing.T) {
	backend, queries, close := newTestFeed(t, 2)
	defer close()

	backend.SetPostIds([]PostId{5, 4, 3, 2, 1})

	ctx := context.Background()
	view := queries.GlobalFeed()

	posts, err := view.Posts(ctx)
	assert.Equal(t, nil, err)
	assert.Equal(t, []PostId{5, 4}, postIdsOf(posts))
	assert.Equal(t, true, view.HasMore())

	more, err := view.FetchNextPage(ctx)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, more)

	more, err = view.FetchNextPage(ctx)
	assert.Equal(t, nil, err)
	assert.Equal(t, false, more)

	posts, err = view.Posts(ctx)
	assert.Equal(t, nil, err)
	assert.Equal(t, []PostId{5, 4, 3, 2, 1}, postIdsOf(posts))
	assert.Equal(t, false, view.HasMore())

	// an exhausted listing does not fetch again
	requestCount := backend.RequestCount()
	more, err = view.FetchNextPage(ctx)
	assert.Equal(t, nil, err)
	assert.Equal(t, false, more)
	assert.Equal(t, requestCount, backend.RequestCount())
}

func TestFeedConcurrentFetchNextPage(t *testing.T) {
	backend, queries, close := newTestFeed(t, 2)
	defer close()

	backend.SetPostIds([]PostId{6, 5, 4, 3, 2, 1})

	ctx := context.Background()
	view := queries.GlobalFeed()

	posts, err := view.Posts(ctx)
	assert.Equal(t, nil, err)
	assert.Equal(t, []PostId{6, 5}, postIdsOf(posts))

	// concurrent callers extend the listing one page at a time
	wg := sync.WaitGroup{}
	for i := 0; i < 2; i += 1 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := view.FetchNextPage(ctx)
			assert.Equal(t, nil, err)
		}()
	}
	wg.Wait()

	posts, err = view.Posts(ctx)
	assert.Equal(t, nil, err)
	assert.Equal(t, []PostId{6, 5, 4, 3, 2, 1}, postIdsOf(posts))
}

func TestFeedDropsDuplicateAtPageBoundary(t *testing.T) {
	backend, queries, close := newTestFeed(t, 2)
	defer close()

	backend.SetPostIds([]PostId{5, 4, 3, 2})

	ctx := context.Background()
	view := queries.GlobalFeed()

	_, err := view.Posts(ctx)
	assert.Equal(t, nil, err)

	// a new post lands on top between page fetches. The cursor protocol keeps
	// the next page aligned, so nothing is duplicated or skipped.
	backend.SetPostIds([]PostId{6, 5, 4, 3, 2})
	_, err = view.FetchNextPage(ctx)
	assert.Equal(t, nil, err)

	posts, err := view.Posts(ctx)
	assert.Equal(t, nil, err)
	assert.Equal(t, []PostId{5, 4, 3, 2}, postIdsOf(posts))
}

func TestFeedSeenTopAnchor(t *testing.T) {
	backend, queries, close := newTestFeed(t, 5)
	defer close()

	backend.SetPostIds([]PostId{5, 4, 3})

	ctx := context.Background()
	view := queries.GlobalFeed()

	posts, err := view.Posts(ctx)
	assert.Equal(t, nil, err)
	assert.Equal(t, []PostId{5, 4, 3}, postIdsOf(posts))
	assert.Equal(t, 0, view.NewPostCount())

	// two new posts arrive. A reconcile picks them up, but they stay above the
	// anchor until revealed.
	backend.SetPostIds([]PostId{7, 6, 5, 4, 3})
	queries.Store().Invalidate(ResourcePrefix(ResourceGlobalFeed))

	posts, err = view.Posts(ctx)
	assert.Equal(t, nil, err)
	assert.Equal(t, []PostId{5, 4, 3}, postIdsOf(posts))
	assert.Equal(t, 2, view.NewPostCount())

	// reveal never refetches
	requestCount := backend.RequestCount()
	view.Reveal()
	assert.Equal(t, requestCount, backend.RequestCount())

	posts, err = view.Posts(ctx)
	assert.Equal(t, nil, err)
	assert.Equal(t, []PostId{7, 6, 5, 4, 3}, postIdsOf(posts))
	assert.Equal(t, 0, view.NewPostCount())
	assert.Equal(t, requestCount, backend.RequestCount())
}

func TestFeedRefreshReplacesHeldPages(t *testing.T) {
	backend, queries, close := newTestFeed(t, 2)
	defer close()

	backend.SetPostIds([]PostId{6, 5, 4, 3, 2, 1})

	ctx := context.Background()
	view := queries.GlobalFeed()

	_, err := view.Posts(ctx)
	assert.Equal(t, nil, err)
	_, err = view.FetchNextPage(ctx)
	assert.Equal(t, nil, err)

	posts, _ := view.Posts(ctx)
	assert.Equal(t, []PostId{6, 5, 4, 3}, postIdsOf(posts))

	// post 5 is deleted remotely. A reconcile walks the held pages from the
	// top, so the deleted post vanishes from the listing.
	backend.SetPostIds([]PostId{6, 4, 3, 2, 1})
	err = view.Refresh(ctx)
	assert.Equal(t, nil, err)

	posts, _ = view.Posts(ctx)
	assert.Equal(t, []PostId{6, 4, 3, 2}, postIdsOf(posts))
}

func TestFeedServesCachedOnFailedRefresh(t *testing.T) {
	backend, queries, close := newTestFeed(t, 3)
	defer close()

	backend.SetPostIds([]PostId{3, 2, 1})

	ctx := context.Background()
	view := queries.GlobalFeed()

	posts, err := view.Posts(ctx)
	assert.Equal(t, nil, err)
	assert.Equal(t, []PostId{3, 2, 1}, postIdsOf(posts))

	queries.Store().Invalidate(ResourcePrefix(ResourceGlobalFeed))

	// the reconcile fails. The previously cached posts are still served.
	backend.SetFail(true)
	posts, err = view.Posts(ctx)
	assert.Equal(t, nil, err)
	assert.Equal(t, []PostId{3, 2, 1}, postIdsOf(posts))
}

func TestFeedMapPost(t *testing.T) {
	pages := &FeedPages{
		Pages: []*PaginatedPosts{
			{Posts: []*Post{{Id: PostId(2), LikeCount: 1}, {Id: PostId(1)}}},
			{Posts: []*Post{{Id: PostId(2), LikeCount: 1}}},
		},
	}

	nextPages := pages.MapPost(PostId(2), func(post Post) Post {
		post.LikeCount += 1
		return post
	})

	// every occurrence is updated, the original value is untouched
	assert.Equal(t, int64(2), nextPages.Pages[0].Posts[0].LikeCount)
	assert.Equal(t, int64(2), nextPages.Pages[1].Posts[0].LikeCount)
	assert.Equal(t, int64(1), pages.Pages[0].Posts[0].LikeCount)

	// map, not filter
	assert.Equal(t, 2, len(nextPages.Pages[0].Posts))
}
