package murmur

import (
	"context"
	"sync"

	"golang.org/x/exp/slices"
)

// Cached shape of a paginated post listing: pages in fetch order. Values are
// copy-on-write, matching the store contract.
type FeedPages struct {
	Pages []*PaginatedPosts
}

// concatenates pages in order, skipping duplicate ids that can appear at a
// page boundary after concurrent mutations
func (self *FeedPages) All() []*Post {
	posts := []*Post{}
	seen := map[PostId]bool{}
	for _, page := range self.Pages {
		for _, post := range page.Posts {
			if seen[post.Id] {
				continue
			}
			seen[post.Id] = true
			posts = append(posts, post)
		}
	}
	return posts
}

func (self *FeedPages) HasMore() bool {
	if len(self.Pages) == 0 {
		return true
	}
	lastPage := self.Pages[len(self.Pages)-1]
	return lastPage.HasMore && lastPage.NextCursor != nil
}

func (self *FeedPages) NextCursor() *PostId {
	if len(self.Pages) == 0 {
		return nil
	}
	return self.Pages[len(self.Pages)-1].NextCursor
}

// applies `update` to the matching post in every page. Map, not filter: page
// membership and ordering are never altered by this path. Returns a new value.
func (self *FeedPages) MapPost(postId PostId, update func(post Post) Post) *FeedPages {
	nextPages := make([]*PaginatedPosts, 0, len(self.Pages))
	for _, page := range self.Pages {
		nextPosts := make([]*Post, 0, len(page.Posts))
		for _, post := range page.Posts {
			if post.Id == postId {
				nextPost := update(*post)
				nextPosts = append(nextPosts, &nextPost)
			} else {
				nextPosts = append(nextPosts, post)
			}
		}
		nextPages = append(nextPages, &PaginatedPosts{
			Posts:      nextPosts,
			NextCursor: page.NextCursor,
			HasMore:    page.HasMore,
		})
	}
	return &FeedPages{Pages: nextPages}
}

type pageFetchFunction = func(ctx context.Context, cursor *PostId, limit int64) (*PaginatedPosts, error)

// A view over one paginated post listing in the store. The view tracks the
// originally observed top post so that items arriving above it are not
// auto-merged into what the caller sees; they are counted and revealed on
// request (`NewPostCount`, `Reveal`).
type FeedView struct {
	queries   *Queries
	key       CacheKey
	fetchPage pageFetchFunction

	mutex         sync.Mutex
	seenTopPostId *PostId
}

func newFeedView(queries *Queries, key CacheKey, fetchPage pageFetchFunction) *FeedView {
	return &FeedView{
		queries:   queries,
		key:       key,
		fetchPage: fetchPage,
	}
}

func (self *FeedView) Key() CacheKey {
	return self.key
}

func (self *FeedView) pages() *FeedPages {
	if value, ok := self.queries.store.Read(self.key); ok {
		if pages, ok := value.(*FeedPages); ok {
			return pages
		}
	}
	return nil
}

// the posts below the observed top anchor. Loads the first page if nothing is
// cached yet, and reconciles if the listing has been invalidated. On a failed
// reconcile the previously cached posts are served.
func (self *FeedView) Posts(ctx context.Context) ([]*Post, error) {
	pages := self.pages()
	if pages == nil || self.queries.store.Stale(self.key) {
		if err := self.Refresh(ctx); err != nil {
			if pages == nil {
				return nil, err
			}
		}
		pages = self.pages()
		if pages == nil {
			return []*Post{}, nil
		}
	}

	all := pages.All()

	self.mutex.Lock()
	defer self.mutex.Unlock()

	if self.seenTopPostId == nil && 0 < len(all) {
		topPostId := all[0].Id
		self.seenTopPostId = &topPostId
	}

	i := self.anchorIndex(all)
	if i <= 0 {
		return all, nil
	}
	return all[i:], nil
}

// how many items have arrived above the observed top
func (self *FeedView) NewPostCount() int {
	pages := self.pages()
	if pages == nil {
		return 0
	}

	self.mutex.Lock()
	defer self.mutex.Unlock()

	i := self.anchorIndex(pages.All())
	if i < 0 {
		return 0
	}
	return i
}

// re-anchors the observed top to the newest held post. Does not refetch pages
// already held.
func (self *FeedView) Reveal() {
	pages := self.pages()
	if pages == nil {
		return
	}
	all := pages.All()
	if len(all) == 0 {
		return
	}

	self.mutex.Lock()
	defer self.mutex.Unlock()

	topPostId := all[0].Id
	self.seenTopPostId = &topPostId
}

func (self *FeedView) anchorIndex(all []*Post) int {
	if self.seenTopPostId == nil {
		return -1
	}
	return slices.IndexFunc(all, func(post *Post) bool {
		return post.Id == *self.seenTopPostId
	})
}

func (self *FeedView) HasMore() bool {
	pages := self.pages()
	if pages == nil {
		return true
	}
	return pages.HasMore()
}

// fetches the page after the last held page. Returns whether more pages
// remain. A listing is exhausted when the server reports no continuation
// cursor.
func (self *FeedView) FetchNextPage(ctx context.Context) (bool, error) {
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
	page, err := self.fetchPage(ctx, pages.NextCursor(), self.queries.settings.PageSize)
	if err != nil {
		return true, err
	}

	nextPages := &FeedPages{
		Pages: append(slices.Clone(pages.Pages), page),
	}
	self.queries.store.CompleteFetch(self.key, fetchSeq, nextPages)
	return nextPages.HasMore(), nil
}

// reconciles the listing with the server: refetches from the top, walking the
// continuation cursors until as many pages as were previously held have been
// replaced (or the listing ends). New items surface at the top of the held
// sequence without moving the observed top anchor.
func (self *FeedView) Refresh(ctx context.Context) error {
	heldPageCount := 1
	if pages := self.pages(); pages != nil && 1 < len(pages.Pages) {
		heldPageCount = len(pages.Pages)
	}

	fetchSeq := self.queries.store.BeginFetch(self.key)

	nextPages := &FeedPages{}
	var cursor *PostId
	for i := 0; i < heldPageCount; i += 1 {
		page, err := self.fetchPage(ctx, cursor, self.queries.settings.PageSize)
		if err != nil {
			return err
		}
		nextPages.Pages = append(nextPages.Pages, page)
		if !page.HasMore || page.NextCursor == nil {
			break
		}
		cursor = page.NextCursor
	}

	self.queries.store.CompleteFetch(self.key, fetchSeq, nextPages)
	return nil
}
