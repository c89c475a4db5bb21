package murmur

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func seedFeedPost(store *Store, key CacheKey, post *Post) {
	store.Write(key, &FeedPages{
		Pages: []*PaginatedPosts{
			{Posts: []*Post{post}},
		},
	})
}

func newTestCoordinator(t *testing.T, handler http.Handler) (*Coordinator, *Store, func()) {
	server := httptest.NewServer(handler)

	cancelCtx, cancel := context.WithCancel(context.Background())
	api := NewMurmurApiWithContext(cancelCtx, server.URL)
	store := NewStore()
	coordinator := NewCoordinator(cancelCtx, api, store)

	return coordinator, store, func() {
		cancel()
		server.Close()
	}
}

func TestLikePostOptimistic(t *testing.T) {
	coordinator, store, close := newTestCoordinator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	}))
	defer close()

	postId := PostId(42)
	seedFeedPost(store, GlobalFeedKey(), &Post{Id: postId, LikeCount: 3})
	store.Write(PostKey(postId), &Post{Id: postId, LikeCount: 3})

	err := coordinator.LikePost(context.Background(), postId)
	assert.Equal(t, nil, err)

	// the delta applied everywhere the post is cached
	value, _ := store.Read(GlobalFeedKey())
	feedPost := value.(*FeedPages).All()[0]
	assert.Equal(t, int64(4), feedPost.LikeCount)
	assert.Equal(t, true, feedPost.IsLikedByCurrentUser)

	value, _ = store.Read(PostKey(postId))
	assert.Equal(t, int64(4), value.(*Post).LikeCount)

	// affected keys are left stale for the next reconciling read
	assert.Equal(t, true, store.Stale(GlobalFeedKey()))
	assert.Equal(t, true, store.Stale(PostKey(postId)))
}

func TestLikePostFailureRestores(t *testing.T) {
	coordinator, store, close := newTestCoordinator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "like failed", http.StatusInternalServerError)
	}))
	defer close()

	postId := PostId(42)
	seedFeedPost(store, GlobalFeedKey(), &Post{Id: postId, LikeCount: 3})

	notices := []*MutationNotice{}
	coordinator.AddNoticeCallback(func(notice *MutationNotice) {
		notices = append(notices, notice)
	})

	err := coordinator.LikePost(context.Background(), postId)
	assert.NotEqual(t, nil, err)
	assert.Equal(t, "like failed", err.Error())

	// the pre-mutation state is restored exactly
	value, _ := store.Read(GlobalFeedKey())
	feedPost := value.(*FeedPages).All()[0]
	assert.Equal(t, int64(3), feedPost.LikeCount)
	assert.Equal(t, false, feedPost.IsLikedByCurrentUser)

	// still invalidated, so the next read reconciles with the server
	assert.Equal(t, true, store.Stale(GlobalFeedKey()))

	assert.Equal(t, 1, len(notices))
	assert.Equal(t, "like", notices[0].Mutation)
}

func TestLikeThenUnlikeRoundTrip(t *testing.T) {
	coordinator, store, close := newTestCoordinator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	}))
	defer close()

	postId := PostId(7)
	seedFeedPost(store, GlobalFeedKey(), &Post{Id: postId, LikeCount: 10})

	ctx := context.Background()
	assert.Equal(t, nil, coordinator.LikePost(ctx, postId))
	assert.Equal(t, nil, coordinator.UnlikePost(ctx, postId))

	value, _ := store.Read(GlobalFeedKey())
	feedPost := value.(*FeedPages).All()[0]
	assert.Equal(t, int64(10), feedPost.LikeCount)
	assert.Equal(t, false, feedPost.IsLikedByCurrentUser)
}

func TestUnlikeNeverGoesNegative(t *testing.T) {
	coordinator, store, close := newTestCoordinator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	}))
	defer close()

	postId := PostId(7)
	seedFeedPost(store, GlobalFeedKey(), &Post{Id: postId, LikeCount: 0, IsLikedByCurrentUser: true})

	err := coordinator.UnlikePost(context.Background(), postId)
	assert.Equal(t, nil, err)

	value, _ := store.Read(GlobalFeedKey())
	assert.Equal(t, int64(0), value.(*FeedPages).All()[0].LikeCount)
}

func TestRepostOptimistic(t *testing.T) {
	coordinator, store, close := newTestCoordinator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	}))
	defer close()

	postId := PostId(9)
	seedFeedPost(store, HomeFeedKey(), &Post{Id: postId, RepostCount: 1})

	err := coordinator.RepostPost(context.Background(), postId)
	assert.Equal(t, nil, err)

	value, _ := store.Read(HomeFeedKey())
	feedPost := value.(*FeedPages).All()[0]
	assert.Equal(t, int64(2), feedPost.RepostCount)
	assert.Equal(t, true, feedPost.IsRepostedByCurrentUser)
}

func TestFollowUnfollow(t *testing.T) {
	coordinator, store, close := newTestCoordinator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	}))
	defer close()

	user := Principal("user-1")
	store.Write(UserProfileKey(user), &UserProfileResponse{
		Principal:      user,
		Username:       "alice",
		FollowersCount: 5,
	})
	store.Write(ProfileByUsernameKey("alice"), &UserProfileResponse{
		Principal:      user,
		Username:       "alice",
		FollowersCount: 5,
	})

	ctx := context.Background()
	assert.Equal(t, nil, coordinator.FollowUser(ctx, user))

	// both cached views of the profile carry the delta
	value, _ := store.Read(UserProfileKey(user))
	assert.Equal(t, int64(6), value.(*UserProfileResponse).FollowersCount)
	assert.Equal(t, true, value.(*UserProfileResponse).IsFollowedByCurrentUser)
	value, _ = store.Read(ProfileByUsernameKey("alice"))
	assert.Equal(t, int64(6), value.(*UserProfileResponse).FollowersCount)

	// the home feed is invalidated since following changes its contents
	store.Write(HomeFeedKey(), &FeedPages{})
	assert.Equal(t, nil, coordinator.UnfollowUser(ctx, user))
	assert.Equal(t, true, store.Stale(HomeFeedKey()))

	value, _ = store.Read(UserProfileKey(user))
	assert.Equal(t, int64(5), value.(*UserProfileResponse).FollowersCount)
	assert.Equal(t, false, value.(*UserProfileResponse).IsFollowedByCurrentUser)
}

func TestFollowFailureRestores(t *testing.T) {
	coordinator, store, close := newTestCoordinator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "follow failed", http.StatusForbidden)
	}))
	defer close()

	user := Principal("user-1")
	store.Write(UserProfileKey(user), &UserProfileResponse{
		Principal:      user,
		FollowersCount: 5,
	})

	err := coordinator.FollowUser(context.Background(), user)
	assert.NotEqual(t, nil, err)

	value, _ := store.Read(UserProfileKey(user))
	assert.Equal(t, int64(5), value.(*UserProfileResponse).FollowersCount)
	assert.Equal(t, false, value.(*UserProfileResponse).IsFollowedByCurrentUser)
}

func TestCreateReplyBumpsParentCount(t *testing.T) {
	coordinator, store, close := newTestCoordinator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(&CreatePostResult{
			Post: &Post{Id: PostId(100), Text: "a reply"},
		})
	}))
	defer close()

	parentPostId := PostId(42)
	seedFeedPost(store, GlobalFeedKey(), &Post{Id: parentPostId, ReplyCount: 2})
	store.Write(PostKey(parentPostId), &Post{Id: parentPostId, ReplyCount: 2})

	created, err := coordinator.CreateReply(context.Background(), parentPostId, "a reply", nil, "")
	assert.Equal(t, nil, err)
	assert.Equal(t, PostId(100), created.Id)

	// the parent's reply count is bumped in place everywhere it is cached
	value, _ := store.Read(GlobalFeedKey())
	assert.Equal(t, int64(3), value.(*FeedPages).All()[0].ReplyCount)
	value, _ = store.Read(PostKey(parentPostId))
	assert.Equal(t, int64(3), value.(*Post).ReplyCount)

	// the reply listing of the parent is invalidated
	store.Write(RepliesKey(parentPostId), &FeedPages{})
	_, err = coordinator.CreateReply(context.Background(), parentPostId, "another", nil, "")
	assert.Equal(t, nil, err)
	assert.Equal(t, true, store.Stale(RepliesKey(parentPostId)))
}

func TestCreatePostRejectsBadText(t *testing.T) {
	coordinator, _, close := newTestCoordinator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("invalid text should never reach the backend")
	}))
	defer close()

	ctx := context.Background()

	_, err := coordinator.CreatePost(ctx, "   ", nil, "")
	assert.NotEqual(t, nil, err)

	longText := make([]rune, MaxPostLength+1)
	for i := range longText {
		longText[i] = 'a'
	}
	_, err = coordinator.CreatePost(ctx, string(longText), nil, "")
	assert.NotEqual(t, nil, err)

	_, err = coordinator.CreateReply(ctx, PostId(1), "", nil, "")
	assert.NotEqual(t, nil, err)
}

func TestDeletePostInvalidatesEveryListing(t *testing.T) {
	coordinator, store, close := newTestCoordinator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	}))
	defer close()

	postId := PostId(42)
	seedFeedPost(store, GlobalFeedKey(), &Post{Id: postId})
	seedFeedPost(store, UserPostsKey(Principal("user-1")), &Post{Id: postId})
	seedFeedPost(store, PostsByHashtagKey("go"), &Post{Id: postId})
	store.Write(PostKey(postId), &Post{Id: postId, CreatedAt: time.Now().UnixNano()})

	err := coordinator.DeletePost(context.Background(), postId)
	assert.Equal(t, nil, err)

	assert.Equal(t, true, store.Stale(GlobalFeedKey()))
	assert.Equal(t, true, store.Stale(UserPostsKey(Principal("user-1"))))
	assert.Equal(t, true, store.Stale(PostsByHashtagKey("go")))
	assert.Equal(t, true, store.Stale(PostKey(postId)))
}

func TestDeletePostFailureDoesNotInvalidate(t *testing.T) {
	coordinator, store, close := newTestCoordinator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too late to delete", http.StatusForbidden)
	}))
	defer close()

	postId := PostId(42)
	seedFeedPost(store, GlobalFeedKey(), &Post{Id: postId})

	err := coordinator.DeletePost(context.Background(), postId)
	assert.NotEqual(t, nil, err)
	assert.Equal(t, false, store.Stale(GlobalFeedKey()))
}

func TestEditDeleteOutsideOwnershipWindow(t *testing.T) {
	coordinator, store, close := newTestCoordinator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("an out-of-window edit or delete should never reach the backend")
	}))
	defer close()

	ctx := context.Background()
	postId := PostId(42)
	store.Write(PostKey(postId), &Post{
		Id:        postId,
		CreatedAt: time.Now().Add(-EditDeleteWindow - time.Minute).UnixNano(),
	})

	_, err := coordinator.EditPost(ctx, postId, "too late")
	assert.NotEqual(t, nil, err)

	err = coordinator.DeletePost(ctx, postId)
	assert.NotEqual(t, nil, err)

	// a rejected mutation invalidates nothing
	assert.Equal(t, false, store.Stale(PostKey(postId)))
}

func TestEditInsideOwnershipWindow(t *testing.T) {
	coordinator, store, close := newTestCoordinator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(&CreatePostResult{
			Post: &Post{Id: PostId(42), Text: "edited"},
		})
	}))
	defer close()

	ctx := context.Background()
	postId := PostId(42)
	store.Write(PostKey(postId), &Post{
		Id:        postId,
		CreatedAt: time.Now().Add(-time.Minute).UnixNano(),
	})

	edited, err := coordinator.EditPost(ctx, postId, "edited")
	assert.Equal(t, nil, err)
	assert.Equal(t, "edited", edited.Text)

	// an uncached post defers the window check to the server
	_, err = coordinator.EditPost(ctx, PostId(7), "unseen post")
	assert.Equal(t, nil, err)
}

func TestMarkAllNotificationsRead(t *testing.T) {
	coordinator, store, close := newTestCoordinator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	}))
	defer close()

	store.Write(NotificationsKey(), &NotificationPages{})
	store.Write(UnreadNotificationCountKey(), int64(3))

	err := coordinator.MarkAllNotificationsRead(context.Background())
	assert.Equal(t, nil, err)

	assert.Equal(t, true, store.Stale(NotificationsKey()))
	assert.Equal(t, true, store.Stale(UnreadNotificationCountKey()))
}

func TestSetProfileValidatesUsername(t *testing.T) {
	coordinator, _, close := newTestCoordinator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("invalid username should never reach the backend")
	}))
	defer close()

	err := coordinator.SetProfile(context.Background(), "a!", "Alice", "")
	assert.NotEqual(t, nil, err)
}
