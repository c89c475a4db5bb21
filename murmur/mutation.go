package murmur

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang/glog"
)

// Orchestrates every state-changing user action against the store and the
// remote backend. Two shapes:
//
// optimistic (like/unlike, repost/undo-repost, follow/unfollow): the local
// transform is a small reversible delta. Cancel in-flight fetches for the
// affected keys, snapshot them, apply the transform, issue the call. On
// failure restore the snapshot exactly. Either way invalidate the affected
// keys so the next read reconciles with server truth.
//
// pessimistic (create, reply, quote, edit, delete, block, mute, profile
// updates, mark-read): no local transform before the call. On completion the
// affected keys are invalidated. The one exception is a counter belonging to
// a different entity than the one mutated, which gets a direct predicate
// write (a reply bumps the parent's reply count in place).
//
// No mutation is retried automatically. Failures surface as transient
// notices. If two optimistic mutations race on the same key, the last
// restored snapshot wins, which can briefly restore a state older than the
// latest intent; the closing invalidation self-heals it.

type MutationNotice struct {
	Mutation string
	Err      error
}

func (self *MutationNotice) String() string {
	return fmt.Sprintf("%s failed: %s", self.Mutation, self.Err)
}

type MutationNoticeFunction = func(notice *MutationNotice)

type Coordinator struct {
	ctx   context.Context
	api   *MurmurApi
	store *Store

	noticeCallbacks *CallbackList[MutationNoticeFunction]
}

func NewCoordinator(ctx context.Context, api *MurmurApi, store *Store) *Coordinator {
	return &Coordinator{
		ctx:             ctx,
		api:             api,
		store:           store,
		noticeCallbacks: NewCallbackList[MutationNoticeFunction](),
	}
}

// returns a function to remove the callback
func (self *Coordinator) AddNoticeCallback(callback MutationNoticeFunction) func() {
	return self.noticeCallbacks.Add(callback)
}

func (self *Coordinator) notify(mutation string, err error) {
	glog.Infof("[mutation]%s failed = %s\n", mutation, err)
	notice := &MutationNotice{
		Mutation: mutation,
		Err:      err,
	}
	for _, callback := range self.noticeCallbacks.Get() {
		callback(notice)
	}
}

// the optimistic protocol, shape shared by all reversible-delta mutations
func (self *Coordinator) optimistic(
	mutation string,
	prefixes []KeyPrefix,
	transform func(),
	call func() error,
) error {
	for _, prefix := range prefixes {
		self.store.CancelFetches(prefix)
	}

	token := self.store.Snapshot(prefixes)
	transform()

	err := call()
	if err != nil {
		self.store.Restore(token)
		self.notify(mutation, err)
	} else {
		self.store.Release(token)
	}

	for _, prefix := range prefixes {
		self.store.Invalidate(prefix)
	}
	return err
}

// the pessimistic protocol: call, then invalidate on success
func (self *Coordinator) pessimistic(
	mutation string,
	prefixes []KeyPrefix,
	call func() error,
) error {
	err := call()
	if err != nil {
		self.notify(mutation, err)
		return err
	}
	for _, prefix := range prefixes {
		self.store.Invalidate(prefix)
	}
	return nil
}

// applies `update` to the post wherever it is currently cached:
// every page of every post listing, and the single post entry
func (self *Coordinator) updatePostEverywhere(postId PostId, update func(post Post) Post) {
	transform := func(value any) any {
		switch v := value.(type) {
		case *FeedPages:
			return v.MapPost(postId, update)
		case *Post:
			if v == nil || v.Id != postId {
				return value
			}
			nextPost := update(*v)
			return &nextPost
		default:
			return value
		}
	}
	for _, prefix := range postFeedPrefixes() {
		self.store.WriteByPredicate(prefix, transform)
	}
	self.store.WriteByPredicate(ExactPrefix(PostKey(postId)), transform)
}

// applies `update` to the user's profile wherever it is currently cached
func (self *Coordinator) updateProfileEverywhere(user Principal, update func(profile UserProfileResponse) UserProfileResponse) {
	transform := func(value any) any {
		profile, ok := value.(*UserProfileResponse)
		if !ok || profile == nil || profile.Principal != user {
			return value
		}
		nextProfile := update(*profile)
		return &nextProfile
	}
	self.store.WriteByPredicate(ExactPrefix(UserProfileKey(user)), transform)
	self.store.WriteByPredicate(ResourcePrefix(ResourceProfileByUsername), transform)
}

func (self *Coordinator) LikePost(ctx context.Context, postId PostId) error {
	return self.optimistic(
		"like",
		postAffectedPrefixes(postId),
		func() {
			self.updatePostEverywhere(postId, func(post Post) Post {
				post.LikeCount += 1
				post.IsLikedByCurrentUser = true
				return post
			})
		},
		func() error {
			callback, c := NewBlockingApiCallback[*LikePostResult]()
			self.api.LikePost(postId, callback)
			_, err := await(ctx, c)
			return err
		},
	)
}

func (self *Coordinator) UnlikePost(ctx context.Context, postId PostId) error {
	return self.optimistic(
		"unlike",
		postAffectedPrefixes(postId),
		func() {
			self.updatePostEverywhere(postId, func(post Post) Post {
				// counters are never observed negative
				if 0 < post.LikeCount {
					post.LikeCount -= 1
				}
				post.IsLikedByCurrentUser = false
				return post
			})
		},
		func() error {
			callback, c := NewBlockingApiCallback[*LikePostResult]()
			self.api.UnlikePost(postId, callback)
			_, err := await(ctx, c)
			return err
		},
	)
}

func (self *Coordinator) RepostPost(ctx context.Context, postId PostId) error {
	return self.optimistic(
		"repost",
		postAffectedPrefixes(postId),
		func() {
			self.updatePostEverywhere(postId, func(post Post) Post {
				post.RepostCount += 1
				post.IsRepostedByCurrentUser = true
				return post
			})
		},
		func() error {
			callback, c := NewBlockingApiCallback[*RepostResult]()
			self.api.RepostPost(postId, callback)
			_, err := await(ctx, c)
			return err
		},
	)
}

func (self *Coordinator) UndoRepost(ctx context.Context, postId PostId) error {
	return self.optimistic(
		"undo repost",
		postAffectedPrefixes(postId),
		func() {
			self.updatePostEverywhere(postId, func(post Post) Post {
				if 0 < post.RepostCount {
					post.RepostCount -= 1
				}
				post.IsRepostedByCurrentUser = false
				return post
			})
		},
		func() error {
			callback, c := NewBlockingApiCallback[*RepostResult]()
			self.api.UndoRepost(postId, callback)
			_, err := await(ctx, c)
			return err
		},
	)
}

func (self *Coordinator) FollowUser(ctx context.Context, user Principal) error {
	return self.optimistic(
		"follow",
		followAffectedPrefixes(user),
		func() {
			self.updateProfileEverywhere(user, func(profile UserProfileResponse) UserProfileResponse {
				profile.FollowersCount += 1
				profile.IsFollowedByCurrentUser = true
				return profile
			})
		},
		func() error {
			callback, c := NewBlockingApiCallback[*SocialGraphResult]()
			self.api.FollowUser(user, callback)
			_, err := await(ctx, c)
			return err
		},
	)
}

func (self *Coordinator) UnfollowUser(ctx context.Context, user Principal) error {
	return self.optimistic(
		"unfollow",
		followAffectedPrefixes(user),
		func() {
			self.updateProfileEverywhere(user, func(profile UserProfileResponse) UserProfileResponse {
				if 0 < profile.FollowersCount {
					profile.FollowersCount -= 1
				}
				profile.IsFollowedByCurrentUser = false
				return profile
			})
		},
		func() error {
			callback, c := NewBlockingApiCallback[*SocialGraphResult]()
			self.api.UnfollowUser(user, callback)
			_, err := await(ctx, c)
			return err
		},
	)
}

// The backend enforces the ownership window; when the post is cached locally
// an out-of-window edit or delete is rejected before submission. An uncached
// post falls through to the server check.
func (self *Coordinator) checkModifyWindow(postId PostId, action string) error {
	value, ok := self.store.Read(PostKey(postId))
	if !ok {
		return nil
	}
	post, ok := value.(*Post)
	if !ok || post == nil {
		return nil
	}
	if !post.CanModify(time.Now()) {
		return fmt.Errorf("posts can only be %s within %s of posting", action, EditDeleteWindow)
	}
	return nil
}

// validated before submission, never sent to the backend when invalid
func validatePostText(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", errors.New("post text must not be empty")
	}
	if MaxPostLength < utf8.RuneCountInString(trimmed) {
		return "", fmt.Errorf("post text must be at most %d characters", MaxPostLength)
	}
	return trimmed, nil
}

func (self *Coordinator) CreatePost(ctx context.Context, text string, media *BlobRef, mediaKind MediaKind) (*Post, error) {
	trimmed, err := validatePostText(text)
	if err != nil {
		return nil, err
	}

	var created *Post
	err = self.pessimistic(
		"create post",
		[]KeyPrefix{
			ResourcePrefix(ResourceGlobalFeed),
			ResourcePrefix(ResourceHomeFeed),
			ResourcePrefix(ResourceUserPosts),
		},
		func() error {
			callback, c := NewBlockingApiCallback[*CreatePostResult]()
			self.api.CreatePost(&CreatePostArgs{
				Text:      trimmed,
				Media:     media,
				MediaKind: mediaKind,
			}, callback)
			result, err := await(ctx, c)
			if err != nil {
				return err
			}
			created = result.Post
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (self *Coordinator) CreateReply(ctx context.Context, parentPostId PostId, text string, media *BlobRef, mediaKind MediaKind) (*Post, error) {
	trimmed, err := validatePostText(text)
	if err != nil {
		return nil, err
	}

	var created *Post
	err = self.pessimistic(
		"reply",
		[]KeyPrefix{
			ExactPrefix(RepliesKey(parentPostId)),
			ExactPrefix(PostKey(parentPostId)),
		},
		func() error {
			callback, c := NewBlockingApiCallback[*CreatePostResult]()
			self.api.CreateReply(&CreateReplyArgs{
				ParentPostId: parentPostId,
				Text:         trimmed,
				Media:        media,
				MediaKind:    mediaKind,
			}, callback)
			result, err := await(ctx, c)
			if err != nil {
				return err
			}
			created = result.Post
			return nil
		},
	)
	if err != nil {
		return nil, err
	}

	// the parent's reply count lives in listings that are not being refetched
	// here, so bump it in place
	self.updatePostEverywhere(parentPostId, func(post Post) Post {
		post.ReplyCount += 1
		return post
	})
	return created, nil
}

func (self *Coordinator) QuotePost(ctx context.Context, postId PostId, text string, media *BlobRef, mediaKind MediaKind) (*Post, error) {
	trimmed, err := validatePostText(text)
	if err != nil {
		return nil, err
	}

	var created *Post
	err = self.pessimistic(
		"quote",
		[]KeyPrefix{
			ResourcePrefix(ResourceGlobalFeed),
			ResourcePrefix(ResourceHomeFeed),
			ResourcePrefix(ResourceUserPosts),
		},
		func() error {
			callback, c := NewBlockingApiCallback[*CreatePostResult]()
			self.api.QuotePost(&QuotePostArgs{
				PostId:    postId,
				Text:      trimmed,
				Media:     media,
				MediaKind: mediaKind,
			}, callback)
			result, err := await(ctx, c)
			if err != nil {
				return err
			}
			created = result.Post
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (self *Coordinator) EditPost(ctx context.Context, postId PostId, text string) (*Post, error) {
	trimmed, err := validatePostText(text)
	if err != nil {
		return nil, err
	}
	if err := self.checkModifyWindow(postId, "edited"); err != nil {
		return nil, err
	}

	var edited *Post
	err = self.pessimistic(
		"edit post",
		append(postFeedPrefixes(), ExactPrefix(PostKey(postId))),
		func() error {
			callback, c := NewBlockingApiCallback[*CreatePostResult]()
			self.api.EditPost(&EditPostArgs{
				PostId: postId,
				Text:   trimmed,
			}, callback)
			result, err := await(ctx, c)
			if err != nil {
				return err
			}
			edited = result.Post
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	return edited, nil
}

// invalidates every listing the post could appear in, so the next
// reconciliation read drops it everywhere without a full reload
func (self *Coordinator) DeletePost(ctx context.Context, postId PostId) error {
	if err := self.checkModifyWindow(postId, "deleted"); err != nil {
		return err
	}
	return self.pessimistic(
		"delete post",
		append(postFeedPrefixes(), ExactPrefix(PostKey(postId))),
		func() error {
			callback, c := NewBlockingApiCallback[*DeletePostResult]()
			self.api.DeletePost(postId, callback)
			_, err := await(ctx, c)
			return err
		},
	)
}

func (self *Coordinator) BlockUser(ctx context.Context, user Principal) error {
	return self.pessimistic(
		"block",
		[]KeyPrefix{
			ExactPrefix(UserProfileKey(user)),
			ResourcePrefix(ResourceProfileByUsername),
			ResourcePrefix(ResourceHomeFeed),
			ResourcePrefix(ResourceGlobalFeed),
		},
		func() error {
			callback, c := NewBlockingApiCallback[*SocialGraphResult]()
			self.api.BlockUser(user, callback)
			_, err := await(ctx, c)
			return err
		},
	)
}

func (self *Coordinator) UnblockUser(ctx context.Context, user Principal) error {
	return self.pessimistic(
		"unblock",
		[]KeyPrefix{
			ExactPrefix(UserProfileKey(user)),
			ResourcePrefix(ResourceProfileByUsername),
			ResourcePrefix(ResourceHomeFeed),
			ResourcePrefix(ResourceGlobalFeed),
		},
		func() error {
			callback, c := NewBlockingApiCallback[*SocialGraphResult]()
			self.api.UnblockUser(user, callback)
			_, err := await(ctx, c)
			return err
		},
	)
}

func (self *Coordinator) MuteUser(ctx context.Context, user Principal) error {
	return self.pessimistic(
		"mute",
		[]KeyPrefix{
			ExactPrefix(UserProfileKey(user)),
			ResourcePrefix(ResourceProfileByUsername),
			ResourcePrefix(ResourceHomeFeed),
		},
		func() error {
			callback, c := NewBlockingApiCallback[*SocialGraphResult]()
			self.api.MuteUser(user, callback)
			_, err := await(ctx, c)
			return err
		},
	)
}

func (self *Coordinator) UnmuteUser(ctx context.Context, user Principal) error {
	return self.pessimistic(
		"unmute",
		[]KeyPrefix{
			ExactPrefix(UserProfileKey(user)),
			ResourcePrefix(ResourceProfileByUsername),
			ResourcePrefix(ResourceHomeFeed),
		},
		func() error {
			callback, c := NewBlockingApiCallback[*SocialGraphResult]()
			self.api.UnmuteUser(user, callback)
			_, err := await(ctx, c)
			return err
		},
	)
}

func (self *Coordinator) SetProfile(ctx context.Context, username string, displayName string, bio string) error {
	if err := ValidateUsername(username); err != nil {
		return err
	}
	return self.pessimistic(
		"set profile",
		ownProfileAffectedPrefixes(),
		func() error {
			callback, c := NewBlockingApiCallback[*SetProfileResult]()
			self.api.SetProfile(&SetProfileArgs{
				Username:    username,
				DisplayName: strings.TrimSpace(displayName),
				Bio:         strings.TrimSpace(bio),
			}, callback)
			_, err := await(ctx, c)
			return err
		},
	)
}

func (self *Coordinator) UpdateProfilePicture(ctx context.Context, picture *BlobRef) error {
	return self.pessimistic(
		"update profile picture",
		ownProfileAffectedPrefixes(),
		func() error {
			callback, c := NewBlockingApiCallback[*UpdateProfilePictureResult]()
			self.api.UpdateProfilePicture(&UpdateProfilePictureArgs{
				Picture: picture,
			}, callback)
			_, err := await(ctx, c)
			return err
		},
	)
}

func (self *Coordinator) UpdateHeaderImage(ctx context.Context, image *BlobRef) error {
	return self.pessimistic(
		"update header image",
		[]KeyPrefix{
			ExactPrefix(ProfileKey()),
			ResourcePrefix(ResourceUserProfile),
			ResourcePrefix(ResourceProfileByUsername),
		},
		func() error {
			callback, c := NewBlockingApiCallback[*UpdateHeaderImageResult]()
			self.api.UpdateHeaderImage(&UpdateHeaderImageArgs{
				Image: image,
			}, callback)
			_, err := await(ctx, c)
			return err
		},
	)
}

// one way only: unread to read, never reversed
func (self *Coordinator) MarkNotificationRead(ctx context.Context, notificationId NotificationId) error {
	return self.pessimistic(
		"mark notification read",
		notificationPrefixes(),
		func() error {
			callback, c := NewBlockingApiCallback[*MarkNotificationReadResult]()
			self.api.MarkNotificationRead(notificationId, callback)
			_, err := await(ctx, c)
			return err
		},
	)
}

func (self *Coordinator) MarkAllNotificationsRead(ctx context.Context) error {
	return self.pessimistic(
		"mark all notifications read",
		notificationPrefixes(),
		func() error {
			callback, c := NewBlockingApiCallback[*MarkNotificationReadResult]()
			self.api.MarkAllNotificationsRead(callback)
			_, err := await(ctx, c)
			return err
		},
	)
}
