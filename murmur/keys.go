package murmur

// Cache key registry. Every mutation declares a fixed set of key prefixes it
// may touch. The sets are static tables: per mutation, every listing a change
// could appear in is enumerated here, not computed.

const (
	ResourceProfile                 = "profile"
	ResourceUserProfile             = "userProfile"
	ResourceProfileByUsername       = "profileByUsername"
	ResourceCheckUsername           = "checkUsername"
	ResourcePost                    = "post"
	ResourceGlobalFeed              = "globalFeed"
	ResourceHomeFeed                = "homeFeed"
	ResourceUserPosts               = "userPosts"
	ResourcePostsByUsername         = "postsByUsername"
	ResourcePostsByHashtag          = "postsByHashtag"
	ResourceSearchPosts             = "searchPosts"
	ResourceSearchUsers             = "searchUsers"
	ResourceReplies                 = "replies"
	ResourceFollowers               = "followers"
	ResourceFollowing               = "following"
	ResourceNotifications           = "notifications"
	ResourceUnreadNotificationCount = "unreadNotificationCount"
	ResourceTrendingHashtags        = "trendingHashtags"
)

func ProfileKey() CacheKey {
	return CacheKey{Resource: ResourceProfile}
}

func UserProfileKey(user Principal) CacheKey {
	return CacheKey{Resource: ResourceUserProfile, Param: user.String()}
}

func ProfileByUsernameKey(username string) CacheKey {
	return CacheKey{Resource: ResourceProfileByUsername, Param: username}
}

func CheckUsernameKey(username string) CacheKey {
	return CacheKey{Resource: ResourceCheckUsername, Param: username}
}

func PostKey(postId PostId) CacheKey {
	return CacheKey{Resource: ResourcePost, Param: postId.String()}
}

func GlobalFeedKey() CacheKey {
	return CacheKey{Resource: ResourceGlobalFeed}
}

func HomeFeedKey() CacheKey {
	return CacheKey{Resource: ResourceHomeFeed}
}

func UserPostsKey(user Principal) CacheKey {
	return CacheKey{Resource: ResourceUserPosts, Param: user.String()}
}

func PostsByUsernameKey(username string) CacheKey {
	return CacheKey{Resource: ResourcePostsByUsername, Param: username}
}

func PostsByHashtagKey(tag string) CacheKey {
	return CacheKey{Resource: ResourcePostsByHashtag, Param: tag}
}

func SearchPostsKey(query string) CacheKey {
	return CacheKey{Resource: ResourceSearchPosts, Param: query}
}

func SearchUsersKey(query string) CacheKey {
	return CacheKey{Resource: ResourceSearchUsers, Param: query}
}

func RepliesKey(postId PostId) CacheKey {
	return CacheKey{Resource: ResourceReplies, Param: postId.String()}
}

func FollowersKey(username string) CacheKey {
	return CacheKey{Resource: ResourceFollowers, Param: username}
}

func FollowingKey(username string) CacheKey {
	return CacheKey{Resource: ResourceFollowing, Param: username}
}

func NotificationsKey() CacheKey {
	return CacheKey{Resource: ResourceNotifications}
}

func UnreadNotificationCountKey() CacheKey {
	return CacheKey{Resource: ResourceUnreadNotificationCount}
}

func TrendingHashtagsKey() CacheKey {
	return CacheKey{Resource: ResourceTrendingHashtags}
}

// every listing a post can appear in
var postFeedResources = []string{
	ResourceGlobalFeed,
	ResourceHomeFeed,
	ResourceUserPosts,
	ResourcePostsByUsername,
	ResourcePostsByHashtag,
	ResourceSearchPosts,
	ResourceReplies,
}

func postFeedPrefixes() []KeyPrefix {
	prefixes := []KeyPrefix{}
	for _, resource := range postFeedResources {
		prefixes = append(prefixes, ResourcePrefix(resource))
	}
	return prefixes
}

// the listings plus the single post entry. Affected set of the post-scoped
// optimistic mutations (like, unlike, repost, undo repost).
func postAffectedPrefixes(postId PostId) []KeyPrefix {
	return append(postFeedPrefixes(), ExactPrefix(PostKey(postId)))
}

// affected set of follow/unfollow. The home feed is listed because following
// changes what it contains.
func followAffectedPrefixes(user Principal) []KeyPrefix {
	return []KeyPrefix{
		ExactPrefix(UserProfileKey(user)),
		ResourcePrefix(ResourceProfileByUsername),
		ResourcePrefix(ResourceHomeFeed),
	}
}

func notificationPrefixes() []KeyPrefix {
	return []KeyPrefix{
		ResourcePrefix(ResourceNotifications),
		ResourcePrefix(ResourceUnreadNotificationCount),
	}
}

// affected set of own-profile mutations. Feeds carry denormalized author
// display fields, so profile changes touch them too.
func ownProfileAffectedPrefixes() []KeyPrefix {
	return []KeyPrefix{
		ExactPrefix(ProfileKey()),
		ResourcePrefix(ResourceUserProfile),
		ResourcePrefix(ResourceProfileByUsername),
		ResourcePrefix(ResourceGlobalFeed),
		ResourcePrefix(ResourceHomeFeed),
	}
}
