package murmur

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

const MaxPostLength = 280

// posts can be edited or deleted by their author inside this window
const EditDeleteWindow = 15 * time.Minute

// opaque unique identifier for an authenticated user,
// issued by the external identity system
type Principal string

func ParsePrincipal(principalStr string) (Principal, error) {
	if principalStr == "" {
		return "", errors.New("principal must not be empty")
	}
	return Principal(principalStr), nil
}

func (self Principal) String() string {
	return string(self)
}

// server-assigned, strictly increasing. Also used as the feed cursor.
type PostId int64

func ParsePostId(postIdStr string) (PostId, error) {
	postId, err := strconv.ParseInt(postIdStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad post id: %w", err)
	}
	return PostId(postId), nil
}

func (self PostId) String() string {
	return strconv.FormatInt(int64(self), 10)
}

type NotificationId int64

func (self NotificationId) String() string {
	return strconv.FormatInt(int64(self), 10)
}

// timestamps are integer nanoseconds since epoch
func TimeOf(nanos int64) time.Time {
	return time.Unix(0, nanos)
}

type PostKind string

const (
	PostKindOriginal PostKind = "original"
	PostKindReply    PostKind = "reply"
	PostKindRepost   PostKind = "repost"
	PostKindQuote    PostKind = "quote"
)

// tagged union. `Target` is the parent post for a reply and
// the original post for a repost or quote. Zero for an original.
type PostType struct {
	Kind   PostKind `json:"kind"`
	Target PostId   `json:"target,omitempty"`
}

func OriginalPostType() PostType {
	return PostType{Kind: PostKindOriginal}
}

func ReplyPostType(parentPostId PostId) PostType {
	return PostType{Kind: PostKindReply, Target: parentPostId}
}

func RepostPostType(originalPostId PostId) PostType {
	return PostType{Kind: PostKindRepost, Target: originalPostId}
}

func QuotePostType(originalPostId PostId) PostType {
	return PostType{Kind: PostKindQuote, Target: originalPostId}
}

// content-addressed handle to a media blob owned by the backend
type BlobRef struct {
	Hash string `json:"hash"`
	Url  string `json:"url,omitempty"`
}

type Post struct {
	Id                      PostId    `json:"id"`
	Author                  Principal `json:"author"`
	AuthorUsername          string    `json:"author_username"`
	AuthorDisplayName       string    `json:"author_display_name"`
	AuthorProfilePicture    *BlobRef  `json:"author_profile_picture,omitempty"`
	Text                    string    `json:"text"`
	Media                   *BlobRef  `json:"media,omitempty"`
	MediaKind               MediaKind `json:"media_kind,omitempty"`
	PostType                PostType  `json:"post_type"`
	CreatedAt               int64     `json:"created_at"`
	EditedAt                int64     `json:"edited_at,omitempty"`
	LikeCount               int64     `json:"like_count"`
	ReplyCount              int64     `json:"reply_count"`
	RepostCount             int64     `json:"repost_count"`
	IsLikedByCurrentUser    bool      `json:"is_liked_by_current_user"`
	IsRepostedByCurrentUser bool      `json:"is_reposted_by_current_user"`
}

// whether the author can still edit or delete the post at `now`
func (self *Post) CanModify(now time.Time) bool {
	return now.Sub(TimeOf(self.CreatedAt)) <= EditDeleteWindow
}

type PaginatedPosts struct {
	Posts      []*Post `json:"posts"`
	NextCursor *PostId `json:"next_cursor,omitempty"`
	HasMore    bool    `json:"has_more"`
}

type FollowUser struct {
	Principal      Principal `json:"principal"`
	Username       string    `json:"username"`
	DisplayName    string    `json:"display_name"`
	ProfilePicture *BlobRef  `json:"profile_picture,omitempty"`
}

type PaginatedFollows struct {
	Users      []*FollowUser `json:"users"`
	NextOffset *int64        `json:"next_offset,omitempty"`
	HasMore    bool          `json:"has_more"`
}

// the caller's own profile
type UserProfile struct {
	Username       string   `json:"username"`
	DisplayName    string   `json:"display_name"`
	Bio            string   `json:"bio"`
	ProfilePicture *BlobRef `json:"profile_picture,omitempty"`
	HeaderImage    *BlobRef `json:"header_image,omitempty"`
	CreatedAt      int64    `json:"created_at"`
	UpdatedAt      int64    `json:"updated_at"`
}

// another user's profile as seen by the caller.
// the `Is*ByCurrentUser` flags and the counts are server-maintained and
// only ever adjusted locally by optimistic deltas.
type UserProfileResponse struct {
	Principal               Principal `json:"principal"`
	Username                string    `json:"username"`
	DisplayName             string    `json:"display_name"`
	Bio                     string    `json:"bio"`
	ProfilePicture          *BlobRef  `json:"profile_picture,omitempty"`
	HeaderImage             *BlobRef  `json:"header_image,omitempty"`
	CreatedAt               int64     `json:"created_at"`
	UpdatedAt               int64     `json:"updated_at"`
	FollowersCount          int64     `json:"followers_count"`
	FollowingCount          int64     `json:"following_count"`
	PostsCount              int64     `json:"posts_count"`
	IsFollowedByCurrentUser bool      `json:"is_followed_by_current_user"`
	IsBlockedByCurrentUser  bool      `json:"is_blocked_by_current_user"`
	IsMutedByCurrentUser    bool      `json:"is_muted_by_current_user"`
}

type NotificationKind string

const (
	NotificationKindLike    NotificationKind = "like"
	NotificationKindReply   NotificationKind = "reply"
	NotificationKindMention NotificationKind = "mention"
	NotificationKindFollow  NotificationKind = "follow"
	NotificationKindRepost  NotificationKind = "repost"
	NotificationKindQuote   NotificationKind = "quote"
)

// tagged union. `Post` is the related post, zero for a follow.
type NotificationType struct {
	Kind NotificationKind `json:"kind"`
	Post PostId           `json:"post,omitempty"`
}

type Notification struct {
	Id               NotificationId   `json:"id"`
	NotificationType NotificationType `json:"notification_type"`
	ActorPrincipal   Principal        `json:"actor_principal"`
	ActorUsername    string           `json:"actor_username"`
	IsRead           bool             `json:"is_read"`
	CreatedAt        int64            `json:"created_at"`
}

type PaginatedNotifications struct {
	Notifications []*Notification `json:"notifications"`
	NextCursor    *NotificationId `json:"next_cursor,omitempty"`
	HasMore       bool            `json:"has_more"`
}

type TrendingHashtag struct {
	Tag   string `json:"tag"`
	Count int64  `json:"count"`
}
