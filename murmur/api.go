package murmur

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultHttpTimeout = 60 * time.Second
const defaultHttpConnectTimeout = 5 * time.Second
const defaultHttpTlsTimeout = 5 * time.Second

func defaultClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: defaultHttpConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHttpTlsTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultHttpTimeout,
	}
}

type apiCallback[R any] interface {
	Result(result R, err error)
}

// for internal use
type simpleApiCallback[R any] struct {
	callback func(result R, err error)
}

func NewApiCallback[R any](callback func(result R, err error)) apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: callback,
	}
}

func NewNoopApiCallback[R any]() apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: func(result R, err error) {},
	}
}

func (self *simpleApiCallback[R]) Result(result R, err error) {
	self.callback(result, err)
}

type ApiCallbackResult[R any] struct {
	Result R
	Error  error
}

// the channel is buffered so an abandoned wait does not leak the sender
func NewBlockingApiCallback[R any]() (apiCallback[R], chan ApiCallbackResult[R]) {
	c := make(chan ApiCallbackResult[R], 1)
	apiCallback := NewApiCallback[R](func(result R, err error) {
		c <- ApiCallbackResult[R]{
			Result: result,
			Error:  err,
		}
	})
	return apiCallback, c
}

// Client of the remote backend. The backend performs all durable storage and
// business-rule enforcement; this is an opaque request/response boundary with
// at-most-once calls and no client-side retry.
type MurmurApi struct {
	ctx    context.Context
	cancel context.CancelFunc

	apiUrl string

	sessionToken string
}

func NewMurmurApi(apiUrl string) *MurmurApi {
	return NewMurmurApiWithContext(context.Background(), apiUrl)
}

func NewMurmurApiWithContext(ctx context.Context, apiUrl string) *MurmurApi {
	cancelCtx, cancel := context.WithCancel(ctx)

	return &MurmurApi{
		ctx:    cancelCtx,
		cancel: cancel,
		apiUrl: apiUrl,
	}
}

// this gets attached to api calls that need it
func (self *MurmurApi) SetSessionToken(sessionToken string) {
	self.sessionToken = sessionToken
}

func (self *MurmurApi) Close() {
	self.cancel()
}

type GetProfileCallback apiCallback[*GetProfileResult]

// nil `Profile` means the caller has not set one up yet.
// absence is an explicit empty result, not an error.
type GetProfileResult struct {
	Profile *UserProfile `json:"profile,omitempty"`
}

func (self *MurmurApi) GetProfile(callback GetProfileCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/profile", self.apiUrl),
		self.sessionToken,
		&GetProfileResult{},
		callback,
	)
}

type SetProfileCallback apiCallback[*SetProfileResult]

type SetProfileArgs struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio"`
}

type SetProfileResult struct {
}

func (self *MurmurApi) SetProfile(setProfile *SetProfileArgs, callback SetProfileCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/profile", self.apiUrl),
		setProfile,
		self.sessionToken,
		&SetProfileResult{},
		callback,
	)
}

type UpdateProfilePictureCallback apiCallback[*UpdateProfilePictureResult]

type UpdateProfilePictureArgs struct {
	Picture *BlobRef `json:"picture,omitempty"`
}

type UpdateProfilePictureResult struct {
}

func (self *MurmurApi) UpdateProfilePicture(updateProfilePicture *UpdateProfilePictureArgs, callback UpdateProfilePictureCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/profile/picture", self.apiUrl),
		updateProfilePicture,
		self.sessionToken,
		&UpdateProfilePictureResult{},
		callback,
	)
}

type UpdateHeaderImageCallback apiCallback[*UpdateHeaderImageResult]

type UpdateHeaderImageArgs struct {
	Image *BlobRef `json:"image,omitempty"`
}

type UpdateHeaderImageResult struct {
}

func (self *MurmurApi) UpdateHeaderImage(updateHeaderImage *UpdateHeaderImageArgs, callback UpdateHeaderImageCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/profile/header", self.apiUrl),
		updateHeaderImage,
		self.sessionToken,
		&UpdateHeaderImageResult{},
		callback,
	)
}

type CheckUsernameCallback apiCallback[*CheckUsernameResult]

type CheckUsernameResult struct {
	Available bool `json:"available"`
}

func (self *MurmurApi) CheckUsernameAvailability(username string, callback CheckUsernameCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/username/available?username=%s", self.apiUrl, url.QueryEscape(username)),
		self.sessionToken,
		&CheckUsernameResult{},
		callback,
	)
}

type GetUserProfileCallback apiCallback[*GetUserProfileResult]

type GetUserProfileResult struct {
	Profile *UserProfileResponse `json:"profile,omitempty"`
}

func (self *MurmurApi) GetUserProfile(user Principal, callback GetUserProfileCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/users/%s", self.apiUrl, url.PathEscape(user.String())),
		self.sessionToken,
		&GetUserProfileResult{},
		callback,
	)
}

func (self *MurmurApi) GetProfileByUsername(username string, callback GetUserProfileCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/profiles/%s", self.apiUrl, url.PathEscape(username)),
		self.sessionToken,
		&GetUserProfileResult{},
		callback,
	)
}

type GetPrincipalCallback apiCallback[*GetPrincipalResult]

type GetPrincipalResult struct {
	Principal *Principal `json:"principal,omitempty"`
}

func (self *MurmurApi) GetPrincipalByUsername(username string, callback GetPrincipalCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/principals/%s", self.apiUrl, url.PathEscape(username)),
		self.sessionToken,
		&GetPrincipalResult{},
		callback,
	)
}

type CreatePostCallback apiCallback[*CreatePostResult]

type CreatePostArgs struct {
	Text      string    `json:"text"`
	Media     *BlobRef  `json:"media,omitempty"`
	MediaKind MediaKind `json:"media_kind,omitempty"`
}

type CreatePostResult struct {
	Post *Post `json:"post"`
}

func (self *MurmurApi) CreatePost(createPost *CreatePostArgs, callback CreatePostCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/posts", self.apiUrl),
		createPost,
		self.sessionToken,
		&CreatePostResult{},
		callback,
	)
}

type CreateReplyArgs struct {
	ParentPostId PostId    `json:"parent_post_id"`
	Text         string    `json:"text"`
	Media        *BlobRef  `json:"media,omitempty"`
	MediaKind    MediaKind `json:"media_kind,omitempty"`
}

func (self *MurmurApi) CreateReply(createReply *CreateReplyArgs, callback CreatePostCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/posts/%s/replies", self.apiUrl, createReply.ParentPostId),
		createReply,
		self.sessionToken,
		&CreatePostResult{},
		callback,
	)
}

type QuotePostArgs struct {
	PostId    PostId    `json:"post_id"`
	Text      string    `json:"text"`
	Media     *BlobRef  `json:"media,omitempty"`
	MediaKind MediaKind `json:"media_kind,omitempty"`
}

func (self *MurmurApi) QuotePost(quotePost *QuotePostArgs, callback CreatePostCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/posts/%s/quote", self.apiUrl, quotePost.PostId),
		quotePost,
		self.sessionToken,
		&CreatePostResult{},
		callback,
	)
}

type EditPostArgs struct {
	PostId PostId `json:"post_id"`
	Text   string `json:"text"`
}

func (self *MurmurApi) EditPost(editPost *EditPostArgs, callback CreatePostCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/posts/%s/edit", self.apiUrl, editPost.PostId),
		editPost,
		self.sessionToken,
		&CreatePostResult{},
		callback,
	)
}

type DeletePostCallback apiCallback[*DeletePostResult]

type DeletePostResult struct {
}

func (self *MurmurApi) DeletePost(postId PostId, callback DeletePostCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/posts/%s/delete", self.apiUrl, postId),
		nil,
		self.sessionToken,
		&DeletePostResult{},
		callback,
	)
}

type GetPostCallback apiCallback[*GetPostResult]

// nil `Post` means the post does not exist (or is not visible to the caller)
type GetPostResult struct {
	Post *Post `json:"post,omitempty"`
}

func (self *MurmurApi) GetPost(postId PostId, callback GetPostCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/posts/%s", self.apiUrl, postId),
		self.sessionToken,
		&GetPostResult{},
		callback,
	)
}

type LikePostCallback apiCallback[*LikePostResult]

type LikePostResult struct {
}

func (self *MurmurApi) LikePost(postId PostId, callback LikePostCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/posts/%s/like", self.apiUrl, postId),
		nil,
		self.sessionToken,
		&LikePostResult{},
		callback,
	)
}

func (self *MurmurApi) UnlikePost(postId PostId, callback LikePostCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/posts/%s/unlike", self.apiUrl, postId),
		nil,
		self.sessionToken,
		&LikePostResult{},
		callback,
	)
}

type RepostCallback apiCallback[*RepostResult]

type RepostResult struct {
	Post *Post `json:"post,omitempty"`
}

func (self *MurmurApi) RepostPost(postId PostId, callback RepostCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/posts/%s/repost", self.apiUrl, postId),
		nil,
		self.sessionToken,
		&RepostResult{},
		callback,
	)
}

func (self *MurmurApi) UndoRepost(postId PostId, callback RepostCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/posts/%s/undo-repost", self.apiUrl, postId),
		nil,
		self.sessionToken,
		&RepostResult{},
		callback,
	)
}

type PaginatedPostsCallback apiCallback[*PaginatedPosts]

func cursorQuery(cursor *PostId, limit int64) string {
	if cursor == nil {
		return fmt.Sprintf("limit=%d", limit)
	}
	return fmt.Sprintf("cursor=%s&limit=%d", *cursor, limit)
}

func (self *MurmurApi) GetGlobalFeed(cursor *PostId, limit int64, callback PaginatedPostsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/feed/global?%s", self.apiUrl, cursorQuery(cursor, limit)),
		self.sessionToken,
		&PaginatedPosts{},
		callback,
	)
}

func (self *MurmurApi) GetHomeFeed(cursor *PostId, limit int64, callback PaginatedPostsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/feed/home?%s", self.apiUrl, cursorQuery(cursor, limit)),
		self.sessionToken,
		&PaginatedPosts{},
		callback,
	)
}

func (self *MurmurApi) GetPostsByUser(user Principal, cursor *PostId, limit int64, callback PaginatedPostsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf(
			"%s/users/%s/posts?%s",
			self.apiUrl,
			url.PathEscape(user.String()),
			cursorQuery(cursor, limit),
		),
		self.sessionToken,
		&PaginatedPosts{},
		callback,
	)
}

func (self *MurmurApi) GetPostsByUsername(username string, cursor *PostId, limit int64, callback PaginatedPostsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf(
			"%s/profiles/%s/posts?%s",
			self.apiUrl,
			url.PathEscape(username),
			cursorQuery(cursor, limit),
		),
		self.sessionToken,
		&PaginatedPosts{},
		callback,
	)
}

func (self *MurmurApi) GetReplies(postId PostId, cursor *PostId, limit int64, callback PaginatedPostsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/posts/%s/replies?%s", self.apiUrl, postId, cursorQuery(cursor, limit)),
		self.sessionToken,
		&PaginatedPosts{},
		callback,
	)
}

func (self *MurmurApi) GetPostsByHashtag(tag string, cursor *PostId, limit int64, callback PaginatedPostsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf(
			"%s/hashtags/%s/posts?%s",
			self.apiUrl,
			url.PathEscape(tag),
			cursorQuery(cursor, limit),
		),
		self.sessionToken,
		&PaginatedPosts{},
		callback,
	)
}

func (self *MurmurApi) SearchPosts(searchText string, cursor *PostId, limit int64, callback PaginatedPostsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf(
			"%s/search/posts?q=%s&%s",
			self.apiUrl,
			url.QueryEscape(searchText),
			cursorQuery(cursor, limit),
		),
		self.sessionToken,
		&PaginatedPosts{},
		callback,
	)
}

type SearchUsersCallback apiCallback[*SearchUsersResult]

type SearchUsersResult struct {
	Users []*UserProfileResponse `json:"users"`
}

func (self *MurmurApi) SearchUsers(searchText string, limit int64, callback SearchUsersCallback) {
	go get(
		self.ctx,
		fmt.Sprintf(
			"%s/search/users?q=%s&limit=%d",
			self.apiUrl,
			url.QueryEscape(searchText),
			limit,
		),
		self.sessionToken,
		&SearchUsersResult{},
		callback,
	)
}

type TrendingHashtagsCallback apiCallback[*TrendingHashtagsResult]

type TrendingHashtagsResult struct {
	Hashtags []*TrendingHashtag `json:"hashtags"`
}

func (self *MurmurApi) GetTrendingHashtags(limit int64, callback TrendingHashtagsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/hashtags/trending?limit=%d", self.apiUrl, limit),
		self.sessionToken,
		&TrendingHashtagsResult{},
		callback,
	)
}

type SocialGraphCallback apiCallback[*SocialGraphResult]

type SocialGraphResult struct {
}

func (self *MurmurApi) FollowUser(user Principal, callback SocialGraphCallback) {
	self.socialGraphPost("follow", user, callback)
}

func (self *MurmurApi) UnfollowUser(user Principal, callback SocialGraphCallback) {
	self.socialGraphPost("unfollow", user, callback)
}

func (self *MurmurApi) BlockUser(user Principal, callback SocialGraphCallback) {
	self.socialGraphPost("block", user, callback)
}

func (self *MurmurApi) UnblockUser(user Principal, callback SocialGraphCallback) {
	self.socialGraphPost("unblock", user, callback)
}

func (self *MurmurApi) MuteUser(user Principal, callback SocialGraphCallback) {
	self.socialGraphPost("mute", user, callback)
}

func (self *MurmurApi) UnmuteUser(user Principal, callback SocialGraphCallback) {
	self.socialGraphPost("unmute", user, callback)
}

func (self *MurmurApi) socialGraphPost(op string, user Principal, callback SocialGraphCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/users/%s/%s", self.apiUrl, url.PathEscape(user.String()), op),
		nil,
		self.sessionToken,
		&SocialGraphResult{},
		callback,
	)
}

type PaginatedFollowsCallback apiCallback[*PaginatedFollows]

func (self *MurmurApi) GetFollowers(username string, offset int64, limit int64, callback PaginatedFollowsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf(
			"%s/profiles/%s/followers?offset=%d&limit=%d",
			self.apiUrl,
			url.PathEscape(username),
			offset,
			limit,
		),
		self.sessionToken,
		&PaginatedFollows{},
		callback,
	)
}

func (self *MurmurApi) GetFollowing(username string, offset int64, limit int64, callback PaginatedFollowsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf(
			"%s/profiles/%s/following?offset=%d&limit=%d",
			self.apiUrl,
			url.PathEscape(username),
			offset,
			limit,
		),
		self.sessionToken,
		&PaginatedFollows{},
		callback,
	)
}

type PaginatedNotificationsCallback apiCallback[*PaginatedNotifications]

func (self *MurmurApi) GetNotifications(cursor *NotificationId, limit int64, callback PaginatedNotificationsCallback) {
	query := fmt.Sprintf("limit=%d", limit)
	if cursor != nil {
		query = fmt.Sprintf("cursor=%s&limit=%d", *cursor, limit)
	}
	go get(
		self.ctx,
		fmt.Sprintf("%s/notifications?%s", self.apiUrl, query),
		self.sessionToken,
		&PaginatedNotifications{},
		callback,
	)
}

type UnreadNotificationCountCallback apiCallback[*UnreadNotificationCountResult]

type UnreadNotificationCountResult struct {
	Count int64 `json:"count"`
}

func (self *MurmurApi) GetUnreadNotificationCount(callback UnreadNotificationCountCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/notifications/unread-count", self.apiUrl),
		self.sessionToken,
		&UnreadNotificationCountResult{},
		callback,
	)
}

type MarkNotificationReadCallback apiCallback[*MarkNotificationReadResult]

type MarkNotificationReadResult struct {
}

func (self *MurmurApi) MarkNotificationRead(notificationId NotificationId, callback MarkNotificationReadCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/notifications/%s/read", self.apiUrl, notificationId),
		nil,
		self.sessionToken,
		&MarkNotificationReadResult{},
		callback,
	)
}

func (self *MurmurApi) MarkAllNotificationsRead(callback MarkNotificationReadCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/notifications/read-all", self.apiUrl),
		nil,
		self.sessionToken,
		&MarkNotificationReadResult{},
		callback,
	)
}

type UploadMediaCallback apiCallback[*UploadMediaResult]

type UploadMediaArgs struct {
	Content []byte
	Format  MediaFormat
	// called with bytes sent so far and the total
	Progress func(byteCount int64, byteTotal int64)
}

type UploadMediaResult struct {
	Blob *BlobRef `json:"blob"`
}

func (self *MurmurApi) UploadMedia(uploadMedia *UploadMediaArgs, callback UploadMediaCallback) {
	go func() {
		result := &UploadMediaResult{}

		body := io.Reader(bytes.NewReader(uploadMedia.Content))
		if uploadMedia.Progress != nil {
			body = &progressReader{
				reader:    body,
				byteTotal: int64(len(uploadMedia.Content)),
				progress:  uploadMedia.Progress,
			}
		}

		req, err := http.NewRequestWithContext(
			self.ctx,
			"POST",
			fmt.Sprintf("%s/media?format=%s", self.apiUrl, uploadMedia.Format),
			body,
		)
		if err != nil {
			callback.Result(nil, err)
			return
		}
		req.ContentLength = int64(len(uploadMedia.Content))
		req.Header.Add("Content-Type", "application/octet-stream")
		if self.sessionToken != "" {
			req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", self.sessionToken))
		}

		client := defaultClient()
		r, err := client.Do(req)
		if err != nil {
			callback.Result(nil, err)
			return
		}
		defer r.Body.Close()

		responseBodyBytes, err := io.ReadAll(r.Body)

		if http.StatusOK != r.StatusCode {
			errorMessage := strings.TrimSpace(string(responseBodyBytes))
			callback.Result(nil, errors.New(errorMessage))
			return
		}
		if err != nil {
			callback.Result(nil, err)
			return
		}

		if err := json.Unmarshal(responseBodyBytes, result); err != nil {
			callback.Result(nil, err)
			return
		}
		callback.Result(result, nil)
	}()
}

type GetMediaCallback apiCallback[*GetMediaResult]

type GetMediaResult struct {
	Content []byte
}

// retrieves the blob bytes via its direct url
func (self *MurmurApi) GetMedia(blob *BlobRef, callback GetMediaCallback) {
	go func() {
		mediaUrl := blob.Url
		if mediaUrl == "" {
			mediaUrl = fmt.Sprintf("%s/media/%s", self.apiUrl, url.PathEscape(blob.Hash))
		}

		req, err := http.NewRequestWithContext(self.ctx, "GET", mediaUrl, nil)
		if err != nil {
			callback.Result(nil, err)
			return
		}
		if self.sessionToken != "" {
			req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", self.sessionToken))
		}

		client := defaultClient()
		r, err := client.Do(req)
		if err != nil {
			callback.Result(nil, err)
			return
		}
		defer r.Body.Close()

		responseBodyBytes, err := io.ReadAll(r.Body)
		if err != nil {
			callback.Result(nil, err)
			return
		}
		if http.StatusOK != r.StatusCode {
			errorMessage := strings.TrimSpace(string(responseBodyBytes))
			callback.Result(nil, errors.New(errorMessage))
			return
		}

		callback.Result(&GetMediaResult{Content: responseBodyBytes}, nil)
	}()
}

type progressReader struct {
	reader    io.Reader
	byteCount int64
	byteTotal int64
	progress  func(byteCount int64, byteTotal int64)
}

func (self *progressReader) Read(b []byte) (int, error) {
	n, err := self.reader.Read(b)
	if 0 < n {
		self.byteCount += int64(n)
		self.progress(self.byteCount, self.byteTotal)
	}
	return n, err
}

func post[R any](ctx context.Context, url string, args any, sessionToken string, result R, callback apiCallback[R]) (R, error) {
	var requestBodyBytes []byte
	if args == nil {
		requestBodyBytes = make([]byte, 0)
	} else {
		var err error
		requestBodyBytes, err = json.Marshal(args)
		if err != nil {
			var empty R
			callback.Result(empty, err)
			return empty, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(requestBodyBytes))
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	req.Header.Add("Content-Type", "application/json")

	if sessionToken != "" {
		auth := fmt.Sprintf("Bearer %s", sessionToken)
		req.Header.Add("Authorization", auth)
	}

	client := defaultClient()
	r, err := client.Do(req)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)

	if http.StatusOK != r.StatusCode {
		// the response body is the error message
		errorMessage := strings.TrimSpace(string(responseBodyBytes))
		err = errors.New(errorMessage)
		callback.Result(result, err)
		return result, err
	}

	if err != nil {
		callback.Result(result, err)
		return result, err
	}

	err = json.Unmarshal(responseBodyBytes, &result)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	callback.Result(result, nil)
	return result, nil
}

func get[R any](ctx context.Context, url string, sessionToken string, result R, callback apiCallback[R]) (R, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	if sessionToken != "" {
		auth := fmt.Sprintf("Bearer %s", sessionToken)
		req.Header.Add("Authorization", auth)
	}

	client := defaultClient()
	r, err := client.Do(req)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)

	if http.StatusOK != r.StatusCode {
		// the response body is the error message
		errorMessage := strings.TrimSpace(string(responseBodyBytes))
		err = errors.New(errorMessage)
		callback.Result(result, err)
		return result, err
	}

	if err != nil {
		callback.Result(result, err)
		return result, err
	}

	err = json.Unmarshal(responseBodyBytes, &result)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	callback.Result(result, nil)
	return result, nil
}
