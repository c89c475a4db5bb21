package murmur

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestPostIdRoundTrip(t *testing.T) {
	postId, err := ParsePostId("42")
	assert.Equal(t, nil, err)
	assert.Equal(t, PostId(42), postId)
	assert.Equal(t, "42", postId.String())

	_, err = ParsePostId("not a number")
	assert.NotEqual(t, nil, err)
}

func TestPostCanModify(t *testing.T) {
	now := time.Now()

	post := &Post{CreatedAt: now.Add(-time.Minute).UnixNano()}
	assert.Equal(t, true, post.CanModify(now))

	post = &Post{CreatedAt: now.Add(-EditDeleteWindow - time.Second).UnixNano()}
	assert.Equal(t, false, post.CanModify(now))
}

func TestPostTypeConstructors(t *testing.T) {
	assert.Equal(t, PostType{Kind: PostKindOriginal}, OriginalPostType())
	assert.Equal(t, PostType{Kind: PostKindReply, Target: PostId(1)}, ReplyPostType(PostId(1)))
	assert.Equal(t, PostType{Kind: PostKindRepost, Target: PostId(2)}, RepostPostType(PostId(2)))
	assert.Equal(t, PostType{Kind: PostKindQuote, Target: PostId(3)}, QuotePostType(PostId(3)))
}
