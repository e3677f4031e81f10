package thread

import (
	"context"
	"fmt"
	"testing"

	"golang.org/x/time/rate"

	"github.com/rugguard/rugguard/models"

	"github.com/stretchr/testify/assert"
)

type fakePostSource struct {
	posts map[string]*models.Post
	calls int
	err   error
}

func (f *fakePostSource) GetPost(ctx context.Context, id string) (*models.Post, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.posts[id], nil
}

func ref(id string) *string { return &id }

func testResolver(src PostSource) *Resolver {
	r := NewResolver(src, nil)
	r.limit = rate.NewLimiter(rate.Inf, 1)
	return r
}

func TestResolveOriginal(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	src := &fakePostSource{posts: map[string]*models.Post{
		"3": {ID: "3", Text: "reply 2", InReplyToID: ref("2")},
		"2": {ID: "2", Text: "reply 1", InReplyToID: ref("1")},
		"1": {ID: "1", Text: "root"},
	}}
	r := testResolver(src)

	post, err := r.ResolveOriginal(ctx, "3", DefaultMaxDepth)
	assert.NoError(err)
	assert.NotNil(post)
	assert.Equal("1", post.ID)
	assert.Equal(3, src.calls)
}

func TestResolveStartIsOriginal(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	src := &fakePostSource{posts: map[string]*models.Post{
		"1": {ID: "1", Text: "root"},
	}}
	r := testResolver(src)

	post, err := r.ResolveOriginal(ctx, "1", DefaultMaxDepth)
	assert.NoError(err)
	assert.NotNil(post)
	assert.Equal("1", post.ID)
	assert.Equal(1, src.calls)
}

func TestResolveCycleTerminates(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	// a buggy provider hands back a reply cycle
	src := &fakePostSource{posts: map[string]*models.Post{
		"1": {ID: "1", InReplyToID: ref("2")},
		"2": {ID: "2", InReplyToID: ref("1")},
	}}
	r := testResolver(src)

	post, err := r.ResolveOriginal(ctx, "1", DefaultMaxDepth)
	assert.NoError(err)
	assert.Nil(post)
	assert.Equal(DefaultMaxDepth, src.calls)
}

func TestResolveBrokenChain(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	src := &fakePostSource{posts: map[string]*models.Post{
		"3": {ID: "3", InReplyToID: ref("2")},
		// post 2 deleted
	}}
	r := testResolver(src)

	post, err := r.ResolveOriginal(ctx, "3", DefaultMaxDepth)
	assert.NoError(err)
	assert.Nil(post)
	assert.Equal(2, src.calls)
}

func TestResolveFetchError(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	src := &fakePostSource{err: fmt.Errorf("rate limited")}
	r := testResolver(src)

	post, err := r.ResolveOriginal(ctx, "3", DefaultMaxDepth)
	assert.Error(err)
	assert.Nil(post)
}
