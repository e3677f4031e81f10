package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/rugguard/rugguard/cachestore"
	"github.com/rugguard/rugguard/twitter"

	"github.com/stretchr/testify/assert"
)

// fakeProvider scripts responses per tweet/user id and counts upstream calls.
type fakeProvider struct {
	tweets    map[string]*twitter.Tweet
	users     map[string]*twitter.User
	usersByNm map[string]*twitter.User
	timelines map[string][]*twitter.Tweet
	following map[string][]*twitter.User
	searches  map[string][]*twitter.Tweet

	calls    int
	err      error
	errCount int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		tweets:    make(map[string]*twitter.Tweet),
		users:     make(map[string]*twitter.User),
		usersByNm: make(map[string]*twitter.User),
		timelines: make(map[string][]*twitter.Tweet),
		following: make(map[string][]*twitter.User),
		searches:  make(map[string][]*twitter.Tweet),
	}
}

func (f *fakeProvider) nextErr() error {
	if f.err != nil && f.errCount != 0 {
		if f.errCount > 0 {
			f.errCount--
		}
		return f.err
	}
	return nil
}

func (f *fakeProvider) SearchRecentTweets(ctx context.Context, query string, max int) ([]*twitter.Tweet, error) {
	f.calls++
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return f.searches[query], nil
}

func (f *fakeProvider) GetTweet(ctx context.Context, id string) (*twitter.Tweet, error) {
	f.calls++
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return f.tweets[id], nil
}

func (f *fakeProvider) GetUser(ctx context.Context, id string) (*twitter.User, error) {
	f.calls++
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return f.users[id], nil
}

func (f *fakeProvider) GetUserByUsername(ctx context.Context, username string) (*twitter.User, error) {
	f.calls++
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return f.usersByNm[username], nil
}

func (f *fakeProvider) GetUserTweets(ctx context.Context, userID string, max int) ([]*twitter.Tweet, error) {
	f.calls++
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return f.timelines[userID], nil
}

func (f *fakeProvider) GetUserFollowing(ctx context.Context, userID string, max int) ([]*twitter.User, error) {
	f.calls++
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return f.following[userID], nil
}

func (f *fakeProvider) CreateTweet(ctx context.Context, text string, inReplyToID *string) (*twitter.CreatedTweet, error) {
	f.calls++
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return &twitter.CreatedTweet{ID: "90000", Text: text}, nil
}

func testGateway(p Provider) *Gateway {
	g := NewGateway(p, cachestore.NewMemCacheStore(), slog.Default())
	g.baseWait = time.Millisecond
	return g
}

func throttleErr() *twitter.Error {
	return &twitter.Error{
		StatusCode: http.StatusTooManyRequests,
		Wrapped:    fmt.Errorf("slow down"),
	}
}

func TestGatewayGetPostCaches(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	fp := newFakeProvider()
	fp.tweets["100"] = &twitter.Tweet{
		ID:        "100",
		Text:      "original post",
		AuthorID:  "7",
		CreatedAt: "2024-01-02T15:04:05Z",
		PublicMetrics: &twitter.TweetMetrics{
			LikeCount:  3,
			ReplyCount: 1,
		},
	}
	g := testGateway(fp)

	post, err := g.GetPost(ctx, "100")
	assert.NoError(err)
	assert.NotNil(post)
	assert.Equal("original post", post.Text)
	assert.Equal(int64(3), post.Metrics.Likes)
	assert.True(post.IsOriginal())
	assert.Equal(1, fp.calls)

	// second lookup is served from cache
	post, err = g.GetPost(ctx, "100")
	assert.NoError(err)
	assert.NotNil(post)
	assert.Equal(1, fp.calls)
}

func TestGatewayReplyReference(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	fp := newFakeProvider()
	fp.tweets["200"] = &twitter.Tweet{
		ID:       "200",
		Text:     "a reply",
		AuthorID: "8",
		ReferencedTweets: []twitter.ReferencedTweet{
			{Type: twitter.RefQuoted, ID: "5"},
			{Type: twitter.RefReplied, ID: "100"},
		},
	}
	g := testGateway(fp)

	post, err := g.GetPost(ctx, "200")
	assert.NoError(err)
	assert.NotNil(post)
	assert.False(post.IsOriginal())
	assert.Equal("100", *post.InReplyToID)
}

func TestGatewayAbsentIsNotError(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	fp := newFakeProvider()
	g := testGateway(fp)

	post, err := g.GetPost(ctx, "404404")
	assert.NoError(err)
	assert.Nil(post)
	assert.Equal(1, fp.calls)

	// absent result is held in the negative cache
	post, err = g.GetPost(ctx, "404404")
	assert.NoError(err)
	assert.Nil(post)
	assert.Equal(1, fp.calls)
}

func TestGatewayNotFoundError(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	fp := newFakeProvider()
	fp.err = &twitter.Error{StatusCode: http.StatusNotFound}
	fp.errCount = -1
	g := testGateway(fp)

	acct, err := g.GetAccount(ctx, "12")
	assert.NoError(err)
	assert.Nil(acct)
}

func TestGatewayThrottleRetryThenSuccess(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	fp := newFakeProvider()
	fp.users["7"] = &twitter.User{ID: "7", Username: "SomeBody", Name: "Some Body"}
	fp.err = throttleErr()
	fp.errCount = 1
	g := testGateway(fp)

	acct, err := g.GetAccount(ctx, "7")
	assert.NoError(err)
	assert.NotNil(acct)
	assert.Equal("SomeBody", acct.Handle)
	assert.Equal(2, fp.calls)
}

func TestGatewayThrottleBudgetExhausted(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	fp := newFakeProvider()
	fp.err = throttleErr()
	fp.errCount = -1
	g := testGateway(fp)

	_, err := g.GetAccount(ctx, "7")
	assert.ErrorIs(err, ErrRateLimited)
	assert.Equal(3, fp.calls)
}

func TestGatewayTransportErrorDegradesToAbsent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	fp := newFakeProvider()
	fp.err = fmt.Errorf("connection reset")
	fp.errCount = -1
	g := testGateway(fp)

	acct, err := g.GetAccount(ctx, "7")
	assert.NoError(err)
	assert.Nil(acct)

	posts, err := g.GetRecentPosts(ctx, "7", 20)
	assert.NoError(err)
	assert.Nil(posts)
}

func TestGatewayHandleNormalization(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	fp := newFakeProvider()
	fp.usersByNm["somebody"] = &twitter.User{ID: "7", Username: "SomeBody"}
	g := testGateway(fp)

	acct, err := g.GetAccountByHandle(ctx, "@SomeBody")
	assert.NoError(err)
	assert.NotNil(acct)
	assert.Equal(1, fp.calls)

	// differently-cased lookup hits the same cache entry
	acct, err = g.GetAccountByHandle(ctx, "SOMEBODY")
	assert.NoError(err)
	assert.NotNil(acct)
	assert.Equal(1, fp.calls)
}

func TestGatewayCorruptCacheEntryIsMiss(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := cachestore.NewMemCacheStore()
	fp := newFakeProvider()
	fp.tweets["100"] = &twitter.Tweet{ID: "100", Text: "fine"}
	g := NewGateway(fp, cs, slog.Default())
	g.baseWait = time.Millisecond

	assert.NoError(cs.Set(ctx, "tweet", "100", "{not json", time.Hour))

	post, err := g.GetPost(ctx, "100")
	assert.NoError(err)
	assert.NotNil(post)
	assert.Equal("fine", post.Text)
	assert.Equal(1, fp.calls)
}

func TestGatewayPostReplyPurgesParent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := cachestore.NewMemCacheStore()
	fp := newFakeProvider()
	fp.tweets["100"] = &twitter.Tweet{ID: "100", Text: "parent"}
	g := NewGateway(fp, cs, slog.Default())
	g.baseWait = time.Millisecond

	_, err := g.GetPost(ctx, "100")
	assert.NoError(err)

	id, err := g.PostReply(ctx, "report", "100")
	assert.NoError(err)
	assert.Equal("90000", id)

	// parent's cached copy was invalidated by the reply
	val, err := cs.Get(ctx, "tweet", "100")
	assert.NoError(err)
	assert.Equal("", val)
}

func TestGatewayPostReplyFailureIsAbsent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	fp := newFakeProvider()
	fp.err = fmt.Errorf("boom")
	fp.errCount = -1
	g := testGateway(fp)

	id, err := g.PostReply(ctx, "report", "100")
	assert.NoError(err)
	assert.Equal("", id)
}

func TestGatewaySearchCachesByQueryHash(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	fp := newFakeProvider()
	fp.searches[`@bot "riddle me this" is:reply`] = []*twitter.Tweet{
		{ID: "300", Text: "@bot riddle me this", AuthorID: "9"},
	}
	g := testGateway(fp)

	posts, err := g.SearchRecent(ctx, `@bot "riddle me this" is:reply`, 10)
	assert.NoError(err)
	assert.Len(posts, 1)
	assert.Equal(1, fp.calls)

	posts, err = g.SearchRecent(ctx, `@bot "riddle me this" is:reply`, 10)
	assert.NoError(err)
	assert.Len(posts, 1)
	assert.Equal(1, fp.calls)

	// a different query is a different key
	_, err = g.SearchRecent(ctx, "other", 10)
	assert.NoError(err)
	assert.Equal(2, fp.calls)
}
