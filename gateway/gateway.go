package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rugguard/rugguard/cachestore"
	"github.com/rugguard/rugguard/models"
	"github.com/rugguard/rugguard/twitter"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/spaolacci/murmur3"
)

// ErrRateLimited is returned by reads once the local throttle retry budget is
// exhausted. Callers should treat it as a soft failure for the current
// trigger, not abort the process.
var ErrRateLimited = errors.New("provider rate limit exceeded")

// Provider is the upstream API surface the gateway consumes. Implemented by
// *twitter.Client; tests supply doubles.
type Provider interface {
	SearchRecentTweets(ctx context.Context, query string, maxResults int) ([]*twitter.Tweet, error)
	GetTweet(ctx context.Context, id string) (*twitter.Tweet, error)
	GetUser(ctx context.Context, id string) (*twitter.User, error)
	GetUserByUsername(ctx context.Context, username string) (*twitter.User, error)
	GetUserTweets(ctx context.Context, userID string, maxResults int) ([]*twitter.Tweet, error)
	GetUserFollowing(ctx context.Context, userID string, maxResults int) ([]*twitter.User, error)
	CreateTweet(ctx context.Context, text string, inReplyToID *string) (*twitter.CreatedTweet, error)
}

// cache names, also used as the operation label on metrics
const (
	opTweet     = "tweet"
	opAccount   = "account"
	opHandle    = "handle"
	opTimeline  = "timeline"
	opFollowing = "following"
	opSearch    = "search"
)

// operation-specific TTLs. profile data changes slowly; search results are
// nearly live.
const (
	searchTTL    = 5 * time.Minute
	tweetTTL     = time.Hour
	timelineTTL  = time.Hour
	accountTTL   = 24 * time.Hour
	followingTTL = 12 * time.Hour

	// absent resources are remembered briefly so repeated triggers against a
	// deleted thread don't hammer the provider
	negativeTTL = 2 * time.Minute
)

const (
	throttleRetries  = 3
	throttleBaseWait = 5 * time.Second
	throttleMaxWait  = 5 * time.Minute
)

// Gateway wraps the provider with caching, normalization into the models
// package, and bounded throttle retries. Read operations never return
// transport errors; they degrade to an absent result.
type Gateway struct {
	logger   *slog.Logger
	provider Provider
	cache    cachestore.CacheStore
	negative *expirable.LRU[string, bool]
	// starting throttle wait, doubled per attempt; shortened in tests
	baseWait time.Duration
}

func NewGateway(provider Provider, cache cachestore.CacheStore, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	return &Gateway{
		logger:   logger.With("subsystem", "gateway"),
		provider: provider,
		cache:    cache,
		negative: expirable.NewLRU[string, bool](10_000, nil, negativeTTL),
		baseWait: throttleBaseWait,
	}
}

// returns a fast, compact hash of a string, for cache keys over free text
func hashOfString(s string) string {
	val := murmur3.Sum64([]byte(s))
	return fmt.Sprintf("%016x", val)
}

// waits out a provider throttle with the reset hint when present, doubling a
// default wait otherwise. returns ErrRateLimited once the budget is spent.
func retryThrottled[T any](ctx context.Context, logger *slog.Logger, baseWait time.Duration, fetch func() (T, error)) (T, error) {
	var zero T
	wait := baseWait
	for attempt := 1; ; attempt++ {
		out, err := fetch()
		if err == nil {
			return out, nil
		}
		var te *twitter.Error
		if !errors.As(err, &te) || !te.IsThrottled() {
			return zero, err
		}
		if attempt >= throttleRetries {
			return zero, ErrRateLimited
		}
		d := wait
		if te.Ratelimit != nil {
			if until := time.Until(te.Ratelimit.Reset); until > 0 {
				d = until
			}
		}
		if d > throttleMaxWait {
			d = throttleMaxWait
		}
		logger.Warn("provider throttled, backing off", "wait", d, "attempt", attempt)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(d):
		}
		wait *= 2
	}
}

// cacheGet unmarshals a cached entry into out. A corrupted entry is purged
// and treated as a miss, never surfaced as an error.
func (g *Gateway) cacheGet(ctx context.Context, name, key string, out any) bool {
	val, err := g.cache.Get(ctx, name, key)
	if err != nil {
		g.logger.Warn("cache read failed", "name", name, "key", key, "err", err)
		return false
	}
	if val == "" {
		cacheMissCount.WithLabelValues(name).Inc()
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		g.logger.Warn("corrupt cache entry, purging", "name", name, "key", key, "err", err)
		_ = g.cache.Purge(ctx, name, key)
		cacheMissCount.WithLabelValues(name).Inc()
		return false
	}
	cacheHitCount.WithLabelValues(name).Inc()
	return true
}

func (g *Gateway) cacheSet(ctx context.Context, name, key string, val any, ttl time.Duration) {
	b, err := json.Marshal(val)
	if err != nil {
		g.logger.Error("marshaling cache entry", "name", name, "key", key, "err", err)
		return
	}
	if err := g.cache.Set(ctx, name, key, string(b), ttl); err != nil {
		g.logger.Warn("cache write failed", "name", name, "key", key, "err", err)
	}
}

// readFailure maps provider errors to the read contract: rate limits surface
// as ErrRateLimited, anything else is logged and degrades to absent.
func (g *Gateway) readFailure(name, key string, err error) error {
	providerErrorCount.WithLabelValues(name).Inc()
	if errors.Is(err, ErrRateLimited) {
		return ErrRateLimited
	}
	var te *twitter.Error
	if errors.As(err, &te) && te.NotFound() {
		g.negative.Add(name+"/"+key, true)
		return nil
	}
	g.logger.Warn("provider lookup failed", "name", name, "key", key, "err", err)
	return nil
}

func parseProviderTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func normalizePost(tw *twitter.Tweet) *models.Post {
	p := models.Post{
		ID:        tw.ID,
		Text:      tw.Text,
		AuthorID:  tw.AuthorID,
		CreatedAt: parseProviderTime(tw.CreatedAt),
	}
	if tw.PublicMetrics != nil {
		p.Metrics = models.PostMetrics{
			Replies:  tw.PublicMetrics.ReplyCount,
			Likes:    tw.PublicMetrics.LikeCount,
			Retweets: tw.PublicMetrics.RetweetCount,
			Quotes:   tw.PublicMetrics.QuoteCount,
		}
	}
	if ref := tw.RepliedToID(); ref != "" {
		p.InReplyToID = &ref
	}
	return &p
}

func normalizeAccount(u *twitter.User) *models.Account {
	a := models.Account{
		ID:          u.ID,
		Handle:      u.Username,
		DisplayName: u.Name,
		Bio:         u.Description,
		CreatedAt:   parseProviderTime(u.CreatedAt),
	}
	if u.PublicMetrics != nil {
		a.Metrics = models.AccountMetrics{
			Followers: u.PublicMetrics.FollowersCount,
			Following: u.PublicMetrics.FollowingCount,
			Posts:     u.PublicMetrics.TweetCount,
		}
	}
	if u.Verified != nil {
		a.Verified = *u.Verified
	}
	return &a
}

func normalizePosts(tws []*twitter.Tweet) []*models.Post {
	out := make([]*models.Post, 0, len(tws))
	for _, tw := range tws {
		out = append(out, normalizePost(tw))
	}
	return out
}

func normalizeAccounts(us []*twitter.User) []*models.Account {
	out := make([]*models.Account, 0, len(us))
	for _, u := range us {
		out = append(out, normalizeAccount(u))
	}
	return out
}

// GetPost returns the post with the given id, or (nil, nil) when it is
// deleted, protected, or otherwise unavailable.
func (g *Gateway) GetPost(ctx context.Context, id string) (*models.Post, error) {
	var cached models.Post
	if g.cacheGet(ctx, opTweet, id, &cached) {
		return &cached, nil
	}
	if _, ok := g.negative.Get(opTweet + "/" + id); ok {
		return nil, nil
	}
	tw, err := retryThrottled(ctx, g.logger, g.baseWait, func() (*twitter.Tweet, error) {
		return g.provider.GetTweet(ctx, id)
	})
	if err != nil {
		return nil, g.readFailure(opTweet, id, err)
	}
	if tw == nil {
		g.negative.Add(opTweet+"/"+id, true)
		return nil, nil
	}
	post := normalizePost(tw)
	g.cacheSet(ctx, opTweet, id, post, tweetTTL)
	return post, nil
}

// GetAccount returns the account with the given id, or (nil, nil) when
// unavailable.
func (g *Gateway) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	var cached models.Account
	if g.cacheGet(ctx, opAccount, id, &cached) {
		return &cached, nil
	}
	if _, ok := g.negative.Get(opAccount + "/" + id); ok {
		return nil, nil
	}
	u, err := retryThrottled(ctx, g.logger, g.baseWait, func() (*twitter.User, error) {
		return g.provider.GetUser(ctx, id)
	})
	if err != nil {
		return nil, g.readFailure(opAccount, id, err)
	}
	if u == nil {
		g.negative.Add(opAccount+"/"+id, true)
		return nil, nil
	}
	acct := normalizeAccount(u)
	g.cacheSet(ctx, opAccount, id, acct, accountTTL)
	return acct, nil
}

// GetAccountByHandle returns the account with the given handle
// (case-insensitive), or (nil, nil) when unavailable.
func (g *Gateway) GetAccountByHandle(ctx context.Context, handle string) (*models.Account, error) {
	key := strings.ToLower(strings.TrimPrefix(handle, "@"))
	var cached models.Account
	if g.cacheGet(ctx, opHandle, key, &cached) {
		return &cached, nil
	}
	if _, ok := g.negative.Get(opHandle + "/" + key); ok {
		return nil, nil
	}
	u, err := retryThrottled(ctx, g.logger, g.baseWait, func() (*twitter.User, error) {
		return g.provider.GetUserByUsername(ctx, key)
	})
	if err != nil {
		return nil, g.readFailure(opHandle, key, err)
	}
	if u == nil {
		g.negative.Add(opHandle+"/"+key, true)
		return nil, nil
	}
	acct := normalizeAccount(u)
	g.cacheSet(ctx, opHandle, key, acct, accountTTL)
	return acct, nil
}

// GetRecentPosts returns up to max recent posts by the account, newest first.
// Unavailable timelines degrade to an empty result.
func (g *Gateway) GetRecentPosts(ctx context.Context, accountID string, max int) ([]*models.Post, error) {
	key := fmt.Sprintf("%s/%d", accountID, max)
	var cached []*models.Post
	if g.cacheGet(ctx, opTimeline, key, &cached) {
		return cached, nil
	}
	tws, err := retryThrottled(ctx, g.logger, g.baseWait, func() ([]*twitter.Tweet, error) {
		return g.provider.GetUserTweets(ctx, accountID, max)
	})
	if err != nil {
		return nil, g.readFailure(opTimeline, key, err)
	}
	posts := normalizePosts(tws)
	g.cacheSet(ctx, opTimeline, key, posts, timelineTTL)
	return posts, nil
}

// GetFollowing returns up to max accounts the given account follows.
func (g *Gateway) GetFollowing(ctx context.Context, accountID string, max int) ([]*models.Account, error) {
	key := fmt.Sprintf("%s/%d", accountID, max)
	var cached []*models.Account
	if g.cacheGet(ctx, opFollowing, key, &cached) {
		return cached, nil
	}
	us, err := retryThrottled(ctx, g.logger, g.baseWait, func() ([]*twitter.User, error) {
		return g.provider.GetUserFollowing(ctx, accountID, max)
	})
	if err != nil {
		return nil, g.readFailure(opFollowing, key, err)
	}
	accts := normalizeAccounts(us)
	g.cacheSet(ctx, opFollowing, key, accts, followingTTL)
	return accts, nil
}

// SearchRecent returns recent posts matching the query. The cache key is a
// stable hash of the free-text query.
func (g *Gateway) SearchRecent(ctx context.Context, query string, max int) ([]*models.Post, error) {
	key := fmt.Sprintf("%s/%d", hashOfString(query), max)
	var cached []*models.Post
	if g.cacheGet(ctx, opSearch, key, &cached) {
		return cached, nil
	}
	tws, err := retryThrottled(ctx, g.logger, g.baseWait, func() ([]*twitter.Tweet, error) {
		return g.provider.SearchRecentTweets(ctx, query, max)
	})
	if err != nil {
		return nil, g.readFailure(opSearch, key, err)
	}
	posts := normalizePosts(tws)
	g.cacheSet(ctx, opSearch, key, posts, searchTTL)
	return posts, nil
}

// PostReply posts text as a reply and returns the new post id, or ("", nil)
// on failure. A successful reply bumps the parent's reply count, so its
// cached copy is purged.
func (g *Gateway) PostReply(ctx context.Context, text, inReplyToID string) (string, error) {
	created, err := retryThrottled(ctx, g.logger, g.baseWait, func() (*twitter.CreatedTweet, error) {
		return g.provider.CreateTweet(ctx, text, &inReplyToID)
	})
	if err != nil || created == nil {
		providerErrorCount.WithLabelValues("create").Inc()
		g.logger.Warn("posting reply failed", "inReplyTo", inReplyToID, "err", err)
		return "", nil
	}
	if inReplyToID != "" {
		if err := g.cache.Purge(ctx, opTweet, inReplyToID); err != nil {
			g.logger.Warn("purging parent tweet cache failed", "tweet", inReplyToID, "err", err)
		}
	}
	repliesPostedCount.Inc()
	return created.ID, nil
}
