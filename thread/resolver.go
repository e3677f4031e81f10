package thread

import (
	"context"
	"log/slog"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/rugguard/rugguard/models"
)

// DefaultMaxDepth bounds how many reply hops a resolution will walk. Threads
// can be arbitrarily long, and a buggy provider could even hand back a
// cycle; the bound guarantees termination.
const DefaultMaxDepth = 5

// hop pacing; thread walks issue a burst of sequential fetches that would
// otherwise trip rate limits on deep chains
var defaultHopLimit = rate.Every(2 * time.Second)

// PostSource is the post lookup the resolver needs, satisfied by
// *gateway.Gateway.
type PostSource interface {
	GetPost(ctx context.Context, id string) (*models.Post, error)
}

type Resolver struct {
	logger *slog.Logger
	posts  PostSource
	limit  *rate.Limiter
}

func NewResolver(posts PostSource, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	return &Resolver{
		logger: logger.With("subsystem", "thread"),
		posts:  posts,
		limit:  rate.NewLimiter(defaultHopLimit, 1),
	}
}

// ResolveOriginal walks a reply chain upward from startID and returns the
// thread's original post, or nil when the chain can not be followed: a post
// in the chain is unavailable, a fetch fails, or maxDepth hops are exhausted
// without reaching a post that has no reply-reference.
func (r *Resolver) ResolveOriginal(ctx context.Context, startID string, maxDepth int) (*models.Post, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	logger := r.logger.With("startID", startID)

	id := startID
	for hop := 0; hop < maxDepth; hop++ {
		if hop > 0 {
			if err := r.limit.Wait(ctx); err != nil {
				return nil, err
			}
		}
		post, err := r.posts.GetPost(ctx, id)
		if err != nil {
			return nil, err
		}
		if post == nil {
			logger.Info("thread chain broken, post unavailable", "id", id, "hop", hop)
			return nil, nil
		}
		if post.IsOriginal() {
			logger.Info("resolved original post", "id", post.ID, "hops", hop)
			return post, nil
		}
		id = *post.InReplyToID
	}

	logger.Info("thread depth exhausted", "maxDepth", maxDepth)
	return nil, nil
}
