package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rugguard/rugguard/analysis"
	"github.com/rugguard/rugguard/cachestore"
	"github.com/rugguard/rugguard/gateway"
	"github.com/rugguard/rugguard/models"
	"github.com/rugguard/rugguard/report"
	"github.com/rugguard/rugguard/trust"
)

const (
	searchMax = 10

	baseWait      = 60 * time.Second
	maxWait       = 300 * time.Second
	errorCooldown = 300 * time.Second
)

var watermarkKey = "rugguard/last-id"

// replies used when a failure happens before the analyzed account's handle
// is known
const (
	threadUnavailableText = "⚠️ Could not access the tweet thread. This might be due to rate limits, thread length, or tweet age. Please try again in a few minutes."
	authorUnavailableText = "⚠️ Could not fetch the author of the tweet you're replying to. This might be due to rate limits. Please try again in a few minutes."
	genericErrorText      = "Sorry, I encountered an error while analyzing this account. Please try again later."
)

// Social is the slice of the gateway the monitor loop drives.
type Social interface {
	SearchRecent(ctx context.Context, query string, max int) ([]*models.Post, error)
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	GetAccountByHandle(ctx context.Context, handle string) (*models.Account, error)
	GetFollowing(ctx context.Context, accountID string, max int) ([]*models.Account, error)
	PostReply(ctx context.Context, text, inReplyToID string) (string, error)
}

type ThreadResolver interface {
	ResolveOriginal(ctx context.Context, startID string, maxDepth int) (*models.Post, error)
}

type AccountAnalyzer interface {
	Analyze(ctx context.Context, acct *models.Account) *analysis.Result
}

type TrustSource interface {
	Refresh(ctx context.Context) error
	IsTrusted(handle string) bool
	ScoreHandle(ctx context.Context, dir trust.Directory, handle string) trust.Score
}

type Config struct {
	BotHandle      string
	TriggerPhrase  string
	MaxThreadDepth int
	SearchInterval time.Duration
}

// Monitor is the single sequential worker: one search cycle, then each
// candidate trigger in most-recent-first order, each a chain of blocking
// calls. Not safe for concurrent invocation.
type Monitor struct {
	logger   *slog.Logger
	social   Social
	resolver ThreadResolver
	analyzer AccountAnalyzer
	registry TrustSource
	reports  *report.Generator
	cache    cachestore.CacheStore
	rdb      *redis.Client

	cfg Config

	ownID  string
	lastID int64

	// inter-cycle pacing hooks, overridden in tests
	sleep func(ctx context.Context, d time.Duration)
}

func NewMonitor(cfg Config, social Social, resolver ThreadResolver, analyzer AccountAnalyzer, registry TrustSource, reports *report.Generator, cache cachestore.CacheStore, rdb *redis.Client, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	if cfg.MaxThreadDepth <= 0 {
		cfg.MaxThreadDepth = 5
	}
	if cfg.SearchInterval <= 0 {
		cfg.SearchInterval = baseWait
	}
	return &Monitor{
		logger:   logger.With("subsystem", "monitor"),
		social:   social,
		resolver: resolver,
		analyzer: analyzer,
		registry: registry,
		reports:  reports,
		cache:    cache,
		rdb:      rdb,
		cfg:      cfg,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (m *Monitor) searchQuery() string {
	return fmt.Sprintf(`@%s "%s" is:reply -is:retweet -is:quote`, m.cfg.BotHandle, m.cfg.TriggerPhrase)
}

func (m *Monitor) readLastID(ctx context.Context) (int64, error) {
	// if redis isn't configured, just skip
	if m.rdb == nil {
		m.logger.Info("redis not configured, skipping watermark read")
		return 0, nil
	}
	val, err := m.rdb.Get(ctx, watermarkKey).Int64()
	if err == redis.Nil {
		m.logger.Info("no pre-existing watermark in redis")
		return 0, nil
	}
	if err == nil {
		m.logger.Info("restored watermark from redis", "lastID", val)
	}
	return val, err
}

func (m *Monitor) persistLastID(ctx context.Context) error {
	if m.rdb == nil {
		return nil
	}
	if m.lastID <= 0 {
		return nil
	}
	return m.rdb.Set(ctx, watermarkKey, m.lastID, 14*24*time.Hour).Err()
}

func (m *Monitor) advanceWatermark(id int64) {
	if id > m.lastID {
		m.lastID = id
	}
}

// isValidTrigger checks that a search hit really is a trigger: mentions the
// bot, contains the phrase, is a reply, and is not one of the bot's own
// posts.
func (m *Monitor) isValidTrigger(post *models.Post) bool {
	if post.InReplyToID == nil {
		return false
	}
	if m.ownID != "" && post.AuthorID == m.ownID {
		return false
	}
	text := strings.ToLower(post.Text)
	if !strings.Contains(text, "@"+strings.ToLower(m.cfg.BotHandle)) {
		return false
	}
	return strings.Contains(text, strings.ToLower(m.cfg.TriggerPhrase))
}

func (m *Monitor) bestEffortReply(ctx context.Context, text, inReplyToID string) {
	id, err := m.social.PostReply(ctx, text, inReplyToID)
	if err != nil || id == "" {
		m.logger.Warn("failed to post reply", "inReplyToID", inReplyToID, "err", err)
	}
}

// processTrigger runs the full pipeline for one trigger post: resolve the
// thread's original post, fetch its author, score trust, analyze, and reply
// with the report. Failures reply to the requester best-effort; a returned
// error aborts only this trigger.
func (m *Monitor) processTrigger(ctx context.Context, trigger *models.Post) (err error) {
	// similar to an HTTP server, recover any panics from pipeline execution
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("trigger processing panic", "r", r, "triggerID", trigger.ID)
			triggerErrorCount.Inc()
			m.bestEffortReply(ctx, genericErrorText, trigger.ID)
			err = nil
		}
	}()
	logger := m.logger.With("triggerID", trigger.ID)

	original, err := m.resolver.ResolveOriginal(ctx, *trigger.InReplyToID, m.cfg.MaxThreadDepth)
	if err != nil {
		if errors.Is(err, gateway.ErrRateLimited) {
			m.bestEffortReply(ctx, threadUnavailableText, trigger.ID)
		}
		return err
	}
	if original == nil {
		logger.Warn("could not resolve original post in thread", "startID", *trigger.InReplyToID)
		m.bestEffortReply(ctx, threadUnavailableText, trigger.ID)
		return nil
	}

	acct, err := m.social.GetAccount(ctx, original.AuthorID)
	if err != nil {
		if errors.Is(err, gateway.ErrRateLimited) {
			m.bestEffortReply(ctx, authorUnavailableText, trigger.ID)
		}
		return err
	}
	if acct == nil {
		logger.Warn("original author unavailable", "authorID", original.AuthorID)
		m.bestEffortReply(ctx, authorUnavailableText, trigger.ID)
		return nil
	}
	logger = logger.With("handle", acct.Handle)

	// accounts already on the trusted list skip the full risk analysis
	if m.registry.IsTrusted(acct.Handle) {
		score := m.registry.ScoreHandle(ctx, m.social, acct.Handle)
		logger.Info("author is on the trusted list, posting vouched report")
		m.bestEffortReply(ctx, m.reports.GenerateVouched(acct, score), trigger.ID)
		reportsPostedCount.WithLabelValues("vouched").Inc()
		return nil
	}

	res := m.analyzer.Analyze(ctx, acct)
	score := m.registry.ScoreHandle(ctx, m.social, acct.Handle)
	text := m.reports.Generate(acct, res, score)
	m.bestEffortReply(ctx, text, trigger.ID)
	reportsPostedCount.WithLabelValues("analysis").Inc()
	logger.Info("posted analysis report", "risk", res.RiskScore)
	return nil
}

// runCycle performs one search-and-process pass. A rate-limit error is
// returned so the loop can back off; any other per-trigger failure is
// contained here.
func (m *Monitor) runCycle(ctx context.Context) error {
	cycleCount.Inc()
	query := m.searchQuery()
	m.logger.Info("searching for triggers", "query", query)

	posts, err := m.social.SearchRecent(ctx, query, searchMax)
	if err != nil {
		return err
	}

	// newest first
	sort.Slice(posts, func(i, j int) bool {
		return models.ParsePostID(posts[i].ID) > models.ParsePostID(posts[j].ID)
	})

	for _, post := range posts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		id := models.ParsePostID(post.ID)
		if id <= m.lastID {
			continue
		}
		if !m.isValidTrigger(post) {
			m.logger.Info("search hit is not a valid trigger", "id", post.ID)
			m.advanceWatermark(id)
			continue
		}

		triggerCount.Inc()
		if err := m.processTrigger(ctx, post); err != nil {
			if errors.Is(err, gateway.ErrRateLimited) {
				// leave the watermark so the trigger is retried next cycle
				return err
			}
			m.logger.Error("trigger processing failed", "id", post.ID, "err", err)
			triggerErrorCount.Inc()
		}
		m.advanceWatermark(id)
	}

	if err := m.persistLastID(ctx); err != nil {
		m.logger.Warn("failed to persist watermark", "err", err)
	}
	return nil
}

// Run is the monitoring loop. It only returns when ctx is done; no single
// cycle's failure terminates it.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.cache.PurgeExpired(ctx); err != nil {
		m.logger.Warn("failed to purge expired cache entries", "err", err)
	}
	if err := m.registry.Refresh(ctx); err != nil {
		m.logger.Warn("trusted list refresh failed, continuing with prior set", "err", err)
	}
	if acct, err := m.social.GetAccountByHandle(ctx, m.cfg.BotHandle); err == nil && acct != nil {
		m.ownID = acct.ID
	} else {
		m.logger.Warn("could not resolve own account, self-reply filtering disabled", "err", err)
	}
	if last, err := m.readLastID(ctx); err == nil {
		m.lastID = last
	} else {
		m.logger.Warn("failed to read watermark", "err", err)
	}

	m.logger.Info("starting reply monitoring", "bot", m.cfg.BotHandle, "phrase", m.cfg.TriggerPhrase)
	wait := m.cfg.SearchInterval
	for {
		if ctx.Err() != nil {
			break
		}
		switch err := m.runCycle(ctx); {
		case err == nil:
			wait = m.cfg.SearchInterval
		case errors.Is(err, gateway.ErrRateLimited):
			wait = min(wait*2, maxWait)
			m.logger.Warn("cycle rate limited, backing off", "wait", wait)
		case errors.Is(err, context.Canceled):
		default:
			m.logger.Error("monitoring cycle failed", "err", err)
			wait = errorCooldown
		}
		m.sleep(ctx, wait)
	}

	if err := m.persistLastID(context.WithoutCancel(ctx)); err != nil {
		m.logger.Warn("failed to persist final watermark", "err", err)
	}
	return nil
}
