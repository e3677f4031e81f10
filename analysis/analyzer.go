package analysis

import (
	"context"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/rugguard/rugguard/models"
)

const (
	// how many recent posts feed the content score
	recentPostSample = 20

	scoreFlagBelow      = 3.0
	scoreRecommendAbove = 7.0
)

// Result is the risk profile of a single account. Derived and ephemeral;
// recomputed per trigger so it reflects current content.
type Result struct {
	AccountAgeDays  int      `json:"account_age_days"`
	FollowerRatio   float64  `json:"follower_ratio"`
	BioScore        float64  `json:"bio_score"`
	EngagementScore float64  `json:"engagement_score"`
	ContentScore    float64  `json:"content_score"`
	RiskScore       float64  `json:"risk_score"`
	Flags           []string `json:"flags"`
	Recommendations []string `json:"recommendations"`
}

// PostFetcher is the timeline lookup the content score needs, satisfied by
// *gateway.Gateway.
type PostFetcher interface {
	GetRecentPosts(ctx context.Context, accountID string, max int) ([]*models.Post, error)
}

type Analyzer struct {
	logger *slog.Logger
	posts  PostFetcher

	now func() time.Time
}

func NewAnalyzer(posts PostFetcher, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	return &Analyzer{
		logger: logger.With("subsystem", "analysis"),
		posts:  posts,
		now:    time.Now,
	}
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(10, v))
}

func countKeywords(text string, keywords []string) int {
	lowered := strings.ToLower(text)
	count := 0
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			count++
		}
	}
	return count
}

func containsSuspicious(text string) bool {
	return countKeywords(text, suspiciousKeywords) > 0
}

// FollowerRatio is followers over following. Following of zero gives +Inf
// when followers exist, else 0, so comparisons against the low-ratio
// threshold behave.
func FollowerRatio(m models.AccountMetrics) float64 {
	if m.Following == 0 {
		if m.Followers > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return float64(m.Followers) / float64(m.Following)
}

// BioScore starts neutral at 5, loses 2 per distinct suspicious keyword and
// gains 1 per distinct trusted-signal keyword. An empty bio is neutral.
func BioScore(bio string) float64 {
	if strings.TrimSpace(bio) == "" {
		return 5
	}
	score := 5.0
	score -= 2 * float64(countKeywords(bio, suspiciousKeywords))
	score += float64(countKeywords(bio, trustedKeywords))
	return clampScore(score)
}

// EngagementScore reads posting cadence against account age plus a small
// follower-volume bonus. Zero posts is an immediate 2.
func EngagementScore(m models.AccountMetrics, ageDays int) float64 {
	if m.Posts == 0 {
		return 2
	}
	score := 5.0
	perDay := float64(m.Posts) / math.Max(float64(ageDays), 1)
	switch {
	case perDay > 50:
		score -= 2
	case perDay > 20:
		score--
	case perDay >= 1 && perDay <= 10:
		score++
	}
	if m.Followers > 1000 && m.Posts > 100 {
		score += 2
	} else if m.Followers > 100 && m.Posts > 50 {
		score++
	}
	return clampScore(score)
}

// ContentScore grades a sample of recent posts: spammy posts (suspicious
// keyword, or more than 5 hashtags) pull down, substantive posts (long text,
// or any likes/retweets) pull up. No posts is neutral.
func ContentScore(posts []*models.Post) float64 {
	if len(posts) == 0 {
		return 5
	}
	var spam, quality int
	for _, post := range posts {
		if containsSuspicious(post.Text) || strings.Count(post.Text, "#") > 5 {
			spam++
		}
		if len(post.Text) > 100 || post.Metrics.Likes > 0 || post.Metrics.Retweets > 0 {
			quality++
		}
	}
	total := float64(len(posts))
	return clampScore(5 + 3*float64(quality)/total - 4*float64(spam)/total)
}

func riskScore(ageDays int, ratio, bio, engagement, content float64) float64 {
	risk := 0.0
	switch {
	case ageDays < 30:
		risk += 3
	case ageDays < 90:
		risk += 2
	}
	switch {
	case ratio < 0.1:
		risk += 2
	case ratio < 0.5:
		risk++
	}
	risk += math.Max(0, 5-bio)
	risk += math.Max(0, 5-engagement)
	risk += math.Max(0, 5-content)
	return math.Min(10, risk)
}

// Analyze computes the full risk profile for an account. Timeline fetch
// failure degrades the content score to neutral rather than failing the
// analysis.
func (a *Analyzer) Analyze(ctx context.Context, acct *models.Account) *Result {
	logger := a.logger.With("handle", acct.Handle)

	// unknown creation time is scored as brand new
	ageDays := 0
	if !acct.CreatedAt.IsZero() {
		ageDays = int(a.now().Sub(acct.CreatedAt).Hours() / 24)
	}

	res := &Result{
		AccountAgeDays:  ageDays,
		FollowerRatio:   FollowerRatio(acct.Metrics),
		BioScore:        BioScore(acct.Bio),
		EngagementScore: EngagementScore(acct.Metrics, ageDays),
		Flags:           []string{},
		Recommendations: []string{},
	}

	recent, err := a.posts.GetRecentPosts(ctx, acct.ID, recentPostSample)
	if err != nil {
		logger.Warn("recent posts unavailable, content score neutral", "err", err)
		recent = nil
	}
	res.ContentScore = ContentScore(recent)

	switch {
	case ageDays < 30:
		res.Flags = append(res.Flags, "Very new account (less than 30 days)")
	case ageDays < 90:
		res.Flags = append(res.Flags, "New account (less than 90 days)")
	}

	if res.FollowerRatio < 0.1 {
		res.Flags = append(res.Flags, "Low follower-to-following ratio")
	} else if res.FollowerRatio > 10 {
		res.Recommendations = append(res.Recommendations, "Good follower-to-following ratio")
	}

	if res.BioScore < scoreFlagBelow {
		res.Flags = append(res.Flags, "Bio contains suspicious content")
	} else if res.BioScore > scoreRecommendAbove {
		res.Recommendations = append(res.Recommendations, "Professional bio content")
	}

	if res.EngagementScore < scoreFlagBelow {
		res.Flags = append(res.Flags, "Low engagement patterns")
	} else if res.EngagementScore > scoreRecommendAbove {
		res.Recommendations = append(res.Recommendations, "Good engagement patterns")
	}

	if res.ContentScore < scoreFlagBelow {
		res.Flags = append(res.Flags, "Suspicious content patterns")
	} else if res.ContentScore > scoreRecommendAbove {
		res.Recommendations = append(res.Recommendations, "Quality content")
	}

	res.RiskScore = riskScore(ageDays, res.FollowerRatio, res.BioScore, res.EngagementScore, res.ContentScore)

	logger.Info("account analyzed",
		"ageDays", res.AccountAgeDays,
		"bio", res.BioScore,
		"engagement", res.EngagementScore,
		"content", res.ContentScore,
		"risk", res.RiskScore,
	)
	return res
}
