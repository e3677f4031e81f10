package analysis

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/rugguard/rugguard/models"

	"github.com/stretchr/testify/assert"
)

type fakePostFetcher struct {
	posts map[string][]*models.Post
	err   error
}

func (f *fakePostFetcher) GetRecentPosts(ctx context.Context, accountID string, max int) ([]*models.Post, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.posts[accountID], nil
}

func testAnalyzer(posts *fakePostFetcher, now time.Time) *Analyzer {
	a := NewAnalyzer(posts, nil)
	a.now = func() time.Time { return now }
	return a
}

func TestAnalyzeScamScenario(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	acct := &models.Account{
		ID:        "1",
		Handle:    "ruggy",
		Bio:       "guaranteed 100x returns",
		CreatedAt: now.AddDate(0, 0, -10),
		Metrics: models.AccountMetrics{
			Followers: 5,
			Following: 5000,
			Posts:     200,
		},
	}
	fp := &fakePostFetcher{posts: map[string][]*models.Post{
		"1": {
			{ID: "20", Text: "guaranteed 100x, get in now"},
			{ID: "21", Text: "#a #b #c #d #e #f pump time"},
		},
	}}
	a := testAnalyzer(fp, now)

	res := a.Analyze(ctx, acct)
	assert.Equal(10, res.AccountAgeDays)
	assert.InDelta(0.001, res.FollowerRatio, 0.0001)
	assert.LessOrEqual(res.BioScore, 1.0)
	assert.Equal(10.0, res.RiskScore)
	assert.Contains(res.Flags, "Very new account (less than 30 days)")
	assert.Contains(res.Flags, "Low follower-to-following ratio")
	assert.Contains(res.Flags, "Bio contains suspicious content")
}

func TestAnalyzeHealthyAccount(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	acct := &models.Account{
		ID:        "2",
		Handle:    "builder",
		Bio:       "software engineer and founder, phd",
		CreatedAt: now.AddDate(-3, 0, 0),
		Metrics: models.AccountMetrics{
			Followers: 5000,
			Following: 300,
			Posts:     2000,
		},
	}
	fp := &fakePostFetcher{posts: map[string][]*models.Post{
		"2": {
			{ID: "10", Text: "long writeup about the release process and what we learned shipping the new pipeline over the last month", Metrics: models.PostMetrics{Likes: 12}},
			{ID: "11", Text: "short note", Metrics: models.PostMetrics{Retweets: 2}},
		},
	}}
	a := testAnalyzer(fp, now)

	res := a.Analyze(ctx, acct)
	assert.Greater(res.BioScore, 7.0)
	assert.Greater(res.ContentScore, 7.0)
	assert.Less(res.RiskScore, 3.0)
	assert.Empty(res.Flags)
	assert.Contains(res.Recommendations, "Professional bio content")
	assert.Contains(res.Recommendations, "Good follower-to-following ratio")
}

func TestAnalyzeDegenerateInputsStayBounded(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	accounts := []*models.Account{
		{ID: "1", Handle: "empty"},
		{ID: "2", Handle: "fresh", CreatedAt: now},
		{
			ID:        "3",
			Handle:    "worst",
			Bio:       "guaranteed risk-free get rich easy money moonshot to the moon 100x no risk quick profit instant wealth diamond hands hodl dyor",
			CreatedAt: now.AddDate(0, 0, -1),
			Metrics:   models.AccountMetrics{Followers: 0, Following: 90000, Posts: 90000},
		},
	}
	a := testAnalyzer(&fakePostFetcher{}, now)

	for _, acct := range accounts {
		res := a.Analyze(ctx, acct)
		for name, score := range map[string]float64{
			"bio":        res.BioScore,
			"engagement": res.EngagementScore,
			"content":    res.ContentScore,
			"risk":       res.RiskScore,
		} {
			assert.GreaterOrEqual(score, 0.0, "%s score for %s", name, acct.Handle)
			assert.LessOrEqual(score, 10.0, "%s score for %s", name, acct.Handle)
		}
	}
}

func TestAnalyzeFetchFailureIsNeutralContent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	acct := &models.Account{ID: "1", Handle: "quiet", CreatedAt: now.AddDate(-1, 0, 0)}
	a := testAnalyzer(&fakePostFetcher{err: fmt.Errorf("timeline down")}, now)

	res := a.Analyze(ctx, acct)
	assert.Equal(5.0, res.ContentScore)
}

func TestFollowerRatio(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(0.0, FollowerRatio(models.AccountMetrics{}))
	assert.True(math.IsInf(FollowerRatio(models.AccountMetrics{Followers: 10}), 1))
	assert.Equal(2.0, FollowerRatio(models.AccountMetrics{Followers: 100, Following: 50}))

	// monotone in followers, antitone in following
	low := FollowerRatio(models.AccountMetrics{Followers: 10, Following: 100})
	high := FollowerRatio(models.AccountMetrics{Followers: 20, Following: 100})
	assert.Greater(high, low)
	diluted := FollowerRatio(models.AccountMetrics{Followers: 10, Following: 200})
	assert.Less(diluted, low)
}

func TestBioScore(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(5.0, BioScore(""))
	assert.Equal(5.0, BioScore("   "))
	assert.Equal(3.0, BioScore("guaranteed results"))
	// "guaranteed" and "100x" both match; "guaranteed returns" is not contiguous
	assert.Equal(1.0, BioScore("guaranteed 100x returns"))
	assert.Equal(7.0, BioScore("engineer and founder"))
	assert.Equal(0.0, BioScore("guaranteed risk-free easy money"))
}

func TestEngagementScore(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(2.0, EngagementScore(models.AccountMetrics{}, 365))
	// ~5.5 posts/day with a large audience
	assert.Equal(8.0, EngagementScore(models.AccountMetrics{Followers: 2000, Posts: 2000}, 365))
	// burst poster: 100/day
	assert.Equal(3.0, EngagementScore(models.AccountMetrics{Followers: 10, Posts: 100}, 1))
}

func TestContentScore(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(5.0, ContentScore(nil))

	spam := []*models.Post{
		{Text: "guaranteed gains, join now"},
		{Text: "a #b #c #d #e #f #g"},
	}
	assert.Equal(1.0, ContentScore(spam))

	quality := []*models.Post{
		{Text: "short", Metrics: models.PostMetrics{Likes: 3}},
		{Text: "another short one", Metrics: models.PostMetrics{Retweets: 1}},
	}
	assert.Equal(8.0, ContentScore(quality))
}
