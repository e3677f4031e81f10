package twitter

// API v2 wire types, trimmed to the fields this service requests.

const (
	RefReplied = "replied_to"
	RefQuoted  = "quoted"
	RefRetweet = "retweeted"
)

type TweetMetrics struct {
	RetweetCount int64 `json:"retweet_count"`
	ReplyCount   int64 `json:"reply_count"`
	LikeCount    int64 `json:"like_count"`
	QuoteCount   int64 `json:"quote_count"`
}

type ReferencedTweet struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type Tweet struct {
	ID               string            `json:"id"`
	Text             string            `json:"text"`
	AuthorID         string            `json:"author_id"`
	CreatedAt        string            `json:"created_at"`
	PublicMetrics    *TweetMetrics     `json:"public_metrics,omitempty"`
	ReferencedTweets []ReferencedTweet `json:"referenced_tweets,omitempty"`
}

// RepliedToID returns the id of the tweet this tweet replies to, or "".
func (t *Tweet) RepliedToID() string {
	for _, ref := range t.ReferencedTweets {
		if ref.Type == RefReplied {
			return ref.ID
		}
	}
	return ""
}

type UserMetrics struct {
	FollowersCount int64 `json:"followers_count"`
	FollowingCount int64 `json:"following_count"`
	TweetCount     int64 `json:"tweet_count"`
	ListedCount    int64 `json:"listed_count"`
}

type User struct {
	ID            string       `json:"id"`
	Username      string       `json:"username"`
	Name          string       `json:"name"`
	Description   string       `json:"description"`
	CreatedAt     string       `json:"created_at"`
	PublicMetrics *UserMetrics `json:"public_metrics,omitempty"`
	Verified      *bool        `json:"verified,omitempty"`
}

type CreatedTweet struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type tweetResponse struct {
	Data   *Tweet     `json:"data"`
	Errors []APIError `json:"errors,omitempty"`
}

type tweetListResponse struct {
	Data   []*Tweet   `json:"data"`
	Errors []APIError `json:"errors,omitempty"`
}

type userResponse struct {
	Data   *User      `json:"data"`
	Errors []APIError `json:"errors,omitempty"`
}

type userListResponse struct {
	Data   []*User    `json:"data"`
	Errors []APIError `json:"errors,omitempty"`
}

type createTweetResponse struct {
	Data   *CreatedTweet `json:"data"`
	Errors []APIError    `json:"errors,omitempty"`
}

type createTweetInput struct {
	Text  string            `json:"text"`
	Reply *createTweetReply `json:"reply,omitempty"`
}

type createTweetReply struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}
