package models

import (
	"strconv"
	"time"
)

// PostMetrics are the engagement counters attached to a single post.
// All counters are non-negative; a missing provider value normalizes to zero.
type PostMetrics struct {
	Replies  int64 `json:"replies"`
	Likes    int64 `json:"likes"`
	Retweets int64 `json:"retweets"`
	Quotes   int64 `json:"quotes"`
}

// Post is a normalized tweet. Immutable once fetched; replaced wholesale on
// cache refresh, never mutated in place.
type Post struct {
	ID        string      `json:"id"`
	Text      string      `json:"text"`
	AuthorID  string      `json:"author_id"`
	CreatedAt time.Time   `json:"created_at"`
	Metrics   PostMetrics `json:"metrics"`
	// ID of the post this one replies to. Nil means the post is an original
	// (root of its thread). Presence of the field is the contract, not
	// attribute existence on some provider object.
	InReplyToID *string `json:"in_reply_to_id,omitempty"`
}

// IsOriginal indicates the post is not a reply (root of a thread).
func (p *Post) IsOriginal() bool {
	return p.InReplyToID == nil || *p.InReplyToID == ""
}

// ParsePostID interprets a post identifier as a number for recency ordering.
// Returns 0 for identifiers which are not numeric.
func ParsePostID(id string) int64 {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// AccountMetrics are the engagement counters attached to an account profile.
type AccountMetrics struct {
	Followers int64 `json:"followers"`
	Following int64 `json:"following"`
	Posts     int64 `json:"posts"`
}

// Account is a normalized account profile. Fetched on demand and cached with
// a multi-hour TTL; profile data changes slowly.
type Account struct {
	ID          string         `json:"id"`
	Handle      string         `json:"handle"`
	DisplayName string         `json:"display_name"`
	Bio         string         `json:"bio"`
	CreatedAt   time.Time      `json:"created_at"`
	Metrics     AccountMetrics `json:"metrics"`
	Verified    bool           `json:"verified"`
}
