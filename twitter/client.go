package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rugguard/rugguard/util"

	"github.com/carlmjohnson/versioninfo"
)

const DefaultHost = "https://api.twitter.com"

const (
	tweetFields = "author_id,created_at,public_metrics,referenced_tweets"
	userFields  = "created_at,description,public_metrics,verified"
)

// Client is a thin API v2 client. Reads use the app bearer token; writes go
// through the same transport and expect the supplied http.Client (or the
// default robust client) to carry any user-context auth required.
type Client struct {
	// Client is an HTTP client to use. If not set, defaults to util.RobustHTTPClient().
	Client      *http.Client
	Host        string
	BearerToken string
	UserAgent   *string
}

func (c *Client) getClient() *http.Client {
	if c.Client == nil {
		return util.RobustHTTPClient()
	}
	return c.Client
}

func (c *Client) getHost() string {
	if c.Host == "" {
		return DefaultHost
	}
	return c.Host
}

func makeParams(p map[string]any) string {
	params := url.Values{}
	for k, v := range p {
		if s, ok := v.([]string); ok {
			params.Add(k, strings.Join(s, ","))
		} else {
			params.Add(k, fmt.Sprint(v))
		}
	}
	return params.Encode()
}

func (c *Client) do(ctx context.Context, method, path string, params map[string]any, bodyobj, out any) error {
	var body io.Reader
	if bodyobj != nil {
		b, err := json.Marshal(bodyobj)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	var paramStr string
	if len(params) > 0 {
		paramStr = "?" + makeParams(params)
	}

	uri := c.getHost() + path + paramStr
	req, err := http.NewRequestWithContext(ctx, method, uri, body)
	if err != nil {
		return err
	}
	if bodyobj != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.UserAgent != nil {
		req.Header.Set("User-Agent", *c.UserAgent)
	} else {
		req.Header.Set("User-Agent", "rugguard/"+versioninfo.Short())
	}
	req.Header.Set("Authorization", "Bearer "+c.BearerToken)

	resp, err := c.getClient().Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ae APIError
		if err := json.NewDecoder(resp.Body).Decode(&ae); err != nil {
			return errorFromHTTPResponse(resp, fmt.Errorf("failed to decode API error message: %w", err))
		}
		return errorFromHTTPResponse(resp, &ae)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding API response: %w", err)
		}
	}
	return nil
}

// SearchRecentTweets queries the recent search endpoint. A query with no
// matches returns an empty slice, not an error.
func (c *Client) SearchRecentTweets(ctx context.Context, query string, maxResults int) ([]*Tweet, error) {
	var res tweetListResponse
	err := c.do(ctx, http.MethodGet, "/2/tweets/search/recent", map[string]any{
		"query":        query,
		"max_results":  maxResults,
		"tweet.fields": tweetFields,
	}, nil, &res)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

// GetTweet looks up a single tweet. Returns (nil, nil) when the tweet is
// absent; the v2 API reports deleted or protected tweets in a partial-error
// list on a 200 response.
func (c *Client) GetTweet(ctx context.Context, id string) (*Tweet, error) {
	var res tweetResponse
	err := c.do(ctx, http.MethodGet, "/2/tweets/"+url.PathEscape(id), map[string]any{
		"tweet.fields": tweetFields,
	}, nil, &res)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

// GetUser looks up a user by id. Returns (nil, nil) when absent.
func (c *Client) GetUser(ctx context.Context, id string) (*User, error) {
	var res userResponse
	err := c.do(ctx, http.MethodGet, "/2/users/"+url.PathEscape(id), map[string]any{
		"user.fields": userFields,
	}, nil, &res)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

// GetUserByUsername looks up a user by handle. Returns (nil, nil) when absent.
func (c *Client) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var res userResponse
	err := c.do(ctx, http.MethodGet, "/2/users/by/username/"+url.PathEscape(username), map[string]any{
		"user.fields": userFields,
	}, nil, &res)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

// GetUserTweets returns a user's recent tweets, newest first.
func (c *Client) GetUserTweets(ctx context.Context, userID string, maxResults int) ([]*Tweet, error) {
	var res tweetListResponse
	err := c.do(ctx, http.MethodGet, "/2/users/"+url.PathEscape(userID)+"/tweets", map[string]any{
		"max_results":  maxResults,
		"tweet.fields": tweetFields,
	}, nil, &res)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

// GetUserFollowing returns accounts the user follows.
func (c *Client) GetUserFollowing(ctx context.Context, userID string, maxResults int) ([]*User, error) {
	var res userListResponse
	err := c.do(ctx, http.MethodGet, "/2/users/"+url.PathEscape(userID)+"/following", map[string]any{
		"max_results": maxResults,
		"user.fields": userFields,
	}, nil, &res)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

// CreateTweet posts a new tweet, optionally as a reply.
func (c *Client) CreateTweet(ctx context.Context, text string, inReplyToID *string) (*CreatedTweet, error) {
	input := createTweetInput{Text: text}
	if inReplyToID != nil && *inReplyToID != "" {
		input.Reply = &createTweetReply{InReplyToTweetID: *inReplyToID}
	}
	var res createTweetResponse
	err := c.do(ctx, http.MethodPost, "/2/tweets", nil, &input, &res)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}
