package trust

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rugguard/rugguard/cachestore"
	"github.com/rugguard/rugguard/models"
	"github.com/rugguard/rugguard/util"

	"github.com/spaolacci/murmur3"
)

// DefaultListURL is the community-maintained trusted account list.
const DefaultListURL = "https://raw.githubusercontent.com/devsyrem/turst-list/main/list"

// VouchedByList is the sentinel voucher recorded when a handle is on the
// trusted list itself rather than vouched by followed accounts.
const VouchedByList = "trusted-list"

const (
	listCacheName = "trustlist"
	listCacheTTL  = 24 * time.Hour

	// how many followed accounts are considered for vouching overlap
	followingSample = 100

	// minimum trusted followees for an account to count as vouched
	vouchThreshold = 2

	// cap on vouchers carried in a TrustScore, for display
	maxVouchers = 5
)

// Score is the trusted-network position of an account. Derived and ephemeral;
// recomputed per trigger because following graphs are cached independently.
type Score struct {
	Vouched     bool     `json:"vouched"`
	Connections int      `json:"connections"`
	VouchedBy   []string `json:"vouched_by"`
}

// Directory is the account/following lookup surface the registry needs,
// satisfied by *gateway.Gateway.
type Directory interface {
	GetAccountByHandle(ctx context.Context, handle string) (*models.Account, error)
	GetFollowing(ctx context.Context, accountID string, max int) ([]*models.Account, error)
}

// Registry holds the set of trusted handles, refreshed from a remote
// plain-text list. The in-memory set is replaced wholesale on refresh, never
// diffed. Not safe for unsynchronized concurrent mutation with reads beyond
// the internal lock; the monitor loop is sequential.
type Registry struct {
	logger  *slog.Logger
	listURL string
	client  *http.Client
	cache   cachestore.CacheStore

	lk      sync.RWMutex
	handles map[string]bool
}

func NewRegistry(listURL string, cache cachestore.CacheStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	if listURL == "" {
		listURL = DefaultListURL
	}
	return &Registry{
		logger:  logger.With("subsystem", "trust"),
		listURL: listURL,
		client:  util.RobustHTTPClient(),
		cache:   cache,
		handles: make(map[string]bool),
	}
}

// NormalizeHandle lower-cases a handle and strips one leading "@".
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}

func validHandle(handle string) bool {
	if handle == "" {
		return false
	}
	for _, c := range handle {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '.':
		default:
			return false
		}
	}
	return true
}

// ParseList extracts normalized handles from the plain-text list format: one
// handle per line, blank lines and '#' comments ignored, optional leading
// '@', anything after the first whitespace ignored.
func ParseList(content string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		handle := NormalizeHandle(strings.Fields(line)[0])
		if !validHandle(handle) || seen[handle] {
			continue
		}
		seen[handle] = true
		out = append(out, handle)
	}
	return out
}

func (r *Registry) cacheKey() string {
	return fmt.Sprintf("%016x", murmur3.Sum64([]byte(r.listURL)))
}

func (r *Registry) replace(handles []string) {
	set := make(map[string]bool, len(handles))
	for _, h := range handles {
		set[h] = true
	}
	r.lk.Lock()
	r.handles = set
	r.lk.Unlock()
}

// Refresh loads the trusted set, preferring the cached copy (24h TTL) so
// process restarts don't re-fetch. On fetch or parse failure the existing
// set is retained and the error returned; the registry never crashes the
// caller.
func (r *Registry) Refresh(ctx context.Context) error {
	if val, err := r.cache.Get(ctx, listCacheName, r.cacheKey()); err == nil && val != "" {
		var handles []string
		if err := json.Unmarshal([]byte(val), &handles); err == nil && len(handles) > 0 {
			r.replace(handles)
			r.logger.Info("loaded trusted accounts from cache", "count", len(handles))
			return nil
		}
		// corrupt entry; fall through to a fetch
		_ = r.cache.Purge(ctx, listCacheName, r.cacheKey())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.listURL, nil)
	if err != nil {
		return fmt.Errorf("building trusted list request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching trusted list: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching trusted list: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading trusted list: %w", err)
	}

	handles := ParseList(string(body))
	if len(handles) == 0 {
		return fmt.Errorf("trusted list at %s contained no valid handles", r.listURL)
	}
	r.replace(handles)

	if b, err := json.Marshal(handles); err == nil {
		if err := r.cache.Set(ctx, listCacheName, r.cacheKey(), string(b), listCacheTTL); err != nil {
			r.logger.Warn("caching trusted list failed", "err", err)
		}
	}
	r.logger.Info("loaded trusted accounts", "count", len(handles))
	return nil
}

// Size returns the number of trusted handles currently loaded.
func (r *Registry) Size() int {
	r.lk.RLock()
	defer r.lk.RUnlock()
	return len(r.handles)
}

// IsTrusted reports membership in the trusted set. Case-insensitive and
// "@"-prefix-insensitive.
func (r *Registry) IsTrusted(handle string) bool {
	h := NormalizeHandle(handle)
	r.lk.RLock()
	defer r.lk.RUnlock()
	return r.handles[h]
}

// ScoreHandle computes the trusted-network position of the given handle.
//
// A handle on the list itself is fully vouched. Otherwise vouching comes
// from following-graph overlap: at least vouchThreshold trusted accounts
// among up to followingSample followees. Any lookup failure yields a
// confident not-vouched zero score; missing data is never a trust signal in
// either direction.
func (r *Registry) ScoreHandle(ctx context.Context, dir Directory, handle string) Score {
	h := NormalizeHandle(handle)
	logger := r.logger.With("handle", h)

	if r.IsTrusted(h) {
		return Score{
			Vouched:     true,
			Connections: r.Size(),
			VouchedBy:   []string{VouchedByList},
		}
	}

	acct, err := dir.GetAccountByHandle(ctx, h)
	if err != nil || acct == nil {
		logger.Info("account unavailable for trust scoring", "err", err)
		return Score{VouchedBy: []string{}}
	}

	following, err := dir.GetFollowing(ctx, acct.ID, followingSample)
	if err != nil || len(following) == 0 {
		logger.Info("following list unavailable for trust scoring", "err", err)
		return Score{VouchedBy: []string{}}
	}

	var connections []string
	for _, followed := range following {
		fh := NormalizeHandle(followed.Handle)
		if r.IsTrusted(fh) {
			connections = append(connections, fh)
		}
	}

	vouchedBy := connections
	if len(vouchedBy) > maxVouchers {
		vouchedBy = vouchedBy[:maxVouchers]
	}
	score := Score{
		Vouched:     len(connections) >= vouchThreshold,
		Connections: len(connections),
		VouchedBy:   vouchedBy,
	}
	logger.Info("trust score computed", "connections", score.Connections, "vouched", score.Vouched)
	return score
}
