package adminlookup

import (
	"context"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/pscheid92/chatwarden/internal/adapter/metrics"
	"github.com/pscheid92/chatwarden/internal/domain"
)

type cacheKey struct {
	chatID int64
	userID domain.UserID
}

// Cached memoizes answers from another checker for ttl. Failures are never cached,
// and concurrent misses for the same key share one upstream call.
type Cached struct {
	next    domain.AdminChecker
	entries *expirable.LRU[cacheKey, bool]
	group   singleflight.Group
	metrics *metrics.AdminCacheMetrics
}

// NewCached wraps next. m may be nil.
func NewCached(next domain.AdminChecker, size int, ttl time.Duration, m *metrics.AdminCacheMetrics) *Cached {
	return &Cached{
		next:    next,
		entries: expirable.NewLRU[cacheKey, bool](size, nil, ttl),
		metrics: m,
	}
}

func (c *Cached) IsAdmin(ctx context.Context, chatID int64, userID domain.UserID) (bool, error) {
	key := cacheKey{chatID: chatID, userID: userID}
	if v, ok := c.entries.Get(key); ok {
		if c.metrics != nil {
			c.metrics.Hits.Inc()
		}
		return v, nil
	}
	if c.metrics != nil {
		c.metrics.Misses.Inc()
	}

	flightKey := strconv.FormatInt(chatID, 10) + "/" + userID.String()
	v, err, _ := c.group.Do(flightKey, func() (any, error) {
		ok, err := c.next.IsAdmin(ctx, chatID, userID)
		if err != nil {
			return false, err
		}
		c.entries.Add(key, ok)
		return ok, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (c *Cached) Len() int {
	return c.entries.Len()
}
