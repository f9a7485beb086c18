package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/hemmy-platform/hemmy-authz/internal/authz"
)

const cacheGenerationKey = "authz:perms:gen"

// CachedResolver is a caller-side cache over the core Resolver. Effective
// permission sets are cached per user in redis with a TTL; concurrent misses
// for the same user collapse into one ledger read via singleflight. The
// catalog and ledger services invalidate it after every mutation, keeping the
// core itself cache-free as required.
type CachedResolver struct {
	inner  *Resolver
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewCached wraps a Resolver with a redis-backed cache.
func NewCached(inner *Resolver, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedResolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedResolver{inner: inner, client: client, ttl: ttl, logger: logger}
}

// EffectivePermissions returns the cached set for the user, computing and
// storing it on a miss. Redis failures degrade to a direct ledger read.
func (c *CachedResolver) EffectivePermissions(ctx context.Context, userID int64) ([]authz.Permission, error) {
	key, err := c.userKey(ctx, userID)
	if err != nil {
		c.warn("cache key", err)
		return c.inner.EffectivePermissions(ctx, userID)
	}
	if data, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var perms []authz.Permission
		if err := json.Unmarshal(data, &perms); err == nil {
			return perms, nil
		}
	} else if err != redis.Nil {
		c.warn("cache get", err)
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		perms, err := c.inner.EffectivePermissions(ctx, userID)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(perms); err == nil {
			if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
				c.warn("cache set", err)
			}
		}
		return perms, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]authz.Permission), nil
}

// CanPerform evaluates the capability query against the cached set.
func (c *CachedResolver) CanPerform(ctx context.Context, userID int64, action, subject string) (bool, error) {
	perms, err := c.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return decide(perms, c.inner.match, action, subject), nil
}

// InvalidateUser drops the cached set for one user.
func (c *CachedResolver) InvalidateUser(ctx context.Context, userID int64) {
	key, err := c.userKey(ctx, userID)
	if err != nil {
		c.warn("cache key", err)
		return
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.warn("cache del", err)
	}
}

// InvalidateAll drops every cached set by advancing the generation counter;
// old keys expire under their TTL without a scan.
func (c *CachedResolver) InvalidateAll(ctx context.Context) {
	if err := c.client.Incr(ctx, cacheGenerationKey).Err(); err != nil {
		c.warn("cache generation bump", err)
	}
}

func (c *CachedResolver) userKey(ctx context.Context, userID int64) (string, error) {
	gen, err := c.client.Get(ctx, cacheGenerationKey).Int64()
	if err != nil && err != redis.Nil {
		return "", err
	}
	return fmt.Sprintf("authz:perms:%d:%d", gen, userID), nil
}

func (c *CachedResolver) warn(msg string, err error) {
	if c.logger != nil {
		c.logger.Warn(msg, slog.Any("error", err))
	}
}
