package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/ticket-tracker/internal/domain"
)

const settingsCacheKey = "ticket-tracker:settings"

// storeNewerSettings writes the payload only when no cached copy carries a
// newer version, so a reader holding a stale store read cannot overwrite a
// fresher record written by SetClaimLimit.
var storeNewerSettings = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if current and tonumber(current) > tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'payload', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// RedisSettingsCache stores the settings record in a Redis hash with a TTL.
type RedisSettingsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSettingsCache returns a cache, or nil when client is nil or ttl is not positive.
func NewRedisSettingsCache(client *redis.Client, ttl time.Duration) SettingsCache {
	if client == nil || ttl <= 0 {
		return nil
	}
	return &RedisSettingsCache{client: client, ttl: ttl}
}

type cachedSettings struct {
	ClaimLimit     int       `json:"claim_limit"`
	EnforceOnClaim bool      `json:"enforce_on_claim"`
	OverrideRoles  []string  `json:"override_roles"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// settingsVersion orders cached records; defaults that were never stored are oldest.
func settingsVersion(rec domain.ConfigRecord) int64 {
	if rec.UpdatedAt.IsZero() {
		return 0
	}
	return rec.UpdatedAt.UnixMicro()
}

func (c *RedisSettingsCache) Get(ctx context.Context) (*domain.ConfigRecord, error) {
	raw, err := c.client.HGet(ctx, settingsCacheKey, "payload").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var cached cachedSettings
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, err
	}
	roles := cached.OverrideRoles
	if roles == nil {
		roles = []string{}
	}
	return &domain.ConfigRecord{
		Key:            domain.SettingsKey,
		ClaimLimit:     cached.ClaimLimit,
		EnforceOnClaim: cached.EnforceOnClaim,
		OverrideRoles:  roles,
		UpdatedAt:      cached.UpdatedAt,
	}, nil
}

// Set stores rec unless the cache already holds a newer version.
func (c *RedisSettingsCache) Set(ctx context.Context, rec domain.ConfigRecord) error {
	raw, err := json.Marshal(cachedSettings{
		ClaimLimit:     rec.ClaimLimit,
		EnforceOnClaim: rec.EnforceOnClaim,
		OverrideRoles:  rec.OverrideRoles,
		UpdatedAt:      rec.UpdatedAt,
	})
	if err != nil {
		return err
	}
	return storeNewerSettings.Run(ctx, c.client, []string{settingsCacheKey},
		settingsVersion(rec), raw, c.ttl.Milliseconds()).Err()
}

func (c *RedisSettingsCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, settingsCacheKey).Err()
}
