package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/patetisho1/rabotim-com-sub003/internal/domain"
)

const summaryKeyPrefix = "reputation:summary:"

// setIfNotOlder writes the summary only when no newer version is cached.
// KEYS[1] holds the JSON, KEYS[2] the version; ARGV is payload, version, ttl ms.
var setIfNotOlder = redis.NewScript(`
local current = redis.call('GET', KEYS[2])
if current and tonumber(current) > tonumber(ARGV[2]) then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// evictAndFence drops the cached summary and raises the version marker to
// the committed version, so only a read of that version or later can
// repopulate the entry. KEYS as in setIfNotOlder; ARGV is version, ttl ms.
var evictAndFence = redis.NewScript(`
redis.call('DEL', KEYS[1])
local current = redis.call('GET', KEYS[2])
if not current or tonumber(current) < tonumber(ARGV[1]) then
	redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[2])
end
return 1
`)

// SummaryCache implements repository.SummaryCache using Redis.
type SummaryCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewSummaryCache creates a summary cache whose entries expire after ttl.
func NewSummaryCache(client redis.Cmdable, ttl time.Duration) *SummaryCache {
	return &SummaryCache{client: client, ttl: ttl}
}

func summaryKeys(userID string) (data, version string) {
	data = summaryKeyPrefix + userID
	return data, data + ":version"
}

// Get returns the cached summary, or nil on a miss.
func (c *SummaryCache) Get(ctx context.Context, userID string) (*domain.UserRatingSummary, error) {
	key, _ := summaryKeys(userID)

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get summary: %w", err)
	}

	var s domain.UserRatingSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal summary: %w", err)
	}
	return &s, nil
}

// Set caches s unless a newer version is already cached, so a slow writer
// cannot replace the result of a later recompute.
func (c *SummaryCache) Set(ctx context.Context, s *domain.UserRatingSummary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	key, versionKey := summaryKeys(s.UserID)
	err = setIfNotOlder.Run(ctx, c.client, []string{key, versionKey}, data, s.Version, c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redis set summary: %w", err)
	}
	return nil
}

// Delete evicts the cached summary once version has been committed. A
// read-through that loaded an older version loses to the fence even if its
// Set lands after the eviction.
func (c *SummaryCache) Delete(ctx context.Context, userID string, version int64) error {
	key, versionKey := summaryKeys(userID)
	err := evictAndFence.Run(ctx, c.client, []string{key, versionKey}, version, c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redis del summary: %w", err)
	}
	return nil
}
