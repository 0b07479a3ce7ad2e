package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"campaign-optimizer/internal/engine"
)

// CachedMetricSource puts a Redis read-through cache in front of another
// MetricSource. Cache failures degrade to the underlying source.
type CachedMetricSource struct {
	next engine.MetricSource
	rdb  redis.Cmdable
	ttl  time.Duration
}

var _ engine.MetricSource = (*CachedMetricSource)(nil)

func NewCachedMetricSource(next engine.MetricSource, rdb redis.Cmdable, ttl time.Duration) *CachedMetricSource {
	return &CachedMetricSource{next: next, rdb: rdb, ttl: ttl}
}

// NewRedisClient connects and pings, like the other platform clients.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func snapshotKey(campaignID string) string {
	return fmt.Sprintf("metrics:campaign:%s:latest", campaignID)
}

func (c *CachedMetricSource) LatestSnapshot(ctx context.Context, campaignID string) (*engine.MetricSnapshot, error) {
	key := snapshotKey(campaignID)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var snap engine.MetricSnapshot
		if jerr := json.Unmarshal(raw, &snap); jerr == nil {
			return &snap, nil
		}
		log.Warn().Str("key", key).Msg("discarding undecodable cached snapshot")
	case !errors.Is(err, redis.Nil):
		log.Warn().Err(err).Str("key", key).Msg("snapshot cache read failed")
	}

	snap, err := c.next.LatestSnapshot(ctx, campaignID)
	if err != nil || snap == nil {
		return snap, err
	}
	if b, err := json.Marshal(snap); err == nil {
		if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("snapshot cache write failed")
		}
	}
	return snap, nil
}
