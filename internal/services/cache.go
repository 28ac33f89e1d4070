package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/stash/internal/models"
	"github.com/redis/go-redis/v9"
)

const trackCachePrefix = "stash:track:"

// TrackCache keeps catalog track metadata in redis. Track metadata is not user specific,
// so entries are shared between users.
//
// A nil *TrackCache is valid and caches nothing.
type TrackCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

// NewTrackCache connects to redisURL (redis://host:port/db). An empty URL returns a nil cache.
func NewTrackCache(ctx context.Context, redisURL string, ttl time.Duration, logger *log.Logger) (*TrackCache, error) {
	if redisURL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewTrackCacheWithClient(client, ttl, logger), nil
}

// NewTrackCacheWithClient wraps an existing redis client.
func NewTrackCacheWithClient(client *redis.Client, ttl time.Duration, logger *log.Logger) *TrackCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = log.Default()
	}
	return &TrackCache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached track. Misses and redis failures both report false.
func (c *TrackCache) Get(ctx context.Context, id string) (*models.CatalogTrack, bool) {
	if c == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, trackCachePrefix+id).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("track cache read failed", "track", id, "error", err)
		}
		return nil, false
	}

	var track models.CatalogTrack
	if err := json.Unmarshal(data, &track); err != nil {
		c.logger.Warn("discarding corrupt cache entry", "track", id, "error", err)
		return nil, false
	}
	return &track, true
}

// Set stores track until the cache TTL elapses. Failures are logged and otherwise ignored.
func (c *TrackCache) Set(ctx context.Context, track models.CatalogTrack) {
	if c == nil || track.ID == "" {
		return
	}

	data, err := json.Marshal(track)
	if err != nil {
		return
	}

	if err := c.client.Set(ctx, trackCachePrefix+track.ID, data, c.ttl).Err(); err != nil {
		c.logger.Warn("track cache write failed", "track", track.ID, "error", err)
	}
}

// Close releases the redis connection pool.
func (c *TrackCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
