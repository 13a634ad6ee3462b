package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/DALE-GH/location-tracker/internal/domain"

	goredis "github.com/redis/go-redis/v9"
)

const (
	StatsKey  = "stats:summary"
	EventsKey = "locations:events"
)

type StatsCache struct {
	client *goredis.Client
	key    string
}

func NewStatsCache(r *Redis) *StatsCache {
	return &StatsCache{
		client: r.Client,
		key:    StatsKey,
	}
}

// Get returns (nil, nil) on a cache miss.
func (c *StatsCache) Get(ctx context.Context) (*domain.LocationStats, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var stats domain.LocationStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, err
	}

	return &stats, nil
}

func (c *StatsCache) Set(ctx context.Context, stats *domain.LocationStats, ttl time.Duration) error {
	b, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key, b, ttl).Err()
}

func (c *StatsCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, c.key).Err()
}
