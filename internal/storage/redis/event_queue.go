package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/DALE-GH/location-tracker/internal/domain"
	"github.com/DALE-GH/location-tracker/pkg/e"

	"github.com/redis/go-redis/v9"
)

type EventQueue struct {
	client *redis.Client
	key    string
}

func NewEventQueue(client *redis.Client, key string) *EventQueue {
	return &EventQueue{client: client, key: key}
}

func (q *EventQueue) Enqueue(ctx context.Context, event domain.LocationEvent) error {
	b, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, b).Err()
}

// BRPop blocks up to timeout and returns e.ErrEventQueueEmpty when nothing arrived.
func (q *EventQueue) BRPop(ctx context.Context, timeout time.Duration) (domain.LocationEvent, error) {
	var ev domain.LocationEvent

	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ev, e.ErrEventQueueEmpty
		}
		return ev, err
	}
	if len(res) < 2 {
		return ev, e.ErrEventQueueEmpty
	}
	if err := json.Unmarshal([]byte(res[1]), &ev); err != nil {
		return ev, err
	}
	return ev, nil
}
