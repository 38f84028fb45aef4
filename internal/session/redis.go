package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores sessions as JSON values with a TTL, so several bot processes
// can share them.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl, prefix: "birthdaybot:session:"}
}

func (r *Redis) key(userID int64) string {
	return fmt.Sprintf("%s%d", r.prefix, userID)
}

func (r *Redis) Set(ctx context.Context, userID int64, state State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(userID), payload, r.ttl).Err()
}

func (r *Redis) Get(ctx context.Context, userID int64) (State, bool, error) {
	data, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("session get: %w", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, false, fmt.Errorf("session decode: %w", err)
	}
	return state, true, nil
}

func (r *Redis) Clear(ctx context.Context, userID int64) error {
	return r.client.Del(ctx, r.key(userID)).Err()
}
