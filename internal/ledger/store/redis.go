package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis keeps state documents as plain string keys.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis constructs the Redis store. Keys are namespaced by prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "marketledger:state:"
	}
	return &Redis{client: client, prefix: prefix}
}

// Save stores payload under name without expiry.
func (r *Redis) Save(ctx context.Context, name string, payload []byte) error {
	if err := r.client.Set(ctx, r.prefix+name, payload, 0).Err(); err != nil {
		return fmt.Errorf("store: save %s: %w", name, err)
	}
	return nil
}

// Load returns the payload saved under name.
func (r *Redis) Load(ctx context.Context, name string) ([]byte, error) {
	payload, err := r.client.Get(ctx, r.prefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", name, err)
	}
	return payload, nil
}
