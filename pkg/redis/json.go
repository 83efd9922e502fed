package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by JSONValue.Get when the key does not exist.
var ErrNotFound = errors.New("redis: key not found")

// JSONValue stores a single JSON-encoded value of type T under a fixed key.
type JSONValue[T any] struct {
	client goredis.UniversalClient
	key    string
}

func NewJSONValue[T any](client goredis.UniversalClient, key string) *JSONValue[T] {
	return &JSONValue[T]{client: client, key: key}
}

func (v *JSONValue[T]) Key() string { return v.key }

func (v *JSONValue[T]) Get(ctx context.Context) (T, error) {
	var out T
	raw, err := v.client.Get(ctx, v.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return out, ErrNotFound
	}
	if err != nil {
		return out, fmt.Errorf("get %s: %w", v.key, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", v.key, err)
	}
	return out, nil
}

func (v *JSONValue[T]) Set(ctx context.Context, value T) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", v.key, err)
	}
	if err := v.client.Set(ctx, v.key, payload, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", v.key, err)
	}
	return nil
}
