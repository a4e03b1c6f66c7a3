// Package kvstore defines the persistence boundary for wallet state and its
// backends.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("kvstore: key not found")

// KeyValueStore holds opaque values by key. Values are copied in and out.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// GetJSON loads key into T. found is false when the key does not exist.
func GetJSON[T any](ctx context.Context, s KeyValueStore, key string) (T, bool, error) {
	var zero T

	b, err := s.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return zero, false, nil
		}
		return zero, false, err
	}

	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return zero, false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return out, true, nil
}

func PutJSON[T any](ctx context.Context, s KeyValueStore, key string, v T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.Put(ctx, key, b)
}
