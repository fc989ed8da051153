package cache

import (
	"context"
	"time"
)

// Store is a byte-value cache. A ttl of zero keeps the value until it is
// overwritten, which is how last-known-good prices are kept.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Publisher fans out change notifications. Only the redis store has one.
type Publisher interface {
	Publish(ctx context.Context, channel, message string) error
}
