package natskv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const cacheBucketName = "reviewloop-cache"

// Cache wraps a JetStream KeyValue bucket as a remote cache shared by
// all engine instances. TTL is managed at bucket level.
type Cache struct {
	kv jetstream.KeyValue
}

// NewCache binds a cache to an existing KV bucket.
func NewCache(kv jetstream.KeyValue) *Cache {
	return &Cache{kv: kv}
}

// NewCacheBucket creates (or binds to) the shared cache bucket with the
// given entry TTL.
func NewCacheBucket(ctx context.Context, js jetstream.JetStream, ttl time.Duration) (*Cache, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: cacheBucketName,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("create cache bucket: %w", err)
	}
	return &Cache{kv: kv}, nil
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := c.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return entry.Value(), true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	_, err := c.kv.Put(ctx, key, value)
	return err
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}
