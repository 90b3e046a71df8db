package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/opsmind/tenant-rag-agent/internal/core/ports"
)

const keyNamespace = "tra"

// Cache stores JSON payloads in Redis under hashed keys. Logical keys can
// contain user queries, so they are digested before touching the wire; the
// namespace prefix keeps the keyspace scannable alongside other tenants of
// the same Redis instance.
type Cache struct {
	mu     sync.Mutex
	client *goredis.Client
	url    string
}

func NewCache(url string) *Cache {
	return &Cache{url: url}
}

var _ ports.Cache = (*Cache)(nil)

func (c *Cache) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	client, err := c.connection()
	if err != nil {
		return false, err
	}

	raw, err := client.Get(ctx, hashKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("cache decode: %w", err)
	}
	return true, nil
}

func (c *Cache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	client, err := c.connection()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := client.Set(ctx, hashKey(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// connection establishes the client lazily so a Redis outage at startup
// does not block the service; the retrieval path treats cache errors as
// misses anyway.
func (c *Cache) connection() (*goredis.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}

	opts, err := goredis.ParseURL(c.url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c.client = goredis.NewClient(opts)
	return c.client, nil
}

func hashKey(key string) string {
	digest := sha256.Sum256([]byte(key))
	return keyNamespace + ":" + hex.EncodeToString(digest[:])
}
