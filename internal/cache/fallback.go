package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

var ErrNoSnapshot = errors.New("no local snapshot")

// Fallback is the local key-value persistence for whole-collection JSON
// snapshots. Load returns ErrNoSnapshot for unknown keys.
type Fallback interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

const keyTpl = "%s:snapshot:%s" // ${prefix}:snapshot:${key}

type RedisFallback struct {
	redis  *redis.Client
	prefix string
}

func NewRedisFallback(url, prefix string) (*RedisFallback, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisFallback{redis: client, prefix: prefix}, nil
}

func (f *RedisFallback) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := f.redis.Get(ctx, fmt.Sprintf(keyTpl, f.prefix, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s snapshot: %w", key, err)
	}
	return data, nil
}

func (f *RedisFallback) Save(ctx context.Context, key string, data []byte) error {
	return f.redis.Set(ctx, fmt.Sprintf(keyTpl, f.prefix, key), data, 0).Err()
}

func (f *RedisFallback) Close() error {
	if f.redis != nil {
		return f.redis.Close()
	}
	return nil
}

// MemoryFallback keeps snapshots for the lifetime of the process.
type MemoryFallback struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryFallback() *MemoryFallback {
	return &MemoryFallback{data: make(map[string][]byte)}
}

func (f *MemoryFallback) Load(ctx context.Context, key string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	data, ok := f.data[key]
	if !ok {
		return nil, ErrNoSnapshot
	}
	return append([]byte(nil), data...), nil
}

func (f *MemoryFallback) Save(ctx context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = append([]byte(nil), data...)
	return nil
}
