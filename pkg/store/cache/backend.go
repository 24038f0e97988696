package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrCacheMiss is returned by a Backend when the key is not cached
var ErrCacheMiss = errors.New("cache miss")

// Backend stores encoded entries by key. Every key carries a generation that
// Invalidate bumps. SetIfGeneration stores only while the generation is still
// the one the caller read before going to the store.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Generation(ctx context.Context, key string) (uint64, error)
	SetIfGeneration(ctx context.Context, key string, generation uint64, value []byte) (bool, error)
	Invalidate(ctx context.Context, keys ...string) error
	Close() error
}

// MemoryBackend is a per-process LRU with TTL expiry
type MemoryBackend struct {
	cache *lru.LRU[string, []byte]

	mu sync.Mutex
	// generations is kept outside the LRU so evicting an entry never
	// resets its generation. It holds one counter per key ever invalidated.
	generations map[string]uint64
}

// NewMemoryBackend creates an in-process backend holding at most size entries
func NewMemoryBackend(size int, ttl time.Duration) *MemoryBackend {
	if size < 10 {
		size = 10
	}
	return &MemoryBackend{
		cache:       lru.NewLRU[string, []byte](size, nil, ttl),
		generations: make(map[string]uint64),
	}
}

func (b *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	value, ok := b.cache.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return value, nil
}

func (b *MemoryBackend) Generation(ctx context.Context, key string) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generations[key], nil
}

func (b *MemoryBackend) SetIfGeneration(ctx context.Context, key string, generation uint64, value []byte) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.generations[key] != generation {
		return false, nil
	}
	b.cache.Add(key, value)
	return true, nil
}

func (b *MemoryBackend) Invalidate(ctx context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, key := range keys {
		b.generations[key]++
		b.cache.Remove(key)
	}
	return nil
}

// Len returns the number of cached entries
func (b *MemoryBackend) Len() int {
	return b.cache.Len()
}

func (b *MemoryBackend) Close() error {
	b.cache.Purge()
	return nil
}

// RedisBackend shares entries between processes through Redis
type RedisBackend struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisConfig configures the shared backend
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TTL        time.Duration
	KeyPrefix  string
}

// NewRedisBackend connects to Redis and verifies the connection
func NewRedisBackend(config RedisConfig) (*RedisBackend, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if config.Password != "" {
		opts.Password = config.Password
	}
	if config.DB > 0 {
		opts.DB = config.DB
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisBackendFromClient(client, config.TTL, config.KeyPrefix), nil
}

// NewRedisBackendFromClient wraps an existing client
func NewRedisBackendFromClient(client *redis.Client, ttl time.Duration, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "tracker:"
	}
	return &RedisBackend{client: client, ttl: ttl, prefix: prefix}
}

// Client returns the underlying Redis client
func (b *RedisBackend) Client() *redis.Client {
	return b.client
}

func (b *RedisBackend) generationKey(key string) string {
	return b.prefix + "gen:" + key
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, b.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (b *RedisBackend) Generation(ctx context.Context, key string) (uint64, error) {
	generation, err := b.client.Get(ctx, b.generationKey(key)).Uint64()
	if err == redis.Nil {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("redis generation read failed: %w", err)
	}
	return generation, nil
}

// setIfGenerationScript writes KEYS[1] only while KEYS[2] still holds ARGV[1].
// A missing generation key counts as zero. ARGV[3] is the TTL in ms, 0 for none.
var setIfGenerationScript = redis.NewScript(`
local current = redis.call('GET', KEYS[2])
if not current then current = '0' end
if current ~= ARGV[1] then return 0 end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

func (b *RedisBackend) SetIfGeneration(ctx context.Context, key string, generation uint64, value []byte) (bool, error) {
	stored, err := setIfGenerationScript.Run(ctx, b.client,
		[]string{b.prefix + key, b.generationKey(key)},
		strconv.FormatUint(generation, 10), string(value), b.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis set failed: %w", err)
	}
	return stored == 1, nil
}

// Invalidate deletes the entries and bumps their generations in one transaction
func (b *RedisBackend) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Incr(ctx, b.generationKey(key))
			pipe.Del(ctx, b.prefix+key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate failed: %w", err)
	}
	return nil
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
