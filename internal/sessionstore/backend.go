package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrNotFound is returned by a Backend when the key holds no value.
	ErrNotFound = errors.New("sessionstore: key not found")

	// ErrQuotaExceeded is returned when a write would exceed the backend's size limit.
	ErrQuotaExceeded = errors.New("sessionstore: quota exceeded")

	// ErrUnavailable is returned when the backend cannot be reached at all.
	ErrUnavailable = errors.New("sessionstore: storage unavailable")
)

// Backend is the raw string key/value storage underneath a Store.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// MemoryBackend keeps values in process memory. QuotaBytes > 0 caps the
// total stored size the way browser session storage does.
type MemoryBackend struct {
	mu         sync.RWMutex
	items      map[string]string
	QuotaBytes int
	Disabled   bool
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{items: make(map[string]string)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Disabled {
		return "", ErrUnavailable
	}
	v, ok := m.items[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryBackend) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Disabled {
		return ErrUnavailable
	}
	if m.QuotaBytes > 0 {
		size := len(key) + len(value)
		for k, v := range m.items {
			if k == key {
				continue
			}
			size += len(k) + len(v)
		}
		if size > m.QuotaBytes {
			return ErrQuotaExceeded
		}
	}
	m.items[key] = value
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Disabled {
		return ErrUnavailable
	}
	delete(m.items, key)
	return nil
}

// Len reports the number of stored keys.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// RedisBackend stores values in Redis. Expiry is enforced by the Store
// envelope on read; keyTTL is a native backstop so keys nobody reads again
// still leave Redis.
type RedisBackend struct {
	redis  *redis.Client
	keyTTL time.Duration
	tracer trace.Tracer
}

// RedisOption configures a RedisBackend.
type RedisOption func(*RedisBackend)

// WithKeyTTL sets the native Redis TTL applied on every write. Zero keeps
// keys until they are deleted.
func WithKeyTTL(ttl time.Duration) RedisOption {
	return func(r *RedisBackend) {
		if ttl > 0 {
			r.keyTTL = ttl
		}
	}
}

// NewRedisBackend wraps a redis client.
func NewRedisBackend(client *redis.Client, opts ...RedisOption) *RedisBackend {
	if client == nil {
		panic("sessionstore: redis client cannot be nil")
	}
	r := &RedisBackend{
		redis:  client,
		tracer: otel.Tracer("salesfusion.internal.sessionstore.redis"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisBackend) Get(ctx context.Context, key string) (string, error) {
	ctx, span := r.tracer.Start(ctx, "sessionstore.redis.get")
	defer span.End()

	v, err := r.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		span.RecordError(err)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return v, nil
}

func (r *RedisBackend) Set(ctx context.Context, key, value string) error {
	ctx, span := r.tracer.Start(ctx, "sessionstore.redis.set")
	defer span.End()

	if err := r.redis.Set(ctx, key, value, r.keyTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	ctx, span := r.tracer.Start(ctx, "sessionstore.redis.delete")
	defer span.End()

	if err := r.redis.Del(ctx, key).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
