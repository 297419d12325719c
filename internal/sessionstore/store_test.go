package sessionstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/salesfusion/pkg/logging"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(t *testing.T) (*Store, *MemoryBackend, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	backend := NewMemoryBackend()
	store := New(backend, WithClock(clock.Now), WithLogger(logging.Discard()))
	return store, backend, clock
}

type widget struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestStore_SetAndLoad(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	require.True(t, store.Set(ctx, "w", widget{Name: "a", Count: 2}, time.Minute))

	got, ok := Load[widget](ctx, store, "w")
	require.True(t, ok)
	assert.Equal(t, widget{Name: "a", Count: 2}, got)
}

func TestStore_WritesEnvelope(t *testing.T) {
	store, backend, clock := newTestStore(t)
	ctx := context.Background()

	require.True(t, store.Set(ctx, "k", "v", 0))

	raw, err := backend.Get(ctx, "k")
	require.NoError(t, err)

	var payload Payload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	assert.Equal(t, clock.Now().UnixMilli(), payload.CreatedAt)
	assert.Equal(t, clock.Now().Add(DefaultTTL).UnixMilli(), payload.ExpiresAt)
	assert.Greater(t, payload.ExpiresAt, payload.CreatedAt)
	assert.JSONEq(t, `"v"`, string(payload.Value))
}

func TestStore_ExpiredEntryIsDeletedOnRead(t *testing.T) {
	store, backend, clock := newTestStore(t)
	ctx := context.Background()

	require.True(t, store.Set(ctx, "k", "v", time.Second))

	clock.Advance(time.Second)
	_, ok := store.Get(ctx, "k")
	assert.True(t, ok, "entry is still valid exactly at expiry")

	clock.Advance(time.Millisecond)
	_, ok = store.Get(ctx, "k")
	assert.False(t, ok)

	_, err := backend.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_LegacyValueIsRewrapped(t *testing.T) {
	store, backend, clock := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, backend.Set(ctx, "legacy", `{"name":"old","count":7}`))

	got, ok := Load[widget](ctx, store, "legacy")
	require.True(t, ok)
	assert.Equal(t, widget{Name: "old", Count: 7}, got)

	raw, err := backend.Get(ctx, "legacy")
	require.NoError(t, err)
	payload, isEnvelope := decodePayload([]byte(raw))
	require.True(t, isEnvelope)
	assert.Equal(t, clock.Now().Add(DefaultTTL).UnixMilli(), payload.ExpiresAt)
	assert.JSONEq(t, `{"name":"old","count":7}`, string(payload.Value))

	// Second read goes through the envelope path.
	got, ok = Load[widget](ctx, store, "legacy")
	require.True(t, ok)
	assert.Equal(t, "old", got.Name)
}

func TestStore_LegacyObjectWithValueFieldIsNotAnEnvelope(t *testing.T) {
	store, backend, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, backend.Set(ctx, "k", `{"value":1,"other":true}`))

	raw, ok := store.Get(ctx, "k")
	require.True(t, ok)
	assert.JSONEq(t, `{"value":1,"other":true}`, string(raw))
}

func TestStore_UnreadableValue(t *testing.T) {
	store, backend, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, backend.Set(ctx, "k", "not json"))

	_, ok := store.Get(ctx, "k")
	assert.False(t, ok)
}

func TestStore_SetFailuresReturnFalse(t *testing.T) {
	ctx := context.Background()

	t.Run("quota exceeded", func(t *testing.T) {
		backend := NewMemoryBackend()
		backend.QuotaBytes = 16
		store := New(backend, WithLogger(logging.Discard()))
		assert.False(t, store.Set(ctx, "k", "a value that is far too large", time.Minute))
	})

	t.Run("storage disabled", func(t *testing.T) {
		backend := NewMemoryBackend()
		backend.Disabled = true
		store := New(backend, WithLogger(logging.Discard()))
		assert.False(t, store.Set(ctx, "k", "v", time.Minute))
		_, ok := store.Get(ctx, "k")
		assert.False(t, ok)
	})

	t.Run("unencodable value", func(t *testing.T) {
		store := New(NewMemoryBackend(), WithLogger(logging.Discard()))
		assert.False(t, store.Set(ctx, "k", make(chan int), time.Minute))
	})
}

func TestStore_RawItems(t *testing.T) {
	store, backend, clock := newTestStore(t)
	ctx := context.Background()

	require.True(t, store.SetItem(ctx, "demo_analytics", `{"views":3}`))
	clock.Advance(365 * 24 * time.Hour)

	v, ok := store.GetItem(ctx, "demo_analytics")
	require.True(t, ok)
	assert.Equal(t, `{"views":3}`, v)

	require.True(t, store.RemoveItem(ctx, "demo_analytics"))
	_, ok = store.GetItem(ctx, "demo_analytics")
	assert.False(t, ok)
	assert.Equal(t, 0, backend.Len())
}

func TestStore_Prefix(t *testing.T) {
	backend := NewMemoryBackend()
	store := New(backend, WithPrefix("tenant-1:"), WithLogger(logging.Discard()))
	ctx := context.Background()

	require.True(t, store.SetItem(ctx, "k", "v"))
	_, err := backend.Get(ctx, "tenant-1:k")
	assert.NoError(t, err)
}

func TestRedisBackend_RoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := New(NewRedisBackend(client), WithClock(clock.Now), WithLogger(logging.Discard()))
	ctx := context.Background()

	require.True(t, store.Set(ctx, "salesfusion_transcripts", []string{"a", "b"}, time.Minute))

	got, ok := Load[[]string](ctx, store, "salesfusion_transcripts")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got)

	clock.Advance(time.Minute + time.Millisecond)
	_, ok = store.Get(ctx, "salesfusion_transcripts")
	assert.False(t, ok)
	assert.False(t, mr.Exists("salesfusion_transcripts"))
}

func TestRedisBackend_Unavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	store := New(NewRedisBackend(client), WithLogger(logging.Discard()))
	assert.False(t, store.Set(context.Background(), "k", "v", time.Minute))
}

func TestRedisBackend_KeyTTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := New(NewRedisBackend(client, WithKeyTTL(2*time.Hour)), WithLogger(logging.Discard()))
	ctx := context.Background()

	require.True(t, store.SetItem(ctx, "summary-s1", `{"sessionId":"s1"}`))
	assert.Equal(t, 2*time.Hour, mr.TTL("summary-s1"))

	mr.FastForward(2*time.Hour + time.Second)
	_, ok := store.GetItem(ctx, "summary-s1")
	assert.False(t, ok)
}

func TestRedisBackend_NoKeyTTLByDefault(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := New(NewRedisBackend(client), WithLogger(logging.Discard()))
	require.True(t, store.SetItem(context.Background(), "k", "v"))
	assert.Equal(t, time.Duration(0), mr.TTL("k"))
}
