// Package sessionstore provides session-scoped key/value storage with a
// time-to-live envelope around every value.
//
// Expiry is lazy. Reads have observable side effects: an expired entry is
// deleted when it is read, and a value stored without the envelope (a legacy
// payload) is rewrapped with the default TTL the first time it is read.
package sessionstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/salesfusion/pkg/logging"
)

// DefaultTTL is applied when Set is called without a positive ttl.
const DefaultTTL = 24 * time.Hour

// Payload is the stored envelope. Times are epoch milliseconds.
type Payload struct {
	Value     json.RawMessage `json:"value"`
	CreatedAt int64           `json:"createdAt"`
	ExpiresAt int64           `json:"expiresAt"`
}

// Store wraps a Backend with the expiring envelope.
type Store struct {
	backend    Backend
	prefix     string
	defaultTTL time.Duration
	now        func() time.Time
	logger     *logging.Logger
	tracer     trace.Tracer
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPrefix namespaces every key.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithDefaultTTL changes the TTL used for ttl<=0 writes and legacy rewraps.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.defaultTTL = ttl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Store over backend.
func New(backend Backend, opts ...Option) *Store {
	if backend == nil {
		panic("sessionstore: backend cannot be nil")
	}
	s := &Store{
		backend:    backend,
		defaultTTL: DefaultTTL,
		now:        time.Now,
		logger:     logging.Default(),
		tracer:     otel.Tracer("salesfusion.internal.sessionstore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set serializes value into an envelope expiring after ttl. It returns false
// when the value cannot be encoded or the backend rejects the write; it never
// panics or returns an error, so callers keep their own in-memory copy.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	ctx, span := s.tracer.Start(ctx, "sessionstore.set")
	defer span.End()

	raw, err := json.Marshal(value)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("sessionstore: failed to encode value", "key", key, "error", err)
		return false
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	return s.writeEnvelope(ctx, key, raw, ttl)
}

// Get returns the raw JSON value stored at key. Expired entries are deleted
// and reported absent. Values without an envelope are returned as-is and
// rewritten in envelope form with the default TTL.
func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	ctx, span := s.tracer.Start(ctx, "sessionstore.get")
	defer span.End()

	data, err := s.backend.Get(ctx, s.key(key))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
			s.logger.Warn("sessionstore: read failed", "key", key, "error", err)
		}
		return nil, false
	}

	payload, ok := decodePayload([]byte(data))
	if !ok {
		if !json.Valid([]byte(data)) {
			s.logger.Warn("sessionstore: discarding unreadable value", "key", key)
			return nil, false
		}
		raw := json.RawMessage(data)
		if !s.writeEnvelope(ctx, key, raw, s.defaultTTL) {
			s.logger.Warn("sessionstore: legacy value rewrap failed", "key", key)
		}
		return raw, true
	}

	if s.now().UnixMilli() > payload.ExpiresAt {
		if err := s.backend.Delete(ctx, s.key(key)); err != nil {
			s.logger.Warn("sessionstore: failed to delete expired value", "key", key, "error", err)
		}
		return nil, false
	}
	return payload.Value, true
}

// Load decodes the value at key into T. A value that does not decode is
// reported absent.
func Load[T any](ctx context.Context, s *Store, key string) (T, bool) {
	var out T
	raw, ok := s.Get(ctx, key)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		s.logger.Warn("sessionstore: stored value has unexpected shape", "key", key, "error", err)
		var zero T
		return zero, false
	}
	return out, true
}

// Remove deletes key. It reports whether the backend accepted the delete.
func (s *Store) Remove(ctx context.Context, key string) bool {
	return s.RemoveItem(ctx, key)
}

// SetItem writes value without the expiry envelope.
func (s *Store) SetItem(ctx context.Context, key, value string) bool {
	if err := s.backend.Set(ctx, s.key(key), value); err != nil {
		s.logger.Warn("sessionstore: raw write failed", "key", key, "error", err)
		return false
	}
	return true
}

// GetItem reads a value written with SetItem. No expiry is applied.
func (s *Store) GetItem(ctx context.Context, key string) (string, bool) {
	v, err := s.backend.Get(ctx, s.key(key))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("sessionstore: raw read failed", "key", key, "error", err)
		}
		return "", false
	}
	return v, true
}

// RemoveItem deletes key.
func (s *Store) RemoveItem(ctx context.Context, key string) bool {
	if err := s.backend.Delete(ctx, s.key(key)); err != nil {
		s.logger.Warn("sessionstore: delete failed", "key", key, "error", err)
		return false
	}
	return true
}

func (s *Store) writeEnvelope(ctx context.Context, key string, raw json.RawMessage, ttl time.Duration) bool {
	now := s.now()
	payload := Payload{
		Value:     raw,
		CreatedAt: now.UnixMilli(),
		ExpiresAt: now.Add(ttl).UnixMilli(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("sessionstore: failed to encode envelope", "key", key, "error", err)
		return false
	}
	if err := s.backend.Set(ctx, s.key(key), string(data)); err != nil {
		s.logger.Warn("sessionstore: write failed", "key", key, "error", err)
		return false
	}
	return true
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

// decodePayload reports whether data is an envelope: a JSON object with
// exactly the value, createdAt and expiresAt fields, timestamps numeric.
func decodePayload(data []byte) (Payload, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return Payload{}, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Payload{}, false
	}
	if len(fields) != 3 {
		return Payload{}, false
	}
	value, hasValue := fields["value"]
	createdRaw, hasCreated := fields["createdAt"]
	expiresRaw, hasExpires := fields["expiresAt"]
	if !hasValue || !hasCreated || !hasExpires {
		return Payload{}, false
	}
	var created, expires int64
	if json.Unmarshal(createdRaw, &created) != nil || json.Unmarshal(expiresRaw, &expires) != nil {
		return Payload{}, false
	}
	return Payload{Value: value, CreatedAt: created, ExpiresAt: expires}, true
}
