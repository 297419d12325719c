// Package transcripts persists finished and in-flight conversations with
// their lead tags, and answers search and analytics queries over them.
package transcripts

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/salesfusion/internal/conversation"
	"github.com/wolfman30/salesfusion/internal/sessionstore"
	"github.com/wolfman30/salesfusion/pkg/logging"
)

// Storage keys.
const (
	KeyTranscripts   = "salesfusion_transcripts"
	KeySummaries     = "salesfusion_summaries"
	summaryKeyPrefix = "summary-"
)

// ErrNotFound is returned when no transcript exists for a session.
var ErrNotFound = errors.New("transcripts: conversation not found")

// StoredConversation is a Conversation plus persistence metadata.
type StoredConversation struct {
	conversation.Conversation
	Tags         []LeadTag `json:"tags"`
	CRMSynced    bool      `json:"crmSynced"`
	CRMID        string    `json:"crmId,omitempty"`
	LastActivity time.Time `json:"lastActivity"`
}

// HasTag reports whether the tag id is assigned.
func (c StoredConversation) HasTag(id string) bool { return hasTag(c.Tags, id) }

// Analytics is computed by a full scan on every call.
type Analytics struct {
	Total               int     `json:"totalConversations"`
	Hot                 int     `json:"hotLeads"`
	Warm                int     `json:"warmLeads"`
	Cold                int     `json:"coldLeads"`
	AverageScore        float64 `json:"averageScore"`
	AverageMessageCount float64 `json:"averageMessageCount"`
	CRMSynced           int     `json:"crmSynced"`
}

// Store keeps the transcript list in a sessionstore.Store. Every write
// re-reads the whole list, upserts, and writes it back, so cost grows with
// the number of stored conversations. Conversations idle for longer than
// the TTL are dropped from the list on read, which bounds that growth even
// though each write refreshes the key itself. The mutex serializes the
// cycle within one process only; writers in other processes sharing the
// backend can still race.
type Store struct {
	kv      *sessionstore.Store
	catalog []LeadTag
	ttl     time.Duration
	now     func() time.Time
	logger  *logging.Logger

	mu        sync.Mutex
	memory    []StoredConversation
	degraded  bool
	summaries []TranscriptSummary
}

// Option configures a Store.
type Option func(*Store)

// WithCatalog replaces the default tag catalog.
func WithCatalog(catalog []LeadTag) Option {
	return func(s *Store) {
		if len(catalog) > 0 {
			s.catalog = catalog
		}
	}
}

// WithTTL sets the retention of each conversation and summary, measured
// from its last activity. Zero keeps everything.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithClock overrides time.Now for retention checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
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

// NewStore creates a transcript store over kv.
func NewStore(kv *sessionstore.Store, opts ...Option) *Store {
	s := &Store{
		kv:      kv,
		catalog: Catalog(DefaultHotLead, DefaultWarmLead),
		now:     time.Now,
		logger:  logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns the tag catalog in use.
func (s *Store) Catalog() []LeadTag { return s.catalog }

// Store upserts conv by session ID, recomputing its tags. CRM sync state of
// an existing entry is kept.
func (s *Store) Store(ctx context.Context, conv *conversation.Conversation) StoredConversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := StoredConversation{
		Conversation: *conv.Clone(),
		Tags:         AssignTags(s.catalog, conv),
		LastActivity: conv.UpdatedAt,
	}

	list := s.load(ctx)
	replaced := false
	for i := range list {
		if list[i].SessionID == conv.SessionID {
			stored.CRMSynced = list[i].CRMSynced
			stored.CRMID = list[i].CRMID
			list[i] = stored
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, stored)
	}
	s.save(ctx, list)
	return stored
}

// Get returns the stored conversation for sessionID.
func (s *Store) Get(ctx context.Context, sessionID string) (StoredConversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.load(ctx) {
		if c.SessionID == sessionID {
			return c, true
		}
	}
	return StoredConversation{}, false
}

// List returns all conversations, most recent activity first.
func (s *Store) List(ctx context.Context) []StoredConversation {
	s.mu.Lock()
	list := s.load(ctx)
	s.mu.Unlock()

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].LastActivity.After(list[j].LastActivity)
	})
	return list
}

// Search matches query case-insensitively against prospect name, e-mail and
// company, message content, and tag names. An empty query returns all.
func (s *Store) Search(ctx context.Context, query string) []StoredConversation {
	q := strings.ToLower(strings.TrimSpace(query))
	all := s.List(ctx)
	if q == "" {
		return all
	}
	out := make([]StoredConversation, 0, len(all))
	for _, c := range all {
		if matchesQuery(c, q) {
			out = append(out, c)
		}
	}
	return out
}

func matchesQuery(c StoredConversation, q string) bool {
	for _, field := range []string{c.Prospect.Name, c.Prospect.Email, c.Prospect.Company} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	for _, m := range c.Messages {
		if strings.Contains(strings.ToLower(m.Content), q) {
			return true
		}
	}
	for _, t := range c.Tags {
		if strings.Contains(strings.ToLower(t.Name), q) {
			return true
		}
	}
	return false
}

// Analytics aggregates over every stored conversation.
func (s *Store) Analytics(ctx context.Context) Analytics {
	s.mu.Lock()
	list := s.load(ctx)
	s.mu.Unlock()

	a := Analytics{Total: len(list)}
	if a.Total == 0 {
		return a
	}
	var scoreSum, msgSum int
	for _, c := range list {
		switch {
		case c.HasTag(TagHot):
			a.Hot++
		case c.HasTag(TagWarm):
			a.Warm++
		case c.HasTag(TagCold):
			a.Cold++
		}
		if c.CRMSynced {
			a.CRMSynced++
		}
		scoreSum += c.QualificationStatus.Score
		msgSum += len(c.Messages)
	}
	a.AverageScore = float64(scoreSum) / float64(a.Total)
	a.AverageMessageCount = float64(msgSum) / float64(a.Total)
	return a
}

// MarkCRMSynced records the CRM lead ID for a session.
func (s *Store) MarkCRMSynced(ctx context.Context, sessionID, crmID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.load(ctx)
	for i := range list {
		if list[i].SessionID == sessionID {
			list[i].CRMSynced = true
			list[i].CRMID = crmID
			s.save(ctx, list)
			return nil
		}
	}
	return ErrNotFound
}

// Delete removes one conversation. It reports whether it existed.
func (s *Store) Delete(ctx context.Context, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.load(ctx)
	for i := range list {
		if list[i].SessionID == sessionID {
			list = append(list[:i], list[i+1:]...)
			s.save(ctx, list)
			return true
		}
	}
	return false
}

// Clear removes every stored transcript and summary.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sum := range s.loadSummaries(ctx) {
		s.kv.RemoveItem(ctx, summaryKeyPrefix+sum.SessionID)
	}
	s.kv.Remove(ctx, KeyTranscripts)
	s.kv.Remove(ctx, KeySummaries)
	s.memory = nil
	s.summaries = nil
	s.degraded = false
}

func (s *Store) load(ctx context.Context) []StoredConversation {
	if s.degraded {
		return s.pruneConversations(append([]StoredConversation(nil), s.memory...))
	}
	list, ok := sessionstore.Load[[]StoredConversation](ctx, s.kv, KeyTranscripts)
	if !ok {
		return []StoredConversation{}
	}
	return s.pruneConversations(list)
}

// expired reports whether activity at t is outside the retention window.
func (s *Store) expired(t time.Time) bool {
	return s.ttl > 0 && s.now().Sub(t) > s.ttl
}

func (s *Store) pruneConversations(list []StoredConversation) []StoredConversation {
	if s.ttl <= 0 {
		return list
	}
	kept := list[:0]
	for _, c := range list {
		if !s.expired(c.LastActivity) {
			kept = append(kept, c)
		}
	}
	if dropped := len(list) - len(kept); dropped > 0 {
		s.logger.Debug("transcripts: dropped expired conversations", "count", dropped)
	}
	return kept
}

func (s *Store) save(ctx context.Context, list []StoredConversation) {
	if s.kv.Set(ctx, KeyTranscripts, list, s.ttl) {
		s.degraded = false
		s.memory = nil
		return
	}
	if !s.degraded {
		s.logger.Warn("transcripts: storage write failed, keeping transcripts in memory", "count", len(list))
	}
	s.degraded = true
	s.memory = append([]StoredConversation(nil), list...)
}

// encodeJSON is used for raw (non-envelope) values.
func encodeJSON(v any) (string, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return string(b), true
}
