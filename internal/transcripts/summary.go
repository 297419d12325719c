package transcripts

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wolfman30/salesfusion/internal/qualification"
	"github.com/wolfman30/salesfusion/internal/sessionstore"
)

// TranscriptSummary is the compact record written when a session ends.
type TranscriptSummary struct {
	SessionID         string    `json:"sessionId"`
	ProspectName      string    `json:"prospectName,omitempty"`
	Company           string    `json:"company,omitempty"`
	Email             string    `json:"email,omitempty"`
	Score             int       `json:"score"`
	ReadyToConnect    bool      `json:"readyToConnect"`
	QualifiedCriteria []string  `json:"qualifiedCriteria"`
	Tags              []string  `json:"tags"`
	MessageCount      int       `json:"messageCount"`
	Assessment        string    `json:"assessment,omitempty"`
	StartedAt         time.Time `json:"startedAt"`
	EndedAt           time.Time `json:"endedAt"`
	DurationSeconds   int64     `json:"durationSeconds"`
}

// BuildSummary condenses a stored conversation.
func BuildSummary(c StoredConversation, schema qualification.Schema, endedAt time.Time) TranscriptSummary {
	tags := make([]string, 0, len(c.Tags))
	for _, t := range c.Tags {
		tags = append(tags, t.ID)
	}
	sum := TranscriptSummary{
		SessionID:         c.SessionID,
		ProspectName:      c.Prospect.Name,
		Company:           c.Prospect.Company,
		Email:             c.Prospect.Email,
		Score:             c.QualificationStatus.Score,
		ReadyToConnect:    c.QualificationStatus.ReadyToConnect,
		QualifiedCriteria: c.QualificationStatus.QualifiedCriteria(schema),
		Tags:              tags,
		MessageCount:      len(c.Messages),
		StartedAt:         c.CreatedAt,
		EndedAt:           endedAt,
	}
	if a := c.QualificationStatus.AIAssessment; a != nil {
		sum.Assessment = a.Summary
	}
	if d := endedAt.Sub(c.CreatedAt); d > 0 {
		sum.DurationSeconds = int64(d / time.Second)
	}
	return sum
}

// SaveSummary upserts sum into the summary list and also writes it raw under
// summary-{sessionId}.
func (s *Store) SaveSummary(ctx context.Context, sum TranscriptSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.loadSummaries(ctx)
	replaced := false
	for i := range list {
		if list[i].SessionID == sum.SessionID {
			list[i] = sum
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, sum)
	}
	if !s.kv.Set(ctx, KeySummaries, list, s.ttl) {
		s.summaries = list
	} else {
		s.summaries = nil
	}

	if raw, ok := encodeJSON(sum); ok {
		s.kv.SetItem(ctx, summaryKeyPrefix+sum.SessionID, raw)
	}
}

// Summary returns the summary for sessionID, preferring the per-session key.
func (s *Store) Summary(ctx context.Context, sessionID string) (TranscriptSummary, bool) {
	if raw, ok := s.kv.GetItem(ctx, summaryKeyPrefix+sessionID); ok {
		var sum TranscriptSummary
		if err := json.Unmarshal([]byte(raw), &sum); err == nil {
			if !s.expired(sum.EndedAt) {
				return sum, true
			}
			s.kv.RemoveItem(ctx, summaryKeyPrefix+sessionID)
		} else {
			s.logger.Warn("transcripts: unreadable summary", "session_id", sessionID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sum := range s.loadSummaries(ctx) {
		if sum.SessionID == sessionID {
			return sum, true
		}
	}
	return TranscriptSummary{}, false
}

// Summaries returns every saved summary.
func (s *Store) Summaries(ctx context.Context) []TranscriptSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadSummaries(ctx)
}

func (s *Store) loadSummaries(ctx context.Context) []TranscriptSummary {
	if s.summaries != nil {
		return s.pruneSummaries(ctx, append([]TranscriptSummary(nil), s.summaries...))
	}
	list, ok := sessionstore.Load[[]TranscriptSummary](ctx, s.kv, KeySummaries)
	if !ok {
		return []TranscriptSummary{}
	}
	return s.pruneSummaries(ctx, list)
}

// pruneSummaries drops expired summaries along with their raw keys.
func (s *Store) pruneSummaries(ctx context.Context, list []TranscriptSummary) []TranscriptSummary {
	if s.ttl <= 0 {
		return list
	}
	kept := list[:0]
	for _, sum := range list {
		if s.expired(sum.EndedAt) {
			s.kv.RemoveItem(ctx, summaryKeyPrefix+sum.SessionID)
			continue
		}
		kept = append(kept, sum)
	}
	return kept
}
