package crm

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryProvider keeps leads in process memory. Leads are upserted by
// session ID.
type MemoryProvider struct {
	mu        sync.RWMutex
	leads     map[string]*Lead
	bySession map[string]string
	now       func() time.Time
}

// NewMemoryProvider creates an empty provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		leads:     make(map[string]*Lead),
		bySession: make(map[string]string),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryProvider) Name() string { return ProviderMemory }

// CreateLead stores or updates the lead for data.SessionID.
func (m *MemoryProvider) CreateLead(_ context.Context, data LeadData) (Result, error) {
	if err := data.Validate(); err != nil {
		return Result{Error: err.Error()}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	id, ok := m.bySession[data.SessionID]
	if !ok {
		id = uuid.NewString()
		m.bySession[data.SessionID] = id
		m.leads[id] = &Lead{ID: id, CreatedAt: now}
	}
	lead := m.leads[id]
	lead.SessionID = data.SessionID
	lead.Name = data.Name
	lead.Email = data.Email
	lead.Company = data.Company
	lead.Phone = data.Phone
	lead.Title = data.Title
	lead.Score = data.Score
	lead.ReadyToConnect = data.ReadyToConnect
	lead.QualifiedCriteria = append([]string(nil), data.QualifiedCriteria...)
	lead.Tags = append([]string(nil), data.Tags...)
	lead.Summary = data.Summary
	lead.Source = data.Source
	lead.UpdatedAt = now
	return Result{Success: true, LeadID: id}, nil
}

// AddNote appends a note to an existing lead.
func (m *MemoryProvider) AddNote(_ context.Context, leadID, text string, noteType NoteType) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lead, ok := m.leads[leadID]
	if !ok {
		return Result{Error: ErrLeadNotFound.Error()}, ErrLeadNotFound
	}
	lead.Notes = append(lead.Notes, Note{
		ID:        uuid.NewString(),
		LeadID:    leadID,
		Type:      noteType,
		Body:      text,
		CreatedAt: m.now(),
	})
	return Result{Success: true, LeadID: leadID}, nil
}

// GetLead returns a copy of the lead.
func (m *MemoryProvider) GetLead(_ context.Context, id string) (*Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lead, ok := m.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}
	out := *lead
	out.Notes = append([]Note(nil), lead.Notes...)
	return &out, nil
}
