package crm

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/salesfusion/internal/qualification"
	"github.com/wolfman30/salesfusion/internal/transcripts"
	"github.com/wolfman30/salesfusion/pkg/logging"
)

// ErrNoProvider is returned by Sync when no CRM is configured.
var ErrNoProvider = errors.New("crm: no provider configured")

// Syncer pushes a stored conversation to the CRM and records the result on
// the transcript.
type Syncer struct {
	provider    Provider
	transcripts *transcripts.Store
	schema      qualification.Schema
	logger      *logging.Logger
}

// NewSyncer creates a syncer. A nil provider makes every Sync return
// ErrNoProvider.
func NewSyncer(provider Provider, store *transcripts.Store, schema qualification.Schema, logger *logging.Logger) *Syncer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Syncer{provider: provider, transcripts: store, schema: schema, logger: logger}
}

// Enabled reports whether a provider is configured.
func (s *Syncer) Enabled() bool { return s != nil && s.provider != nil }

// Sync creates the lead, attaches the transcript and qualification notes and
// marks the transcript synced. Sessions that are already synced return the
// stored lead ID without calling the provider.
func (s *Syncer) Sync(ctx context.Context, sessionID string) (Result, error) {
	if !s.Enabled() {
		return Result{Error: ErrNoProvider.Error()}, ErrNoProvider
	}
	stored, ok := s.transcripts.Get(ctx, sessionID)
	if !ok {
		return Result{Error: transcripts.ErrNotFound.Error()}, transcripts.ErrNotFound
	}
	if stored.CRMSynced && stored.CRMID != "" {
		return Result{Success: true, LeadID: stored.CRMID}, nil
	}

	data := BuildLeadData(stored, s.schema)
	res, err := s.provider.CreateLead(ctx, data)
	if err != nil {
		return res, fmt.Errorf("crm: %s create lead: %w", s.provider.Name(), err)
	}

	if _, err := s.provider.AddNote(ctx, res.LeadID, data.Transcript, NoteTranscript); err != nil {
		s.logger.Warn("crm: transcript note failed", "error", err, "lead_id", res.LeadID, "provider", s.provider.Name())
	}
	if _, err := s.provider.AddNote(ctx, res.LeadID, data.QualificationNote(), NoteQualification); err != nil {
		s.logger.Warn("crm: qualification note failed", "error", err, "lead_id", res.LeadID, "provider", s.provider.Name())
	}

	if err := s.transcripts.MarkCRMSynced(ctx, sessionID, res.LeadID); err != nil {
		return res, fmt.Errorf("crm: mark synced: %w", err)
	}
	s.logger.Info("crm lead synced", "session_id", sessionID, "lead_id", res.LeadID, "provider", s.provider.Name())
	return res, nil
}
