// Package crm hands qualified prospects to a CRM. Providers share one
// strategy interface; the hosted CRMs are declared but report
// ErrNotImplemented.
package crm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider names accepted by NewProvider.
const (
	ProviderNone       = "none"
	ProviderMemory     = "memory"
	ProviderPostgres   = "postgres"
	ProviderSalesforce = "salesforce"
	ProviderHubSpot    = "hubspot"
	ProviderPipedrive  = "pipedrive"
)

var (
	// ErrNotImplemented is returned by providers without an integration.
	ErrNotImplemented = errors.New("crm: provider not implemented")
	// ErrLeadNotFound is returned when a lead ID is unknown.
	ErrLeadNotFound = errors.New("crm: lead not found")
	// ErrInvalidLead is returned when lead data lacks contact details.
	ErrInvalidLead = errors.New("crm: lead needs a session id and an email or name")
)

// NoteType labels a note attached to a lead.
type NoteType string

const (
	NoteTranscript    NoteType = "transcript"
	NoteQualification NoteType = "qualification"
	NoteGeneral       NoteType = "note"
)

// Result is what a provider reports for a call.
type Result struct {
	Success bool   `json:"success"`
	LeadID  string `json:"leadId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Provider is a CRM integration.
type Provider interface {
	Name() string
	CreateLead(ctx context.Context, lead LeadData) (Result, error)
	AddNote(ctx context.Context, leadID, text string, noteType NoteType) (Result, error)
}

// unimplemented stands in for a hosted CRM with no integration yet.
type unimplemented struct {
	name string
}

func (u unimplemented) Name() string { return u.name }

func (u unimplemented) CreateLead(context.Context, LeadData) (Result, error) {
	return Result{Error: fmt.Sprintf("%s integration is not available", u.name)}, fmt.Errorf("%w: %s", ErrNotImplemented, u.name)
}

func (u unimplemented) AddNote(context.Context, string, string, NoteType) (Result, error) {
	return Result{Error: fmt.Sprintf("%s integration is not available", u.name)}, fmt.Errorf("%w: %s", ErrNotImplemented, u.name)
}

// Unimplemented returns the placeholder provider for a hosted CRM.
func Unimplemented(name string) Provider { return unimplemented{name: name} }

// NewProvider resolves a provider by name. postgres needs pg; memory and
// none need nothing. An empty name means none, which returns a nil Provider.
func NewProvider(name string, pg *PostgresProvider) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ProviderNone:
		return nil, nil
	case ProviderMemory:
		return NewMemoryProvider(), nil
	case ProviderPostgres:
		if pg == nil {
			return nil, errors.New("crm: postgres provider requires DATABASE_URL")
		}
		return pg, nil
	case ProviderSalesforce, ProviderHubSpot, ProviderPipedrive:
		return Unimplemented(strings.ToLower(strings.TrimSpace(name))), nil
	default:
		return nil, fmt.Errorf("crm: unknown provider %q", name)
	}
}
