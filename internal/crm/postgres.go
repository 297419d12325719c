package crm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresProvider stores leads in the crm_leads and crm_notes tables.
type PostgresProvider struct {
	db querier
}

// NewPostgresProvider initializes a provider backed by pgxpool.
func NewPostgresProvider(pool *pgxpool.Pool) *PostgresProvider {
	if pool == nil {
		panic("crm: pgx pool required")
	}
	return &PostgresProvider{db: pool}
}

func newPostgresProviderWithQuerier(db querier) *PostgresProvider {
	if db == nil {
		panic("crm: querier required")
	}
	return &PostgresProvider{db: db}
}

func (p *PostgresProvider) Name() string { return ProviderPostgres }

// CreateLead upserts the lead for data.SessionID and returns its ID.
func (p *PostgresProvider) CreateLead(ctx context.Context, data LeadData) (Result, error) {
	if err := data.Validate(); err != nil {
		return Result{Error: err.Error()}, err
	}

	query := `
		INSERT INTO crm_leads (id, session_id, name, email, company, phone, title, score, ready_to_connect, qualified_criteria, tags, summary, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (session_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			company = EXCLUDED.company,
			phone = EXCLUDED.phone,
			title = EXCLUDED.title,
			score = EXCLUDED.score,
			ready_to_connect = EXCLUDED.ready_to_connect,
			qualified_criteria = EXCLUDED.qualified_criteria,
			tags = EXCLUDED.tags,
			summary = EXCLUDED.summary,
			updated_at = now()
		RETURNING id
	`
	var id uuid.UUID
	if err := p.db.QueryRow(ctx, query,
		uuid.New(),
		data.SessionID,
		data.Name,
		data.Email,
		data.Company,
		data.Phone,
		data.Title,
		data.Score,
		data.ReadyToConnect,
		data.QualifiedCriteria,
		data.Tags,
		data.Summary,
		data.Source,
	).Scan(&id); err != nil {
		return Result{Error: "lead insert failed"}, fmt.Errorf("crm: insert lead: %w", err)
	}
	return Result{Success: true, LeadID: id.String()}, nil
}

// AddNote inserts a note for an existing lead.
func (p *PostgresProvider) AddNote(ctx context.Context, leadID, text string, noteType NoteType) (Result, error) {
	id, err := uuid.Parse(leadID)
	if err != nil {
		return Result{Error: ErrLeadNotFound.Error()}, ErrLeadNotFound
	}
	query := `
		INSERT INTO crm_notes (id, lead_id, note_type, body)
		SELECT $1, id, $3, $4 FROM crm_leads WHERE id = $2
	`
	ct, err := p.db.Exec(ctx, query, uuid.New(), id, string(noteType), text)
	if err != nil {
		return Result{Error: "note insert failed"}, fmt.Errorf("crm: insert note: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return Result{Error: ErrLeadNotFound.Error()}, ErrLeadNotFound
	}
	return Result{Success: true, LeadID: leadID}, nil
}

// GetLead fetches a lead with its notes.
func (p *PostgresProvider) GetLead(ctx context.Context, leadID string) (*Lead, error) {
	id, err := uuid.Parse(leadID)
	if err != nil {
		return nil, ErrLeadNotFound
	}

	query := `
		SELECT id, session_id, name, email, company, phone, title, score, ready_to_connect,
		       qualified_criteria, tags, summary, source, created_at, updated_at
		FROM crm_leads
		WHERE id = $1
	`
	var (
		lead  Lead
		rowID uuid.UUID
	)
	if err := p.db.QueryRow(ctx, query, id).Scan(
		&rowID,
		&lead.SessionID,
		&lead.Name,
		&lead.Email,
		&lead.Company,
		&lead.Phone,
		&lead.Title,
		&lead.Score,
		&lead.ReadyToConnect,
		&lead.QualifiedCriteria,
		&lead.Tags,
		&lead.Summary,
		&lead.Source,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("crm: select lead: %w", err)
	}
	lead.ID = rowID.String()

	rows, err := p.db.Query(ctx, `
		SELECT id, note_type, body, created_at
		FROM crm_notes
		WHERE lead_id = $1
		ORDER BY created_at
	`, id)
	if err != nil {
		return nil, fmt.Errorf("crm: select notes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			note     Note
			noteID   uuid.UUID
			noteType string
		)
		if err := rows.Scan(&noteID, &noteType, &note.Body, &note.CreatedAt); err != nil {
			return nil, fmt.Errorf("crm: scan note: %w", err)
		}
		note.ID = noteID.String()
		note.LeadID = lead.ID
		note.Type = NoteType(noteType)
		lead.Notes = append(lead.Notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("crm: iterate notes: %w", err)
	}
	return &lead, nil
}
