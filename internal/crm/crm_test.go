package crm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/salesfusion/internal/conversation"
	"github.com/wolfman30/salesfusion/internal/qualification"
	"github.com/wolfman30/salesfusion/internal/sessionstore"
	"github.com/wolfman30/salesfusion/internal/transcripts"
	"github.com/wolfman30/salesfusion/pkg/logging"
)

var now = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

func storedConversation() transcripts.StoredConversation {
	conv := conversation.New("sess-1", conversation.ProspectInfo{Name: "Ari", Email: "ari@acme.io", Company: "Acme"},
		qualification.Status{
			SchemaID: "bant",
			Score:    78,
			Criteria: map[string]qualification.Criterion{
				qualification.CriterionBudget:    {ID: qualification.CriterionBudget, Status: qualification.StatusQualified},
				qualification.CriterionAuthority: {ID: qualification.CriterionAuthority, Status: qualification.StatusUnknown},
			},
			ReadyToConnect: true,
			AIAssessment:   &qualification.Assessment{Summary: "1 of 5 criteria qualified"},
		}, now)
	conv.Append(conversation.Message{Role: conversation.RoleUser, Content: "Budget is approved"}, now)
	return transcripts.StoredConversation{
		Conversation: *conv,
		Tags:         []transcripts.LeadTag{{ID: transcripts.TagHot, Name: "Hot Lead"}},
	}
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider("", nil)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = NewProvider("memory", nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderMemory, p.Name())

	_, err = NewProvider("postgres", nil)
	assert.Error(t, err)

	_, err = NewProvider("zoho", nil)
	assert.Error(t, err)

	for _, name := range []string{"salesforce", "HubSpot", "pipedrive"} {
		p, err := NewProvider(name, nil)
		require.NoError(t, err)
		require.NotNil(t, p)
	}
}

func TestUnimplementedProviders(t *testing.T) {
	ctx := context.Background()
	for _, name := range []string{ProviderSalesforce, ProviderHubSpot, ProviderPipedrive} {
		p := Unimplemented(name)
		res, err := p.CreateLead(ctx, LeadData{SessionID: "s", Email: "a@b.co"})
		assert.ErrorIs(t, err, ErrNotImplemented)
		assert.False(t, res.Success)
		assert.Empty(t, res.LeadID)

		res, err = p.AddNote(ctx, "lead", "text", NoteGeneral)
		assert.ErrorIs(t, err, ErrNotImplemented)
		assert.False(t, res.Success)
	}
}

func TestBuildLeadData(t *testing.T) {
	data := BuildLeadData(storedConversation(), qualification.BANTSchema())

	assert.Equal(t, "sess-1", data.SessionID)
	assert.Equal(t, "Ari", data.Name)
	assert.Equal(t, "Acme", data.Company)
	assert.Equal(t, 78, data.Score)
	assert.True(t, data.ReadyToConnect)
	assert.Equal(t, []string{"Budget"}, data.QualifiedCriteria)
	assert.Equal(t, "qualified", data.CriteriaStatus["budget"])
	assert.Equal(t, "unknown", data.CriteriaStatus["authority"])
	assert.Equal(t, []string{"hot"}, data.Tags)
	assert.Equal(t, "1 of 5 criteria qualified", data.Summary)
	assert.Contains(t, data.Transcript, "Prospect: Budget is approved")
	assert.Equal(t, LeadSource, data.Source)

	note := data.QualificationNote()
	assert.Contains(t, note, "Qualification score: 78/100")
	assert.Contains(t, note, "- authority: unknown\n- budget: qualified\n")
}

func TestLeadData_Validate(t *testing.T) {
	assert.ErrorIs(t, LeadData{}.Validate(), ErrInvalidLead)
	assert.ErrorIs(t, LeadData{SessionID: "s"}.Validate(), ErrInvalidLead)
	assert.NoError(t, LeadData{SessionID: "s", Name: "Ari"}.Validate())
}

func TestMemoryProvider(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()

	_, err := p.CreateLead(ctx, LeadData{})
	assert.ErrorIs(t, err, ErrInvalidLead)

	res, err := p.CreateLead(ctx, LeadData{SessionID: "s1", Name: "Ari", Score: 50})
	require.NoError(t, err)
	require.True(t, res.Success)

	again, err := p.CreateLead(ctx, LeadData{SessionID: "s1", Name: "Ari", Score: 80})
	require.NoError(t, err)
	assert.Equal(t, res.LeadID, again.LeadID)

	_, err = p.AddNote(ctx, res.LeadID, "hello", NoteTranscript)
	require.NoError(t, err)
	_, err = p.AddNote(ctx, "missing", "hello", NoteTranscript)
	assert.ErrorIs(t, err, ErrLeadNotFound)

	lead, err := p.GetLead(ctx, res.LeadID)
	require.NoError(t, err)
	assert.Equal(t, 80, lead.Score)
	require.Len(t, lead.Notes, 1)
	assert.Equal(t, NoteTranscript, lead.Notes[0].Type)
}

func TestPostgresProvider_CreateLead(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	p := newPostgresProviderWithQuerier(mock)
	leadID := uuid.New()
	data := BuildLeadData(storedConversation(), qualification.BANTSchema())

	mock.ExpectQuery("INSERT INTO crm_leads").
		WithArgs(pgxmock.AnyArg(), "sess-1", "Ari", "ari@acme.io", "Acme", "", "", 78, true,
			pgxmock.AnyArg(), pgxmock.AnyArg(), "1 of 5 criteria qualified", LeadSource).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(leadID))

	res, err := p.CreateLead(context.Background(), data)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, leadID.String(), res.LeadID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresProvider_CreateLeadError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	p := newPostgresProviderWithQuerier(mock)
	cause := errors.New("connection reset")
	mock.ExpectQuery("INSERT INTO crm_leads").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(),
		).
		WillReturnError(cause)

	res, err := p.CreateLead(context.Background(), LeadData{SessionID: "s", Email: "a@b.co"})
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresProvider_AddNote(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	p := newPostgresProviderWithQuerier(mock)
	leadID := uuid.New()

	mock.ExpectExec("INSERT INTO crm_notes").
		WithArgs(pgxmock.AnyArg(), leadID, "transcript", "body").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	res, err := p.AddNote(context.Background(), leadID.String(), "body", NoteTranscript)
	require.NoError(t, err)
	assert.True(t, res.Success)

	mock.ExpectExec("INSERT INTO crm_notes").
		WithArgs(pgxmock.AnyArg(), leadID, "note", "body").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	_, err = p.AddNote(context.Background(), leadID.String(), "body", NoteGeneral)
	assert.ErrorIs(t, err, ErrLeadNotFound)

	_, err = p.AddNote(context.Background(), "not-a-uuid", "body", NoteGeneral)
	assert.ErrorIs(t, err, ErrLeadNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresProvider_GetLead(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	p := newPostgresProviderWithQuerier(mock)
	leadID := uuid.New()
	noteID := uuid.New()

	mock.ExpectQuery("SELECT id, session_id").
		WithArgs(leadID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "session_id", "name", "email", "company", "phone", "title", "score", "ready_to_connect",
			"qualified_criteria", "tags", "summary", "source", "created_at", "updated_at",
		}).AddRow(leadID, "sess-1", "Ari", "ari@acme.io", "Acme", "", "", 78, true,
			[]string{"Budget"}, []string{"hot"}, "", LeadSource, now, now))
	mock.ExpectQuery("SELECT id, note_type").
		WithArgs(leadID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "note_type", "body", "created_at"}).
			AddRow(noteID, "transcript", "hello", now))

	lead, err := p.GetLead(context.Background(), leadID.String())
	require.NoError(t, err)
	assert.Equal(t, leadID.String(), lead.ID)
	assert.Equal(t, []string{"Budget"}, lead.QualifiedCriteria)
	require.Len(t, lead.Notes, 1)
	assert.Equal(t, noteID.String(), lead.Notes[0].ID)
	assert.Equal(t, NoteTranscript, lead.Notes[0].Type)

	missing := uuid.New()
	mock.ExpectQuery("SELECT id, session_id").WithArgs(missing).WillReturnError(pgx.ErrNoRows)
	_, err = p.GetLead(context.Background(), missing.String())
	assert.ErrorIs(t, err, ErrLeadNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func newTranscriptStore(t *testing.T) *transcripts.Store {
	t.Helper()
	kv := sessionstore.New(sessionstore.NewMemoryBackend(), sessionstore.WithLogger(logging.Discard()))
	return transcripts.NewStore(kv, transcripts.WithLogger(logging.Discard()))
}

func TestSyncer(t *testing.T) {
	ctx := context.Background()
	store := newTranscriptStore(t)
	stored := storedConversation()
	store.Store(ctx, &stored.Conversation)

	provider := NewMemoryProvider()
	syncer := NewSyncer(provider, store, qualification.BANTSchema(), logging.Discard())

	res, err := syncer.Sync(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, res.Success)

	lead, err := provider.GetLead(ctx, res.LeadID)
	require.NoError(t, err)
	require.Len(t, lead.Notes, 2)
	assert.Equal(t, NoteTranscript, lead.Notes[0].Type)
	assert.Equal(t, NoteQualification, lead.Notes[1].Type)

	got, ok := store.Get(ctx, "sess-1")
	require.True(t, ok)
	assert.True(t, got.CRMSynced)
	assert.Equal(t, res.LeadID, got.CRMID)

	again, err := syncer.Sync(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, res.LeadID, again.LeadID)
	lead, _ = provider.GetLead(ctx, res.LeadID)
	assert.Len(t, lead.Notes, 2)

	_, err = syncer.Sync(ctx, "missing")
	assert.ErrorIs(t, err, transcripts.ErrNotFound)
}

func TestSyncer_ProviderErrors(t *testing.T) {
	ctx := context.Background()
	store := newTranscriptStore(t)
	stored := storedConversation()
	store.Store(ctx, &stored.Conversation)

	_, err := NewSyncer(nil, store, qualification.BANTSchema(), nil).Sync(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNoProvider)

	_, err = NewSyncer(Unimplemented(ProviderHubSpot), store, qualification.BANTSchema(), logging.Discard()).Sync(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotImplemented)
	got, _ := store.Get(ctx, "sess-1")
	assert.False(t, got.CRMSynced)
}

func TestHandler_GetLead(t *testing.T) {
	ctx := context.Background()
	provider := NewMemoryProvider()
	res, err := provider.CreateLead(ctx, LeadData{SessionID: "s1", Name: "Ari"})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Get("/admin/leads/{leadID}", NewHandler(provider, logging.Discard()).GetLead)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/leads/"+res.LeadID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var lead Lead
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lead))
	assert.Equal(t, "Ari", lead.Name)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/leads/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
