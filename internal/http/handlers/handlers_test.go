package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/salesfusion/internal/conversation"
	"github.com/wolfman30/salesfusion/internal/qualification"
	"github.com/wolfman30/salesfusion/internal/session"
	"github.com/wolfman30/salesfusion/internal/sessionstore"
	"github.com/wolfman30/salesfusion/internal/transcripts"
	"github.com/wolfman30/salesfusion/pkg/logging"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	cases := []struct {
		name       string
		pinger     Pinger
		wantStatus int
		wantBody   string
	}{
		{"memory", nil, http.StatusOK, `"status":"ok"`},
		{"redis up", stubPinger{}, http.StatusOK, `"storage":"redis"`},
		{"redis down", stubPinger{err: errors.New("dial tcp: refused")}, http.StatusServiceUnavailable, `"status":"degraded"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			storage := "redis"
			if tc.pinger == nil {
				storage = "memory"
			}
			rec := httptest.NewRecorder()
			NewHealthHandler(storage, tc.pinger).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.wantBody)
		})
	}
}

func newDebugRouter(t *testing.T) (http.Handler, *session.Service, *transcripts.Store) {
	t.Helper()
	machine, err := qualification.NewMachine(qualification.BANTSchema())
	require.NoError(t, err)
	kv := sessionstore.New(sessionstore.NewMemoryBackend(), sessionstore.WithLogger(logging.Discard()))
	store := transcripts.NewStore(kv, transcripts.WithLogger(logging.Discard()))
	svc := session.NewService(machine, store, session.WithLogger(logging.Discard()))

	h := NewDebugHandler(svc, store, DebugSnapshot{Schema: machine.Schema(), Window: 10, StorageBackend: "memory"}, logging.Discard())
	r := chi.NewRouter()
	r.Route("/debug", h.Routes)
	return r, svc, store
}

func TestDebugHandler_SessionsAndRescore(t *testing.T) {
	r, svc, _ := newDebugRouter(t)
	ctx := context.Background()
	conv, err := svc.Start(ctx, conversation.ProspectInfo{Name: "Dana Lee"})
	require.NoError(t, err)
	_, err = svc.HandleMessage(ctx, conv.SessionID, "our budget is approved")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/sessions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Sessions []session.Info `json:"sessions"`
		Count    int            `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, 20, list.Sessions[0].Score)
	assert.Equal(t, "Dana Lee", list.Sessions[0].Prospect)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/debug/sessions/"+conv.SessionID+"/rescore", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var st qualification.Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	assert.Equal(t, 20, st.Score)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/debug/sessions/nope/rescore", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDebugHandler_ConfigAndClear(t *testing.T) {
	r, svc, store := newDebugRouter(t)
	ctx := context.Background()
	conv, err := svc.Start(ctx, conversation.ProspectInfo{})
	require.NoError(t, err)
	_, err = svc.End(ctx, conv.SessionID)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/config", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"storageBackend":"memory"`)
	assert.Contains(t, rec.Body.String(), `"id":"bant"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/summaries", nil))
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/debug/transcripts", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, store.List(ctx))
}
