package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/salesfusion/internal/notify"
	"github.com/wolfman30/salesfusion/internal/qualification"
	"github.com/wolfman30/salesfusion/internal/session"
	"github.com/wolfman30/salesfusion/internal/transcripts"
	"github.com/wolfman30/salesfusion/pkg/logging"
)

// DebugSnapshot is the effective runtime configuration shown to operators.
// Secrets never appear here.
type DebugSnapshot struct {
	Schema         qualification.Schema `json:"schema"`
	WeightWarning  string               `json:"weightWarning,omitempty"`
	Window         int                  `json:"window"`
	HotLead        int                  `json:"hotLead"`
	WarmLead       int                  `json:"warmLead"`
	Notify         notify.GateConfig    `json:"notify"`
	StorageBackend string               `json:"storageBackend"`
	EmailProvider  string               `json:"emailProvider"`
	CRMProvider    string               `json:"crmProvider"`
	SlackEnabled   bool                 `json:"slackEnabled"`
	ChatBackend    bool                 `json:"chatBackend"`
}

// DebugHandler exposes session internals. Mount it behind AdminJWT.
type DebugHandler struct {
	sessions    *session.Service
	transcripts *transcripts.Store
	snapshot    DebugSnapshot
	logger      *logging.Logger
}

// NewDebugHandler creates a debug handler.
func NewDebugHandler(sessions *session.Service, store *transcripts.Store, snapshot DebugSnapshot, logger *logging.Logger) *DebugHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &DebugHandler{sessions: sessions, transcripts: store, snapshot: snapshot, logger: logger}
}

// Routes mounts the debug endpoints on r.
func (h *DebugHandler) Routes(r chi.Router) {
	r.Get("/config", h.Config)
	r.Get("/sessions", h.ListSessions)
	r.Post("/sessions/{sessionID}/rescore", h.Rescore)
	r.Get("/summaries", h.ListSummaries)
	r.Delete("/transcripts", h.ClearTranscripts)
}

// Config returns the effective configuration.
// GET /debug/config
func (h *DebugHandler) Config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snapshot)
}

// ListSessions returns the sessions active in this process.
// GET /debug/sessions
func (h *DebugHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	active := h.sessions.Active()
	writeJSON(w, http.StatusOK, map[string]any{"sessions": active, "count": len(active)})
}

// Rescore recomputes a session's score from its criteria.
// POST /debug/sessions/{sessionID}/rescore
func (h *DebugHandler) Rescore(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	st, err := h.sessions.Rescore(r.Context(), sessionID)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		jsonError(w, "session not found", http.StatusNotFound)
		return
	case err != nil:
		h.logger.Error("debug: rescore failed", "session_id", sessionID, "error", err)
		jsonError(w, "rescore failed", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ListSummaries returns every stored session summary.
// GET /debug/summaries
func (h *DebugHandler) ListSummaries(w http.ResponseWriter, r *http.Request) {
	sums := h.transcripts.Summaries(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"summaries": sums, "count": len(sums)})
}

// ClearTranscripts wipes the transcript store.
// DELETE /debug/transcripts
func (h *DebugHandler) ClearTranscripts(w http.ResponseWriter, r *http.Request) {
	h.transcripts.Clear(r.Context())
	claims := "unknown"
	if c, ok := adminSubject(r); ok {
		claims = c
	}
	h.logger.Warn("debug: transcripts cleared", "by", claims)
	w.WriteHeader(http.StatusNoContent)
}
