package transcripts

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/salesfusion/pkg/logging"
)

// Handler serves read-only transcript endpoints.
type Handler struct {
	store  *Store
	logger *logging.Logger
}

// NewHandler creates a transcript handler.
func NewHandler(store *Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// ListResponse is returned by List.
type ListResponse struct {
	Conversations []StoredConversation `json:"conversations"`
	Count         int                  `json:"count"`
	Query         string               `json:"query,omitempty"`
}

// List handles GET /api/transcripts?q=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	convs := h.store.Search(r.Context(), q)
	writeJSON(w, http.StatusOK, ListResponse{Conversations: convs, Count: len(convs), Query: q})
}

// Analytics handles GET /api/transcripts/analytics.
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Analytics(r.Context()))
}

// Get handles GET /api/transcripts/{sessionID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	conv, ok := h.store.Get(r.Context(), sessionID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "transcript not found"})
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Summary handles GET /api/transcripts/{sessionID}/summary.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sum, ok := h.store.Summary(r.Context(), sessionID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "summary not found"})
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
