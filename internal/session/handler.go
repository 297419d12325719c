package session

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/salesfusion/internal/conversation"
	"github.com/wolfman30/salesfusion/pkg/logging"
)

const maxBodyBytes = 64 << 10

// Handler exposes the chat widget API.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

// NewHandler creates a session handler.
func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the session endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.Start)
	r.Route("/{sessionID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.End)
		r.Post("/messages", h.SendMessage)
		r.Put("/prospect", h.UpdateProspect)
		r.Post("/handoff", h.Handoff)
	})
}

type startRequest struct {
	Prospect conversation.ProspectInfo `json:"prospect"`
}

type messageRequest struct {
	Message string `json:"message"`
}

// Start handles POST /api/sessions.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decode(r, &req, true); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	conv, err := h.svc.Start(r.Context(), req.Prospect)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

// Get handles GET /api/sessions/{sessionID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	conv, err := h.svc.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// SendMessage handles POST /api/sessions/{sessionID}/messages.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decode(r, &req, false); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	res, err := h.svc.HandleMessage(r.Context(), chi.URLParam(r, "sessionID"), req.Message)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// UpdateProspect handles PUT /api/sessions/{sessionID}/prospect.
func (h *Handler) UpdateProspect(w http.ResponseWriter, r *http.Request) {
	var req conversation.ProspectInfo
	if err := decode(r, &req, false); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	conv, err := h.svc.UpdateProspect(r.Context(), chi.URLParam(r, "sessionID"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Handoff handles POST /api/sessions/{sessionID}/handoff.
func (h *Handler) Handoff(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.RequestHandoff(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// End handles DELETE /api/sessions/{sessionID}.
func (h *Handler) End(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.End(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Message, "field": verr.Field})
	case errors.Is(err, ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
	case errors.Is(err, ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "You're sending messages too quickly. Please wait a moment."})
	default:
		h.logger.Error("session request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Something went wrong. Please try again."})
	}
}

// decode reads a JSON body. An empty body is accepted when allowEmpty is set.
func decode(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
