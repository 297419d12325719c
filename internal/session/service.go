// Package session runs chat sessions: it validates input, drives the
// qualification machine, calls the chat backend and persists transcripts.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/salesfusion/internal/chat"
	"github.com/wolfman30/salesfusion/internal/conversation"
	"github.com/wolfman30/salesfusion/internal/crm"
	"github.com/wolfman30/salesfusion/internal/observability/metrics"
	"github.com/wolfman30/salesfusion/internal/qualification"
	"github.com/wolfman30/salesfusion/internal/transcripts"
	"github.com/wolfman30/salesfusion/internal/validation"
	"github.com/wolfman30/salesfusion/pkg/logging"
)

// DefaultHistoryTurns is how many prior messages are sent to the backend.
const DefaultHistoryTurns = 10

// Responder produces assistant replies.
type Responder interface {
	Send(ctx context.Context, req chat.Request) (*chat.Response, error)
}

// UpdateObserver is told about every qualification recompute, in order.
type UpdateObserver interface {
	OnQualificationUpdate(ctx context.Context, ev conversation.QualificationEvent)
}

// EndObserver is told when a session ends.
type EndObserver interface {
	OnSessionEnd(sessionID string)
}

// CRMSyncer pushes a finished lead to the CRM.
type CRMSyncer interface {
	Enabled() bool
	Sync(ctx context.Context, sessionID string) (crm.Result, error)
}

type entry struct {
	mu   sync.Mutex
	conv *conversation.Conversation
}

// Service owns the active sessions of one process. Work on a single session
// is serialized; different sessions proceed in parallel.
type Service struct {
	machine     *qualification.Machine
	transcripts *transcripts.Store
	responder   Responder
	observers   []UpdateObserver
	crm         CRMSyncer
	limiter     *validation.RateLimiter
	metrics     *metrics.QualificationMetrics
	logger      *logging.Logger
	now         func() time.Time
	history     int
	tracer      trace.Tracer

	mu       sync.Mutex
	sessions map[string]*entry
}

// Option configures a Service.
type Option func(*Service)

// WithResponder sets the chat backend. Without one every reply is a
// canned fallback.
func WithResponder(r Responder) Option { return func(s *Service) { s.responder = r } }

// WithObservers registers qualification observers.
func WithObservers(obs ...UpdateObserver) Option {
	return func(s *Service) { s.observers = append(s.observers, obs...) }
}

// WithCRM sets the CRM syncer used on handoff.
func WithCRM(c CRMSyncer) Option { return func(s *Service) { s.crm = c } }

// WithRateLimiter limits messages per session.
func WithRateLimiter(l *validation.RateLimiter) Option { return func(s *Service) { s.limiter = l } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.QualificationMetrics) Option { return func(s *Service) { s.metrics = m } }

// WithHistoryTurns sets how many prior messages go to the backend.
func WithHistoryTurns(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.history = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires a session service.
func NewService(machine *qualification.Machine, store *transcripts.Store, opts ...Option) *Service {
	s := &Service{
		machine:     machine,
		transcripts: store,
		logger:      logging.Default(),
		now:         time.Now,
		history:     DefaultHistoryTurns,
		tracer:      otel.Tracer("salesfusion.internal.session"),
		sessions:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Machine returns the qualification machine in use.
func (s *Service) Machine() *qualification.Machine { return s.machine }

// Start opens a session. Prospect fields that are present must be valid.
func (s *Service) Start(ctx context.Context, prospect conversation.ProspectInfo) (*conversation.Conversation, error) {
	if err := validateProspect(prospect); err != nil {
		return nil, err
	}
	conv := conversation.New("", trimProspect(prospect), s.machine.Initial(), s.now().UTC())

	s.mu.Lock()
	s.sessions[conv.SessionID] = &entry{conv: conv}
	s.mu.Unlock()

	s.transcripts.Store(ctx, conv)
	s.logger.Info("session started", "session_id", conv.SessionID, "schema_id", s.machine.Schema().ID)
	return conv.Clone(), nil
}

// Get returns a snapshot of the session.
func (s *Service) Get(ctx context.Context, sessionID string) (*conversation.Conversation, error) {
	e, err := s.entry(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conv.Clone(), nil
}

// MessageResult is the outcome of one prospect message.
type MessageResult struct {
	UserMessage      conversation.Message `json:"userMessage"`
	AssistantMessage conversation.Message `json:"assistantMessage"`
	Qualification    qualification.Status `json:"qualification"`
	ReadyToConnect   bool                 `json:"readyToConnect"`
	ScoreDelta       int                  `json:"scoreDelta"`
	BecameReady      bool                 `json:"becameReady"`
	Fallback         bool                 `json:"fallback"`
	Error            string               `json:"error,omitempty"`
}

// HandleMessage runs one full turn: validate, append, qualify, notify,
// reply, persist.
func (s *Service) HandleMessage(ctx context.Context, sessionID, text string) (*MessageResult, error) {
	ctx, span := s.tracer.Start(ctx, "session.handle_message")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	if res := validation.ValidateMessage(text); !res.IsValid {
		s.logger.Debug("session: message rejected", "session_id", sessionID, "reason", res.Error)
		return nil, &ValidationError{Field: "message", Message: res.Error}
	}
	clean := validation.SanitizeInput(text, validation.DefaultSanitizeOptions())
	if clean == "" {
		return nil, &ValidationError{Field: "message", Message: validation.MsgEmptyMessage}
	}

	e, err := s.entry(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.limiter != nil && !s.limiter.IsAllowed(sessionID) {
		return nil, ErrRateLimited
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	conv := e.conv

	userMsg := conv.Append(conversation.Message{Role: conversation.RoleUser, Content: clean}, s.now().UTC())
	result := &MessageResult{UserMessage: userMsg}

	if s.machine.Detector().IsRelevant(clean) {
		s.qualify(ctx, conv, result)
	}

	reply, fallback, chatErr := s.reply(ctx, conv, clean)
	meta := map[string]string{conversation.MetaSource: conversation.SourceChatBackend}
	if fallback {
		meta[conversation.MetaSource] = conversation.SourceFallback
		if kind := chat.KindOf(chatErr); kind != "" {
			meta[conversation.MetaErrorKind] = string(kind)
		}
		result.Fallback = true
		if chatErr != nil {
			result.Error = chat.UserMessage(chatErr)
		}
	}
	result.AssistantMessage = conv.Append(conversation.Message{
		Role:     conversation.RoleAssistant,
		Content:  reply,
		Metadata: meta,
	}, s.now().UTC())

	s.transcripts.Store(ctx, conv)

	result.Qualification = conv.QualificationStatus.Clone()
	result.ReadyToConnect = conv.QualificationStatus.ReadyToConnect
	return result, nil
}

// qualify applies the machine and publishes the update. Failures are logged
// and leave the previous status in place so the chat continues.
func (s *Service) qualify(ctx context.Context, conv *conversation.Conversation, result *MessageResult) {
	schemaID := s.machine.Schema().ID
	upd, err := s.machine.Apply(ctx, conv.QualificationStatus, conv.Turns())
	if err != nil {
		s.logger.Error("session: qualification update failed", "session_id", conv.SessionID, "schema_id", schemaID, "error", err)
		return
	}

	conv.QualificationStatus = upd.Current
	conv.UpdatedAt = s.now().UTC()
	result.ScoreDelta = upd.Delta
	result.BecameReady = upd.BecameReady

	s.metrics.ObserveUpdate(schemaID, upd.Score, len(upd.Changed) > 0)
	if upd.BecameReady || upd.LostReady {
		s.metrics.ObserveReadyTransition(schemaID, upd.BecameReady)
	}
	s.logger.Info("qualification updated",
		"session_id", conv.SessionID,
		"score", upd.Score,
		"previous_score", upd.PreviousScore,
		"ready_to_connect", upd.Current.ReadyToConnect,
		"changed", upd.Changed,
	)

	if len(s.observers) == 0 {
		return
	}
	ev := conversation.QualificationEvent{
		Conversation:      conv.Clone(),
		Update:            upd,
		QualifiedCriteria: upd.Current.QualifiedCriteria(s.machine.Schema()),
	}
	for _, obs := range s.observers {
		obs.OnQualificationUpdate(ctx, ev)
	}
}

// reply asks the backend for the assistant message. It never fails; on any
// backend error the canned fallback is returned with the error.
func (s *Service) reply(ctx context.Context, conv *conversation.Conversation, text string) (string, bool, error) {
	if s.responder == nil {
		s.metrics.ObserveFallback()
		return chat.FallbackResponse(text), true, nil
	}

	status := conv.QualificationStatus
	req := chat.Request{
		Message:   text,
		SessionID: conv.SessionID,
		Context: chat.Context{
			Prospect:          conv.Prospect,
			Score:             status.Score,
			ReadyToConnect:    status.ReadyToConnect,
			QualifiedCriteria: status.QualifiedCriteria(s.machine.Schema()),
			History:           s.historyFor(conv),
		},
	}
	if status.AIAssessment != nil {
		req.Context.NextQuestions = status.AIAssessment.NextQuestions
	}

	start := time.Now()
	resp, err := s.responder.Send(ctx, req)
	s.metrics.ObserveChatLatency(time.Since(start).Seconds())
	if err != nil {
		kind := chat.KindOf(err)
		var ce *chat.Error
		if errors.As(err, &ce) && ce.Severe() {
			s.logger.Error("session: chat backend contract error", "session_id", conv.SessionID, "kind", kind, "error", err)
		} else {
			s.logger.Warn("session: chat backend unavailable, using fallback", "session_id", conv.SessionID, "kind", kind, "error", err)
		}
		if kind == "" {
			kind = chat.KindNetwork
		}
		s.metrics.ObserveChatError(string(kind))
		s.metrics.ObserveFallback()
		return chat.FallbackResponse(text), true, err
	}
	return resp.Response, false, nil
}

// historyFor returns the turns before the current message.
func (s *Service) historyFor(conv *conversation.Conversation) []chat.HistoryMessage {
	msgs := conv.Messages
	if len(msgs) > 0 {
		msgs = msgs[:len(msgs)-1]
	}
	if len(msgs) > s.history {
		msgs = msgs[len(msgs)-s.history:]
	}
	out := make([]chat.HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, chat.HistoryMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// UpdateProspect merges the non-empty fields of p into the session.
func (s *Service) UpdateProspect(ctx context.Context, sessionID string, p conversation.ProspectInfo) (*conversation.Conversation, error) {
	if err := validateProspect(p); err != nil {
		return nil, err
	}
	e, err := s.entry(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p = trimProspect(p)
	cur := &e.conv.Prospect
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&cur.Name, p.Name},
		{&cur.Email, p.Email},
		{&cur.Company, p.Company},
		{&cur.Phone, p.Phone},
		{&cur.Title, p.Title},
	} {
		if f.src != "" {
			*f.dst = f.src
		}
	}
	e.conv.UpdatedAt = s.now().UTC()
	s.transcripts.Store(ctx, e.conv)
	return e.conv.Clone(), nil
}

// HandoffResult reports a request to talk to sales.
type HandoffResult struct {
	SessionID      string      `json:"sessionId"`
	Score          int         `json:"score"`
	ReadyToConnect bool        `json:"readyToConnect"`
	CRM            *crm.Result `json:"crm,omitempty"`
}

// RequestHandoff records the prospect's request to talk to sales and syncs
// the lead to the CRM when one is configured. A name or e-mail is required.
// CRM failures are reported in the result, not as an error.
func (s *Service) RequestHandoff(ctx context.Context, sessionID string) (*HandoffResult, error) {
	e, err := s.entry(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	conv := e.conv
	if conv.Prospect.Email == "" && conv.Prospect.Name == "" {
		return nil, &ValidationError{Field: "email", Message: "Please share your name or email so our team can reach you"}
	}
	s.transcripts.Store(ctx, conv)

	out := &HandoffResult{
		SessionID:      sessionID,
		Score:          conv.QualificationStatus.Score,
		ReadyToConnect: conv.QualificationStatus.ReadyToConnect,
	}
	if s.crm == nil || !s.crm.Enabled() {
		return out, nil
	}
	res, err := s.crm.Sync(ctx, sessionID)
	if err != nil {
		s.logger.Warn("session: crm sync failed", "session_id", sessionID, "error", err)
		if res.Error == "" {
			res.Error = "CRM sync failed"
		}
	}
	out.CRM = &res
	return out, nil
}

// End closes the session, persists its final state and a summary.
func (s *Service) End(ctx context.Context, sessionID string) (transcripts.TranscriptSummary, error) {
	e, err := s.entry(ctx, sessionID)
	if err != nil {
		return transcripts.TranscriptSummary{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	stored := s.transcripts.Store(ctx, e.conv)
	sum := transcripts.BuildSummary(stored, s.machine.Schema(), s.now().UTC())
	s.transcripts.SaveSummary(ctx, sum)

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if s.limiter != nil {
		s.limiter.Reset(sessionID)
	}
	s.endObservers(sessionID)
	s.logger.Info("session ended", "session_id", sessionID, "score", sum.Score, "messages", sum.MessageCount)
	return sum, nil
}

// EvictIdle drops sessions untouched for longer than maxIdle from memory
// after persisting their latest state. Evicted sessions are not ended: the
// next request resumes them from the transcript store. It returns the
// number of sessions evicted.
func (s *Service) EvictIdle(ctx context.Context, maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	cutoff := s.now().Add(-maxIdle)

	s.mu.Lock()
	candidates := make(map[string]*entry, len(s.sessions))
	for id, e := range s.sessions {
		candidates[id] = e
	}
	s.mu.Unlock()

	evicted := 0
	for id, e := range candidates {
		e.mu.Lock()
		if !e.conv.UpdatedAt.Before(cutoff) {
			e.mu.Unlock()
			continue
		}
		s.transcripts.Store(ctx, e.conv)
		s.mu.Lock()
		if s.sessions[id] == e {
			delete(s.sessions, id)
			evicted++
		}
		s.mu.Unlock()
		e.mu.Unlock()

		if s.limiter != nil {
			s.limiter.Reset(id)
		}
		s.endObservers(id)
	}
	if evicted > 0 {
		s.logger.Info("evicted idle sessions", "count", evicted, "max_idle", maxIdle.String())
	}
	return evicted
}

func (s *Service) endObservers(sessionID string) {
	for _, obs := range s.observers {
		if eo, ok := obs.(EndObserver); ok {
			eo.OnSessionEnd(sessionID)
		}
	}
}

// Rescore recomputes score and readiness without running detection.
func (s *Service) Rescore(ctx context.Context, sessionID string) (qualification.Status, error) {
	e, err := s.entry(ctx, sessionID)
	if err != nil {
		return qualification.Status{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conv.QualificationStatus.SchemaID != s.machine.Schema().ID {
		err := &StateError{Op: "rescore", SessionID: sessionID, Err: errors.New("session schema differs from active schema")}
		s.logger.Error("session: rescore refused", "session_id", sessionID, "error", err)
		return qualification.Status{}, err
	}
	e.conv.QualificationStatus = s.machine.Rescore(e.conv.QualificationStatus)
	e.conv.UpdatedAt = s.now().UTC()
	s.transcripts.Store(ctx, e.conv)
	return e.conv.QualificationStatus.Clone(), nil
}

// Info summarizes an active session.
type Info struct {
	SessionID      string    `json:"sessionId"`
	Prospect       string    `json:"prospect,omitempty"`
	Score          int       `json:"score"`
	ReadyToConnect bool      `json:"readyToConnect"`
	Messages       int       `json:"messages"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Active lists sessions held in memory, most recently updated first.
func (s *Service) Active() []Info {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	out := make([]Info, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, Info{
			SessionID:      e.conv.SessionID,
			Prospect:       e.conv.Prospect.Name,
			Score:          e.conv.QualificationStatus.Score,
			ReadyToConnect: e.conv.QualificationStatus.ReadyToConnect,
			Messages:       len(e.conv.Messages),
			UpdatedAt:      e.conv.UpdatedAt,
		})
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// entry finds an active session, resuming it from the transcript store
// when this process has not seen it. Ended sessions are not resumed.
func (s *Service) entry(ctx context.Context, sessionID string) (*entry, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if ok {
		return e, nil
	}

	stored, found := s.transcripts.Get(ctx, sessionID)
	if !found {
		return nil, ErrSessionNotFound
	}
	if _, ended := s.transcripts.Summary(ctx, sessionID); ended {
		return nil, ErrSessionNotFound
	}
	conv := stored.Conversation.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[sessionID]; ok {
		return e, nil
	}
	e = &entry{conv: conv}
	s.sessions[sessionID] = e
	s.logger.Info("session resumed from store", "session_id", sessionID)
	return e, nil
}
