package notify

import (
	"context"
	"sync"
	"time"

	"github.com/wolfman30/salesfusion/internal/conversation"
	"github.com/wolfman30/salesfusion/internal/observability/metrics"
	"github.com/wolfman30/salesfusion/pkg/logging"
)

const defaultDeliveryTimeout = 10 * time.Second

// Notification channels, used for metrics labels.
const (
	ChannelSlack = "slack"
	ChannelEmail = "email"
)

// ServiceConfig holds delivery settings.
type ServiceConfig struct {
	SalesTeamEmail  string
	DeliveryTimeout time.Duration
}

// Service turns qualification events into Slack alerts and handoff e-mails.
// The gate decision is taken synchronously, in update order; delivery runs in
// the background and failures are logged, never returned.
type Service struct {
	gate    *Gate
	alerts  AlertSender
	email   EmailSender
	cfg     ServiceConfig
	metrics *metrics.QualificationMetrics
	logger  *logging.Logger

	wg sync.WaitGroup
}

// NewService creates a notification service. alerts and email may be nil to
// disable the channel.
func NewService(gate *Gate, alerts AlertSender, email EmailSender, cfg ServiceConfig, m *metrics.QualificationMetrics, logger *logging.Logger) *Service {
	if gate == nil {
		gate = NewGate(GateConfig{SignificantChange: DefaultSignificantChange}, nil)
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = defaultDeliveryTimeout
	}
	return &Service{
		gate:    gate,
		alerts:  alerts,
		email:   email,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
	}
}

type delivery struct {
	alert *LeadAlert
	email *EmailMessage
}

// OnQualificationUpdate evaluates the gate and delivers in the background.
func (s *Service) OnQualificationUpdate(ctx context.Context, ev conversation.QualificationEvent) {
	d := s.plan(ev)
	if d.alert == nil && d.email == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.DeliveryTimeout)
		defer cancel()
		s.deliver(dctx, d)
	}()
}

// Dispatch evaluates the gate and delivers synchronously. It reports whether
// a Slack alert was sent successfully.
func (s *Service) Dispatch(ctx context.Context, ev conversation.QualificationEvent) bool {
	return s.deliver(ctx, s.plan(ev))
}

// OnSessionEnd drops gate memory for the session.
func (s *Service) OnSessionEnd(sessionID string) {
	s.gate.Forget(sessionID)
}

// Wait blocks until background deliveries finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) plan(ev conversation.QualificationEvent) delivery {
	conv := ev.Conversation
	if conv == nil {
		return delivery{}
	}
	upd := ev.Update
	alert := LeadAlert{
		SessionID:         conv.SessionID,
		ProspectName:      conv.Prospect.Name,
		Company:           conv.Prospect.Company,
		Email:             conv.Prospect.Email,
		Score:             upd.Score,
		PreviousScore:     upd.PreviousScore,
		QualifiedCriteria: ev.QualifiedCriteria,
		ReadyToConnect:    upd.Current.ReadyToConnect,
	}

	var d delivery
	decision := s.gate.Evaluate(conv.SessionID, upd.PreviousScore, upd.Score)
	if decision.Notify {
		alert.Reason = decision.Reason
		alert.Thresholds = decision.Thresholds
		if s.alerts != nil {
			a := alert
			d.alert = &a
		} else {
			s.metrics.ObserveNotification(ChannelSlack, "disabled")
		}
	} else if decision.Reason != ReasonNone {
		s.logger.Debug("notify: suppressed", "session_id", conv.SessionID, "reason", decision.Reason, "score", upd.Score)
		s.metrics.ObserveNotification(ChannelSlack, string(decision.Reason))
	}

	if upd.BecameReady && s.email != nil && s.cfg.SalesTeamEmail != "" {
		msg := BuildHandoffEmail(s.cfg.SalesTeamEmail, alert, conv.Transcript())
		d.email = &msg
	}
	return d
}

func (s *Service) deliver(ctx context.Context, d delivery) bool {
	sent := false
	if d.alert != nil {
		if err := s.alerts.SendAlert(ctx, *d.alert); err != nil {
			s.logger.Error("notify: slack alert failed", "error", err, "session_id", d.alert.SessionID)
			s.metrics.ObserveNotification(ChannelSlack, "failed")
		} else {
			s.metrics.ObserveNotification(ChannelSlack, "sent")
			sent = true
		}
	}
	if d.email != nil {
		if err := s.email.Send(ctx, *d.email); err != nil {
			s.logger.Error("notify: handoff email failed", "error", err, "to", d.email.To)
			s.metrics.ObserveNotification(ChannelEmail, "failed")
		} else {
			s.metrics.ObserveNotification(ChannelEmail, "sent")
		}
	}
	return sent
}
