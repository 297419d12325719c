package qualification

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/salesfusion/pkg/logging"
)

const maxEvidencePerCriterion = 5

// StateError reports an internal invariant violation.
type StateError struct {
	Op     string
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("qualification: %s: %s", e.Op, e.Reason)
}

// Update describes one recompute cycle. PreviousScore is captured before the
// criteria change.
type Update struct {
	Previous      Status
	Current       Status
	PreviousScore int
	Score         int
	Delta         int
	BecameReady   bool
	LostReady     bool
	Changed       []string
}

// Machine applies detections to a Status. Criteria move from unknown to
// qualified or unqualified and never back to unknown; a later detection
// overwrites an earlier one.
type Machine struct {
	schema   Schema
	detector *Detector
	scorer   Scorer
	now      func() time.Time
	logger   *logging.Logger
	tracer   trace.Tracer
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithClock overrides the time source used for LastUpdated.
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithWindow sets how many recent messages are scanned.
func WithWindow(window int) MachineOption {
	return func(m *Machine) {
		m.detector = NewDetector(m.schema, window, m.logger)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) MachineOption {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
			m.detector.logger = logger
		}
	}
}

// NewMachine validates schema and picks the scorer for its strategy.
func NewMachine(schema Schema, opts ...MachineOption) (*Machine, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	scorer, err := ScorerFor(schema.Strategy)
	if err != nil {
		return nil, err
	}
	logger := logging.Default()
	m := &Machine{
		schema:   schema,
		scorer:   scorer,
		now:      time.Now,
		logger:   logger,
		detector: NewDetector(schema, DefaultWindow, logger),
		tracer:   otel.Tracer("salesfusion.internal.qualification"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if warn := schema.WeightWarning(); warn != "" {
		m.logger.Warn("qualification: schema weights", "schema_id", schema.ID, "warning", warn)
	}
	return m, nil
}

// Schema returns the active schema.
func (m *Machine) Schema() Schema { return m.schema }

// Detector returns the signal detector bound to the schema.
func (m *Machine) Detector() *Detector { return m.detector }

// Scorer returns the active scorer.
func (m *Machine) Scorer() Scorer { return m.scorer }

// Initial returns a status with every criterion unknown and a zero score.
func (m *Machine) Initial() Status {
	criteria := make(map[string]Criterion, len(m.schema.Criteria))
	for _, def := range m.schema.Criteria {
		criteria[def.ID] = Criterion{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			Weight:      def.Weight,
			Status:      StatusUnknown,
			Confidence:  0,
			Evidence:    []string{},
		}
	}
	st := Status{
		SchemaID:    m.schema.ID,
		Criteria:    criteria,
		LastUpdated: m.now().UTC(),
	}
	return m.rescore(st)
}

// Apply scans turns, merges the detections into a copy of current and
// recomputes score and readiness. current is never modified; the caller
// swaps in Update.Current as a whole.
func (m *Machine) Apply(ctx context.Context, current Status, turns []Turn) (Update, error) {
	_, span := m.tracer.Start(ctx, "qualification.apply")
	defer span.End()

	if current.SchemaID != m.schema.ID {
		err := &StateError{Op: "apply", Reason: fmt.Sprintf("status schema %q does not match active schema %q", current.SchemaID, m.schema.ID)}
		span.RecordError(err)
		return Update{}, err
	}

	next := m.ensureCriteria(current.Clone())
	detections := m.detector.Detect(turns)

	var changed []string
	for id, det := range detections {
		c := next.Criteria[id]
		if c.Status != det.Status {
			changed = append(changed, id)
			c.Evidence = nil
		}
		c.Status = det.Status
		c.Confidence = det.Confidence
		for _, ev := range det.Evidence {
			c.Evidence = appendUnique(c.Evidence, ev)
		}
		if len(c.Evidence) > maxEvidencePerCriterion {
			c.Evidence = c.Evidence[len(c.Evidence)-maxEvidencePerCriterion:]
		}
		next.Criteria[id] = c
	}
	sort.Strings(changed)

	next.LastUpdated = m.now().UTC()
	next = m.rescore(next)

	upd := Update{
		Previous:      current,
		Current:       next,
		PreviousScore: current.Score,
		Score:         next.Score,
		Delta:         next.Score - current.Score,
		BecameReady:   next.ReadyToConnect && !current.ReadyToConnect,
		LostReady:     !next.ReadyToConnect && current.ReadyToConnect,
		Changed:       changed,
	}
	span.SetAttributes(
		attribute.String("qualification.schema", m.schema.ID),
		attribute.Int("qualification.score", upd.Score),
		attribute.Int("qualification.delta", upd.Delta),
	)
	return upd, nil
}

// Rescore recomputes score, readiness and assessment for status without
// running detection.
func (m *Machine) Rescore(status Status) Status {
	return m.rescore(m.ensureCriteria(status.Clone()))
}

func (m *Machine) rescore(st Status) Status {
	st.Score = m.scorer.Score(m.schema, st.Criteria)
	st.ReadyToConnect = st.Score >= m.schema.ScoreThreshold
	assessment := Assess(m.schema, st)
	st.AIAssessment = &assessment
	return st
}

// ensureCriteria adds any schema criterion missing from st as unknown.
func (m *Machine) ensureCriteria(st Status) Status {
	if st.Criteria == nil {
		st.Criteria = make(map[string]Criterion, len(m.schema.Criteria))
	}
	for _, def := range m.schema.Criteria {
		if _, ok := st.Criteria[def.ID]; ok {
			continue
		}
		st.Criteria[def.ID] = Criterion{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			Weight:      def.Weight,
			Status:      StatusUnknown,
			Evidence:    []string{},
		}
	}
	return st
}
