package recalc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/chainrisk/engine/assess"
	"github.com/WessleyAI/chainrisk/engine/domain"
	"github.com/WessleyAI/chainrisk/engine/priority"
	"github.com/WessleyAI/chainrisk/engine/redundancy"
	"github.com/WessleyAI/chainrisk/pkg/metrics"
	"github.com/WessleyAI/chainrisk/pkg/natsutil"
)

const (
	// SubjectRiskEvents carries incoming risk events.
	SubjectRiskEvents = "chainrisk.events.risk"
	// SubjectDLQ receives events that fail validation.
	SubjectDLQ = "chainrisk.events.risk.dlq"
	// SubjectRecalcCompleted receives one Report per batch.
	SubjectRecalcCompleted = "chainrisk.recalc.completed"
	// SubjectImpactScored receives the impact and priority of each event.
	SubjectImpactScored = "chainrisk.impact.scored"
	// SubjectAlerts receives events selected by the alert policy.
	SubjectAlerts = "chainrisk.alerts"
	// DefaultQueue is the queue group shared by coordinator replicas.
	DefaultQueue = "chainrisk-recalc"
)

// Event outcomes recorded in metrics.
const (
	outcomeInvalid      = "invalid"
	outcomeRecalculated = "recalculated"
	outcomeFailed       = "failed"
)

// Assessor scores a risk event end to end. *assess.Pipeline implements it.
type Assessor interface {
	Assess(ctx context.Context, event domain.RiskEvent) (assess.Assessment, error)
}

// ConsumerDeps wires a Consumer. Assessor and Policy are optional.
type ConsumerDeps struct {
	Coordinator *Coordinator
	Publisher   natsutil.Publisher
	Assessor    Assessor
	Policy      *priority.Policy
	Metrics     *metrics.Registry
	Logger      *slog.Logger
}

// ImpactScored is published for every assessed event.
type ImpactScored struct {
	EventID    string                 `json:"event_id"`
	Score      domain.ImpactScore     `json:"impact_score"`
	Priority   domain.PrioritizedRisk `json:"priority"`
	Products   []string               `json:"affected_products"`
	Redundancy redundancy.Summary     `json:"redundancy"`
}

// Alert is published when the alert policy matches an event.
type Alert struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Severity      domain.Severity `json:"severity"`
	Location      string          `json:"location"`
	PriorityScore float64         `json:"priority_score"`
	ImpactScore   float64         `json:"impact_score"`
	Products      []string        `json:"affected_products"`
	RaisedAt      time.Time       `json:"raised_at"`
}

type dlqMessage struct {
	Event domain.RiskEvent `json:"event"`
	Error string           `json:"error"`
}

// Consumer turns risk events from NATS into recalculation batches.
type Consumer struct {
	deps   ConsumerDeps
	logger *slog.Logger
}

// NewConsumer validates deps and creates a Consumer.
func NewConsumer(deps ConsumerDeps) (*Consumer, error) {
	if deps.Coordinator == nil {
		return nil, domain.NewConfigurationError("consumer.coordinator", "required")
	}
	if deps.Publisher == nil {
		return nil, domain.NewConfigurationError("consumer.publisher", "required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{deps: deps, logger: logger}, nil
}

// StartConsumer subscribes a Consumer to SubjectRiskEvents in queue group
// queue, publishing on nc.
func StartConsumer(nc *nats.Conn, queue string, deps ConsumerDeps) (*nats.Subscription, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	if deps.Publisher == nil {
		deps.Publisher = nc
	}
	c, err := NewConsumer(deps)
	if err != nil {
		return nil, err
	}
	sub, err := natsutil.SubscribeQueue[domain.RiskEvent](nc, SubjectRiskEvents, queue, c.Handle)
	if err != nil {
		return nil, fmt.Errorf("recalc: subscribe %s: %w", SubjectRiskEvents, err)
	}
	c.logger.Info("recalc consumer started", "subject", SubjectRiskEvents, "queue", queue)
	return sub, nil
}

// Handle processes one risk event: recalculate, then assess and alert.
func (c *Consumer) Handle(ctx context.Context, event domain.RiskEvent) error {
	if err := domain.ValidateRiskEvent(event); err != nil {
		c.deps.Metrics.RecordEvent(outcomeInvalid)
		c.logger.WarnContext(ctx, "invalid risk event", "event_id", event.ID, "error", err)
		if perr := natsutil.Publish(ctx, c.deps.Publisher, SubjectDLQ, dlqMessage{Event: event, Error: err.Error()}); perr != nil {
			return fmt.Errorf("recalc: dlq publish: %w", perr)
		}
		return nil
	}

	rep, recalcErr := c.deps.Coordinator.Recalculate(ctx, event)
	if recalcErr != nil {
		c.deps.Metrics.RecordEvent(outcomeFailed)
	} else {
		c.deps.Metrics.RecordEvent(outcomeRecalculated)
	}
	if err := natsutil.Publish(ctx, c.deps.Publisher, SubjectRecalcCompleted, rep); err != nil {
		return errors.Join(recalcErr, fmt.Errorf("recalc: publish report: %w", err))
	}

	return errors.Join(recalcErr, c.assess(ctx, event))
}

func (c *Consumer) assess(ctx context.Context, event domain.RiskEvent) error {
	if c.deps.Assessor == nil {
		return nil
	}
	a, err := c.deps.Assessor.Assess(ctx, event)
	if err != nil {
		return fmt.Errorf("recalc: %w", err)
	}
	scored := ImpactScored{
		EventID:    event.ID,
		Score:      a.Score,
		Priority:   a.Priority,
		Products:   a.Products(),
		Redundancy: a.Summary,
	}
	if err := natsutil.Publish(ctx, c.deps.Publisher, SubjectImpactScored, scored); err != nil {
		return fmt.Errorf("recalc: publish impact: %w", err)
	}

	if c.deps.Policy == nil || !c.deps.Policy.Match(a.Priority) {
		return nil
	}
	alert := Alert{
		EventID:       event.ID,
		EventType:     event.EventType,
		Severity:      event.Severity,
		Location:      event.Location,
		PriorityScore: a.Priority.PriorityScore,
		ImpactScore:   a.Score.OverallScore,
		Products:      scored.Products,
		RaisedAt:      time.Now().UTC(),
	}
	if err := natsutil.Publish(ctx, c.deps.Publisher, SubjectAlerts, alert); err != nil {
		return fmt.Errorf("recalc: publish alert: %w", err)
	}
	c.deps.Metrics.RecordAlerts(1)
	c.logger.InfoContext(ctx, "alert raised", "event_id", event.ID, "priority_score", a.Priority.PriorityScore)
	return nil
}
