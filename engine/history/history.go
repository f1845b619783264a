// Package history keeps an append-only log of resilience scores per entity
// and derives trends from it.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/WessleyAI/chainrisk/engine/domain"
)

// StableRate is the weekly rate of change below which a trend is stable.
const StableRate = 1.0

const week = 7 * 24 * time.Hour

// Backend persists history records. Implementations must be safe for
// concurrent use; appends for different entities never conflict.
type Backend interface {
	Append(ctx context.Context, rec domain.HistoricalResilienceScore) error
	// Since returns the entity's records at or after since, most recent first.
	Since(ctx context.Context, entityID string, since time.Time) ([]domain.HistoricalResilienceScore, error)
}

// Tracker records scores and computes trends over a Backend.
type Tracker struct {
	backend Backend
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source used for timestamps and windows.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the tracker's logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTracker creates a Tracker. A nil backend uses a fresh MemoryBackend.
func NewTracker(b Backend, opts ...Option) *Tracker {
	if b == nil {
		b = NewMemoryBackend()
	}
	t := &Tracker{backend: b, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordScore appends a score for entityID stamped with the current time.
func (t *Tracker) RecordScore(ctx context.Context, entityID string, score float64, factors map[string]float64) (domain.HistoricalResilienceScore, error) {
	rec := domain.HistoricalResilienceScore{
		ID:         uuid.NewString(),
		EntityID:   entityID,
		Score:      score,
		RecordedAt: t.now().UTC(),
		Factors:    factors,
	}
	if err := t.backend.Append(ctx, rec); err != nil {
		return domain.HistoricalResilienceScore{}, fmt.Errorf("history: record %s: %w", entityID, err)
	}
	t.logger.DebugContext(ctx, "resilience score recorded", "entity_id", entityID, "score", score)
	return rec, nil
}

// Record appends a ResilienceScore with its factor breakdown.
func (t *Tracker) Record(ctx context.Context, s domain.ResilienceScore) (domain.HistoricalResilienceScore, error) {
	return t.RecordScore(ctx, s.EntityID, s.Score, FactorMap(s))
}

// GetHistory returns the records of the last days days, most recent first.
// days <= 0 returns the whole history.
func (t *Tracker) GetHistory(ctx context.Context, entityID string, days int) ([]domain.HistoricalResilienceScore, error) {
	var since time.Time
	if days > 0 {
		since = t.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	}
	recs, err := t.backend.Since(ctx, entityID, since)
	if err != nil {
		return nil, fmt.Errorf("history: %s: %w", entityID, err)
	}
	return recs, nil
}

// CalculateTrend compares the oldest and newest scores in the window. It
// returns nil when fewer than two records exist.
func (t *Tracker) CalculateTrend(ctx context.Context, entityID string, days int) (*domain.Trend, error) {
	recs, err := t.GetHistory(ctx, entityID, days)
	if err != nil {
		return nil, err
	}
	return TrendOf(entityID, recs), nil
}

// TrendOf computes a trend from records ordered most recent first.
func TrendOf(entityID string, recs []domain.HistoricalResilienceScore) *domain.Trend {
	if len(recs) < 2 {
		return nil
	}
	newest, oldest := recs[0], recs[len(recs)-1]
	tr := &domain.Trend{EntityID: entityID, Direction: domain.TrendStable, Points: len(recs)}

	elapsed := newest.RecordedAt.Sub(oldest.RecordedAt)
	if elapsed <= 0 {
		return tr
	}
	rate := (newest.Score - oldest.Score) / (float64(elapsed) / float64(week))
	tr.RatePerWeek = math.Round(rate*100) / 100
	switch {
	case math.Abs(rate) < StableRate:
	case rate > 0:
		tr.Direction = domain.TrendImproving
	default:
		tr.Direction = domain.TrendDeclining
	}
	return tr
}

// FactorMap flattens a score's factor breakdown for storage.
func FactorMap(s domain.ResilienceScore) map[string]float64 {
	f := s.Factors
	return map[string]float64{
		"supplier_count":    float64(f.SupplierCount),
		"country_count":     float64(f.CountryCount),
		"redundancy_factor": f.RedundancyFactor,
		"diversity_score":   f.DiversityScore,
		"reliability_score": f.ReliabilityScore,
		"lead_time_buffer":  f.LeadTimeBuffer,
		"spof_penalty":      f.SPOFPenalty,
	}
}
