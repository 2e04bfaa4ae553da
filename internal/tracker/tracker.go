package tracker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/covwatch/covwatch/internal/alert"
	"github.com/covwatch/covwatch/internal/domain"
	"github.com/covwatch/covwatch/internal/notify"
	"github.com/covwatch/covwatch/internal/repo"
	"github.com/covwatch/covwatch/internal/trend"
)

// Tracker drives the ingestion pipeline: validate, persist, re-evaluate
// alert rules, hand fired events to the dispatcher asynchronously. It also
// carries the read-side query surface used by the HTTP layer.
type Tracker struct {
	samples  repo.SampleStore
	analyzer *trend.Analyzer
	eval     *alert.Evaluator
	disp     *notify.Dispatcher
	log      *zap.Logger

	now func() time.Time // swapped in tests
}

func New(samples repo.SampleStore, analyzer *trend.Analyzer, eval *alert.Evaluator, disp *notify.Dispatcher, log *zap.Logger) *Tracker {
	return &Tracker{
		samples:  samples,
		analyzer: analyzer,
		eval:     eval,
		disp:     disp,
		log:      log,
		now:      time.Now,
	}
}

// Record runs the full pipeline for one submitted sample. Validation and
// storage failures are returned to the caller; evaluation and delivery
// failures are logged only, the sample is already durable by then.
func (t *Tracker) Record(ctx context.Context, in domain.SampleInput) (*domain.CoverageSample, []alert.Event, error) {
	s, err := domain.NewSample(in, t.now())
	if err != nil {
		return nil, nil, err
	}

	// record and evaluate stay under one scope lock so a racing submission
	// cannot be evaluated out of durable record order
	events, err := t.eval.Ingest(ctx, s)
	if err != nil {
		return nil, nil, err
	}

	t.log.Info("sample_recorded",
		zap.Int64("id", s.ID),
		zap.String("scope", s.Scope().String()),
		zap.Float64("coverage", s.CoveragePercentage),
	)

	for _, ev := range events {
		t.disp.Dispatch(ev)
	}
	return s, events, nil
}

// Latest returns nil, nil for a scope that has never been recorded.
func (t *Tracker) Latest(ctx context.Context, scope domain.Scope) (*domain.CoverageSample, error) {
	return t.samples.Latest(ctx, scope)
}

// TrendReport is the display-facing answer to a trend query.
type TrendReport struct {
	Scope     domain.Scope            `json:"scope"`
	Samples   []domain.CoverageSample `json:"samples"`
	Direction trend.Direction         `json:"direction"`
}

// Trend returns the scope's samples from the last windowDays days, oldest
// first, plus the derived classification. An empty history is not an error.
func (t *Tracker) Trend(ctx context.Context, scope domain.Scope, windowDays int) (*TrendReport, error) {
	if windowDays <= 0 {
		windowDays = 1
	}
	since := t.now().UTC().AddDate(0, 0, -windowDays)
	samples, err := t.samples.History(ctx, scope, since)
	if err != nil {
		return nil, err
	}
	return &TrendReport{
		Scope:     scope,
		Samples:   samples,
		Direction: t.analyzer.Classify(samples),
	}, nil
}

// CheckAlerts runs the ad-hoc, read-only alert check. With a nil scope it
// checks every known scope.
func (t *Tracker) CheckAlerts(ctx context.Context, scope *domain.Scope, threshold float64) ([]alert.Event, error) {
	if scope != nil {
		return t.eval.Check(ctx, *scope, threshold)
	}
	scopes, err := t.samples.Scopes(ctx)
	if err != nil {
		return nil, err
	}
	var out []alert.Event
	for _, sc := range scopes {
		evs, err := t.eval.Check(ctx, sc, threshold)
		if err != nil {
			return nil, err
		}
		out = append(out, evs...)
	}
	return out, nil
}

// ResetAlerts clears all rule state for a scope.
func (t *Tracker) ResetAlerts(ctx context.Context, scope domain.Scope) error {
	return t.eval.Reset(ctx, scope)
}
