package alert

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/covwatch/covwatch/internal/config"
	"github.com/covwatch/covwatch/internal/domain"
	"github.com/covwatch/covwatch/internal/repo"
)

// Evaluator decides, on every new sample, whether any configured rule for the
// sample's scope should fire. Rule state is owned exclusively by the
// evaluator; same-scope evaluations are serialized so two samples can never
// observe stale state and double-fire.
type Evaluator struct {
	samples repo.SampleStore
	states  repo.AlertStateStore
	rules   []config.RuleConfig
	log     *zap.Logger

	mu    sync.Mutex
	locks map[domain.Scope]*sync.Mutex
}

func NewEvaluator(samples repo.SampleStore, states repo.AlertStateStore, rules []config.RuleConfig, log *zap.Logger) *Evaluator {
	return &Evaluator{
		samples: samples,
		states:  states,
		rules:   rules,
		log:     log,
		locks:   make(map[domain.Scope]*sync.Mutex),
	}
}

func (e *Evaluator) scopeLock(scope domain.Scope) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[scope]
	if !ok {
		l = &sync.Mutex{}
		e.locks[scope] = l
	}
	return l
}

// Ingest persists the sample and evaluates it while still holding the scope
// lock, so two racing same-scope submissions are evaluated in the order they
// became durable. The returned error is the record error only; an evaluation
// failure after the write is logged, the sample stays recorded.
func (e *Evaluator) Ingest(ctx context.Context, sample *domain.CoverageSample) ([]Event, error) {
	scope := sample.Scope()

	l := e.scopeLock(scope)
	l.Lock()
	defer l.Unlock()

	if err := e.samples.Record(ctx, sample); err != nil {
		return nil, err
	}
	events, err := e.evaluate(ctx, scope, sample)
	if err != nil {
		e.log.Error("evaluate_failed",
			zap.Int64("sample_id", sample.ID),
			zap.String("scope", scope.String()),
			zap.Error(err),
		)
	}
	return events, nil
}

// Evaluate runs every configured rule against an already recorded sample and
// returns the events that fired. It never blocks on notification delivery;
// the caller hands events off asynchronously.
func (e *Evaluator) Evaluate(ctx context.Context, sample *domain.CoverageSample) ([]Event, error) {
	scope := sample.Scope()

	l := e.scopeLock(scope)
	l.Lock()
	defer l.Unlock()

	return e.evaluate(ctx, scope, sample)
}

func (e *Evaluator) evaluate(ctx context.Context, scope domain.Scope, sample *domain.CoverageSample) ([]Event, error) {
	if len(e.rules) == 0 {
		return nil, nil
	}

	var fired []Event
	for _, rule := range e.rules {
		var (
			ev  *Event
			err error
		)
		switch rule.Type {
		case config.RuleThreshold:
			ev, err = e.evalThreshold(ctx, rule, scope, sample)
		case config.RuleDrop:
			ev, err = e.evalDrop(ctx, rule, scope, sample)
		default:
			continue
		}
		if err != nil {
			return fired, err
		}
		if ev != nil {
			e.log.Warn("alert_fired",
				zap.String("rule", rule.Name),
				zap.String("level", ev.Level),
				zap.String("scope", scope.String()),
				zap.Float64("coverage", sample.CoveragePercentage),
				zap.Int64("sample_id", sample.ID),
			)
			fired = append(fired, *ev)
		}
	}
	return fired, nil
}

// evalThreshold walks the per-(rule, scope) state machine:
//
//	Normal    -- breach --------------------------------> Violating
//	Violating -- breach for >= min_duration ------------> Fired (emit once)
//	Violating -- no breach -----------------------------> Normal (clock reset)
//	Fired     -- breach --------------------------------> Fired (no re-notify)
//	Fired     -- no breach -----------------------------> Normal (re-armed)
//
// Only a continuous run of breaching samples accumulates min_duration.
func (e *Evaluator) evalThreshold(ctx context.Context, rule config.RuleConfig, scope domain.Scope, sample *domain.CoverageSample) (*Event, error) {
	st, err := e.states.Get(ctx, rule.Name, scope)
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = &repo.AlertState{RuleName: rule.Name, Scope: scope, Status: repo.StatusNormal}
	}

	ts := sample.Timestamp
	breach := sample.CoveragePercentage < rule.Threshold

	if !breach {
		if st.Status == repo.StatusNormal && st.ViolatingSince == nil {
			// nothing to record
			return nil, nil
		}
		st.Status = repo.StatusNormal
		st.ViolatingSince = nil
		return nil, e.states.Set(ctx, *st)
	}

	var fired *Event
	switch st.Status {
	case repo.StatusFired:
		// already notified; stay fired
	case repo.StatusNormal:
		st.Status = repo.StatusViolating
		st.ViolatingSince = &ts
	}
	if st.Status == repo.StatusViolating && ts.Sub(*st.ViolatingSince) >= rule.MinDuration {
		st.Status = repo.StatusFired
		st.LastFiredAt = &ts
		ev := newThresholdEvent(rule.Name, rule.Level, rule.Threshold, sample)
		fired = &ev
	}
	if err := e.states.Set(ctx, *st); err != nil {
		return nil, err
	}
	return fired, nil
}

// evalDrop compares the new sample against the newest sample at or before
// t - window. No state machine beyond last_fired_at: once fired, the rule
// stays quiet for a full window even if the drop persists.
func (e *Evaluator) evalDrop(ctx context.Context, rule config.RuleConfig, scope domain.Scope, sample *domain.CoverageSample) (*Event, error) {
	st, err := e.states.Get(ctx, rule.Name, scope)
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = &repo.AlertState{RuleName: rule.Name, Scope: scope, Status: repo.StatusNormal}
	}

	ts := sample.Timestamp
	if st.LastFiredAt != nil && ts.Sub(*st.LastFiredAt) < rule.Window {
		return nil, nil
	}

	earlier, err := e.samples.LatestAt(ctx, scope, ts.Add(-rule.Window))
	if err != nil {
		return nil, err
	}
	if earlier == nil {
		// insufficient history
		return nil, nil
	}

	drop := earlier.CoveragePercentage - sample.CoveragePercentage
	if drop <= rule.DropPercentage {
		return nil, nil
	}

	st.LastFiredAt = &ts
	if err := e.states.Set(ctx, *st); err != nil {
		return nil, err
	}
	ev := newDropEvent(rule.Name, drop, rule.Window, earlier, sample)
	return &ev, nil
}

// Check is the ad-hoc, read-only alert query outside the ingestion pipeline.
// It evaluates the configured threshold rules capped at the requested
// threshold against the scope's latest sample and reports the most severe
// breached rule. With no threshold rules configured it checks the requested
// threshold itself at warning level. A scope with no data yields no alerts.
func (e *Evaluator) Check(ctx context.Context, scope domain.Scope, threshold float64) ([]Event, error) {
	latest, err := e.samples.Latest(ctx, scope)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, nil
	}

	var best *config.RuleConfig
	configured := false
	for i := range e.rules {
		rule := e.rules[i]
		if rule.Type != config.RuleThreshold {
			continue
		}
		configured = true
		if rule.Threshold > threshold {
			continue
		}
		if latest.CoveragePercentage >= rule.Threshold {
			continue
		}
		if best == nil || moreSevere(rule, *best) {
			best = &e.rules[i]
		}
	}

	if best != nil {
		ev := newThresholdEvent(best.Name, best.Level, best.Threshold, latest)
		return []Event{ev}, nil
	}
	if !configured && latest.CoveragePercentage < threshold {
		ev := newThresholdEvent("ad-hoc-threshold", config.LevelWarning, threshold, latest)
		return []Event{ev}, nil
	}
	return nil, nil
}

// Reset clears all rule state for the scope, re-arming every rule.
func (e *Evaluator) Reset(ctx context.Context, scope domain.Scope) error {
	l := e.scopeLock(scope)
	l.Lock()
	defer l.Unlock()
	return e.states.Reset(ctx, scope)
}

func moreSevere(a, b config.RuleConfig) bool {
	if a.Level != b.Level {
		return a.Level == config.LevelCritical
	}
	// same level: the tighter (lower) threshold is the stronger signal
	return a.Threshold < b.Threshold
}
