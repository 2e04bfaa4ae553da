package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/covwatch/covwatch/internal/alert"
	"github.com/covwatch/covwatch/internal/config"
	"github.com/covwatch/covwatch/internal/domain"
	"github.com/covwatch/covwatch/internal/notify"
	"github.com/covwatch/covwatch/internal/repo/memory"
	"github.com/covwatch/covwatch/internal/trend"
)

// ---- test helpers ----

type countingChannel struct {
	mu sync.Mutex
	n  int
}

func (c *countingChannel) Name() string { return "counting" }
func (c *countingChannel) Send(ctx context.Context, ev alert.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return nil
}

func (c *countingChannel) sent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type fixture struct {
	tr    *Tracker
	disp  *notify.Dispatcher
	ch    *countingChannel
	clock time.Time
}

func newFixture(t *testing.T, rules []config.RuleConfig) *fixture {
	t.Helper()
	store := memory.New()
	log := zap.NewNop()
	ch := &countingChannel{}
	disp := notify.NewDispatcher([]notify.Notifier{ch}, time.Second, log)
	eval := alert.NewEvaluator(store, store, rules, log)
	tr := New(store, trend.NewAnalyzer(), eval, disp, log)

	f := &fixture{tr: tr, disp: disp, ch: ch, clock: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	tr.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func input(pct float64, covered int) domain.SampleInput {
	return domain.SampleInput{
		CoveragePercentage: pct,
		TotalLines:         1000,
		CoveredLines:       covered,
		TestSuite:          "unit-tests",
		BranchName:         "main",
	}
}

// ---- tests ----

func TestRecord_ValidationFailureRecordsNothing(t *testing.T) {
	f := newFixture(t, config.DefaultRules().Rules)
	ctx := context.Background()

	_, _, err := f.tr.Record(ctx, domain.SampleInput{
		CoveragePercentage: 150, TotalLines: 10, CoveredLines: 10,
	})
	if err == nil || !domain.IsValidation(err) {
		t.Fatalf("want validation error, got %v", err)
	}

	latest, err := f.tr.Latest(ctx, domain.NewScope("", ""))
	if err != nil {
		t.Fatal(err)
	}
	if latest != nil {
		t.Fatalf("rejected sample must not be stored: %+v", latest)
	}
}

func TestEndToEnd_ThresholdLadder(t *testing.T) {
	f := newFixture(t, []config.RuleConfig{
		{Name: "low-coverage", Type: config.RuleThreshold, Level: config.LevelWarning, Threshold: 80.0},
		{Name: "critical-coverage", Type: config.RuleThreshold, Level: config.LevelCritical, Threshold: 70.0},
	})
	ctx := context.Background()
	scope := domain.NewScope("unit-tests", "main")

	// healthy sample: no alerts at 80
	if _, _, err := f.tr.Record(ctx, input(85.5, 855)); err != nil {
		t.Fatal(err)
	}
	evs, err := f.tr.CheckAlerts(ctx, &scope, 80.0)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 0 {
		t.Fatalf("85.5%% must be clean at 80: %+v", evs)
	}

	// warning sample
	f.advance(time.Minute)
	s2, _, err := f.tr.Record(ctx, input(75.0, 750))
	if err != nil {
		t.Fatal(err)
	}
	evs, _ = f.tr.CheckAlerts(ctx, &scope, 80.0)
	if len(evs) != 1 || evs[0].Level != config.LevelWarning {
		t.Fatalf("want warning, got %+v", evs)
	}
	if evs[0].Sample.ID != s2.ID {
		t.Fatalf("alert must reference the second sample: %+v", evs[0])
	}

	// critical sample
	f.advance(time.Minute)
	if _, _, err := f.tr.Record(ctx, input(65.0, 650)); err != nil {
		t.Fatal(err)
	}
	evs, _ = f.tr.CheckAlerts(ctx, &scope, 70.0)
	if len(evs) != 1 || evs[0].Level != config.LevelCritical {
		t.Fatalf("want critical, got %+v", evs)
	}
}

func TestRecord_DispatchesFiredEvents(t *testing.T) {
	f := newFixture(t, []config.RuleConfig{
		{Name: "low-coverage", Type: config.RuleThreshold, Level: config.LevelWarning, Threshold: 80.0},
	})
	ctx := context.Background()

	_, events, err := f.tr.Record(ctx, input(75.0, 750))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("want one fired event, got %d", len(events))
	}

	drainCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := f.disp.Drain(drainCtx); err != nil {
		t.Fatal(err)
	}
	if f.ch.sent() != 1 {
		t.Fatalf("want one delivery, got %d", f.ch.sent())
	}
}

func TestTrend_WindowedQuery(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	scope := domain.NewScope("unit-tests", "main")

	if _, _, err := f.tr.Record(ctx, input(85.5, 855)); err != nil {
		t.Fatal(err)
	}
	f.advance(time.Minute)
	if _, _, err := f.tr.Record(ctx, input(75.0, 750)); err != nil {
		t.Fatal(err)
	}

	rep, err := f.tr.Trend(ctx, scope, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Samples) != 2 {
		t.Fatalf("want 2 samples, got %d", len(rep.Samples))
	}
	if rep.Direction != trend.Decreasing {
		t.Fatalf("want decreasing, got %s", rep.Direction)
	}
	for i := 1; i < len(rep.Samples); i++ {
		if rep.Samples[i].Timestamp.Before(rep.Samples[i-1].Timestamp) {
			t.Fatal("samples not oldest first")
		}
	}
}

func TestTrend_EmptyScopeIsNotAnError(t *testing.T) {
	f := newFixture(t, nil)
	rep, err := f.tr.Trend(context.Background(), domain.NewScope("ghost", "main"), 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Samples) != 0 || rep.Direction != trend.Stable {
		t.Fatalf("want empty stable report, got %+v", rep)
	}
}

func TestCheckAlerts_AllScopes(t *testing.T) {
	f := newFixture(t, []config.RuleConfig{
		{Name: "low-coverage", Type: config.RuleThreshold, Level: config.LevelWarning, Threshold: 80.0},
	})
	ctx := context.Background()

	if _, _, err := f.tr.Record(ctx, input(75.0, 750)); err != nil {
		t.Fatal(err)
	}
	in2 := input(60.0, 600)
	in2.BranchName = "dev"
	if _, _, err := f.tr.Record(ctx, in2); err != nil {
		t.Fatal(err)
	}

	evs, err := f.tr.CheckAlerts(ctx, nil, 80.0)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 2 {
		t.Fatalf("want both scopes alerting, got %d", len(evs))
	}
}
