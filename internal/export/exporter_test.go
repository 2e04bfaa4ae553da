package export

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/covwatch/covwatch/internal/domain"
	"github.com/covwatch/covwatch/internal/repo/memory"
	"github.com/covwatch/covwatch/internal/trend"
)

func record(t *testing.T, store *memory.Store, pct float64, branchCov *float64, suite, branch string, ts time.Time) {
	t.Helper()
	err := store.Record(context.Background(), &domain.CoverageSample{
		Timestamp:          ts,
		CoveragePercentage: pct,
		TotalLines:         1000,
		CoveredLines:       int(pct * 10),
		MissingLines:       1000 - int(pct*10),
		BranchCoverage:     branchCov,
		TestSuite:          suite,
		BranchName:         branch,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRender_LatestValuesAndTrend(t *testing.T) {
	store := memory.New()
	now := time.Now().UTC()
	record(t, store, 85.5, nil, "unit-tests", "main", now.Add(-2*time.Minute))
	record(t, store, 75.0, nil, "unit-tests", "main", now.Add(-time.Minute))
	record(t, store, 65.0, nil, "unit-tests", "main", now)

	e := NewExporter(store, trend.NewAnalyzer(), zap.NewNop())
	var buf bytes.Buffer
	if err := e.Render(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	if !strings.Contains(out, `test_coverage_percentage{test_suite="unit-tests",branch="main"} 65`) {
		t.Fatalf("percentage line missing:\n%s", out)
	}
	if !strings.Contains(out, `test_coverage_trend{test_suite="unit-tests",branch="main"} -1`) {
		t.Fatalf("trend line missing:\n%s", out)
	}
	if !strings.Contains(out, `test_coverage_missing_lines{test_suite="unit-tests",branch="main"} 350`) {
		t.Fatalf("missing lines wrong:\n%s", out)
	}
	if !strings.Contains(out, "# TYPE test_coverage_percentage gauge") {
		t.Fatalf("type metadata missing:\n%s", out)
	}
	// no sample carries branch coverage: the family must not be rendered
	if strings.Contains(out, "test_coverage_branch_coverage") {
		t.Fatalf("unexpected branch coverage family:\n%s", out)
	}
}

func TestRender_BranchCoverageOnlyWhenPresent(t *testing.T) {
	store := memory.New()
	bc := 71.5
	record(t, store, 85.0, &bc, "unit-tests", "main", time.Now().UTC())

	e := NewExporter(store, trend.NewAnalyzer(), zap.NewNop())
	var buf bytes.Buffer
	if err := e.Render(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `test_coverage_branch_coverage{test_suite="unit-tests",branch="main"} 71.5`) {
		t.Fatalf("branch coverage missing:\n%s", buf.String())
	}
}

func TestRender_TrendSpansSparseHistory(t *testing.T) {
	store := memory.New()
	now := time.Now().UTC()
	// nightly-style cadence: previous sample is more than a day old
	record(t, store, 85.0, nil, "unit-tests", "main", now.Add(-30*time.Hour))
	record(t, store, 65.0, nil, "unit-tests", "main", now)

	e := NewExporter(store, trend.NewAnalyzer(), zap.NewNop())
	var buf bytes.Buffer
	if err := e.Render(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `test_coverage_trend{test_suite="unit-tests",branch="main"} -1`) {
		t.Fatalf("decline across a long gap must still export -1:\n%s", buf.String())
	}
}

func TestRender_EmptyStore(t *testing.T) {
	e := NewExporter(memory.New(), trend.NewAnalyzer(), zap.NewNop())
	var buf bytes.Buffer
	if err := e.Render(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Fatalf("want empty exposition, got:\n%s", buf.String())
	}
}

func TestRender_MultipleScopesIndependent(t *testing.T) {
	store := memory.New()
	now := time.Now().UTC()
	record(t, store, 90.0, nil, "unit-tests", "main", now)
	record(t, store, 55.0, nil, "e2e", "dev", now)

	e := NewExporter(store, trend.NewAnalyzer(), zap.NewNop())
	var buf bytes.Buffer
	if err := e.Render(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, `test_coverage_percentage{test_suite="unit-tests",branch="main"} 90`) ||
		!strings.Contains(out, `test_coverage_percentage{test_suite="e2e",branch="dev"} 55`) {
		t.Fatalf("scope lines missing:\n%s", out)
	}
}
