package export

import (
	"context"
	"fmt"
	"io"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/covwatch/covwatch/internal/domain"
	"github.com/covwatch/covwatch/internal/repo"
	"github.com/covwatch/covwatch/internal/trend"
)

// Exposed metric names. These match the dashboard queries downstream, do not
// rename without migrating those.
const (
	metricPercentage   = "test_coverage_percentage"
	metricTotalLines   = "test_coverage_total_lines"
	metricCoveredLines = "test_coverage_covered_lines"
	metricMissingLines = "test_coverage_missing_lines"
	metricBranchCov    = "test_coverage_branch_coverage"
	metricTrend        = "test_coverage_trend"
	metricLastUpdated  = "test_coverage_last_updated_timestamp"
)

// Exporter renders the latest per-scope values in the text exposition format.
// Every call queries the store directly, so a scrape always reflects the most
// recently ingested sample.
type Exporter struct {
	samples  repo.SampleStore
	analyzer *trend.Analyzer
	log      *zap.Logger
}

func NewExporter(samples repo.SampleStore, analyzer *trend.Analyzer, log *zap.Logger) *Exporter {
	return &Exporter{samples: samples, analyzer: analyzer, log: log}
}

type scopeRow struct {
	scope  domain.Scope
	latest *domain.CoverageSample
	dir    trend.Direction
}

// Render writes one gauge line per metric per known scope.
func (e *Exporter) Render(ctx context.Context, w io.Writer) error {
	scopes, err := e.samples.Scopes(ctx)
	if err != nil {
		return fmt.Errorf("list scopes: %w", err)
	}

	rows := make([]scopeRow, 0, len(scopes))
	for _, scope := range scopes {
		latest, err := e.samples.Latest(ctx, scope)
		if err != nil {
			return fmt.Errorf("latest %s: %w", scope, err)
		}
		if latest == nil {
			continue
		}
		// trend compares the most recent samples regardless of their age
		recent, err := e.samples.Recent(ctx, scope, e.analyzer.Span())
		if err != nil {
			return fmt.Errorf("recent %s: %w", scope, err)
		}
		rows = append(rows, scopeRow{
			scope:  scope,
			latest: latest,
			dir:    e.analyzer.Classify(recent),
		})
	}

	families := []*dto.MetricFamily{
		family(metricPercentage, "Test coverage percentage", rows,
			func(r scopeRow) (float64, bool) { return r.latest.CoveragePercentage, true }),
		family(metricTotalLines, "Total lines of code", rows,
			func(r scopeRow) (float64, bool) { return float64(r.latest.TotalLines), true }),
		family(metricCoveredLines, "Covered lines of code", rows,
			func(r scopeRow) (float64, bool) { return float64(r.latest.CoveredLines), true }),
		family(metricMissingLines, "Missing lines of code", rows,
			func(r scopeRow) (float64, bool) { return float64(r.latest.MissingLines), true }),
		family(metricBranchCov, "Branch coverage percentage", rows,
			func(r scopeRow) (float64, bool) {
				if r.latest.BranchCoverage == nil {
					return 0, false
				}
				return *r.latest.BranchCoverage, true
			}),
		family(metricTrend, "Coverage trend (1 = increasing, -1 = decreasing, 0 = stable)", rows,
			func(r scopeRow) (float64, bool) { return r.dir.Indicator(), true }),
		family(metricLastUpdated, "Unix timestamp of the most recent coverage sample", rows,
			func(r scopeRow) (float64, bool) { return float64(r.latest.Timestamp.Unix()), true }),
	}

	for _, mf := range families {
		if len(mf.Metric) == 0 {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func family(name, help string, rows []scopeRow, value func(scopeRow) (float64, bool)) *dto.MetricFamily {
	mf := &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
	}
	for _, r := range rows {
		v, ok := value(r)
		if !ok {
			continue
		}
		mf.Metric = append(mf.Metric, &dto.Metric{
			Label: []*dto.LabelPair{
				{Name: proto.String("test_suite"), Value: proto.String(r.scope.TestSuite)},
				{Name: proto.String("branch"), Value: proto.String(r.scope.BranchName)},
			},
			Gauge: &dto.Gauge{Value: proto.Float64(v)},
		})
	}
	return mf
}
