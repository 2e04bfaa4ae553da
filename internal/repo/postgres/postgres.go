package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/covwatch/covwatch/internal/domain"
	"github.com/covwatch/covwatch/internal/repo"
)

var _ repo.SampleStore = (*Store)(nil)
var _ repo.AlertStateStore = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS coverage_samples (
    id                  BIGSERIAL PRIMARY KEY,
    recorded_at         TIMESTAMPTZ NOT NULL,
    coverage_percentage DOUBLE PRECISION NOT NULL,
    total_lines         INTEGER NOT NULL,
    covered_lines       INTEGER NOT NULL,
    missing_lines       INTEGER NOT NULL,
    branch_coverage     DOUBLE PRECISION,
    test_suite          TEXT NOT NULL,
    commit_hash         TEXT,
    branch_name         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS coverage_samples_scope_ts
    ON coverage_samples (test_suite, branch_name, recorded_at);

CREATE TABLE IF NOT EXISTS alert_rule_state (
    rule_name       TEXT NOT NULL,
    test_suite      TEXT NOT NULL,
    branch_name     TEXT NOT NULL,
    status          TEXT NOT NULL,
    violating_since TIMESTAMPTZ,
    last_fired_at   TIMESTAMPTZ,
    PRIMARY KEY (rule_name, test_suite, branch_name)
);`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// ---- SampleStore ----

func (s *Store) Record(ctx context.Context, cs *domain.CoverageSample) error {
	var commit *string
	if cs.CommitHash != "" {
		commit = &cs.CommitHash
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO coverage_samples
		   (recorded_at, coverage_percentage, total_lines, covered_lines,
		    missing_lines, branch_coverage, test_suite, commit_hash, branch_name)
		 VALUES
		   ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		cs.Timestamp, cs.CoveragePercentage, cs.TotalLines, cs.CoveredLines,
		cs.MissingLines, cs.BranchCoverage, cs.TestSuite, commit, cs.BranchName,
	).Scan(&cs.ID)
	if err != nil {
		return &domain.StorageError{Op: "insert sample", Err: err}
	}
	return nil
}

const sampleColumns = `id, recorded_at, coverage_percentage, total_lines,
       covered_lines, missing_lines, branch_coverage, test_suite,
       commit_hash, branch_name`

func (s *Store) Latest(ctx context.Context, scope domain.Scope) (*domain.CoverageSample, error) {
	q := `SELECT ` + sampleColumns + `
	  FROM coverage_samples
	 WHERE test_suite = $1 AND branch_name = $2
	 ORDER BY recorded_at DESC, id DESC
	 LIMIT 1`
	return s.queryOne(ctx, q, scope.TestSuite, scope.BranchName)
}

func (s *Store) LatestAt(ctx context.Context, scope domain.Scope, at time.Time) (*domain.CoverageSample, error) {
	q := `SELECT ` + sampleColumns + `
	  FROM coverage_samples
	 WHERE test_suite = $1 AND branch_name = $2 AND recorded_at <= $3
	 ORDER BY recorded_at DESC, id DESC
	 LIMIT 1`
	return s.queryOne(ctx, q, scope.TestSuite, scope.BranchName, at)
}

func (s *Store) History(ctx context.Context, scope domain.Scope, since time.Time) ([]domain.CoverageSample, error) {
	q := `SELECT ` + sampleColumns + `
	  FROM coverage_samples
	 WHERE test_suite = $1 AND branch_name = $2 AND recorded_at >= $3
	 ORDER BY recorded_at ASC, id ASC`
	rows, err := s.pool.Query(ctx, q, scope.TestSuite, scope.BranchName, since)
	if err != nil {
		return nil, &domain.StorageError{Op: "history", Err: err}
	}
	defer rows.Close()

	var out []domain.CoverageSample
	for rows.Next() {
		cs, err := scanSample(rows)
		if err != nil {
			return nil, &domain.StorageError{Op: "scan history", Err: err}
		}
		out = append(out, *cs)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: "history", Err: err}
	}
	return out, nil
}

func (s *Store) Recent(ctx context.Context, scope domain.Scope, n int) ([]domain.CoverageSample, error) {
	if n <= 0 {
		return nil, nil
	}
	q := `SELECT ` + sampleColumns + `
	  FROM coverage_samples
	 WHERE test_suite = $1 AND branch_name = $2
	 ORDER BY recorded_at DESC, id DESC
	 LIMIT $3`
	rows, err := s.pool.Query(ctx, q, scope.TestSuite, scope.BranchName, n)
	if err != nil {
		return nil, &domain.StorageError{Op: "recent", Err: err}
	}
	defer rows.Close()

	var out []domain.CoverageSample
	for rows.Next() {
		cs, err := scanSample(rows)
		if err != nil {
			return nil, &domain.StorageError{Op: "scan recent", Err: err}
		}
		out = append(out, *cs)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: "recent", Err: err}
	}
	// query is newest first; callers expect oldest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) Scopes(ctx context.Context) ([]domain.Scope, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT test_suite, branch_name
		   FROM coverage_samples
		  ORDER BY test_suite, branch_name`)
	if err != nil {
		return nil, &domain.StorageError{Op: "scopes", Err: err}
	}
	defer rows.Close()

	var out []domain.Scope
	for rows.Next() {
		var sc domain.Scope
		if err := rows.Scan(&sc.TestSuite, &sc.BranchName); err != nil {
			return nil, &domain.StorageError{Op: "scan scope", Err: err}
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: "scopes", Err: err}
	}
	return out, nil
}

func (s *Store) queryOne(ctx context.Context, q string, args ...any) (*domain.CoverageSample, error) {
	cs, err := scanSample(s.pool.QueryRow(ctx, q, args...))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, &domain.StorageError{Op: "query sample", Err: err}
	}
	return cs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSample(r rowScanner) (*domain.CoverageSample, error) {
	var (
		cs     domain.CoverageSample
		commit *string
	)
	if err := r.Scan(
		&cs.ID, &cs.Timestamp, &cs.CoveragePercentage, &cs.TotalLines,
		&cs.CoveredLines, &cs.MissingLines, &cs.BranchCoverage,
		&cs.TestSuite, &commit, &cs.BranchName,
	); err != nil {
		return nil, err
	}
	if commit != nil {
		cs.CommitHash = *commit
	}
	return &cs, nil
}
