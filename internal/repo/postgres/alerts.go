package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/covwatch/covwatch/internal/domain"
	"github.com/covwatch/covwatch/internal/repo"
)

func (s *Store) Get(ctx context.Context, ruleName string, scope domain.Scope) (*repo.AlertState, error) {
	const q = `SELECT status, violating_since, last_fired_at
	             FROM alert_rule_state
	            WHERE rule_name=$1 AND test_suite=$2 AND branch_name=$3`
	st := repo.AlertState{RuleName: ruleName, Scope: scope}
	var status string
	err := s.pool.QueryRow(ctx, q, ruleName, scope.TestSuite, scope.BranchName).
		Scan(&status, &st.ViolatingSince, &st.LastFiredAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, &domain.StorageError{Op: "get alert state", Err: err}
	}
	st.Status = repo.AlertStatus(status)
	return &st, nil
}

func (s *Store) Set(ctx context.Context, st repo.AlertState) error {
	const q = `
		INSERT INTO alert_rule_state (rule_name, test_suite, branch_name, status, violating_since, last_fired_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (rule_name, test_suite, branch_name)
		DO UPDATE SET status=EXCLUDED.status,
		              violating_since=EXCLUDED.violating_since,
		              last_fired_at=EXCLUDED.last_fired_at
	`
	_, err := s.pool.Exec(ctx, q,
		st.RuleName, st.Scope.TestSuite, st.Scope.BranchName,
		string(st.Status), st.ViolatingSince, st.LastFiredAt)
	if err != nil {
		return &domain.StorageError{Op: "set alert state", Err: err}
	}
	return nil
}

func (s *Store) Reset(ctx context.Context, scope domain.Scope) error {
	const q = `DELETE FROM alert_rule_state WHERE test_suite=$1 AND branch_name=$2`
	if _, err := s.pool.Exec(ctx, q, scope.TestSuite, scope.BranchName); err != nil {
		return &domain.StorageError{Op: "reset alert state", Err: err}
	}
	return nil
}
