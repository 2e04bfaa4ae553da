package repo

import (
	"context"
	"time"

	"github.com/covwatch/covwatch/internal/domain"
)

// Ports (interfaces) — swap in any DB adapter later.
type SampleStore interface {
	// Record persists s and assigns its ID. The sample must already be
	// validated; the store mutates nothing else.
	Record(ctx context.Context, s *domain.CoverageSample) error
	// Latest returns nil, nil if the scope has never been recorded.
	Latest(ctx context.Context, scope domain.Scope) (*domain.CoverageSample, error)
	// LatestAt returns the newest sample with timestamp <= at, or nil, nil.
	LatestAt(ctx context.Context, scope domain.Scope, at time.Time) (*domain.CoverageSample, error)
	// History returns samples with timestamp >= since, oldest first.
	History(ctx context.Context, scope domain.Scope, since time.Time) ([]domain.CoverageSample, error)
	// Recent returns the scope's n newest samples, oldest first.
	Recent(ctx context.Context, scope domain.Scope, n int) ([]domain.CoverageSample, error)
	// Scopes lists every scope that has at least one sample.
	Scopes(ctx context.Context) ([]domain.Scope, error)
}
