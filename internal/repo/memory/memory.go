package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/covwatch/covwatch/internal/domain"
	"github.com/covwatch/covwatch/internal/repo"
)

var _ repo.SampleStore = (*Store)(nil)
var _ repo.AlertStateStore = (*Store)(nil)

type stateKey struct {
	rule  string
	scope domain.Scope
}

type Store struct {
	mu      sync.RWMutex
	nextID  int64
	samples map[domain.Scope][]domain.CoverageSample
	states  map[stateKey]repo.AlertState
}

func New() *Store {
	return &Store{
		nextID:  1,
		samples: make(map[domain.Scope][]domain.CoverageSample),
		states:  make(map[stateKey]repo.AlertState),
	}
}

// ---- SampleStore ----

func (m *Store) Record(ctx context.Context, s *domain.CoverageSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.nextID
	m.nextID++
	scope := s.Scope()
	m.samples[scope] = append(m.samples[scope], *s)
	// Samples normally arrive in timestamp order; keep the invariant anyway.
	sort.SliceStable(m.samples[scope], func(i, j int) bool {
		return m.samples[scope][i].Timestamp.Before(m.samples[scope][j].Timestamp)
	})
	return nil
}

func (m *Store) Latest(ctx context.Context, scope domain.Scope) (*domain.CoverageSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ss := m.samples[scope]
	if len(ss) == 0 {
		return nil, nil
	}
	cp := ss[len(ss)-1]
	return &cp, nil
}

func (m *Store) LatestAt(ctx context.Context, scope domain.Scope, at time.Time) (*domain.CoverageSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ss := m.samples[scope]
	for i := len(ss) - 1; i >= 0; i-- {
		if !ss[i].Timestamp.After(at) {
			cp := ss[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Store) History(ctx context.Context, scope domain.Scope, since time.Time) ([]domain.CoverageSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.CoverageSample
	for _, s := range m.samples[scope] {
		if !s.Timestamp.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Store) Recent(ctx context.Context, scope domain.Scope, n int) ([]domain.CoverageSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ss := m.samples[scope]
	if n <= 0 || len(ss) == 0 {
		return nil, nil
	}
	if len(ss) > n {
		ss = ss[len(ss)-n:]
	}
	out := make([]domain.CoverageSample, len(ss))
	copy(out, ss)
	return out, nil
}

func (m *Store) Scopes(ctx context.Context) ([]domain.Scope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Scope, 0, len(m.samples))
	for scope := range m.samples {
		out = append(out, scope)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TestSuite != out[j].TestSuite {
			return out[i].TestSuite < out[j].TestSuite
		}
		return out[i].BranchName < out[j].BranchName
	})
	return out, nil
}

// ---- AlertStateStore ----

func (m *Store) Get(ctx context.Context, ruleName string, scope domain.Scope) (*repo.AlertState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[stateKey{rule: ruleName, scope: scope}]
	if !ok {
		return nil, nil
	}
	cp := st
	return &cp, nil
}

func (m *Store) Set(ctx context.Context, st repo.AlertState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[stateKey{rule: st.RuleName, scope: st.Scope}] = st
	return nil
}

func (m *Store) Reset(ctx context.Context, scope domain.Scope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.states {
		if k.scope == scope {
			delete(m.states, k)
		}
	}
	return nil
}
