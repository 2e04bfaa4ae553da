package repo

import (
	"context"
	"time"

	"github.com/covwatch/covwatch/internal/domain"
)

// AlertStatus is the rule state machine position for one (rule, scope) pair.
type AlertStatus string

const (
	StatusNormal    AlertStatus = "normal"
	StatusViolating AlertStatus = "violating"
	StatusFired     AlertStatus = "fired"
)

// AlertState holds the evaluator's per-(rule, scope) record. violating_since
// is the start of the current continuous violation run, last_fired_at is used
// for dedup across the rule's lifetime.
type AlertState struct {
	RuleName       string
	Scope          domain.Scope
	Status         AlertStatus
	ViolatingSince *time.Time
	LastFiredAt    *time.Time
}

// AlertStateStore is implemented by a persistence layer to store rule state.
// Only the alert evaluator writes through this port.
type AlertStateStore interface {
	// Get returns nil, nil if there's no record yet.
	Get(ctx context.Context, ruleName string, scope domain.Scope) (*AlertState, error)
	// Set upserts the record.
	Set(ctx context.Context, st AlertState) error
	// Reset deletes all state for the scope, re-arming every rule.
	Reset(ctx context.Context, scope domain.Scope) error
}
