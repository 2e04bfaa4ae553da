package alert

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/covwatch/covwatch/internal/config"
	"github.com/covwatch/covwatch/internal/domain"
)

// Event is emitted once when a rule transitions into the fired state. It is
// immutable; channels render it, nothing mutates it afterwards.
type Event struct {
	ID        string                `json:"id"`
	RuleName  string                `json:"rule_name"`
	Level     string                `json:"level"` // warning | critical
	Scope     domain.Scope          `json:"scope"`
	Sample    domain.CoverageSample `json:"sample"`
	Threshold float64               `json:"threshold,omitempty"` // threshold rules
	Drop      float64               `json:"drop,omitempty"`      // drop rules: points lost within the window
	FiredAt   time.Time             `json:"fired_at"`
	Message   string                `json:"message"`
}

func newThresholdEvent(ruleName, level string, threshold float64, s *domain.CoverageSample) Event {
	return Event{
		ID:        uuid.NewString(),
		RuleName:  ruleName,
		Level:     level,
		Scope:     s.Scope(),
		Sample:    *s,
		Threshold: threshold,
		FiredAt:   s.Timestamp,
		Message: fmt.Sprintf("coverage %.2f%% is below the %s threshold %.2f%% (suite=%s branch=%s)",
			s.CoveragePercentage, level, threshold, s.TestSuite, s.BranchName),
	}
}

func newDropEvent(ruleName string, drop float64, window time.Duration, earlier, s *domain.CoverageSample) Event {
	return Event{
		ID:       uuid.NewString(),
		RuleName: ruleName,
		Level:    config.LevelWarning,
		Scope:    s.Scope(),
		Sample:   *s,
		Drop:     drop,
		FiredAt:  s.Timestamp,
		Message: fmt.Sprintf("coverage dropped %.2f points within %s: %.2f%% to %.2f%% (suite=%s branch=%s)",
			drop, window, earlier.CoveragePercentage, s.CoveragePercentage, s.TestSuite, s.BranchName),
	}
}
