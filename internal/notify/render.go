package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/covwatch/covwatch/internal/alert"
)

func subject(ev alert.Event) string {
	if ev.Drop > 0 {
		return fmt.Sprintf("Coverage Drop Alert: -%.2f points (%s)", ev.Drop, ev.Scope)
	}
	return fmt.Sprintf("Test Coverage Alert: %.2f%% (Below %.2f%%)", ev.Sample.CoveragePercentage, ev.Threshold)
}

func body(ev alert.Event) string {
	var b strings.Builder
	b.WriteString(ev.Message)
	b.WriteString("\n\nDetails:\n")
	fmt.Fprintf(&b, "- Severity: %s\n", ev.Level)
	fmt.Fprintf(&b, "- Test Suite: %s\n", ev.Scope.TestSuite)
	fmt.Fprintf(&b, "- Branch: %s\n", ev.Scope.BranchName)
	fmt.Fprintf(&b, "- Commit: %s\n", orNA(ev.Sample.CommitHash))
	fmt.Fprintf(&b, "- Total Lines: %d\n", ev.Sample.TotalLines)
	fmt.Fprintf(&b, "- Covered Lines: %d\n", ev.Sample.CoveredLines)
	fmt.Fprintf(&b, "- Missing Lines: %d\n", ev.Sample.MissingLines)
	fmt.Fprintf(&b, "- Timestamp: %s\n", ev.FiredAt.Format(time.RFC3339))
	return b.String()
}

// webhookPayload is the JSON body shared by the generic webhook and the
// kafka alert-manager push.
func webhookPayload(ev alert.Event) map[string]any {
	alertType := "coverage_threshold"
	if ev.Drop > 0 {
		alertType = "coverage_drop"
	}
	p := map[string]any{
		"alert_id":      ev.ID,
		"alert_type":    alertType,
		"rule":          ev.RuleName,
		"severity":      ev.Level,
		"message":       ev.Message,
		"coverage":      ev.Sample.CoveragePercentage,
		"test_suite":    ev.Scope.TestSuite,
		"branch_name":   ev.Scope.BranchName,
		"commit_hash":   ev.Sample.CommitHash,
		"total_lines":   ev.Sample.TotalLines,
		"covered_lines": ev.Sample.CoveredLines,
		"missing_lines": ev.Sample.MissingLines,
		"sample_id":     ev.Sample.ID,
		"timestamp":     ev.FiredAt.Format(time.RFC3339),
	}
	if ev.Drop > 0 {
		p["drop"] = ev.Drop
	} else {
		p["threshold"] = ev.Threshold
	}
	return p
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
