package domain

import "time"

// DefaultScopePart is used when a caller omits test_suite or branch_name.
const DefaultScopePart = "unspecified"

// Scope partitions all time series and alert state. Two samples with
// different scopes never interact.
type Scope struct {
	TestSuite  string `json:"test_suite"`
	BranchName string `json:"branch_name"`
}

// NewScope fills empty parts with the default.
func NewScope(testSuite, branchName string) Scope {
	if testSuite == "" {
		testSuite = DefaultScopePart
	}
	if branchName == "" {
		branchName = DefaultScopePart
	}
	return Scope{TestSuite: testSuite, BranchName: branchName}
}

func (s Scope) String() string {
	return s.TestSuite + "/" + s.BranchName
}

// CoverageSample is one stored coverage measurement. Immutable once recorded.
type CoverageSample struct {
	ID                 int64     `json:"id"`
	Timestamp          time.Time `json:"timestamp"`
	CoveragePercentage float64   `json:"coverage_percentage"`
	TotalLines         int       `json:"total_lines"`
	CoveredLines       int       `json:"covered_lines"`
	MissingLines       int       `json:"missing_lines"`
	BranchCoverage     *float64  `json:"branch_coverage,omitempty"` // pointer to allow nil
	TestSuite          string    `json:"test_suite"`
	CommitHash         string    `json:"commit_hash,omitempty"`
	BranchName         string    `json:"branch_name"`
}

// Scope returns the (test_suite, branch_name) key of the sample.
func (s *CoverageSample) Scope() Scope {
	return NewScope(s.TestSuite, s.BranchName)
}

// SampleInput is what a caller submits. The server assigns ID and Timestamp.
type SampleInput struct {
	CoveragePercentage float64  `json:"coverage_percentage"`
	TotalLines         int      `json:"total_lines"`
	CoveredLines       int      `json:"covered_lines"`
	MissingLines       int      `json:"missing_lines"`
	BranchCoverage     *float64 `json:"branch_coverage,omitempty"`
	TestSuite          string   `json:"test_suite,omitempty"`
	CommitHash         string   `json:"commit_hash,omitempty"`
	BranchName         string   `json:"branch_name,omitempty"`
}

// NewSample validates in and builds an unstored sample (ID zero) with the
// given server timestamp. A zero MissingLines is derived as total-covered;
// an explicit inconsistent value is rejected.
func NewSample(in SampleInput, now time.Time) (*CoverageSample, error) {
	if in.CoveragePercentage < 0 || in.CoveragePercentage > 100 {
		return nil, &ValidationError{Field: "coverage_percentage", Reason: "must be between 0 and 100"}
	}
	if in.TotalLines < 0 {
		return nil, &ValidationError{Field: "total_lines", Reason: "must not be negative"}
	}
	if in.CoveredLines < 0 {
		return nil, &ValidationError{Field: "covered_lines", Reason: "must not be negative"}
	}
	if in.MissingLines < 0 {
		return nil, &ValidationError{Field: "missing_lines", Reason: "must not be negative"}
	}
	if in.CoveredLines > in.TotalLines {
		return nil, &ValidationError{Field: "covered_lines", Reason: "exceeds total_lines"}
	}

	missing := in.MissingLines
	if missing == 0 {
		missing = in.TotalLines - in.CoveredLines
	}
	if in.CoveredLines+missing != in.TotalLines {
		return nil, &ValidationError{Field: "missing_lines", Reason: "covered_lines + missing_lines must equal total_lines"}
	}

	if in.BranchCoverage != nil && (*in.BranchCoverage < 0 || *in.BranchCoverage > 100) {
		return nil, &ValidationError{Field: "branch_coverage", Reason: "must be between 0 and 100"}
	}

	scope := NewScope(in.TestSuite, in.BranchName)
	return &CoverageSample{
		Timestamp:          now.UTC(),
		CoveragePercentage: in.CoveragePercentage,
		TotalLines:         in.TotalLines,
		CoveredLines:       in.CoveredLines,
		MissingLines:       missing,
		BranchCoverage:     in.BranchCoverage,
		TestSuite:          scope.TestSuite,
		CommitHash:         in.CommitHash,
		BranchName:         scope.BranchName,
	}, nil
}
