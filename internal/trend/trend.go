package trend

import "github.com/covwatch/covwatch/internal/domain"

// Direction classifies where a scope's coverage is heading.
type Direction string

const (
	Increasing Direction = "increasing"
	Decreasing Direction = "decreasing"
	Stable     Direction = "stable"
)

// Indicator maps the direction onto the exported gauge value.
func (d Direction) Indicator() float64 {
	switch d {
	case Increasing:
		return 1
	case Decreasing:
		return -1
	default:
		return 0
	}
}

// DefaultEpsilon is the percentage-point band treated as noise: differences
// smaller than this classify as stable so the trend does not oscillate.
const DefaultEpsilon = 0.5

// Analyzer derives a direction from a scope's recent history.
type Analyzer struct {
	epsilon float64
	window  int // k: compare the mean of the last k samples vs the preceding k
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithEpsilon overrides the stability band (percentage points).
func WithEpsilon(eps float64) Option {
	return func(a *Analyzer) {
		if eps >= 0 {
			a.epsilon = eps
		}
	}
}

// WithWindow sets k > 1 to average k samples per side instead of comparing
// the two most recent samples.
func WithWindow(k int) Option {
	return func(a *Analyzer) {
		if k > 1 {
			a.window = k
		}
	}
}

func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{epsilon: DefaultEpsilon, window: 1}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Span is the number of trailing samples Classify needs to apply its full
// window; with fewer it degrades to the two-sample comparison.
func (a *Analyzer) Span() int { return 2 * a.window }

// Classify takes a scope's samples oldest first. Fewer than two samples is
// stable by definition. When the window is k and at least 2k samples exist,
// the mean of the newest k is compared against the mean of the preceding k;
// otherwise the two most recent samples are compared.
func (a *Analyzer) Classify(samples []domain.CoverageSample) Direction {
	if len(samples) < 2 {
		return Stable
	}

	var newer, older float64
	if a.window > 1 && len(samples) >= 2*a.window {
		newer = mean(samples[len(samples)-a.window:])
		older = mean(samples[len(samples)-2*a.window : len(samples)-a.window])
	} else {
		newer = samples[len(samples)-1].CoveragePercentage
		older = samples[len(samples)-2].CoveragePercentage
	}

	diff := newer - older
	switch {
	case diff >= a.epsilon:
		return Increasing
	case diff <= -a.epsilon:
		return Decreasing
	default:
		return Stable
	}
}

func mean(samples []domain.CoverageSample) float64 {
	var sum float64
	for _, s := range samples {
		sum += s.CoveragePercentage
	}
	return sum / float64(len(samples))
}
