/*
Package scoring holds the pure, side-effect-free figures of the engine.

  readiness.go:   four wellness metrics -> 0..100 score + GREEN/YELLOW/RED
  punctuality.go: check-in instant vs shift start + grace -> GREEN/YELLOW
  grade.go:       attendance weights, performance score, letter grades

Rounding uses shopspring/decimal (half away from zero) so that figures such as
82.5 or 0.6*85 never drift through binary floating point.
*/
package scoring

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrMetricOutOfRange is the sentinel behind MetricError.
var ErrMetricOutOfRange = errors.New("metric out of range")

const (
	MinMetric = 1
	MaxMetric = 10
)

// Status is a traffic-light bucket shared by readiness and punctuality.
type Status string

const (
	Green  Status = "GREEN"
	Yellow Status = "YELLOW"
	Red    Status = "RED"
)

// Readiness thresholds on the 0..100 score.
const (
	GreenThreshold  = 70
	YellowThreshold = 50
)

// Metrics are the four self-reported values, each in [1,10].
// Stress is the only one where higher is worse.
type Metrics struct {
	Mood     int `json:"mood"`
	Stress   int `json:"stress"`
	Sleep    int `json:"sleep"`
	Physical int `json:"physical_health"`
}

// MetricError names the offending metric.
type MetricError struct {
	Metric string
	Value  int
}

func (e *MetricError) Error() string {
	return fmt.Sprintf("%s must be between %d and %d, got %d", e.Metric, MinMetric, MaxMetric, e.Value)
}

func (e *MetricError) Unwrap() error { return ErrMetricOutOfRange }

// Validate checks every metric is in range.
func (m Metrics) Validate() error {
	for _, f := range []struct {
		name  string
		value int
	}{
		{"mood", m.Mood},
		{"stress", m.Stress},
		{"sleep", m.Sleep},
		{"physical_health", m.Physical},
	} {
		if f.value < MinMetric || f.value > MaxMetric {
			return &MetricError{Metric: f.name, Value: f.value}
		}
	}
	return nil
}

// Readiness is the derived result stored with a check-in.
type Readiness struct {
	Score  int    `json:"score"`
	Status Status `json:"status"`
}

var (
	four    = decimal.NewFromInt(4)
	ten     = decimal.NewFromInt(10)
	hundred = decimal.NewFromInt(100)
)

// ScoreCheckin computes round(avg(mood, 11-stress, sleep, physical) / 10 * 100).
func ScoreCheckin(m Metrics) (Readiness, error) {
	if err := m.Validate(); err != nil {
		return Readiness{}, err
	}
	sum := decimal.NewFromInt(int64(m.Mood + (11 - m.Stress) + m.Sleep + m.Physical))
	avg := sum.Div(four)
	score := int(avg.Div(ten).Mul(hundred).Round(0).IntPart())
	return Readiness{Score: score, Status: ReadinessStatus(score)}, nil
}

// ReadinessStatus buckets a score.
func ReadinessStatus(score int) Status {
	switch {
	case score >= GreenThreshold:
		return Green
	case score >= YellowThreshold:
		return Yellow
	default:
		return Red
	}
}
