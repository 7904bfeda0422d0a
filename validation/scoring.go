package validation

import (
	"fmt"
	"strconv"

	"github.com/checkward/checkward/rules"
)

// Verdict is the output of scoring one run's accumulated metrics.
type Verdict struct {
	Status   string
	Score    float64
	Findings []string
}

// Score evaluates the weighted pass criteria against the accumulated metrics.
// Criteria are evaluated in declared order; a metric absent from the map is
// treated as 0. An unrecognized operator never passes but still counts toward
// the total weight, which keeps misconfigured criteria from inflating the
// score.
func Score(metrics Metrics, spec rules.ScoringSpec) Verdict {
	var totalWeight, achievedWeight float64
	findings := make([]string, 0, len(spec.PassCriteria))

	for _, c := range spec.PassCriteria {
		actual := metrics[c.Metric]
		passed := evaluate(actual, c.Operator, c.Threshold)

		totalWeight += c.Weight
		if passed {
			achievedWeight += c.Weight
		}

		findings = append(findings, fmt.Sprintf("%s %s %s: actual %s (%s)",
			c.Metric, c.Operator, formatNumber(c.Threshold),
			formatNumber(actual), passFail(passed)))
	}

	score := 0.0
	if totalWeight > 0 {
		score = achievedWeight / totalWeight
	}

	status := StatusFail
	if score >= spec.MinimumScore {
		status = StatusPass
	}

	return Verdict{Status: status, Score: score, Findings: findings}
}

// evaluate applies one comparison operator. Unrecognized operators evaluate
// to false.
func evaluate(actual float64, operator string, threshold float64) bool {
	switch operator {
	case ">=":
		return actual >= threshold
	case ">":
		return actual > threshold
	case "<=":
		return actual <= threshold
	case "<":
		return actual < threshold
	case "==":
		return actual == threshold
	case "!=":
		return actual != threshold
	default:
		return false
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func passFail(passed bool) string {
	if passed {
		return "pass"
	}
	return "fail"
}
