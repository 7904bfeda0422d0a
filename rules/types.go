package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Rule statuses. Only one active version per check is authoritative at a time.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Failure policies applied when a step's remote call fails.
const (
	FailCheck = "fail_check"
	Warn      = "warn"
	Ignore    = "ignore"
)

// Rule is one immutable version of a compliance check definition. Checks are
// data: an ordered list of remote inspection steps plus the scoring spec that
// turns their evidence into a verdict.
type Rule struct {
	CheckID     string               `json:"check_id"`
	Version     string               `json:"version"`
	Status      string               `json:"status"`
	Category    string               `json:"category"`
	Title       string               `json:"title"`
	Description string               `json:"description,omitempty"`
	Steps       []Step               `json:"steps"`
	Scoring     ScoringSpec          `json:"scoring"`
	Parameters  map[string]Parameter `json:"configurable_parameters,omitempty"`
	CreatedAt   time.Time            `json:"created_at,omitempty"`
	UpdatedAt   time.Time            `json:"updated_at,omitempty"`
}

// ID returns the versioned rule identity, e.g. "KSI-MLA-01-v1.0".
// Overrides are keyed by this identity.
func (r *Rule) ID() string {
	return fmt.Sprintf("%s-v%s", r.CheckID, r.Version)
}

// Active reports whether this version is eligible to run.
func (r *Rule) Active() bool {
	return r.Status == StatusActive
}

// Step is one declared remote inspection action within a rule.
// StepID determines execution order within the rule.
type Step struct {
	StepID        int            `json:"step_id"`
	Service       string         `json:"target_service"`
	Operation     string         `json:"operation"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	Required      bool           `json:"required"`
	FailurePolicy string         `json:"failure_policy"`
	Description   string         `json:"description,omitempty"`
}

// Parameter is a tenant-configurable knob declared by a rule.
type Parameter struct {
	Default     any    `json:"default"`
	Description string `json:"description,omitempty"`
}

// ScoringSpec holds the weighted pass criteria for a rule.
type ScoringSpec struct {
	PassCriteria []Criterion `json:"pass_criteria"`
	MinimumScore float64     `json:"minimum_score"`
	// CriticalFailureMetrics is carried for rule authors but not consumed
	// by scoring; the verdict is defined entirely by the weighted criteria.
	CriticalFailureMetrics []string `json:"critical_failure_metrics,omitempty"`
}

// Criterion is one weighted pass condition over an extracted metric.
type Criterion struct {
	Metric      string  `json:"metric_name"`
	Operator    string  `json:"operator"`
	Threshold   float64 `json:"threshold"`
	Weight      float64 `json:"weight"`
	Description string  `json:"description,omitempty"`
}

// Override is a tenant-specific adjustment to a rule version.
// CustomParameters keys that the rule does not declare are ignored.
type Override struct {
	TenantID         string         `json:"tenant_id"`
	RuleID           string         `json:"rule_id"`
	Enabled          bool           `json:"enabled"`
	CustomParameters map[string]any `json:"custom_parameters,omitempty"`
	UpdatedAt        time.Time      `json:"updated_at,omitempty"`
}

// CompareVersions orders dotted version strings segment-wise numerically, so
// "1.10" sorts after "1.9". Non-numeric segments fall back to lexical order.
// Returns -1, 0 or 1.
func CompareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var sa, sb string
		if i < len(as) {
			sa = as[i]
		}
		if i < len(bs) {
			sb = bs[i]
		}
		na, errA := strconv.Atoi(sa)
		nb, errB := strconv.Atoi(sb)
		if errA == nil && errB == nil {
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
			continue
		}
		if sa != sb {
			if sa < sb {
				return -1
			}
			return 1
		}
	}
	return 0
}
