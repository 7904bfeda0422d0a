// Package validation runs data-described compliance checks against a tenant's
// remote environment and reduces the observed evidence to a scored verdict.
package validation

import "context"

// Execution statuses.
const (
	StatusPass  = "PASS"
	StatusFail  = "FAIL"
	StatusError = "ERROR"
)

// Metrics is the normalized evidence extracted from step responses.
// Boolean observations are carried as 0 or 1.
type Metrics map[string]float64

// Merge overlays other onto m. Later evidence for a metric name wins.
func (m Metrics) Merge(other Metrics) {
	for k, v := range other {
		m[k] = v
	}
}

// StepResult records the outcome of one executed step.
type StepResult struct {
	StepID    int     `json:"step_id"`
	Succeeded bool    `json:"succeeded"`
	Metrics   Metrics `json:"metrics,omitempty"`
	Error     string  `json:"error,omitempty"`
	Summary   string  `json:"summary"`
}

// ExecutionResult is the single value produced per run. Its JSON shape is
// stable and consumed by downstream reporting.
type ExecutionResult struct {
	CheckID        string         `json:"check_id"`
	ExecutionID    string         `json:"execution_id"`
	TenantID       string         `json:"tenant_id"`
	Status         string         `json:"status"`
	Score          *float64       `json:"score,omitempty"`
	Findings       []string       `json:"findings"`
	StepResults    []StepResult   `json:"step_results"`
	RuleVersion    string         `json:"rule_version"`
	ParametersUsed map[string]any `json:"parameters_used"`
}

// Trigger describes what initiated a run. It is logged and recorded alongside
// the result but is not part of the result document itself.
type Trigger struct {
	Source      string `json:"source"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// Session is the scoped execution context acquired once per run and passed
// unchanged into every step invocation. The orchestrator treats it as opaque.
type Session any

// CredentialProvider acquires a scoped execution context for a tenant's
// target environment.
type CredentialProvider interface {
	Acquire(ctx context.Context, accountID, region, roleARN, externalID string) (Session, error)
}

// Invoker performs one remote operation against the tenant environment.
// Implementations expose a closed, registered set of (service, operation)
// pairs; anything else fails with an UnsupportedOperationError.
type Invoker interface {
	Invoke(ctx context.Context, session Session, service, operation string, params map[string]any) (any, error)
}

// MetricExtractor maps a (service, operation, response) triple to normalized
// metrics. Unregistered pairs yield an empty set, not an error.
type MetricExtractor interface {
	Extract(service, operation string, response any) Metrics
}

// Recorder persists execution results. Save is called exactly once per run
// that got past its preconditions, including ERROR outcomes.
type Recorder interface {
	Save(ctx context.Context, result *ExecutionResult, trigger Trigger) error
}
