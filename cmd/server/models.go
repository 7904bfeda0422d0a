package main

// API request and response models. Rule, tenant, and override records marshal
// through their domain types directly; only the validate and override
// endpoints carry request-specific shapes.

// ValidateRequest is the request body for running checks. When CheckID is set
// a single check runs and the response is its ExecutionResult. Otherwise the
// tenant's enabled checks run as a batch: every active check when ValidateAll
// is set, or the checks named in CheckFilter.
type ValidateRequest struct {
	CheckID       string   `json:"check_id,omitempty" example:"KSI-MLA-01"`
	CheckFilter   []string `json:"check_filter,omitempty"`
	ValidateAll   bool     `json:"validate_all,omitempty"`
	TenantID      string   `json:"tenant_id" example:"tenant-acme"`
	TriggerSource string   `json:"trigger_source,omitempty" example:"scheduled"`
	RequestedBy   string   `json:"requested_by,omitempty" example:"ops@example.com"`
}

// CheckSummary is one check's outcome within a batch validation response.
type CheckSummary struct {
	CheckID     string   `json:"check_id"`
	ExecutionID string   `json:"execution_id,omitempty"`
	Status      string   `json:"status"`
	Score       *float64 `json:"score,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// BatchValidateResponse summarizes a batch validation run.
type BatchValidateResponse struct {
	TenantID string         `json:"tenant_id"`
	Results  []CheckSummary `json:"results"`
	Counts   map[string]int `json:"counts"`
}

// OverrideRequest is the request body for storing a tenant override. The
// tenant and rule ids come from the URL.
type OverrideRequest struct {
	Enabled          bool           `json:"enabled" example:"true"`
	CustomParameters map[string]any `json:"custom_parameters,omitempty"`
}
