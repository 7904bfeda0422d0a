// Package tenants manages the organizations whose AWS accounts are validated.
// Each tenant record carries the execution context its checks run against:
// the target account, region, and the role to assume there.
package tenants

import "time"

const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// Tenant is an onboarded organization.
type Tenant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	AccountID string `json:"account_id"`
	Region    string `json:"region"`

	// RoleARN is the role assumed in the tenant account before any remote
	// call. Empty means the service's own credentials are used directly.
	RoleARN string `json:"role_arn,omitempty"`

	// ExternalID is passed on the assume-role call when the tenant's trust
	// policy requires one.
	ExternalID string `json:"external_id,omitempty"`

	// EnabledChecks limits which checks may run for this tenant. Empty
	// means all checks are allowed.
	EnabledChecks []string `json:"enabled_checks,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the tenant may run validations.
func (t *Tenant) Active() bool {
	return t.Status == StatusActive
}

// CheckEnabled reports whether the tenant may run the given check.
func (t *Tenant) CheckEnabled(checkID string) bool {
	if len(t.EnabledChecks) == 0 {
		return true
	}
	for _, id := range t.EnabledChecks {
		if id == checkID {
			return true
		}
	}
	return false
}
