// Package awsops binds the validation engine to AWS. It acquires scoped
// execution contexts through STS, exposes a closed registry of remote
// operations over narrow per-service client interfaces, and extracts
// normalized metrics from raw service responses.
package awsops

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// ExecutionContext is the scoped access handle for one run. It satisfies
// the engine's opaque session contract; only this package looks inside.
type ExecutionContext struct {
	Config    aws.Config
	AccountID string

	// ExpiresAt is zero when the context uses the service's own identity
	// rather than time-boxed assumed-role credentials.
	ExpiresAt time.Time
}
