package awsops

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v4"

	"github.com/checkward/checkward/validation"
)

const (
	defaultCallTimeout = 30 * time.Second
	defaultMaxRetries  = 3

	// sentinelPrefix marks step parameter values that must be discovered
	// through an auxiliary listing call before the main invocation.
	sentinelPrefix = "auto_detect"
)

// OpKey identifies one registered remote operation.
type OpKey struct {
	Service   string
	Operation string
}

type operationFunc func(ctx context.Context, c *Clients, params map[string]any) (any, error)

type resolverFunc func(ctx context.Context, c *Clients) (string, error)

// Invoker dispatches step invocations through a closed operation registry.
// Throttling responses are retried with exponential backoff; every call is
// bounded by a per-call timeout.
type Invoker struct {
	factory    ClientFactory
	timeout    time.Duration
	maxRetries uint64
	ops        map[OpKey]operationFunc
	resolvers  map[string]resolverFunc
}

// NewInvoker builds an invoker with the full operation registry.
func NewInvoker(factory ClientFactory) *Invoker {
	inv := &Invoker{
		factory:    factory,
		timeout:    defaultCallTimeout,
		maxRetries: defaultMaxRetries,
		ops:        make(map[OpKey]operationFunc),
		resolvers:  make(map[string]resolverFunc),
	}
	registerOperations(inv)
	registerResolvers(inv)
	return inv
}

func (inv *Invoker) register(service, operation string, fn operationFunc) {
	inv.ops[OpKey{Service: service, Operation: operation}] = fn
}

func (inv *Invoker) registerResolver(sentinel string, fn resolverFunc) {
	inv.resolvers[sentinel] = fn
}

// Operations returns the registered operation keys, for diagnostics.
func (inv *Invoker) Operations() []OpKey {
	keys := make([]OpKey, 0, len(inv.ops))
	for k := range inv.ops {
		keys = append(keys, k)
	}
	return keys
}

// Invoke performs one remote operation using the run's execution context.
func (inv *Invoker) Invoke(ctx context.Context, session validation.Session, service, operation string, params map[string]any) (any, error) {
	ec, ok := session.(*ExecutionContext)
	if !ok {
		return nil, fmt.Errorf("unexpected session type %T", session)
	}

	op, ok := inv.ops[OpKey{Service: service, Operation: operation}]
	if !ok {
		return nil, &validation.UnsupportedOperationError{Service: service, Operation: operation}
	}

	clients := inv.factory(ec.Config)

	resolved, err := inv.preResolve(ctx, clients, service, operation, params)
	if err != nil {
		return nil, err
	}

	resp, err := inv.call(ctx, func(callCtx context.Context) (any, error) {
		return op(callCtx, clients, resolved)
	})
	if err != nil {
		return nil, &validation.InvocationError{Service: service, Operation: operation, Err: err}
	}
	return resp, nil
}

// preResolve substitutes sentinel parameter values with concrete identifiers
// discovered through auxiliary listing calls. An empty listing is a
// precondition failure for the step.
func (inv *Invoker) preResolve(ctx context.Context, clients *Clients, service, operation string, params map[string]any) (map[string]any, error) {
	var out map[string]any
	for key, value := range params {
		s, isString := value.(string)
		if !isString || !strings.HasPrefix(s, sentinelPrefix) {
			continue
		}

		resolver, ok := inv.resolvers[s]
		if !ok {
			return nil, &validation.InvocationError{
				Service: service, Operation: operation,
				Err: fmt.Errorf("unknown sentinel %q for parameter %s", s, key),
			}
		}

		resolvedAny, err := inv.call(ctx, func(callCtx context.Context) (any, error) {
			return resolver(callCtx, clients)
		})
		if err != nil {
			return nil, &validation.InvocationError{
				Service: service, Operation: operation, Precondition: true, Err: err,
			}
		}
		resolvedValue := resolvedAny.(string)
		if resolvedValue == "" {
			return nil, &validation.InvocationError{
				Service: service, Operation: operation, Precondition: true,
				Err: fmt.Errorf("nothing to resolve for %q", s),
			}
		}

		if out == nil {
			out = make(map[string]any, len(params))
			for k, v := range params {
				out[k] = v
			}
		}
		out[key] = resolvedValue
	}
	if out == nil {
		return params, nil
	}
	return out, nil
}

// call runs one remote call with the per-call timeout, retrying only
// throttling failures.
func (inv *Invoker) call(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	var resp any
	attempt := func() error {
		callCtx, cancel := context.WithTimeout(ctx, inv.timeout)
		defer cancel()

		var err error
		resp, err = fn(callCtx)
		if err != nil {
			if throttled(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), inv.maxRetries), ctx)
	if err := backoff.Retry(attempt, bo); err != nil {
		return nil, err
	}
	return resp, nil
}

func throttled(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "Throttling", "ThrottlingException", "TooManyRequestsException", "RequestLimitExceeded", "SlowDown":
		return true
	}
	return false
}
