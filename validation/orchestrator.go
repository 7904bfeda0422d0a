package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/checkward/checkward/rules"
	"github.com/checkward/checkward/tenants"
)

// Orchestrator drives one check run end to end: resolve the active rule,
// merge tenant overrides, acquire an execution context, run the declared
// steps, score the accumulated evidence, and hand the result to the recorder.
//
// All collaborators are injected; the orchestrator holds no mutable state of
// its own, so a single instance may serve concurrent runs.
type Orchestrator struct {
	rules     rules.RuleStore
	overrides rules.OverrideStore
	tenants   tenants.Store
	cache     rules.DefinitionCache
	creds     CredentialProvider
	invoker   Invoker
	extractor MetricExtractor
	recorder  Recorder
	logger    *slog.Logger
}

// OrchestratorConfig carries the orchestrator's collaborators. Cache and
// Logger are optional.
type OrchestratorConfig struct {
	Rules     rules.RuleStore
	Overrides rules.OverrideStore
	Tenants   tenants.Store
	Cache     rules.DefinitionCache
	Creds     CredentialProvider
	Invoker   Invoker
	Extractor MetricExtractor
	Recorder  Recorder
	Logger    *slog.Logger
}

// NewOrchestrator creates an orchestrator from its collaborators.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	switch {
	case cfg.Rules == nil:
		return nil, fmt.Errorf("orchestrator requires a rule store")
	case cfg.Overrides == nil:
		return nil, fmt.Errorf("orchestrator requires an override store")
	case cfg.Tenants == nil:
		return nil, fmt.Errorf("orchestrator requires a tenant store")
	case cfg.Creds == nil:
		return nil, fmt.Errorf("orchestrator requires a credential provider")
	case cfg.Invoker == nil:
		return nil, fmt.Errorf("orchestrator requires an invoker")
	case cfg.Extractor == nil:
		return nil, fmt.Errorf("orchestrator requires a metric extractor")
	case cfg.Recorder == nil:
		return nil, fmt.Errorf("orchestrator requires a recorder")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		rules:     cfg.Rules,
		overrides: cfg.Overrides,
		tenants:   cfg.Tenants,
		cache:     cfg.Cache,
		creds:     cfg.Creds,
		invoker:   cfg.Invoker,
		extractor: cfg.Extractor,
		recorder:  cfg.Recorder,
		logger:    logger,
	}, nil
}

// RunCheck executes one check for one tenant.
//
// Pre-run preconditions (unknown tenant, suspended tenant, no active rule,
// tenant-disabled check) are returned as errors and nothing is recorded.
// Once a run starts, every outcome including ERROR is represented as an
// ExecutionResult and saved exactly once.
func (o *Orchestrator) RunCheck(ctx context.Context, checkID, tenantID string, trigger Trigger) (*ExecutionResult, error) {
	tenant, err := o.tenants.Get(tenantID)
	if err != nil {
		return nil, err
	}
	if !tenant.Active() {
		return nil, fmt.Errorf("tenant %s is %s", tenantID, tenant.Status)
	}
	if !tenant.CheckEnabled(checkID) {
		return nil, ErrCheckDisabled
	}

	rule, err := o.resolveRule(checkID)
	if err != nil {
		return nil, err
	}

	override, err := o.overrides.Get(tenantID, rule.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to load override: %w", err)
	}
	if override != nil && !override.Enabled {
		return nil, ErrCheckDisabled
	}

	params := ResolveParameters(rule.Parameters, override)

	result := &ExecutionResult{
		CheckID:        checkID,
		ExecutionID:    newExecutionID(),
		TenantID:       tenantID,
		Findings:       []string{},
		StepResults:    []StepResult{},
		RuleVersion:    rule.Version,
		ParametersUsed: params,
	}

	log := o.logger.With(
		slog.String("execution_id", result.ExecutionID),
		slog.String("check_id", checkID),
		slog.String("tenant_id", tenantID),
		slog.String("rule_version", rule.Version),
	)
	log.Info("starting check run", slog.String("trigger", trigger.Source))

	session, err := o.creds.Acquire(ctx, tenant.AccountID, tenant.Region, tenant.RoleARN, tenant.ExternalID)
	if err != nil {
		credErr := &CredentialError{TenantID: tenantID, Err: err}
		log.Error("context acquisition failed", slog.String("error", credErr.Error()))
		result.Status = StatusError
		return o.record(ctx, result, trigger)
	}

	o.runSteps(ctx, log, rule, params, session, result)

	if result.Status == "" {
		verdict := Score(accumulate(result.StepResults), rule.Scoring)
		result.Status = verdict.Status
		result.Score = &verdict.Score
		result.Findings = verdict.Findings
	}

	log.Info("check run finished", slog.String("status", result.Status))
	return o.record(ctx, result, trigger)
}

// runSteps executes the rule's steps in ascending step id order, applying
// each step's failure policy. It sets result.Status only when the run is
// forced to FAIL or ERROR; otherwise scoring decides.
func (o *Orchestrator) runSteps(ctx context.Context, log *slog.Logger, rule *rules.Rule, params map[string]any, session Session, result *ExecutionResult) {
	steps := make([]rules.Step, len(rule.Steps))
	copy(steps, rule.Steps)
	sort.Slice(steps, func(i, j int) bool { return steps[i].StepID < steps[j].StepID })

	for _, step := range steps {
		// Cancellation is cooperative: checked between steps, never mid-call.
		if err := ctx.Err(); err != nil {
			log.Warn("run cancelled", slog.Int("step_id", step.StepID))
			result.Status = StatusError
			return
		}

		stepParams := resolveStepParameters(step.Parameters, params)
		resp, err := o.invoker.Invoke(ctx, session, step.Service, step.Operation, stepParams)
		if err != nil {
			if o.failStep(log, step, err, result) {
				return
			}
			continue
		}

		metrics := o.extractor.Extract(step.Service, step.Operation, resp)
		result.StepResults = append(result.StepResults, StepResult{
			StepID:    step.StepID,
			Succeeded: true,
			Metrics:   metrics,
			Summary:   fmt.Sprintf("%s.%s returned %d metrics", step.Service, step.Operation, len(metrics)),
		})
		log.Debug("step succeeded",
			slog.Int("step_id", step.StepID),
			slog.String("operation", step.Service+"."+step.Operation),
			slog.Int("metrics", len(metrics)))
	}
}

// failStep applies a step's failure policy and reports whether the run must
// abort. An unsupported operation always aborts: it is a configuration
// defect, not a transient condition.
func (o *Orchestrator) failStep(log *slog.Logger, step rules.Step, err error, result *ExecutionResult) (abort bool) {
	result.StepResults = append(result.StepResults, StepResult{
		StepID:  step.StepID,
		Error:   err.Error(),
		Summary: fmt.Sprintf("%s.%s failed", step.Service, step.Operation),
	})

	policy := step.FailurePolicy
	var unsupported *UnsupportedOperationError
	if errors.As(err, &unsupported) {
		policy = rules.FailCheck
	}

	switch policy {
	case rules.Warn:
		log.Warn("step failed, continuing",
			slog.Int("step_id", step.StepID), slog.String("error", err.Error()))
		return false
	case rules.Ignore:
		log.Debug("step failed, ignored",
			slog.Int("step_id", step.StepID), slog.String("error", err.Error()))
		return false
	default:
		log.Warn("step failed, aborting run",
			slog.Int("step_id", step.StepID), slog.String("error", err.Error()))
		result.Status = StatusFail
		return true
	}
}

// record saves the result exactly once. The save is detached from the run's
// cancellation so aborted runs still leave a record.
func (o *Orchestrator) record(ctx context.Context, result *ExecutionResult, trigger Trigger) (*ExecutionResult, error) {
	if err := o.recorder.Save(context.WithoutCancel(ctx), result, trigger); err != nil {
		return result, &PersistenceError{ExecutionID: result.ExecutionID, Err: err}
	}
	return result, nil
}

func (o *Orchestrator) resolveRule(checkID string) (*rules.Rule, error) {
	if o.cache != nil {
		if r := o.cache.Get(checkID); r != nil {
			return r, nil
		}
	}
	rule, err := o.rules.GetActiveRule(checkID)
	if err != nil {
		return nil, err
	}
	if o.cache != nil {
		o.cache.Set(checkID, rule)
	}
	return rule, nil
}

// accumulate merges step metrics in execution order. Later steps overwrite
// earlier evidence of the same name.
func accumulate(stepResults []StepResult) Metrics {
	merged := make(Metrics)
	for _, sr := range stepResults {
		if sr.Succeeded {
			merged.Merge(sr.Metrics)
		}
	}
	return merged
}

func newExecutionID() string {
	return fmt.Sprintf("exec-%d-%s", time.Now().Unix(), uuid.NewString()[:8])
}
