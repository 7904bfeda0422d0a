package validation

import (
	"strings"

	"github.com/checkward/checkward/rules"
)

// paramRefPrefix marks a step parameter value that references a resolved
// configurable parameter, e.g. "$param:retention_days".
const paramRefPrefix = "$param:"

// ResolveParameters merges a rule's declared parameter defaults with a
// tenant's override values. Override keys not declared by the rule are
// silently dropped. Deterministic for identical inputs.
func ResolveParameters(declared map[string]rules.Parameter, override *rules.Override) map[string]any {
	resolved := make(map[string]any, len(declared))
	for name, p := range declared {
		resolved[name] = p.Default
	}
	if override == nil {
		return resolved
	}
	for name, value := range override.CustomParameters {
		if _, ok := declared[name]; ok {
			resolved[name] = value
		}
	}
	return resolved
}

// resolveStepParameters copies a step's parameter mapping, substituting
// "$param:<name>" string values with the resolved configurable parameter of
// that name. Unknown references pass through unchanged.
func resolveStepParameters(stepParams map[string]any, resolved map[string]any) map[string]any {
	if len(stepParams) == 0 {
		return nil
	}
	out := make(map[string]any, len(stepParams))
	for key, value := range stepParams {
		if s, ok := value.(string); ok && strings.HasPrefix(s, paramRefPrefix) {
			name := strings.TrimPrefix(s, paramRefPrefix)
			if v, ok := resolved[name]; ok {
				out[key] = v
				continue
			}
		}
		out[key] = value
	}
	return out
}
