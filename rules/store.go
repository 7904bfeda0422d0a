package rules

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// RuleStore manages rule version persistence and retrieval.
type RuleStore interface {
	// Put stores a new rule version. Fails if that version already exists.
	Put(rule *Rule) error

	// Get retrieves one specific version of a check's rule.
	Get(checkID, version string) (*Rule, error)

	// GetActiveRule resolves the authoritative definition for a check: the
	// active version with the highest version number. Returns ErrNoActiveRule
	// if no version is active.
	GetActiveRule(checkID string) (*Rule, error)

	// List returns every stored version of every check.
	List() ([]*Rule, error)

	// ListActive returns the authoritative definition of each check that has
	// one, sorted by check ID.
	ListActive() ([]*Rule, error)

	// Update replaces an existing rule version in place.
	Update(rule *Rule) error

	// Delete removes one version of a check's rule.
	Delete(checkID, version string) error
}

// OverrideStore manages tenant-specific rule overrides, keyed by
// (tenant_id, rule_id).
type OverrideStore interface {
	Put(o *Override) error

	// Get returns the tenant's override for a rule, or nil if none exists.
	// Absence is not an error: most tenants run rules unmodified.
	Get(tenantID, ruleID string) (*Override, error)

	List(tenantID string) ([]*Override, error)
	Delete(tenantID, ruleID string) error
}

// ErrNoActiveRule is returned when a check has no active version to run.
type ErrNoActiveRule struct {
	CheckID string
}

func (e *ErrNoActiveRule) Error() string {
	return fmt.Sprintf("no active rule for check %s", e.CheckID)
}

// InMemoryRuleStore implements RuleStore using an in-memory map.
// Thread-safe with RWMutex; suitable for tests and single-node deployments.
type InMemoryRuleStore struct {
	versions map[string]map[string]*Rule // checkID -> version -> rule
	mu       sync.RWMutex
}

// NewInMemoryRuleStore creates a new in-memory rule store.
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{
		versions: make(map[string]map[string]*Rule),
	}
}

// Put stores a new rule version and stamps its timestamps.
func (s *InMemoryRuleStore) Put(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byVersion, ok := s.versions[rule.CheckID]
	if !ok {
		byVersion = make(map[string]*Rule)
		s.versions[rule.CheckID] = byVersion
	}
	if _, exists := byVersion[rule.Version]; exists {
		return fmt.Errorf("rule %s already exists", rule.ID())
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	byVersion[rule.Version] = rule
	return nil
}

// Get retrieves one version of a check's rule.
func (s *InMemoryRuleStore) Get(checkID, version string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.versions[checkID][version]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("rule %s-v%s not found", checkID, version)
}

// GetActiveRule resolves the authoritative rule version for a check.
func (s *InMemoryRuleStore) GetActiveRule(checkID string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *Rule
	for _, r := range s.versions[checkID] {
		if !r.Active() {
			continue
		}
		if best == nil || CompareVersions(r.Version, best.Version) > 0 {
			best = r
		}
	}
	if best == nil {
		return nil, &ErrNoActiveRule{CheckID: checkID}
	}
	return best, nil
}

// List returns all stored rule versions.
func (s *InMemoryRuleStore) List() ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*Rule
	for _, byVersion := range s.versions {
		for _, r := range byVersion {
			all = append(all, r)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CheckID != all[j].CheckID {
			return all[i].CheckID < all[j].CheckID
		}
		return CompareVersions(all[i].Version, all[j].Version) < 0
	})
	return all, nil
}

// ListActive returns the authoritative definition for each check.
func (s *InMemoryRuleStore) ListActive() ([]*Rule, error) {
	s.mu.RLock()
	checkIDs := make([]string, 0, len(s.versions))
	for checkID := range s.versions {
		checkIDs = append(checkIDs, checkID)
	}
	s.mu.RUnlock()

	sort.Strings(checkIDs)

	var active []*Rule
	for _, checkID := range checkIDs {
		r, err := s.GetActiveRule(checkID)
		if err != nil {
			continue // no active version for this check
		}
		active = append(active, r)
	}
	return active, nil
}

// Update replaces an existing rule version, preserving CreatedAt.
func (s *InMemoryRuleStore) Update(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.versions[rule.CheckID][rule.Version]
	if !ok {
		return fmt.Errorf("rule %s not found", rule.ID())
	}
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()
	s.versions[rule.CheckID][rule.Version] = rule
	return nil
}

// Delete removes one version of a check's rule.
func (s *InMemoryRuleStore) Delete(checkID, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.versions[checkID][version]; !ok {
		return fmt.Errorf("rule %s-v%s not found", checkID, version)
	}
	delete(s.versions[checkID], version)
	if len(s.versions[checkID]) == 0 {
		delete(s.versions, checkID)
	}
	return nil
}

// InMemoryOverrideStore implements OverrideStore using an in-memory map.
type InMemoryOverrideStore struct {
	overrides map[string]*Override // tenantID + "\x00" + ruleID
	mu        sync.RWMutex
}

// NewInMemoryOverrideStore creates a new in-memory override store.
func NewInMemoryOverrideStore() *InMemoryOverrideStore {
	return &InMemoryOverrideStore{
		overrides: make(map[string]*Override),
	}
}

func overrideKey(tenantID, ruleID string) string {
	return tenantID + "\x00" + ruleID
}

// Put stores or replaces a tenant's override for a rule.
func (s *InMemoryOverrideStore) Put(o *Override) error {
	if o.TenantID == "" || o.RuleID == "" {
		return fmt.Errorf("override requires tenant_id and rule_id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	o.UpdatedAt = time.Now()
	s.overrides[overrideKey(o.TenantID, o.RuleID)] = o
	return nil
}

// Get returns the tenant's override for a rule, or nil when absent.
func (s *InMemoryOverrideStore) Get(tenantID, ruleID string) (*Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.overrides[overrideKey(tenantID, ruleID)], nil
}

// List returns every override stored for the tenant.
func (s *InMemoryOverrideStore) List(tenantID string) ([]*Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Override
	for _, o := range s.overrides {
		if o.TenantID == tenantID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleID < out[j].RuleID })
	return out, nil
}

// Delete removes a tenant's override for a rule.
func (s *InMemoryOverrideStore) Delete(tenantID, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := overrideKey(tenantID, ruleID)
	if _, ok := s.overrides[key]; !ok {
		return fmt.Errorf("override for %s/%s not found", tenantID, ruleID)
	}
	delete(s.overrides, key)
	return nil
}
