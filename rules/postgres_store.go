package rules

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresRuleStore implements RuleStore backed by PostgreSQL. The full rule
// document is stored as JSONB alongside the columns the resolve queries need.
type PostgresRuleStore struct {
	db *sql.DB
}

// NewPostgresRuleStore creates a new PostgreSQL-backed RuleStore.
func NewPostgresRuleStore(db *sql.DB) *PostgresRuleStore {
	return &PostgresRuleStore{db: db}
}

// Put inserts a new rule version.
func (s *PostgresRuleStore) Put(rule *Rule) error {
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	def, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to marshal rule definition: %w", err)
	}

	var exists bool
	err = s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM rules WHERE check_id = $1 AND version = $2)
	`, rule.CheckID, rule.Version).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check rule existence: %w", err)
	}
	if exists {
		return fmt.Errorf("rule %s already exists", rule.ID())
	}

	_, err = s.db.Exec(`
		INSERT INTO rules (check_id, version, status, category, title, definition, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rule.CheckID, rule.Version, rule.Status, rule.Category, rule.Title, def,
		rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

func scanRule(row interface{ Scan(...any) error }) (*Rule, error) {
	var def []byte
	if err := row.Scan(&def); err != nil {
		return nil, err
	}
	var rule Rule
	if err := json.Unmarshal(def, &rule); err != nil {
		return nil, fmt.Errorf("failed to decode rule definition: %w", err)
	}
	return &rule, nil
}

// Get retrieves one version of a check's rule.
func (s *PostgresRuleStore) Get(checkID, version string) (*Rule, error) {
	row := s.db.QueryRow(`
		SELECT definition FROM rules WHERE check_id = $1 AND version = $2
	`, checkID, version)

	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rule %s-v%s not found", checkID, version)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// GetActiveRule resolves the active version with the highest version number.
func (s *PostgresRuleStore) GetActiveRule(checkID string) (*Rule, error) {
	row := s.db.QueryRow(`
		SELECT definition FROM rules
		WHERE check_id = $1 AND status = 'active'
		ORDER BY string_to_array(version, '.')::int[] DESC
		LIMIT 1
	`, checkID)

	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, &ErrNoActiveRule{CheckID: checkID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve active rule: %w", err)
	}
	return rule, nil
}

// List returns all stored rule versions.
func (s *PostgresRuleStore) List() ([]*Rule, error) {
	rows, err := s.db.Query(`
		SELECT definition FROM rules
		ORDER BY check_id ASC, string_to_array(version, '.')::int[] ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var all []*Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return all, nil
}

// ListActive returns the authoritative definition for each check.
func (s *PostgresRuleStore) ListActive() ([]*Rule, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT ON (check_id) definition FROM rules
		WHERE status = 'active'
		ORDER BY check_id ASC, string_to_array(version, '.')::int[] DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rules: %w", err)
	}
	defer rows.Close()

	var active []*Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		active = append(active, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return active, nil
}

// Update replaces an existing rule version.
func (s *PostgresRuleStore) Update(rule *Rule) error {
	existing, err := s.Get(rule.CheckID, rule.Version)
	if err != nil {
		return err
	}
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()

	def, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to marshal rule definition: %w", err)
	}

	result, err := s.db.Exec(`
		UPDATE rules
		SET status = $1, category = $2, title = $3, definition = $4, updated_at = $5
		WHERE check_id = $6 AND version = $7
	`, rule.Status, rule.Category, rule.Title, def, rule.UpdatedAt,
		rule.CheckID, rule.Version)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("rule %s not found", rule.ID())
	}
	return nil
}

// Delete removes one version of a check's rule.
func (s *PostgresRuleStore) Delete(checkID, version string) error {
	result, err := s.db.Exec(`
		DELETE FROM rules WHERE check_id = $1 AND version = $2
	`, checkID, version)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("rule %s-v%s not found", checkID, version)
	}
	return nil
}

// PostgresOverrideStore implements OverrideStore backed by PostgreSQL.
type PostgresOverrideStore struct {
	db *sql.DB
}

// NewPostgresOverrideStore creates a new PostgreSQL-backed OverrideStore.
func NewPostgresOverrideStore(db *sql.DB) *PostgresOverrideStore {
	return &PostgresOverrideStore{db: db}
}

// Put stores or replaces a tenant's override for a rule.
func (s *PostgresOverrideStore) Put(o *Override) error {
	if o.TenantID == "" || o.RuleID == "" {
		return fmt.Errorf("override requires tenant_id and rule_id")
	}
	o.UpdatedAt = time.Now()

	params, err := json.Marshal(o.CustomParameters)
	if err != nil {
		return fmt.Errorf("failed to marshal custom parameters: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO tenant_rule_overrides (tenant_id, rule_id, enabled, custom_parameters, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, rule_id)
		DO UPDATE SET enabled = $3, custom_parameters = $4, updated_at = $5
	`, o.TenantID, o.RuleID, o.Enabled, params, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert override: %w", err)
	}
	return nil
}

// Get returns the tenant's override for a rule, or nil when absent.
func (s *PostgresOverrideStore) Get(tenantID, ruleID string) (*Override, error) {
	var o Override
	var params []byte
	err := s.db.QueryRow(`
		SELECT tenant_id, rule_id, enabled, custom_parameters, updated_at
		FROM tenant_rule_overrides
		WHERE tenant_id = $1 AND rule_id = $2
	`, tenantID, ruleID).Scan(&o.TenantID, &o.RuleID, &o.Enabled, &params, &o.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get override: %w", err)
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &o.CustomParameters); err != nil {
			return nil, fmt.Errorf("failed to decode custom parameters: %w", err)
		}
	}
	return &o, nil
}

// List returns every override stored for the tenant.
func (s *PostgresOverrideStore) List(tenantID string) ([]*Override, error) {
	rows, err := s.db.Query(`
		SELECT tenant_id, rule_id, enabled, custom_parameters, updated_at
		FROM tenant_rule_overrides
		WHERE tenant_id = $1
		ORDER BY rule_id ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	defer rows.Close()

	var out []*Override
	for rows.Next() {
		var o Override
		var params []byte
		if err := rows.Scan(&o.TenantID, &o.RuleID, &o.Enabled, &params, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &o.CustomParameters); err != nil {
				return nil, fmt.Errorf("failed to decode custom parameters: %w", err)
			}
		}
		out = append(out, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating overrides: %w", err)
	}
	return out, nil
}

// Delete removes a tenant's override for a rule.
func (s *PostgresOverrideStore) Delete(tenantID, ruleID string) error {
	result, err := s.db.Exec(`
		DELETE FROM tenant_rule_overrides WHERE tenant_id = $1 AND rule_id = $2
	`, tenantID, ruleID)
	if err != nil {
		return fmt.Errorf("failed to delete override: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("override for %s/%s not found", tenantID, ruleID)
	}
	return nil
}
