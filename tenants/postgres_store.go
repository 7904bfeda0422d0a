package tenants

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed tenant store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Put inserts a new tenant.
func (s *PostgresStore) Put(t *Tenant) error {
	if t.ID == "" {
		return fmt.Errorf("tenant requires an id")
	}
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now

	checks, err := json.Marshal(t.EnabledChecks)
	if err != nil {
		return fmt.Errorf("failed to marshal enabled checks: %w", err)
	}

	var exists bool
	err = s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM tenants WHERE id = $1)`, t.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check tenant existence: %w", err)
	}
	if exists {
		return fmt.Errorf("tenant %s already exists", t.ID)
	}

	_, err = s.db.Exec(`
		INSERT INTO tenants (id, name, status, account_id, region, role_arn, external_id, enabled_checks, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, t.ID, t.Name, t.Status, t.AccountID, t.Region, t.RoleARN, t.ExternalID,
		checks, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert tenant: %w", err)
	}
	return nil
}

func scanTenant(row interface{ Scan(...any) error }) (*Tenant, error) {
	var t Tenant
	var checks []byte
	err := row.Scan(&t.ID, &t.Name, &t.Status, &t.AccountID, &t.Region,
		&t.RoleARN, &t.ExternalID, &checks, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(checks) > 0 {
		if err := json.Unmarshal(checks, &t.EnabledChecks); err != nil {
			return nil, fmt.Errorf("failed to decode enabled checks: %w", err)
		}
	}
	return &t, nil
}

const tenantColumns = `id, name, status, account_id, region, role_arn, external_id, enabled_checks, created_at, updated_at`

// Get retrieves a tenant by id.
func (s *PostgresStore) Get(id string) (*Tenant, error) {
	row := s.db.QueryRow(`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)

	t, err := scanTenant(row)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return t, nil
}

// List returns all tenants sorted by id.
func (s *PostgresStore) List() ([]*Tenant, error) {
	rows, err := s.db.Query(`SELECT ` + tenantColumns + ` FROM tenants ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var out []*Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tenants: %w", err)
	}
	return out, nil
}

// Update replaces an existing tenant.
func (s *PostgresStore) Update(t *Tenant) error {
	t.UpdatedAt = time.Now()

	checks, err := json.Marshal(t.EnabledChecks)
	if err != nil {
		return fmt.Errorf("failed to marshal enabled checks: %w", err)
	}

	result, err := s.db.Exec(`
		UPDATE tenants
		SET name = $1, status = $2, account_id = $3, region = $4, role_arn = $5,
		    external_id = $6, enabled_checks = $7, updated_at = $8
		WHERE id = $9
	`, t.Name, t.Status, t.AccountID, t.Region, t.RoleARN, t.ExternalID,
		checks, t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return &ErrNotFound{ID: t.ID}
	}
	return nil
}

// Delete removes a tenant.
func (s *PostgresStore) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return &ErrNotFound{ID: id}
	}
	return nil
}
