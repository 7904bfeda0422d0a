//go:build integration
// +build integration

package rules_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/checkward/checkward/rules"

	_ "github.com/lib/pq"
)

// setupTestDB creates a PostgreSQL container and returns a connection
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "checkward_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithStartupTimeout(60 * time.Second),
	}

	postgresContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	host, err := postgresContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("host=%s port=%s user=test password=test dbname=checkward_test sslmode=disable", host, port.Port())

	// Wait for connection to be available
	var db *sql.DB
	for i := 0; i < 30; i++ {
		db, err = sql.Open("postgres", connStr)
		if err == nil {
			err = db.Ping()
			if err == nil {
				break
			}
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	migrationSQL, err := os.ReadFile(filepath.Join("..", "migrations", "000001_initial_schema.up.sql"))
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}

	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		postgresContainer.Terminate(ctx)
	}

	return db, cleanup
}

func sampleRule(checkID, version, status string) *rules.Rule {
	return &rules.Rule{
		CheckID:     checkID,
		Version:     version,
		Status:      status,
		Category:    "logging",
		Title:       "Audit trail coverage",
		Description: "Verifies CloudTrail coverage for the tenant account",
		Steps: []rules.Step{
			{StepID: 1, Service: "cloudtrail", Operation: "describe_trails", Required: true, FailurePolicy: rules.FailCheck},
		},
		Scoring: rules.ScoringSpec{
			PassCriteria: []rules.Criterion{
				{Metric: "trail_count", Operator: ">=", Threshold: 1, Weight: 1},
			},
			MinimumScore: 0.8,
		},
		Parameters: map[string]rules.Parameter{
			"retention_days": {Default: float64(90), Description: "Minimum log retention"},
		},
	}
}

func TestPostgresRuleStore_CRUD(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := rules.NewPostgresRuleStore(db)

	rule := sampleRule("KSI-MLA-01", "1.0", rules.StatusActive)
	if err := store.Put(rule); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(sampleRule("KSI-MLA-01", "1.0", rules.StatusActive)); err == nil {
		t.Error("expected error on duplicate version")
	}

	got, err := store.Get("KSI-MLA-01", "1.0")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Title != rule.Title || len(got.Steps) != 1 {
		t.Errorf("round-tripped rule does not match: %+v", got)
	}
	if got.Parameters["retention_days"].Default != float64(90) {
		t.Errorf("unexpected parameter default: %v", got.Parameters["retention_days"].Default)
	}

	got.Status = rules.StatusInactive
	if err := store.Update(got); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	updated, err := store.Get("KSI-MLA-01", "1.0")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if updated.Status != rules.StatusInactive {
		t.Errorf("expected inactive status, got %s", updated.Status)
	}

	if err := store.Delete("KSI-MLA-01", "1.0"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get("KSI-MLA-01", "1.0"); err == nil {
		t.Error("expected Get to fail after delete")
	}
}

func TestPostgresRuleStore_ActiveResolution(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := rules.NewPostgresRuleStore(db)

	for _, v := range []struct {
		version string
		status  string
	}{
		{"1.0", rules.StatusActive},
		{"1.9", rules.StatusActive},
		{"1.10", rules.StatusActive},
		{"2.0", rules.StatusInactive},
	} {
		if err := store.Put(sampleRule("KSI-MLA-01", v.version, v.status)); err != nil {
			t.Fatalf("Put %s failed: %v", v.version, err)
		}
	}
	if err := store.Put(sampleRule("KSI-SVC-03", "1.0", rules.StatusActive)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.GetActiveRule("KSI-MLA-01")
	if err != nil {
		t.Fatalf("GetActiveRule failed: %v", err)
	}
	if got.Version != "1.10" {
		t.Errorf("expected version 1.10, got %s", got.Version)
	}

	active, err := store.ListActive()
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active checks, got %d", len(active))
	}
	if active[0].CheckID != "KSI-MLA-01" || active[0].Version != "1.10" {
		t.Errorf("unexpected first active rule: %s", active[0].ID())
	}

	var notFound *rules.ErrNoActiveRule
	if _, err := store.GetActiveRule("KSI-NOPE"); !errors.As(err, &notFound) {
		t.Errorf("expected ErrNoActiveRule, got %v", err)
	}
}

func TestPostgresOverrideStore(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := rules.NewPostgresOverrideStore(db)

	o := &rules.Override{
		TenantID:         "tenant-a",
		RuleID:           "KSI-MLA-01-v1.0",
		Enabled:          true,
		CustomParameters: map[string]any{"retention_days": float64(365)},
	}
	if err := store.Put(o); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get("tenant-a", "KSI-MLA-01-v1.0")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil || got.CustomParameters["retention_days"] != float64(365) {
		t.Fatalf("unexpected override: %+v", got)
	}

	got, err = store.Get("tenant-a", "KSI-SVC-03-v1.0")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for absent override, got %+v", got)
	}

	// Upsert replaces
	if err := store.Put(&rules.Override{TenantID: "tenant-a", RuleID: "KSI-MLA-01-v1.0", Enabled: false}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err = store.Get("tenant-a", "KSI-MLA-01-v1.0")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Enabled {
		t.Error("expected upsert to disable the override")
	}

	if err := store.Put(&rules.Override{TenantID: "tenant-a", RuleID: "KSI-CNA-02-v1.0", Enabled: true}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	list, err := store.List("tenant-a")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 overrides, got %d", len(list))
	}

	if err := store.Delete("tenant-a", "KSI-CNA-02-v1.0"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete("tenant-a", "KSI-CNA-02-v1.0"); err == nil {
		t.Error("expected error deleting missing override")
	}
}
