package tenants

import (
	"errors"
	"testing"
)

func testTenant(id string) *Tenant {
	return &Tenant{
		ID:        id,
		Name:      "Acme Corp",
		Status:    StatusActive,
		AccountID: "123456789012",
		Region:    "us-east-1",
		RoleARN:   "arn:aws:iam::123456789012:role/ComplianceAudit",
	}
}

func TestCheckEnabled(t *testing.T) {
	tests := []struct {
		name    string
		enabled []string
		checkID string
		want    bool
	}{
		{"empty list allows all", nil, "KSI-MLA-01", true},
		{"listed check allowed", []string{"KSI-MLA-01", "KSI-SVC-03"}, "KSI-MLA-01", true},
		{"unlisted check denied", []string{"KSI-MLA-01"}, "KSI-CNA-02", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tenant := testTenant("tenant-a")
			tenant.EnabledChecks = tt.enabled
			if got := tenant.CheckEnabled(tt.checkID); got != tt.want {
				t.Errorf("CheckEnabled(%q) = %v, want %v", tt.checkID, got, tt.want)
			}
		})
	}
}

func TestInMemoryStoreCRUD(t *testing.T) {
	store := NewInMemoryStore()

	tenant := testTenant("tenant-a")
	if err := store.Put(tenant); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if tenant.CreatedAt.IsZero() {
		t.Error("expected Put to stamp CreatedAt")
	}
	if err := store.Put(testTenant("tenant-a")); err == nil {
		t.Error("expected error on duplicate id")
	}
	if err := store.Put(&Tenant{}); err == nil {
		t.Error("expected error on empty id")
	}

	got, err := store.Get("tenant-a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.AccountID != "123456789012" {
		t.Errorf("unexpected tenant: %+v", got)
	}

	var notFound *ErrNotFound
	if _, err := store.Get("tenant-x"); !errors.As(err, &notFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	updated := testTenant("tenant-a")
	updated.Status = StatusSuspended
	if err := store.Update(updated); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	got, err = store.Get("tenant-a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusSuspended {
		t.Errorf("expected suspended status, got %s", got.Status)
	}
	if !got.CreatedAt.Equal(tenant.CreatedAt) {
		t.Error("expected Update to preserve CreatedAt")
	}
	if err := store.Update(testTenant("tenant-x")); !errors.As(err, &notFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := store.Put(testTenant("tenant-b")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	list, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "tenant-a" || list[1].ID != "tenant-b" {
		t.Errorf("unexpected list: %+v", list)
	}

	if err := store.Delete("tenant-b"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete("tenant-b"); !errors.As(err, &notFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
