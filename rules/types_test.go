package rules

import "testing"

func TestRuleID(t *testing.T) {
	r := &Rule{CheckID: "KSI-MLA-01", Version: "1.0"}
	if got := r.ID(); got != "KSI-MLA-01-v1.0" {
		t.Errorf("expected KSI-MLA-01-v1.0, got %s", got)
	}
}

func TestRuleActive(t *testing.T) {
	tests := []struct {
		name   string
		status string
		want   bool
	}{
		{"active rule", StatusActive, true},
		{"inactive rule", StatusInactive, false},
		{"unknown status", "draft", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Rule{Status: tt.status}
			if got := r.Active(); got != tt.want {
				t.Errorf("Active() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want int
	}{
		{"equal", "1.0", "1.0", 0},
		{"minor bump", "1.1", "1.0", 1},
		{"major bump", "2.0", "1.9", 1},
		{"numeric not lexical", "1.10", "1.9", 1},
		{"shorter prefix is older", "1.0", "1.0.1", -1},
		{"less than", "0.9", "1.0", -1},
		{"three segments", "1.2.3", "1.2.3", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CompareVersions(tt.a, tt.b); got != tt.want {
				t.Errorf("CompareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
			if got := CompareVersions(tt.b, tt.a); got != -tt.want {
				t.Errorf("CompareVersions(%q, %q) = %d, want %d", tt.b, tt.a, got, -tt.want)
			}
		})
	}
}
