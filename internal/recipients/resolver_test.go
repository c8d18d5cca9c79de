package recipients

import (
	"reflect"
	"testing"

	"github.com/good-yellow-bee/staleguard/internal/alerting"
)

func TestResolve(t *testing.T) {
	r := NewResolver(Directory{
		Owners: map[string]string{
			"Alice": "pm-alice@example.com",
		},
		ProjectManagers: []string{"pm@example.com", " ", "PM@example.com"},
		Controllers:     []string{"ctrl@example.com", "pm-alice@example.com", ""},
	})

	tests := []struct {
		name  string
		class alerting.RecipientClass
		owner string
		want  []string
	}{
		{"known owner", alerting.RecipientProjectManager, "alice", []string{"pm-alice@example.com"}},
		{"unknown owner falls back", alerting.RecipientProjectManager, "zed", []string{"pm@example.com"}},
		{"controllers", alerting.RecipientController, "alice", []string{"ctrl@example.com", "pm-alice@example.com"}},
		{"all dedupes across classes", alerting.RecipientAll, "ALICE ", []string{"pm-alice@example.com", "ctrl@example.com"}},
		{"all with fallback", alerting.RecipientAll, "", []string{"pm@example.com", "ctrl@example.com", "pm-alice@example.com"}},
		{"unknown class", alerting.RecipientClass("board"), "alice", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve(tt.class, tt.owner)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Resolve(%s, %q) = %v, want %v", tt.class, tt.owner, got, tt.want)
			}
		})
	}
}

func TestResolveEmptyDirectory(t *testing.T) {
	r := NewResolver(Directory{})
	if got := r.Resolve(alerting.RecipientAll, "alice"); len(got) != 0 {
		t.Errorf("expected no recipients, got %v", got)
	}
}

func TestDirectoryValidate(t *testing.T) {
	good := Directory{
		Owners:          map[string]string{"alice": "alice@example.com"},
		ProjectManagers: []string{"pm@example.com"},
		Controllers:     []string{"Controller <ctrl@example.com>"},
	}
	if err := good.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	bad := Directory{Controllers: []string{"not-an-address"}}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for invalid address")
	}
}
