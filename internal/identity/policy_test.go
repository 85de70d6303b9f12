package identity

import "testing"

func TestCanActOn(t *testing.T) {
	cases := []struct {
		name   string
		actor  RoleSet
		target RoleSet
		want   bool
	}{
		{"superadmin on superadmin", RoleSet{RoleSuperAdmin}, RoleSet{RoleSuperAdmin}, true},
		{"superadmin on admin", RoleSet{RoleSuperAdmin}, RoleSet{RoleAdmin}, true},
		{"superadmin on user", RoleSet{RoleSuperAdmin}, RoleSet{RoleUser}, true},
		{"admin on superadmin", RoleSet{RoleAdmin}, RoleSet{RoleSuperAdmin}, false},
		{"admin on admin", RoleSet{RoleAdmin}, RoleSet{RoleAdmin}, false},
		{"admin on user", RoleSet{RoleAdmin}, RoleSet{RoleUser}, true},
		{"user on user", RoleSet{RoleUser}, RoleSet{RoleUser}, false},
		{"user on admin", RoleSet{RoleUser}, RoleSet{RoleAdmin}, false},
		{"user on superadmin", RoleSet{RoleUser}, RoleSet{RoleSuperAdmin}, false},
		{"no roles on user", nil, RoleSet{RoleUser}, false},
		{"admin on empty target", RoleSet{RoleAdmin}, nil, true},
		{"highest tier wins for mixed actor", RoleSet{RoleUser, RoleSuperAdmin}, RoleSet{RoleAdmin}, true},
		{"admin blocked by mixed target holding admin", RoleSet{RoleAdmin}, RoleSet{RoleUser, RoleAdmin}, false},
		{"admin blocked by mixed target holding superadmin", RoleSet{RoleAdmin}, RoleSet{RoleUser, RoleSuperAdmin}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanActOn(tc.actor, tc.target); got != tc.want {
				t.Fatalf("CanActOn(%v, %v) = %v, want %v", tc.actor, tc.target, got, tc.want)
			}
		})
	}
}

func TestKnownRole(t *testing.T) {
	for _, role := range AllRoles {
		if !KnownRole(role) {
			t.Fatalf("role %q should be known", role)
		}
	}
	if KnownRole("manager") {
		t.Fatalf("unexpected role accepted")
	}
}
