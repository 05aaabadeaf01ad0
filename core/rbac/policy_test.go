package rbac

import "testing"

func TestRolePermissions(t *testing.T) {
	p, err := NewPolicy()
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	cases := []struct {
		role string
		perm Permission
		want bool
	}{
		{RoleResponder, PermIncidentsView, true},
		{RoleResponder, PermIncidentsEdit, true},
		{RoleResponder, PermChatPost, true},
		{RoleResponder, PermAccountsManage, false},
		{RoleResponder, PermRequestsDecide, false},
		{RoleResponder, PermIncidentsArchive, false},
		{RoleAdmin, PermAccountsManage, true},
		{RoleAdmin, PermIncidentsArchive, true},
		{RoleAdmin, PermLogsView, true},
		{RoleSuperAdmin, PermRequestsDecide, true},
		{RoleSuperAdmin, PermAccountsManage, true},
		{"intruder", PermIncidentsView, false},
		{"", PermIncidentsView, false},
	}
	for _, tc := range cases {
		if got := p.Allowed([]string{tc.role}, tc.perm); got != tc.want {
			t.Errorf("Allowed(%q, %s) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
}

func TestAllowedAnyRoleMatches(t *testing.T) {
	p, err := NewPolicy()
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if !p.Allowed([]string{"responder", "admin"}, PermAccountsManage) {
		t.Fatalf("expected the admin role in the set to grant accounts:manage")
	}
	if p.Allowed(nil, PermIncidentsView) {
		t.Fatalf("empty role set granted a permission")
	}
}

func TestRoleNamesAreCaseInsensitive(t *testing.T) {
	p, err := NewPolicy()
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if !p.Allowed([]string{" Admin "}, PermLogsView) {
		t.Fatalf("role lookup should trim and lower-case the role name")
	}
}
