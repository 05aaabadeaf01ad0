package rbac

import (
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

// Permission names an action a role may perform. Permissions map onto the
// admin API surface, not onto individual HTTP routes.
type Permission string

const (
	PermIncidentsView    Permission = "incidents:view"
	PermIncidentsEdit    Permission = "incidents:edit"
	PermIncidentsDelete  Permission = "incidents:delete"
	PermIncidentsArchive Permission = "incidents:archive"
	PermReportsView      Permission = "reports:view"
	PermAccountsManage   Permission = "accounts:manage"
	PermRequestsDecide   Permission = "requests:decide"
	PermLogsView         Permission = "logs:view"
	PermChatPost         Permission = "chat:post"
)

const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleResponder  = "responder"
)

const modelText = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (p.obj == "*" || r.obj == p.obj)
`

// Policy answers whether a set of roles may exercise a permission. It wraps a
// casbin enforcer built from an in-code model; the policy table is fixed at
// startup, there is no runtime policy editing.
type Policy struct {
	enforcer *casbin.Enforcer
}

func NewPolicy() (*Policy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("rbac model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("rbac enforcer: %w", err)
	}

	if _, err := e.AddPolicy(RoleSuperAdmin, "*"); err != nil {
		return nil, err
	}
	for _, p := range []Permission{
		PermIncidentsView, PermIncidentsEdit, PermIncidentsDelete, PermIncidentsArchive,
		PermReportsView, PermAccountsManage, PermRequestsDecide, PermLogsView, PermChatPost,
	} {
		if _, err := e.AddPolicy(RoleAdmin, string(p)); err != nil {
			return nil, err
		}
	}
	for _, p := range []Permission{
		PermIncidentsView, PermIncidentsEdit, PermReportsView, PermChatPost,
	} {
		if _, err := e.AddPolicy(RoleResponder, string(p)); err != nil {
			return nil, err
		}
	}
	if _, err := e.AddGroupingPolicy(RoleSuperAdmin, RoleAdmin); err != nil {
		return nil, err
	}

	return &Policy{enforcer: e}, nil
}

// Allowed reports whether any of the given roles carries the permission.
// Unknown roles simply never match.
func (p *Policy) Allowed(roles []string, perm Permission) bool {
	for _, role := range roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" {
			continue
		}
		ok, err := p.enforcer.Enforce(role, string(perm))
		if err == nil && ok {
			return true
		}
	}
	return false
}
