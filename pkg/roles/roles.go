package roles

import (
	"errors"
	"fmt"
	"strings"
)

// Role is a global account role or a project-scoped role
type Role string

const (
	Admin          Role = "ADMIN"
	ProjectManager Role = "PROJECT_MANAGER"
	Developer      Role = "DEVELOPER"
	QA             Role = "QA"
	User           Role = "USER"

	// None means "no project role". Assigning None removes the membership.
	None Role = ""
)

// ErrUnknownRole is returned by Parse for values outside the enumeration
var ErrUnknownRole = errors.New("unknown role")

// rank is the precedence table consulted whenever one role must outrank another.
// Declaration order of the constants above carries no meaning.
var rank = map[Role]int{
	Admin:          50,
	ProjectManager: 40,
	Developer:      30,
	QA:             20,
	User:           10,
	None:           0,
}

// Rank returns the precedence of a role. Unknown roles rank with None.
func Rank(r Role) int {
	return rank[r]
}

// AtLeast reports whether r ranks at or above min
func AtLeast(r, min Role) bool {
	return Rank(r) >= Rank(min)
}

// Outranks reports whether a strictly outranks b
func Outranks(a, b Role) bool {
	return Rank(a) > Rank(b)
}

// Valid reports whether r is one of the enumerated roles (None excluded)
func (r Role) Valid() bool {
	_, ok := rank[r]
	return ok && r != None
}

// String returns the canonical role name, "NONE" for the sentinel
func (r Role) String() string {
	if r == None {
		return "NONE"
	}
	return string(r)
}

// ProjectRoles returns the roles a membership row may hold
func ProjectRoles() []Role {
	return []Role{ProjectManager, Developer, QA}
}

// IsProjectRole reports whether r may be stored on a membership row
func IsProjectRole(r Role) bool {
	return r == ProjectManager || r == Developer || r == QA
}

// AssignableRoles returns the roles a project manager may hand out directly.
// PROJECT_MANAGER is only reachable through appointment.
func AssignableRoles() []Role {
	return []Role{Developer, QA}
}

// IsAssignable reports whether r may be set through role assignment
func IsAssignable(r Role) bool {
	return r == Developer || r == QA
}

// AvailableRolesFor returns the project roles a member currently holding
// current can be moved to from the role assignment form.
func AvailableRolesFor(current Role) []Role {
	switch current {
	case None, User:
		return AssignableRoles()
	case Developer:
		return []Role{QA}
	case QA:
		return []Role{Developer}
	default:
		// managers leave the role only through another appointment
		return []Role{}
	}
}

// EffectiveRole resolves the authority an account holds inside one project.
// A global ADMIN always acts as ADMIN; everyone else is bounded by the
// membership row (None when there is no row).
func EffectiveRole(global, membership Role) Role {
	if global == Admin {
		return Admin
	}
	if !IsProjectRole(membership) {
		return None
	}
	return membership
}

// Parse converts a role name to a Role. It accepts canonical names and the
// legacy "ROLE_" prefixed names in any case. An empty string or "NONE" yields None.
func Parse(s string) (Role, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	name = strings.TrimPrefix(name, "ROLE_")

	if name == "" || name == "NONE" {
		return None, nil
	}

	r := Role(name)
	if !r.Valid() {
		return None, fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}
