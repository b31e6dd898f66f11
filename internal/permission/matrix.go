// Package permission defines the role and permission catalogue seeded
// into every tenant space, and bootstraps it there.
package permission

// Role names. Owner is assigned to the founding member.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleViewer = "viewer"
)

// All grantable permissions.
var Permissions = []string{
	"view teams",
	"create teams",
	"edit teams",
	"delete teams",
	"manage teams",

	"view boards",
	"create boards",
	"edit boards",
	"delete boards",
	"manage boards",

	"view tasks",
	"create tasks",
	"edit tasks",
	"delete tasks",
	"assign tasks",

	"view users",
	"invite users",
	"edit users",
	"delete users",

	"view analytics",

	"manage settings",
}

// Matrix maps each role to its granted permissions. Owner always holds
// every permission in the catalogue.
var Matrix = map[string][]string{
	RoleOwner: Permissions,
	RoleAdmin: {
		"view teams", "create teams", "edit teams", "manage teams",
		"view boards", "create boards", "edit boards", "manage boards",
		"view tasks", "create tasks", "edit tasks", "delete tasks", "assign tasks",
		"view users", "invite users", "edit users",
		"view analytics",
	},
	RoleMember: {
		"view teams",
		"view boards", "create boards",
		"view tasks", "create tasks", "edit tasks",
		"view users",
	},
	RoleViewer: {
		"view teams",
		"view boards",
		"view tasks",
		"view users",
	},
}

// Roles lists all role names in assignment-precedence order.
var Roles = []string{RoleOwner, RoleAdmin, RoleMember, RoleViewer}
