package auth

const (
	PermManageUsers      = "manage_users"
	PermManageBalances   = "manage_balances"
	PermApproveRequests  = "approve_requests"
	PermManageShifts     = "manage_shifts"
	PermManageTemplates  = "manage_templates"
	PermManageTasks      = "manage_tasks"
	PermViewAllRequests  = "view_all_requests"
	PermViewNotifyErrors = "view_notification_failures"
)

var AllPermissions = []string{
	PermManageUsers,
	PermManageBalances,
	PermApproveRequests,
	PermManageShifts,
	PermManageTemplates,
	PermManageTasks,
	PermViewAllRequests,
	PermViewNotifyErrors,
}

var rolePermissions = map[string][]string{
	RoleAdmin:    AllPermissions,
	RoleSenior:   {PermManageShifts, PermManageTasks},
	RoleOperator: {},
	RoleProducer: {},
}

type PermissionChecker interface {
	PermissionsFor(role string, isAdmin bool) []string
	CanApproveRequests(user *User) bool
	CanManageShifts(user *User) bool
	CanManageTasks(user *User) bool
	IsAdmin(user *User) bool
}

type DefaultPermissionChecker struct{}

func NewPermissionChecker() PermissionChecker {
	return &DefaultPermissionChecker{}
}

// PermissionsFor resolves the permission set of a role. The legacy is_admin flag grants everything.
func (c *DefaultPermissionChecker) PermissionsFor(role string, isAdmin bool) []string {
	if isAdmin {
		role = RoleAdmin
	}
	perms := rolePermissions[role]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

func (c *DefaultPermissionChecker) CanApproveRequests(user *User) bool {
	return user.HasPermission(PermApproveRequests)
}

func (c *DefaultPermissionChecker) CanManageShifts(user *User) bool {
	return user.HasPermission(PermManageShifts)
}

func (c *DefaultPermissionChecker) CanManageTasks(user *User) bool {
	return user.HasPermission(PermManageTasks)
}

func (c *DefaultPermissionChecker) IsAdmin(user *User) bool {
	return user.IsAdministrator()
}

func IsValidRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}
