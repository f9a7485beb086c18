package shared

// Permission codes guarding the service's own admin API.
const (
	PermRolesView = "roles:read"
	PermRolesEdit = "roles:write"

	PermPermissionsView = "permissions:read"
	PermPermissionsEdit = "permissions:write"

	PermResourcesView = "resources:read"
	PermResourcesEdit = "resources:write"

	PermAssignmentsView = "assignments:read"
	PermAssignmentsEdit = "assignments:write"
)

// AdminScopes lists every permission code the service reserves for itself.
func AdminScopes() []string {
	return []string{
		PermRolesView,
		PermRolesEdit,
		PermPermissionsView,
		PermPermissionsEdit,
		PermResourcesView,
		PermResourcesEdit,
		PermAssignmentsView,
		PermAssignmentsEdit,
	}
}
