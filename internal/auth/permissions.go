package auth

const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

const (
	PermRegistryRead  = "lexml.registry.read"
	PermRegistryWrite = "lexml.registry.write"
)

// rolePermissions maps the roles carried in tokens to the capabilities
// they grant on the LexML registry.
var rolePermissions = map[string][]string{
	RoleAdmin:  {PermRegistryRead, PermRegistryWrite},
	RoleViewer: {PermRegistryRead},
}

// PermissionsFor resolves the permission keys granted by roles.
func PermissionsFor(roles []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, role := range normalizeRoles(roles) {
		for _, p := range rolePermissions[role] {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}
