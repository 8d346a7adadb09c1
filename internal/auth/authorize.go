package auth

// Principal is an authenticated caller with the permissions its token
// grants.
type Principal struct {
	UserID      string
	Roles       []string
	Permissions map[string]struct{}
}

// HasPermission reports whether the principal can execute action identified by key.
func (p Principal) HasPermission(key string) bool {
	_, ok := p.Permissions[key]
	return ok
}

// Principal resolves the caller described by the token.
func (c *Claims) Principal() Principal {
	set := make(map[string]struct{}, len(c.Scope))
	for _, p := range c.Scope {
		set[p] = struct{}{}
	}
	return Principal{UserID: c.Subject, Roles: c.Roles, Permissions: set}
}
