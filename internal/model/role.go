package model

// Role is the administrative role carried by an account and its tokens.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPERADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

func (r Role) String() string {
	return string(r)
}

// ParseRole converts s into a Role. The second return value is false when s
// does not name a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}
