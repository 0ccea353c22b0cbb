package service

import "github.com/vitrinehq/vitrine/internal/model"

// RoleSet is a set of roles an operation accepts.
type RoleSet map[model.Role]struct{}

// NewRoleSet returns a RoleSet containing roles.
func NewRoleSet(roles ...model.Role) RoleSet {
	s := make(RoleSet, len(roles))
	for _, r := range roles {
		s[r] = struct{}{}
	}
	return s
}

// Has reports whether r is in the set.
func (s RoleSet) Has(r model.Role) bool {
	_, ok := s[r]
	return ok
}

var (
	// RoleSetAdmins accepts any back office account.
	RoleSetAdmins = NewRoleSet(model.RoleAdmin, model.RoleSuperAdmin)
	// RoleSetSuper accepts SUPERADMIN only.
	RoleSetSuper = NewRoleSet(model.RoleSuperAdmin)
)

// Guard turns presented access tokens into principals and checks roles.
type Guard struct {
	tokens *TokenService
}

// NewGuard creates a Guard backed by tokens.
func NewGuard(tokens *TokenService) *Guard {
	return &Guard{tokens: tokens}
}

// Authenticate verifies an access token. An empty token is
// ErrMissingCredential (Unauthorized); an invalid or expired one is
// ErrTokenInvalid or ErrTokenExpired (Forbidden).
func (g *Guard) Authenticate(token string) (*Principal, error) {
	if token == "" {
		return nil, ErrMissingCredential
	}
	return g.tokens.Verify(token, AccessToken)
}

// RequireRole fails with ErrInsufficientRole unless p holds one of allowed.
func RequireRole(p *Principal, allowed RoleSet) error {
	if p == nil {
		return ErrMissingCredential
	}
	if !allowed.Has(p.Role) {
		return ErrInsufficientRole
	}
	return nil
}
