package service

import "github.com/zhdanovmax/token-service/internal/models"

// adminRole satisfies any permission check. There is no finer-grained
// permission model; this is a deliberate simplification.
const adminRole = "ADMIN"

// AuthorizationProbe inspects an already-validated claim set. It performs no
// I/O and holds no state.
type AuthorizationProbe struct{}

func NewAuthorizationProbe() *AuthorizationProbe {
	return &AuthorizationProbe{}
}

// HasRole reports whether the claim set carries the role. The comparison is
// exact and case-sensitive; a claim set without roles has none.
func (p *AuthorizationProbe) HasRole(claims *models.ClaimSet, role string) bool {
	if claims == nil {
		return false
	}
	for _, r := range claims.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// CheckAuthorization gates an operation on a role and/or permission. A
// required permission is satisfied by the administrative role.
func (p *AuthorizationProbe) CheckAuthorization(claims *models.ClaimSet, role, permission string) bool {
	if claims == nil {
		return false
	}
	if role != "" && !p.HasRole(claims, role) {
		return false
	}
	if permission != "" {
		return p.HasRole(claims, adminRole)
	}
	return true
}
