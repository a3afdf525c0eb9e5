package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zhdanovmax/token-service/internal/models"
)

func TestAuthorizationProbe_HasRole(t *testing.T) {
	probe := NewAuthorizationProbe()

	claims := &models.ClaimSet{Roles: []string{"ADMIN", "USER"}}

	tests := []struct {
		name   string
		claims *models.ClaimSet
		role   string
		want   bool
	}{
		{"present", claims, "USER", true},
		{"absent", claims, "AUDITOR", false},
		{"case sensitive", claims, "admin", false},
		{"no role list", &models.ClaimSet{}, "USER", false},
		{"nil claims", nil, "USER", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, probe.HasRole(tt.claims, tt.role))
		})
	}
}

func TestAuthorizationProbe_CheckAuthorization(t *testing.T) {
	probe := NewAuthorizationProbe()

	admin := &models.ClaimSet{Roles: []string{"ADMIN"}}
	user := &models.ClaimSet{Roles: []string{"USER"}}

	tests := []struct {
		name       string
		claims     *models.ClaimSet
		role       string
		permission string
		want       bool
	}{
		{"no requirements", user, "", "", true},
		{"role satisfied", user, "USER", "", true},
		{"role missing", user, "ADMIN", "", false},
		{"permission needs admin", user, "", "tokens:revoke", false},
		{"admin satisfies any permission", admin, "", "tokens:revoke", true},
		{"role and permission", admin, "ADMIN", "tokens:revoke", true},
		{"nil claims", nil, "USER", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, probe.CheckAuthorization(tt.claims, tt.role, tt.permission))
		})
	}
}
