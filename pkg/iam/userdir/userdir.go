// Package userdir defines the authentication orchestrator's collaborator
// contract for identity lookup and password verification. userdirhttp
// implements it against a separate directory service's internal
// endpoints; userdirpg implements it over co-located users/roles tables
// with bcrypt verification. User CRUD is not part of this contract.
package userdir

import (
	"github.com/manifesto-gateway/core/pkg/kernel"
)

// Profile is the user snapshot tokens are minted and sessions opened against.
type Profile struct {
	UserID   kernel.UserID   `json:"user_id"`
	TenantID kernel.TenantID `json:"tenant_id"`
	Email    string          `json:"email"`
	Username string          `json:"username"`
	Role     kernel.Role     `json:"role"`
	Active   bool            `json:"active"`
}
