package domain

import "strings"

type Role string

const (
	RoleCustomer    Role = "CUSTOMER"
	RoleTravelAgent Role = "TRAVEL_AGENT"
	RoleAdmin       Role = "ADMIN"
)

func ParseRole(v string) (Role, bool) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(v))); r {
	case RoleCustomer, RoleTravelAgent, RoleAdmin:
		return r, true
	}
	return "", false
}

// Requester is the already-authenticated caller of an operation.
type Requester struct {
	UserID string
	Email  string
	Role   Role
}

func (r Requester) IsZero() bool { return r.UserID == "" || r.Role == "" }

// IsAgentFor reports whether r is the travel agent assigned under agentEmail.
func (r Requester) IsAgentFor(agentEmail string) bool {
	return r.Role == RoleTravelAgent && agentEmail != "" && strings.EqualFold(r.Email, agentEmail)
}
