package domain

import "strings"

// Role of a caller as asserted by the identity collaborator
type Role string

const (
	RoleCoordinator       Role = "COORDINATOR"
	RoleHOD               Role = "HOD"
	RoleDean              Role = "DEAN"
	RoleInstitutionalHead Role = "INSTITUTIONAL_HEAD"
	RoleAdmin             Role = "ADMIN"
)

// ParseRole parses r case-insensitively
func ParseRole(r string) (Role, error) {
	switch role := Role(strings.ToUpper(strings.TrimSpace(r))); role {
	case RoleCoordinator, RoleHOD, RoleDean, RoleInstitutionalHead, RoleAdmin:
		return role, nil
	default:
		return "", ErrUnknownRole
	}
}

// Actor is a verified caller. Department is empty when the actor has none.
type Actor struct {
	ID         string `json:"id"`
	Role       Role   `json:"role"`
	Department string `json:"department,omitempty"`
}

// IsPrivileged reports whether a sees every event and venue
func (a Actor) IsPrivileged() bool {
	return a.Role == RoleDean || a.Role == RoleInstitutionalHead || a.Role == RoleAdmin
}

// CanReadAudit reports whether a may query the audit log
func (a Actor) CanReadAudit() bool {
	return a.IsPrivileged()
}
