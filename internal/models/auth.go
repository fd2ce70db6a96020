package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin      UserRole = "ADMIN"
	RoleInstructor UserRole = "INSTRUCTOR"
	RoleApplicant  UserRole = "APPLICANT"
)

// JWTClaims is the caller identity carried by access tokens and passed to every operation.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// IsStaff reports whether the actor may author and grade assignments.
func (c *JWTClaims) IsStaff() bool {
	return c != nil && (c.Role == RoleAdmin || c.Role == RoleInstructor)
}

// CanActFor reports whether the actor may drive transitions on applicantID's entries.
func (c *JWTClaims) CanActFor(applicantID string) bool {
	if c == nil {
		return false
	}
	return c.Role == RoleAdmin || (c.Role == RoleApplicant && c.UserID == applicantID)
}

// CanView reports whether the actor may read applicantID's entries.
func (c *JWTClaims) CanView(applicantID string) bool {
	return c.IsStaff() || c.CanActFor(applicantID)
}
