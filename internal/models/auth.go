package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the payload of access tokens issued by the LMS.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Role     UserRole `json:"role"`
	jwt.RegisteredClaims
}

// IsStaff reports whether the caller may use the admin endpoints.
func (c *JWTClaims) IsStaff() bool {
	return c != nil && (c.Role == RoleAdmin || c.Role == RoleStaff)
}

// User returns the user described by the token.
func (c *JWTClaims) User() User {
	return User{ID: c.UserID, Username: c.Username, Email: c.Email, FullName: c.FullName, Role: c.Role}
}
