package models

import "time"

// UserRole represents the roles recognised by the RBAC middleware.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleStaff   UserRole = "STAFF"
	RoleLearner UserRole = "LEARNER"
)

// User mirrors a learning platform account.
type User struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Username  string    `db:"username" json:"username"`
	FullName  string    `db:"full_name" json:"full_name"`
	Role      UserRole  `db:"role" json:"role"`
	Active    bool      `db:"active" json:"active"`
	Language  string    `db:"language" json:"language"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DisplayName returns the full name, falling back to the username.
func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// NormalizePage clamps page and size to sane defaults.
func NormalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
