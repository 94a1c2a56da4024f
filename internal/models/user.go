package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin         UserRole = "admin"
	RoleVicePrincipal UserRole = "vice_principal"
	RoleStaff         UserRole = "staff"
	RoleTeacher       UserRole = "teacher"
)

// Reviewer reports whether the role may approve or reject change requests.
func (r UserRole) Reviewer() bool {
	return r == RoleAdmin || r == RoleVicePrincipal
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}
