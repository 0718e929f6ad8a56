package model

import "fmt"

// Role is the closed set of account roles. It is resolved once at the HTTP
// boundary; services never branch on it.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// ParseRole validates a role string taken from a token.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// IsStaff reports whether the role may review and monitor exams.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleTeacher
}
