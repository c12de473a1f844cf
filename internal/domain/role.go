// Package domain contains core domain types for the Eduvane gateway.
package domain

import "strings"

// Role identifies who the assistant is addressing.
type Role string

const (
	RoleTeacher Role = "TEACHER"
	RoleStudent Role = "STUDENT"
	RoleUnknown Role = "UNKNOWN"
)

// NormalizeRole maps free-form role metadata to a Role.
// Anything other than teacher or student becomes RoleUnknown.
func NormalizeRole(raw string) Role {
	switch Role(strings.ToUpper(strings.TrimSpace(raw))) {
	case RoleTeacher:
		return RoleTeacher
	case RoleStudent:
		return RoleStudent
	default:
		return RoleUnknown
	}
}

// Known returns true for TEACHER and STUDENT.
func (r Role) Known() bool {
	return r == RoleTeacher || r == RoleStudent
}
