package domain

import "time"

// MemberRole enumerates field staff roles.
type MemberRole string

const (
	MemberRoleWorker     MemberRole = "worker"
	MemberRoleSupervisor MemberRole = "supervisor"
)

// Member models a department field worker who resolves issues.
type Member struct {
	ID           string
	DepartmentID *string
	Name         string
	Email        string
	Phone        *string
	PasswordHash string
	Role         MemberRole
	City         *string
	Locality     *string
	Active       bool

	CurrentWorkload int
	MaxWorkload     int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasCapacity reports whether the member can take another assignment.
func (m *Member) HasCapacity() bool {
	return m.Active && m.CurrentWorkload < m.MaxWorkload
}
