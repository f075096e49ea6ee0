package domain

import "time"

type Role string

const (
	RoleCustomer  Role = "customer"
	RoleProvider  Role = "provider"
	RoleResponder Role = "responder"
	RoleAdmin     Role = "admin"
)

// roleLevels defines the permission hierarchy. Customers and providers sit
// at the same level; responders may act on incidents; admins may do anything.
var roleLevels = map[Role]int{
	RoleCustomer:  1,
	RoleProvider:  1,
	RoleResponder: 2,
	RoleAdmin:     3,
}

// HasPermission checks if the role meets or exceeds the required role level.
func (r Role) HasPermission(minRole Role) bool {
	return roleLevels[r] >= roleLevels[minRole]
}

// IsValid checks if the role is known.
func (r Role) IsValid() bool {
	_, ok := roleLevels[r]
	return ok
}

type User struct {
	ID        string
	Email     string
	Name      string
	Password  string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}
