package auth

import (
	"time"

	"github.com/google/uuid"
)

// Role is the application-level role stored on a profile
type Role = string

const (
	// RoleAdmin manages houses, charges, receipts, and residents
	RoleAdmin Role = "admin"
	// RoleResident views dues, payments, and announcements for one house
	RoleResident Role = "resident"
)

// Profile extends a user identity with its role and house assignment. One
// profile exists per account, provisioned out-of-band when an admin registers
// a resident; this package only ever reads it.
type Profile struct {
	ID           uuid.UUID  `json:"id"`
	Role         Role       `json:"role"`
	HouseNumber  int        `json:"house_number"`
	ResidentName string     `json:"resident_name"`
	Email        string     `json:"email"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// IsAdmin reports whether the profile carries the admin role.
func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// HasRole reports whether the profile carries the given role.
func (p *Profile) HasRole(role Role) bool {
	return p != nil && p.Role == role
}

// Clone returns a shallow copy so callers can hold a profile past a state
// change without observing later mutations.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
