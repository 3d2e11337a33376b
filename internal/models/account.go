package models

import "time"

type Role string

const (
	RoleAdmin          Role = "ADMIN"
	RoleCustomer       Role = "CUSTOMER"
	RoleTechnician     Role = "TECHNICIAN"
	RoleQualityManager Role = "QM"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCustomer, RoleTechnician, RoleQualityManager:
		return true
	}
	return false
}

// Elevated roles may act on equipment they do not own.
func (r Role) Elevated() bool {
	return r == RoleAdmin || r == RoleQualityManager
}

type Account struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	Role        Role      `json:"role"`
	CompanyName string    `json:"companyName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Actor is the caller identity supplied by the transport layer. It is trusted as is.
type Actor struct {
	AccountID int64
	Role      Role
}

// SystemActor is used by internal consumers (fail policy, due worker).
var SystemActor = Actor{AccountID: 0, Role: RoleAdmin}
