package model

import "strings"

// Role names carried in the JWT "role" claim.
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleCashier  = "cashier"
	RoleWaiter   = "waiter"
	RoleChef     = "chef"
	RoleCustomer = "customer"
	// RoleSystem is never issued to a person; background jobs act with it.
	RoleSystem = "system"
)

// StaffRoles may use the staff console endpoints.
var StaffRoles = []string{RoleAdmin, RoleManager, RoleCashier, RoleWaiter, RoleChef}

// User is the subset of the users table this service reads.  Accounts are
// managed elsewhere; only loyalty_points is written here.
type User struct {
	ID            uint64          // users.id
	Email         string          // users.email
	FullName      string          // users.full_name
	Role          string          // users.role
	Address       DeliveryDetails // users.phone, users.address_*
	LoyaltyPoints int64           // users.loyalty_points
}

// ProfileComplete mirrors the account page rule: name plus every delivery field.
func (u User) ProfileComplete() bool {
	return strings.TrimSpace(u.FullName) != "" && u.Address.Complete()
}

// Actor is whoever asks for a state change.
type Actor struct {
	UserID uint64
	Role   string
}

// SystemActor is used by payment reconciliation and the expiry sweep.
var SystemActor = Actor{Role: RoleSystem}
