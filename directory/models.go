package directory

import "time"

// Role tags an actor in the dispute workflow. Analysts and managers are
// staff rows; merchants act through their tenant account.
type Role string

const (
	RoleAnalyst  Role = "analyst"
	RoleManager  Role = "manager"
	RoleMerchant Role = "merchant"
	RoleSystem   Role = "system"
)

// IsStaffRole reports whether the role is assignable staff.
func IsStaffRole(r Role) bool {
	return r == RoleAnalyst || r == RoleManager
}

// Status is the activation state shared by merchants and staff.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Merchant is a tenant account owning one or more businesses.
type Merchant struct {
	ID        string
	Name      string
	Status    Status
	CreatedAt time.Time
}

// Business is a sub-account under a merchant; disputes belong to exactly one.
type Business struct {
	ID         string
	MerchantID string
	CustomID   string
	Name       string
	Active     bool
	CreatedAt  time.Time
}

// Staff is a human assignable to disputes. Any per-staff counters are
// read-side projections recomputed from history, never stored here.
type Staff struct {
	ID         string
	MerchantID string
	Role       Role
	Status     Status
	FullName   string
	Email      string
	CreatedAt  time.Time
}
