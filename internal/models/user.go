package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User roles. Each user carries exactly one role tag; role-specific
// behavior is expressed through capability checks rather than subtypes.
const (
	RoleTAdmin       = "t_admin"
	RoleEAdmin       = "e_admin"
	RoleSeniorEAdmin = "senior_e_admin"
	RoleOConvener    = "o_convener"
	RoleDataProvider = "data_provider"
	RoleDataConsumer = "data_consumer"
)

// User describes platform users with their role, access-level vector,
// and optional organization affiliation.
type User struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Username string `gorm:"not null" json:"username"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `json:"-"`

	Role string `gorm:"not null;index" json:"role"`

	// Access-level vector. The bits are orthogonal to the role tag and
	// not mutually exclusive except by business rule.
	PublicAccess   bool `gorm:"default:false" json:"public_access"`
	PrivateConsume bool `gorm:"default:false" json:"private_consume"`
	PrivateProvide bool `gorm:"default:false" json:"private_provide"`

	// OrganizationID is assigned at registration, before the organization
	// record itself exists, so no database-level constraint is enforced.
	OrganizationID *string       `gorm:"index" json:"organization_id"`
	Organization   *Organization `gorm:"foreignKey:OrganizationID;references:OrganizationID;constraint:-" json:"organization,omitempty"`

	MembershipFee *float64 `json:"membership_fee,omitempty"`

	IsActive bool `gorm:"default:true" json:"is_active"`

	LastLoginAt *time.Time `json:"last_login_at"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// IsAdmin reports whether the user holds a platform staff role.
func (u *User) IsAdmin() bool {
	switch u.Role {
	case RoleTAdmin, RoleEAdmin, RoleSeniorEAdmin:
		return true
	}
	return false
}

// CanApproveEAdminStage reports whether the user may act on requests
// awaiting first-stage review.
func (u *User) CanApproveEAdminStage() bool {
	return u.Role == RoleEAdmin
}

// CanApproveSeniorStage reports whether the user may act on requests
// awaiting final review.
func (u *User) CanApproveSeniorStage() bool {
	return u.Role == RoleSeniorEAdmin
}

// CanManageMembers reports whether the user may mutate organization
// membership.
func (u *User) CanManageMembers() bool {
	return u.Role == RoleOConvener
}

// IsConsumerOnly reports whether the user's role is restricted to data
// consumption. Consumer-only users may not hold the private-provide bit.
func (u *User) IsConsumerOnly() bool {
	return u.Role == RoleDataConsumer
}

// ValidRole reports whether role is one of the known role tags.
func ValidRole(role string) bool {
	switch role {
	case RoleTAdmin, RoleEAdmin, RoleSeniorEAdmin, RoleOConvener, RoleDataProvider, RoleDataConsumer:
		return true
	}
	return false
}
