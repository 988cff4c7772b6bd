package models

import "gorm.io/datatypes"

// Organization statuses. Organizations are materialized through the
// approval pipeline and are active from creation.
const (
	OrganizationStatusActive    = "active"
	OrganizationStatusSuspended = "suspended"
)

// Organization is the materialized record of an approved organization.
// It exists only once the final approval stage has completed.
type Organization struct {
	BaseModel

	// OrganizationID is the business identifier shared with the approval
	// request and assigned to the convener at account creation. It is the
	// upsert key for repeated approval completions.
	OrganizationID string `gorm:"uniqueIndex;not null" json:"organization_id"`

	Name           string `gorm:"not null" json:"name"`
	ConvenerUserID string `gorm:"type:uuid;not null" json:"convener_user_id"`
	Status         string `gorm:"not null;default:active" json:"status"`

	// Services holds the per-service availability configuration for
	// inter-organization data sharing.
	Services datatypes.JSON `json:"services"`

	Users []User `gorm:"foreignKey:OrganizationID;references:OrganizationID;constraint:-" json:"users,omitempty"`
}

// IsActive reports whether membership and service configuration are
// unlocked for this organization.
func (o *Organization) IsActive() bool {
	return o.Status == OrganizationStatusActive
}
