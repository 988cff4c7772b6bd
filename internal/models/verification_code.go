package models

import "time"

// Verification code purposes.
const (
	CodePurposeLogin         = "login"
	CodePurposeRegistration  = "registration"
	CodePurposeAdminCreation = "admin_creation"
	CodePurposeOrgSetup      = "org_setup"
)

// VerificationCode is a single-use, time-limited numeric credential
// proving control of an email address. At most one active code exists
// per email; a new request overwrites the prior one.
type VerificationCode struct {
	BaseModel

	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	Code      string    `gorm:"not null" json:"-"`
	Purpose   string    `gorm:"not null" json:"purpose"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
}

// Expired reports whether the code is past its absolute expiry.
func (v *VerificationCode) Expired(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}

// ValidCodePurpose reports whether purpose is one of the known tags.
func ValidCodePurpose(purpose string) bool {
	switch purpose {
	case CodePurposeLogin, CodePurposeRegistration, CodePurposeAdminCreation, CodePurposeOrgSetup:
		return true
	}
	return false
}
