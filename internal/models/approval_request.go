package models

import "time"

// Approval request statuses. Pending states advance through the two-stage
// review chain; active and both rejected states are terminal for a given
// request instance.
const (
	ApprovalStatusNotSubmitted   = "not_submitted"
	ApprovalStatusPendingEAdmin  = "pending_eadmin_approval"
	ApprovalStatusPendingSenior  = "pending_seadmin_approval"
	ApprovalStatusActive         = "active"
	ApprovalStatusRejectedEAdmin = "rejected_by_eadmin"
	ApprovalStatusRejectedSenior = "rejected_by_seadmin"
)

// OrganizationApprovalRequest records an organization registration
// application and its progress through the review chain. Requests are
// never deleted; a resubmission after rejection supersedes the old one.
type OrganizationApprovalRequest struct {
	BaseModel

	OrganizationID   string `gorm:"not null;index" json:"organization_id"`
	OrganizationName string `gorm:"not null" json:"organization_name"`
	SubmittingUserID string `gorm:"type:uuid;not null;index" json:"submitting_user_id"`
	ProofDocumentRef string `gorm:"not null" json:"proof_document_ref"`

	Status      string    `gorm:"not null;index" json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`

	EAdminID        *string    `gorm:"type:uuid" json:"eadmin_id"`
	EAdminActedAt   *time.Time `json:"eadmin_acted_at"`
	SeniorID        *string    `gorm:"type:uuid" json:"senior_id"`
	SeniorActedAt   *time.Time `json:"senior_acted_at"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
}

// IsPending reports whether the request is still awaiting review at
// either stage.
func (r *OrganizationApprovalRequest) IsPending() bool {
	return r.Status == ApprovalStatusPendingEAdmin || r.Status == ApprovalStatusPendingSenior
}

// IsTerminal reports whether no further transitions apply to this
// request instance.
func (r *OrganizationApprovalRequest) IsTerminal() bool {
	switch r.Status {
	case ApprovalStatusActive, ApprovalStatusRejectedEAdmin, ApprovalStatusRejectedSenior:
		return true
	}
	return false
}
