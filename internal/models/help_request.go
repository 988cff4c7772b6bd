package models

import "time"

// Help request statuses.
const (
	HelpStatusOpen     = "open"
	HelpStatusResolved = "resolved"
)

// HelpRequest is a support question raised by a convener and handled by
// a Technical Admin.
type HelpRequest struct {
	BaseModel

	SubmitterID string `gorm:"type:uuid;not null;index" json:"submitter_id"`
	Subject     string `gorm:"not null" json:"subject"`
	Body        string `gorm:"not null" json:"body"`
	Status      string `gorm:"not null;default:open;index" json:"status"`

	Response   string     `json:"response"`
	ResolvedBy *string    `gorm:"type:uuid" json:"resolved_by"`
	ResolvedAt *time.Time `json:"resolved_at"`
}
