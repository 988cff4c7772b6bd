package models

// BankAccount holds the bookkeeping balance for an organization or for
// the platform itself. The platform account is the credit side of
// membership fee transfers.
type BankAccount struct {
	BaseModel

	OwnerType     string  `gorm:"not null;uniqueIndex:idx_bank_owner" json:"owner_type"`
	OwnerID       string  `gorm:"not null;uniqueIndex:idx_bank_owner" json:"owner_id"`
	AccountNumber string  `gorm:"not null" json:"account_number"`
	BankName      string  `json:"bank_name"`
	Balance       float64 `gorm:"not null;default:0" json:"balance"`
}

// Bank account owner types.
const (
	BankOwnerPlatform     = "platform"
	BankOwnerOrganization = "organization"
)

// PlatformOwnerID is the fixed owner id of the singleton platform account.
const PlatformOwnerID = "platform"

// PaymentRecord is a ledger entry for a completed transfer between two
// bank accounts.
type PaymentRecord struct {
	BaseModel

	FromAccountID string  `gorm:"type:uuid;not null;index" json:"from_account_id"`
	ToAccountID   string  `gorm:"type:uuid;not null;index" json:"to_account_id"`
	Amount        float64 `gorm:"not null" json:"amount"`
	Purpose       string  `json:"purpose"`
	Reference     string  `json:"reference"`
}
