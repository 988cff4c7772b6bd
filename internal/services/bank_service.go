package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/edba-platform/edba/internal/models"
	apperrors "github.com/edba-platform/edba/pkg/errors"
)

// ErrInsufficientFunds indicates the debit side of a transfer cannot
// cover the amount.
var ErrInsufficientFunds = apperrors.New("INSUFFICIENT_FUNDS", "Account balance is insufficient", http.StatusConflict)

// TransferInput describes a debit/credit pair between two accounts.
type TransferInput struct {
	FromOwnerType string
	FromOwnerID   string
	ToOwnerType   string
	ToOwnerID     string
	Amount        float64
	Purpose       string
	Reference     string
}

// BankService keeps the peripheral debit/credit bookkeeping for
// organizations and the platform account.
type BankService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewBankService constructs a BankService instance.
func NewBankService(db *gorm.DB, audit *AuditService) (*BankService, error) {
	if db == nil {
		return nil, errors.New("bank service: db is required")
	}
	return &BankService{db: db, audit: audit}, nil
}

// authorizeActor gates account mutations and reads. Platform staff may
// touch any account; a convener only their own organization's. Everyone
// else is turned away.
func (s *BankService) authorizeActor(actor *models.User, ownerType, ownerID string) error {
	if actor == nil {
		return apperrors.ErrUnauthorized
	}
	if actor.IsAdmin() {
		return nil
	}
	if ownerType == models.BankOwnerOrganization && actor.Role == models.RoleOConvener &&
		actor.OrganizationID != nil && *actor.OrganizationID == ownerID {
		return nil
	}
	return apperrors.ErrForbidden.WithMessage("only platform staff or the organization's convener may access this account")
}

// OrganizationAccount returns the organization's account after checking
// the acting user may see it.
func (s *BankService) OrganizationAccount(ctx context.Context, actor *models.User, orgID string) (*models.BankAccount, error) {
	if err := s.authorizeActor(actor, models.BankOwnerOrganization, orgID); err != nil {
		return nil, err
	}
	return s.GetAccount(ctx, models.BankOwnerOrganization, orgID)
}

// GetAccount returns an owner's account.
func (s *BankService) GetAccount(ctx context.Context, ownerType, ownerID string) (*models.BankAccount, error) {
	ctx = ensureContext(ctx)

	var account models.BankAccount
	if err := s.db.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ?", ownerType, ownerID).
		First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("bank account not found")
		}
		return nil, apperrors.NewPersistence(err)
	}
	return &account, nil
}

// EnsureOrganizationAccount opens an account for the organization if it
// does not exist yet.
func (s *BankService) EnsureOrganizationAccount(ctx context.Context, actor *models.User, orgID, accountNumber, bankName string, openingBalance float64) (*models.BankAccount, error) {
	ctx = ensureContext(ctx)

	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, apperrors.NewValidation("organization id is required")
	}
	if err := s.authorizeActor(actor, models.BankOwnerOrganization, orgID); err != nil {
		return nil, err
	}
	if openingBalance < 0 {
		return nil, apperrors.NewValidation("opening balance may not be negative")
	}

	account := models.BankAccount{
		OwnerType:     models.BankOwnerOrganization,
		OwnerID:       orgID,
		AccountNumber: strings.TrimSpace(accountNumber),
		BankName:      strings.TrimSpace(bankName),
		Balance:       openingBalance,
	}

	if err := s.db.WithContext(ctx).
		Where(models.BankAccount{OwnerType: account.OwnerType, OwnerID: account.OwnerID}).
		Attrs(account).
		FirstOrCreate(&account).Error; err != nil {
		return nil, apperrors.NewPersistence(err)
	}
	return &account, nil
}

// Transfer debits the source account and credits the destination inside
// one transaction, recording a ledger entry.
func (s *BankService) Transfer(ctx context.Context, input TransferInput) (*models.PaymentRecord, error) {
	ctx = ensureContext(ctx)

	if input.Amount <= 0 {
		return nil, apperrors.NewValidation("transfer amount must be positive")
	}

	var record models.PaymentRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var from, to models.BankAccount
		if err := tx.Where("owner_type = ? AND owner_id = ?", input.FromOwnerType, input.FromOwnerID).First(&from).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound.WithMessage("source bank account not found")
			}
			return err
		}
		if err := tx.Where("owner_type = ? AND owner_id = ?", input.ToOwnerType, input.ToOwnerID).First(&to).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound.WithMessage("destination bank account not found")
			}
			return err
		}

		// The balance guard runs inside the transaction as a conditional
		// update so concurrent debits cannot overdraw the account.
		debit := tx.Model(&models.BankAccount{}).
			Where("id = ? AND balance >= ?", from.ID, input.Amount).
			Update("balance", gorm.Expr("balance - ?", input.Amount))
		if debit.Error != nil {
			return debit.Error
		}
		if debit.RowsAffected == 0 {
			return ErrInsufficientFunds
		}

		if err := tx.Model(&models.BankAccount{}).
			Where("id = ?", to.ID).
			Update("balance", gorm.Expr("balance + ?", input.Amount)).Error; err != nil {
			return err
		}

		record = models.PaymentRecord{
			FromAccountID: from.ID,
			ToAccountID:   to.ID,
			Amount:        input.Amount,
			Purpose:       strings.TrimSpace(input.Purpose),
			Reference:     strings.TrimSpace(input.Reference),
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperrors.NewPersistence(err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "bank.transfer",
		Resource: "bank_account",
		Result:   "success",
		Metadata: map[string]any{
			"from":    fmt.Sprintf("%s:%s", input.FromOwnerType, input.FromOwnerID),
			"to":      fmt.Sprintf("%s:%s", input.ToOwnerType, input.ToOwnerID),
			"amount":  input.Amount,
			"purpose": record.Purpose,
		},
	})

	return &record, nil
}

// Deposit credits an account directly, outside any transfer pair.
func (s *BankService) Deposit(ctx context.Context, actor *models.User, ownerType, ownerID string, amount float64, reference string) (*models.BankAccount, error) {
	ctx = ensureContext(ctx)

	if err := s.authorizeActor(actor, ownerType, ownerID); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, apperrors.NewValidation("deposit amount must be positive")
	}

	account, err := s.GetAccount(ctx, ownerType, ownerID)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&models.BankAccount{}).
		Where("id = ?", account.ID).
		Update("balance", gorm.Expr("balance + ?", amount)).Error; err != nil {
		return nil, apperrors.NewPersistence(err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "bank.deposit",
		Resource: "bank_account",
		Result:   "success",
		Metadata: map[string]any{
			"owner":     fmt.Sprintf("%s:%s", ownerType, ownerID),
			"amount":    amount,
			"reference": strings.TrimSpace(reference),
		},
	})

	return s.GetAccount(ctx, ownerType, ownerID)
}

// Withdraw debits an account with the same balance guard as Transfer.
func (s *BankService) Withdraw(ctx context.Context, actor *models.User, ownerType, ownerID string, amount float64, reference string) (*models.BankAccount, error) {
	ctx = ensureContext(ctx)

	if err := s.authorizeActor(actor, ownerType, ownerID); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, apperrors.NewValidation("withdrawal amount must be positive")
	}

	account, err := s.GetAccount(ctx, ownerType, ownerID)
	if err != nil {
		return nil, err
	}

	debit := s.db.WithContext(ctx).Model(&models.BankAccount{}).
		Where("id = ? AND balance >= ?", account.ID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if debit.Error != nil {
		return nil, apperrors.NewPersistence(debit.Error)
	}
	if debit.RowsAffected == 0 {
		return nil, ErrInsufficientFunds
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "bank.withdraw",
		Resource: "bank_account",
		Result:   "success",
		Metadata: map[string]any{
			"owner":     fmt.Sprintf("%s:%s", ownerType, ownerID),
			"amount":    amount,
			"reference": strings.TrimSpace(reference),
		},
	})

	return s.GetAccount(ctx, ownerType, ownerID)
}

// Ledger lists payment records touching the owner's account, newest first.
func (s *BankService) Ledger(ctx context.Context, actor *models.User, ownerType, ownerID string) ([]models.PaymentRecord, error) {
	ctx = ensureContext(ctx)

	if err := s.authorizeActor(actor, ownerType, ownerID); err != nil {
		return nil, err
	}

	account, err := s.GetAccount(ctx, ownerType, ownerID)
	if err != nil {
		return nil, err
	}

	var records []models.PaymentRecord
	if err := s.db.WithContext(ctx).
		Where("from_account_id = ? OR to_account_id = ?", account.ID, account.ID).
		Order("created_at DESC").
		Find(&records).Error; err != nil {
		return nil, apperrors.NewPersistence(err)
	}
	return records, nil
}
