package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/edba-platform/edba/internal/database/testutil"
	"github.com/edba-platform/edba/internal/models"
	apperrors "github.com/edba-platform/edba/pkg/errors"
)

// bankTestStaff stands in for a platform staff actor; authorization
// only inspects the role and organization fields.
var bankTestStaff = &models.User{Role: models.RoleTAdmin}

func newBankService(t *testing.T) (*BankService, *gorm.DB) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	svc, err := NewBankService(db, audit)
	require.NoError(t, err)
	return svc, db
}

func TestBankEnsureOrganizationAccountIsIdempotent(t *testing.T) {
	svc, db := newBankService(t)

	first, err := svc.EnsureOrganizationAccount(context.Background(), bankTestStaff, "ORG-1", "111222333", "First Bank", 500)
	require.NoError(t, err)
	require.EqualValues(t, 500, first.Balance)

	// A second ensure keeps the original account and balance.
	second, err := svc.EnsureOrganizationAccount(context.Background(), bankTestStaff, "ORG-1", "999", "Other Bank", 9000)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.EqualValues(t, 500, second.Balance)

	var count int64
	require.NoError(t, db.Model(&models.BankAccount{}).Where("owner_type = ?", models.BankOwnerOrganization).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestBankTransferMovesBalanceAndRecordsLedger(t *testing.T) {
	svc, _ := newBankService(t)

	_, err := svc.EnsureOrganizationAccount(context.Background(), bankTestStaff, "ORG-1", "111222333", "First Bank", 500)
	require.NoError(t, err)

	record, err := svc.Transfer(context.Background(), TransferInput{
		FromOwnerType: models.BankOwnerOrganization,
		FromOwnerID:   "ORG-1",
		ToOwnerType:   models.BankOwnerPlatform,
		ToOwnerID:     "platform",
		Amount:        100,
		Purpose:       "membership_fee",
		Reference:     "reader@example.edu",
	})
	require.NoError(t, err)
	require.EqualValues(t, 100, record.Amount)

	from, err := svc.GetAccount(context.Background(), models.BankOwnerOrganization, "ORG-1")
	require.NoError(t, err)
	require.EqualValues(t, 400, from.Balance)

	platform, err := svc.GetAccount(context.Background(), models.BankOwnerPlatform, "platform")
	require.NoError(t, err)
	require.EqualValues(t, 100, platform.Balance)

	ledger, err := svc.Ledger(context.Background(), bankTestStaff, models.BankOwnerOrganization, "ORG-1")
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	require.Equal(t, "membership_fee", ledger[0].Purpose)
}

func TestBankTransferInsufficientFunds(t *testing.T) {
	svc, _ := newBankService(t)

	_, err := svc.EnsureOrganizationAccount(context.Background(), bankTestStaff, "ORG-1", "111222333", "First Bank", 50)
	require.NoError(t, err)

	_, err = svc.Transfer(context.Background(), TransferInput{
		FromOwnerType: models.BankOwnerOrganization,
		FromOwnerID:   "ORG-1",
		ToOwnerType:   models.BankOwnerPlatform,
		ToOwnerID:     "platform",
		Amount:        100,
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// Neither side changed.
	from, err := svc.GetAccount(context.Background(), models.BankOwnerOrganization, "ORG-1")
	require.NoError(t, err)
	require.EqualValues(t, 50, from.Balance)

	platform, err := svc.GetAccount(context.Background(), models.BankOwnerPlatform, "platform")
	require.NoError(t, err)
	require.Zero(t, platform.Balance)
}

func TestBankTransferValidation(t *testing.T) {
	svc, _ := newBankService(t)

	_, err := svc.Transfer(context.Background(), TransferInput{Amount: 0})
	requireCode(t, err, apperrors.ErrValidation.Code)

	_, err = svc.Transfer(context.Background(), TransferInput{
		FromOwnerType: models.BankOwnerOrganization,
		FromOwnerID:   "ORG-MISSING",
		ToOwnerType:   models.BankOwnerPlatform,
		ToOwnerID:     "platform",
		Amount:        10,
	})
	requireCode(t, err, apperrors.ErrNotFound.Code)
}

func TestBankDepositAndWithdraw(t *testing.T) {
	svc, _ := newBankService(t)

	_, err := svc.EnsureOrganizationAccount(context.Background(), bankTestStaff, "ORG-9", "444555666", "First Bank", 100)
	require.NoError(t, err)

	account, err := svc.Deposit(context.Background(), bankTestStaff, models.BankOwnerOrganization, "ORG-9", 150, "top-up")
	require.NoError(t, err)
	require.EqualValues(t, 250, account.Balance)

	account, err = svc.Withdraw(context.Background(), bankTestStaff, models.BankOwnerOrganization, "ORG-9", 200, "refund")
	require.NoError(t, err)
	require.EqualValues(t, 50, account.Balance)

	_, err = svc.Withdraw(context.Background(), bankTestStaff, models.BankOwnerOrganization, "ORG-9", 51, "overdraw")
	require.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = svc.Deposit(context.Background(), bankTestStaff, models.BankOwnerOrganization, "ORG-9", 0, "")
	requireCode(t, err, apperrors.ErrValidation.Code)

	_, err = svc.Withdraw(context.Background(), bankTestStaff, models.BankOwnerOrganization, "ORG-9", -5, "")
	requireCode(t, err, apperrors.ErrValidation.Code)
}

func TestBankAccountAccessRequiresOwnership(t *testing.T) {
	svc, _ := newBankService(t)

	orgA := "ORG-OWN-A"
	orgB := "ORG-OWN-B"
	convenerA := &models.User{Role: models.RoleOConvener, OrganizationID: &orgA}
	convenerB := &models.User{Role: models.RoleOConvener, OrganizationID: &orgB}

	_, err := svc.EnsureOrganizationAccount(context.Background(), convenerB, orgB, "777888999", "Second Bank", 500)
	require.NoError(t, err)

	// A convener may not touch another organization's account.
	_, err = svc.Withdraw(context.Background(), convenerA, models.BankOwnerOrganization, orgB, 400, "")
	requireCode(t, err, apperrors.ErrForbidden.Code)

	_, err = svc.Deposit(context.Background(), convenerA, models.BankOwnerOrganization, orgB, 100, "")
	requireCode(t, err, apperrors.ErrForbidden.Code)

	_, err = svc.Ledger(context.Background(), convenerA, models.BankOwnerOrganization, orgB)
	requireCode(t, err, apperrors.ErrForbidden.Code)

	_, err = svc.OrganizationAccount(context.Background(), convenerA, orgB)
	requireCode(t, err, apperrors.ErrForbidden.Code)

	_, err = svc.EnsureOrganizationAccount(context.Background(), convenerA, orgB, "123", "Third Bank", 0)
	requireCode(t, err, apperrors.ErrForbidden.Code)

	account, err := svc.OrganizationAccount(context.Background(), convenerB, orgB)
	require.NoError(t, err)
	require.EqualValues(t, 500, account.Balance)

	// Only staff may read the platform ledger.
	_, err = svc.Ledger(context.Background(), convenerB, models.BankOwnerPlatform, models.PlatformOwnerID)
	requireCode(t, err, apperrors.ErrForbidden.Code)

	_, err = svc.Withdraw(context.Background(), nil, models.BankOwnerOrganization, orgB, 10, "")
	requireCode(t, err, apperrors.ErrUnauthorized.Code)

	account, err = svc.Withdraw(context.Background(), convenerB, models.BankOwnerOrganization, orgB, 100, "own-withdrawal")
	require.NoError(t, err)
	require.EqualValues(t, 400, account.Balance)
}
