package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/edba-platform/edba/internal/database/testutil"
	"github.com/edba-platform/edba/internal/models"
	apperrors "github.com/edba-platform/edba/pkg/errors"
)

type approvalFixture struct {
	db       *gorm.DB
	svc      *ApprovalService
	convener *models.User
	eadmin   *models.User
	senior   *models.User
}

func newApprovalFixture(t *testing.T) *approvalFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	verification, err := NewVerificationService(db, &stubMailer{}, audit)
	require.NoError(t, err)
	svc, err := NewApprovalService(db, verification, audit)
	require.NoError(t, err)

	orgID := "ORG-2001"
	convener := &models.User{Username: "acme-convener", Email: "convener@acme.edu", Role: models.RoleOConvener, OrganizationID: &orgID}
	eadmin := &models.User{Username: "reviewer", Email: "eadmin@edba.io", Role: models.RoleEAdmin}
	senior := &models.User{Username: "senior", Email: "senior@edba.io", Role: models.RoleSeniorEAdmin}
	for _, u := range []*models.User{convener, eadmin, senior} {
		require.NoError(t, db.Create(u).Error)
	}

	return &approvalFixture{db: db, svc: svc, convener: convener, eadmin: eadmin, senior: senior}
}

// seedCode plants a valid org-setup verification code for the user.
func (f *approvalFixture) seedCode(t *testing.T, email, code string) {
	t.Helper()

	record := models.VerificationCode{
		Email:     email,
		Code:      code,
		Purpose:   models.CodePurposeOrgSetup,
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}
	require.NoError(t, f.db.Create(&record).Error)
}

func (f *approvalFixture) submit(t *testing.T, name string) *models.OrganizationApprovalRequest {
	t.Helper()

	f.seedCode(t, f.convener.Email, "135790")
	request, err := f.svc.Submit(context.Background(), f.convener, SubmitApplicationInput{
		OrganizationName: name,
		ProofDocumentRef: "proof/doc.pdf",
		Code:             "135790",
	})
	require.NoError(t, err)
	return request
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, code, appErr.Code)
}

func TestApprovalFullChainActivatesOrganization(t *testing.T) {
	f := newApprovalFixture(t)

	request := f.submit(t, "Acme")
	require.Equal(t, models.ApprovalStatusPendingEAdmin, request.Status)

	request, err := f.svc.ApproveFirstStage(context.Background(), f.eadmin, request.ID)
	require.NoError(t, err)
	require.Equal(t, models.ApprovalStatusPendingSenior, request.Status)
	require.Equal(t, f.eadmin.ID, *request.EAdminID)

	request, err = f.svc.ApproveFinalStage(context.Background(), f.senior, request.ID)
	require.NoError(t, err)
	require.Equal(t, models.ApprovalStatusActive, request.Status)

	var org models.Organization
	require.NoError(t, f.db.Where("organization_id = ?", "ORG-2001").First(&org).Error)
	require.Equal(t, "Acme", org.Name)
	require.Equal(t, f.convener.ID, org.ConvenerUserID)
	require.True(t, org.IsActive())
}

func TestApprovalRejectRecordsReason(t *testing.T) {
	f := newApprovalFixture(t)

	request := f.submit(t, "Beta")

	request, err := f.svc.RejectFirstStage(context.Background(), f.eadmin, request.ID, "insufficient proof")
	require.NoError(t, err)
	require.Equal(t, models.ApprovalStatusRejectedEAdmin, request.Status)
	require.Equal(t, "insufficient proof", request.RejectionReason)

	// A later approve on a rejected request must fail without changes.
	_, err = f.svc.ApproveFirstStage(context.Background(), f.eadmin, request.ID)
	requireCode(t, err, apperrors.ErrWrongState.Code)

	reloaded, err := f.svc.Get(context.Background(), request.ID)
	require.NoError(t, err)
	require.Equal(t, models.ApprovalStatusRejectedEAdmin, reloaded.Status)
}

func TestApprovalRejectRequiresReason(t *testing.T) {
	f := newApprovalFixture(t)
	request := f.submit(t, "Gamma")

	_, err := f.svc.RejectFirstStage(context.Background(), f.eadmin, request.ID, "   ")
	requireCode(t, err, apperrors.ErrValidation.Code)

	reloaded, err := f.svc.Get(context.Background(), request.ID)
	require.NoError(t, err)
	require.Equal(t, models.ApprovalStatusPendingEAdmin, reloaded.Status)
}

func TestApprovalWrongStageTransitionFails(t *testing.T) {
	f := newApprovalFixture(t)
	request := f.submit(t, "Delta")

	// Final approval before first-stage approval is a wrong-state failure.
	_, err := f.svc.ApproveFinalStage(context.Background(), f.senior, request.ID)
	requireCode(t, err, apperrors.ErrWrongState.Code)

	reloaded, err := f.svc.Get(context.Background(), request.ID)
	require.NoError(t, err)
	require.Equal(t, models.ApprovalStatusPendingEAdmin, reloaded.Status)
}

func TestApprovalOrganizationUpsertIsIdempotent(t *testing.T) {
	f := newApprovalFixture(t)

	first := f.submit(t, "Acme")
	_, err := f.svc.ApproveFirstStage(context.Background(), f.eadmin, first.ID)
	require.NoError(t, err)
	_, err = f.svc.ApproveFinalStage(context.Background(), f.senior, first.ID)
	require.NoError(t, err)

	// A superseding resubmission approved under a revised name updates the
	// same organization record instead of creating a second one.
	second := f.submit(t, "Acme Corp")
	_, err = f.svc.ApproveFirstStage(context.Background(), f.eadmin, second.ID)
	require.NoError(t, err)
	_, err = f.svc.ApproveFinalStage(context.Background(), f.senior, second.ID)
	require.NoError(t, err)

	var count int64
	require.NoError(t, f.db.Model(&models.Organization{}).Where("organization_id = ?", "ORG-2001").Count(&count).Error)
	require.EqualValues(t, 1, count)

	var org models.Organization
	require.NoError(t, f.db.Where("organization_id = ?", "ORG-2001").First(&org).Error)
	require.Equal(t, "Acme Corp", org.Name)
}

func TestApprovalSubmitGuards(t *testing.T) {
	f := newApprovalFixture(t)

	f.seedCode(t, f.convener.Email, "135790")

	_, err := f.svc.Submit(context.Background(), f.convener, SubmitApplicationInput{
		OrganizationName: "  ",
		ProofDocumentRef: "proof/doc.pdf",
		Code:             "135790",
	})
	requireCode(t, err, apperrors.ErrValidation.Code)

	_, err = f.svc.Submit(context.Background(), f.convener, SubmitApplicationInput{
		OrganizationName: "Acme",
		ProofDocumentRef: "",
		Code:             "135790",
	})
	requireCode(t, err, apperrors.ErrValidation.Code)

	// Wrong code blocks submission.
	_, err = f.svc.Submit(context.Background(), f.convener, SubmitApplicationInput{
		OrganizationName: "Acme",
		ProofDocumentRef: "proof/doc.pdf",
		Code:             "000001",
	})
	require.ErrorIs(t, err, ErrCodeInvalid)

	// Only conveners may submit.
	_, err = f.svc.Submit(context.Background(), f.eadmin, SubmitApplicationInput{
		OrganizationName: "Acme",
		ProofDocumentRef: "proof/doc.pdf",
		Code:             "135790",
	})
	requireCode(t, err, apperrors.ErrForbidden.Code)
}

func TestApprovalDuplicatePendingRejected(t *testing.T) {
	f := newApprovalFixture(t)

	f.submit(t, "Acme")

	f.seedCode(t, f.convener.Email, "246802")
	_, err := f.svc.Submit(context.Background(), f.convener, SubmitApplicationInput{
		OrganizationName: "Acme",
		ProofDocumentRef: "proof/doc2.pdf",
		Code:             "246802",
	})
	requireCode(t, err, apperrors.ErrConflict.Code)

	// The duplicate check runs before verification, so the code survives
	// for a later valid submission.
	var code models.VerificationCode
	require.NoError(t, f.db.Where("email = ?", f.convener.Email).First(&code).Error)
	require.Equal(t, "246802", code.Code)
}

func TestApprovalResubmissionAfterRejection(t *testing.T) {
	f := newApprovalFixture(t)

	request := f.submit(t, "Beta")
	_, err := f.svc.RejectFirstStage(context.Background(), f.eadmin, request.ID, "insufficient proof")
	require.NoError(t, err)

	// Rejection is terminal for the instance but not for the organization:
	// a fresh request supersedes without deleting the old one.
	second := f.submit(t, "Beta")
	require.NotEqual(t, request.ID, second.ID)

	var count int64
	require.NoError(t, f.db.Model(&models.OrganizationApprovalRequest{}).Count(&count).Error)
	require.EqualValues(t, 2, count)
}

func TestApprovalIdentifierValidation(t *testing.T) {
	f := newApprovalFixture(t)

	_, err := f.svc.ApproveFirstStage(context.Background(), f.eadmin, "not-a-uuid")
	requireCode(t, err, apperrors.ErrInvalidIDFormat.Code)

	_, err = f.svc.ApproveFirstStage(context.Background(), f.eadmin, "b7a6a0cc-72f5-4af6-9cf3-1db6a9d2b7f1")
	requireCode(t, err, apperrors.ErrNotFound.Code)
}

func TestApprovalConcurrentFirstStageApprovals(t *testing.T) {
	f := newApprovalFixture(t)
	request := f.submit(t, "Acme")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ApproveFirstStage(context.Background(), f.eadmin, request.ID)
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}()
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			requireCode(t, err, apperrors.ErrWrongState.Code)
		}
	}
	require.Equal(t, 1, successes)

	reloaded, err := f.svc.Get(context.Background(), request.ID)
	require.NoError(t, err)
	require.Equal(t, models.ApprovalStatusPendingSenior, reloaded.Status)
}

func TestApprovalListFiltersByStatus(t *testing.T) {
	f := newApprovalFixture(t)

	first := f.submit(t, "Acme")
	_, err := f.svc.ApproveFirstStage(context.Background(), f.eadmin, first.ID)
	require.NoError(t, err)

	pending, total, err := f.svc.List(context.Background(), ApprovalListOptions{Status: models.ApprovalStatusPendingSenior})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, pending, 1)
	require.Equal(t, first.ID, pending[0].ID)
}
