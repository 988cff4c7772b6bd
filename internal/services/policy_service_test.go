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

func newPolicyService(t *testing.T) (*PolicyService, *gorm.DB, *models.User) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	svc, err := NewPolicyService(db, audit)
	require.NoError(t, err)

	admin := &models.User{Username: "ops", Email: "ops@edba.io", Role: models.RoleTAdmin}
	require.NoError(t, db.Create(admin).Error)
	return svc, db, admin
}

func TestPolicyPublishGetUpdateDelete(t *testing.T) {
	svc, _, admin := newPolicyService(t)

	policy, err := svc.Publish(context.Background(), admin, PolicyInput{
		Title:       "Data Sharing Policy",
		Description: "Rules for inter-organization sharing",
		FileRef:     "policies/sharing-v1.pdf",
	})
	require.NoError(t, err)

	fetched, err := svc.Get(context.Background(), policy.ID)
	require.NoError(t, err)
	require.Equal(t, "Data Sharing Policy", fetched.Title)
	require.Equal(t, admin.ID, fetched.UploadedBy)

	updated, err := svc.Update(context.Background(), admin, policy.ID, PolicyInput{FileRef: "policies/sharing-v2.pdf"})
	require.NoError(t, err)
	require.Equal(t, "policies/sharing-v2.pdf", updated.FileRef)
	require.Equal(t, "Data Sharing Policy", updated.Title)

	require.NoError(t, svc.Delete(context.Background(), admin, policy.ID))

	_, err = svc.Get(context.Background(), policy.ID)
	requireCode(t, err, apperrors.ErrNotFound.Code)
}

func TestPolicyPublishRequiresStaff(t *testing.T) {
	svc, db, _ := newPolicyService(t)

	convener := &models.User{Username: "conv", Email: "conv@acme.edu", Role: models.RoleOConvener}
	require.NoError(t, db.Create(convener).Error)

	_, err := svc.Publish(context.Background(), convener, PolicyInput{Title: "x", FileRef: "y"})
	requireCode(t, err, apperrors.ErrForbidden.Code)

	_, err = svc.Publish(context.Background(), nil, PolicyInput{Title: "x", FileRef: "y"})
	requireCode(t, err, apperrors.ErrUnauthorized.Code)
}

func TestPolicyValidation(t *testing.T) {
	svc, _, admin := newPolicyService(t)

	_, err := svc.Publish(context.Background(), admin, PolicyInput{Title: " ", FileRef: "y"})
	requireCode(t, err, apperrors.ErrValidation.Code)

	_, err = svc.Publish(context.Background(), admin, PolicyInput{Title: "x", FileRef: ""})
	requireCode(t, err, apperrors.ErrValidation.Code)

	_, err = svc.Get(context.Background(), "not-a-uuid")
	requireCode(t, err, apperrors.ErrInvalidIDFormat.Code)
}
