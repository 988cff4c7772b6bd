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

func newHelpService(t *testing.T) (*HelpService, *gorm.DB) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	svc, err := NewHelpService(db, audit)
	require.NoError(t, err)
	return svc, db
}

func TestHelpSubmitAndResolve(t *testing.T) {
	svc, db := newHelpService(t)

	convener := &models.User{Username: "conv", Email: "conv@acme.edu", Role: models.RoleOConvener}
	tadmin := &models.User{Username: "ops", Email: "ops@edba.io", Role: models.RoleTAdmin}
	require.NoError(t, db.Create(convener).Error)
	require.NoError(t, db.Create(tadmin).Error)

	request, err := svc.Submit(context.Background(), convener, HelpRequestInput{
		Subject: "Approval stuck",
		Body:    "Our application has been pending for two weeks.",
	})
	require.NoError(t, err)
	require.Equal(t, models.HelpStatusOpen, request.Status)

	open, err := svc.List(context.Background(), models.HelpStatusOpen)
	require.NoError(t, err)
	require.Len(t, open, 1)

	resolved, err := svc.Resolve(context.Background(), tadmin, request.ID, "Escalated to the review queue.")
	require.NoError(t, err)
	require.Equal(t, models.HelpStatusResolved, resolved.Status)
	require.Equal(t, tadmin.ID, *resolved.ResolvedBy)
	require.NotNil(t, resolved.ResolvedAt)

	// Re-resolving an answered request is a wrong-state failure.
	_, err = svc.Resolve(context.Background(), tadmin, request.ID, "Second answer")
	requireCode(t, err, apperrors.ErrWrongState.Code)
}

func TestHelpResolveGuards(t *testing.T) {
	svc, db := newHelpService(t)

	convener := &models.User{Username: "conv", Email: "conv@acme.edu", Role: models.RoleOConvener}
	tadmin := &models.User{Username: "ops", Email: "ops@edba.io", Role: models.RoleTAdmin}
	require.NoError(t, db.Create(convener).Error)
	require.NoError(t, db.Create(tadmin).Error)

	request, err := svc.Submit(context.Background(), convener, HelpRequestInput{Subject: "s", Body: "b"})
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), convener, request.ID, "answer")
	requireCode(t, err, apperrors.ErrForbidden.Code)

	_, err = svc.Resolve(context.Background(), tadmin, request.ID, "   ")
	requireCode(t, err, apperrors.ErrValidation.Code)

	_, err = svc.Resolve(context.Background(), tadmin, "not-a-uuid", "answer")
	requireCode(t, err, apperrors.ErrInvalidIDFormat.Code)

	_, err = svc.Submit(context.Background(), convener, HelpRequestInput{Subject: "", Body: "b"})
	requireCode(t, err, apperrors.ErrValidation.Code)
}
