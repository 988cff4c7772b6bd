package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/edba-platform/edba/internal/database/testutil"
	"github.com/edba-platform/edba/internal/models"
	"github.com/edba-platform/edba/pkg/crypto"
	apperrors "github.com/edba-platform/edba/pkg/errors"
)

func newUserService(t *testing.T) (*UserService, *gorm.DB) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	verification, err := NewVerificationService(db, &stubMailer{}, audit)
	require.NoError(t, err)
	svc, err := NewUserService(db, verification, audit)
	require.NoError(t, err)
	return svc, db
}

func seedRegistrationCode(t *testing.T, db *gorm.DB, email, code string) {
	t.Helper()

	record := models.VerificationCode{
		Email:     email,
		Code:      code,
		Purpose:   models.CodePurposeRegistration,
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}
	require.NoError(t, db.Create(&record).Error)
}

func TestUserRegisterAssignsOrganizationIDToConvener(t *testing.T) {
	svc, db := newUserService(t)

	seedRegistrationCode(t, db, "convener@acme.edu", "424242")
	user, err := svc.Register(context.Background(), RegisterInput{
		Username: "acme-convener",
		Email:    "Convener@Acme.edu",
		Password: "correct-horse",
		Role:     models.RoleOConvener,
		Code:     "424242",
	})
	require.NoError(t, err)
	require.Equal(t, "convener@acme.edu", user.Email)
	require.NotNil(t, user.OrganizationID)
	require.NotEmpty(t, *user.OrganizationID)
	require.True(t, crypto.VerifyPassword(user.Password, "correct-horse"))

	seedRegistrationCode(t, db, "reader@beta.edu", "424243")
	consumer, err := svc.Register(context.Background(), RegisterInput{
		Username: "reader",
		Email:    "reader@beta.edu",
		Password: "correct-horse",
		Role:     models.RoleDataConsumer,
		Code:     "424243",
	})
	require.NoError(t, err)
	require.Nil(t, consumer.OrganizationID)
}

func TestUserRegisterRequiresValidCode(t *testing.T) {
	svc, _ := newUserService(t)

	_, err := svc.Register(context.Background(), RegisterInput{
		Username: "nobody",
		Email:    "nobody@example.edu",
		Password: "correct-horse",
		Role:     models.RoleDataConsumer,
		Code:     "000000",
	})
	require.ErrorIs(t, err, ErrCodeInvalid)
}

func TestUserRegisterRejectsStaffRoles(t *testing.T) {
	svc, db := newUserService(t)

	seedRegistrationCode(t, db, "sneak@example.edu", "424242")
	_, err := svc.Register(context.Background(), RegisterInput{
		Username: "sneak",
		Email:    "sneak@example.edu",
		Password: "correct-horse",
		Role:     models.RoleEAdmin,
		Code:     "424242",
	})
	requireCode(t, err, apperrors.ErrValidation.Code)
}

func TestUserDuplicateEmailConflict(t *testing.T) {
	svc, db := newUserService(t)

	seedRegistrationCode(t, db, "dup@example.edu", "111111")
	_, err := svc.Register(context.Background(), RegisterInput{
		Username: "first",
		Email:    "dup@example.edu",
		Password: "correct-horse",
		Role:     models.RoleDataProvider,
		Code:     "111111",
	})
	require.NoError(t, err)

	seedRegistrationCode(t, db, "dup@example.edu", "222222")
	_, err = svc.Register(context.Background(), RegisterInput{
		Username: "second",
		Email:    "dup@example.edu",
		Password: "correct-horse",
		Role:     models.RoleDataProvider,
		Code:     "222222",
	})
	requireCode(t, err, apperrors.ErrConflict.Code)
}

func TestCreateAdminRequiresTechnicalAdmin(t *testing.T) {
	svc, db := newUserService(t)

	tadmin := &models.User{Username: "ops", Email: "ops@edba.io", Role: models.RoleTAdmin}
	eadmin := &models.User{Username: "review", Email: "review@edba.io", Role: models.RoleEAdmin}
	require.NoError(t, db.Create(tadmin).Error)
	require.NoError(t, db.Create(eadmin).Error)

	created, err := svc.CreateAdmin(context.Background(), tadmin, CreateAdminInput{
		Username: "new-reviewer",
		Email:    "reviewer2@edba.io",
		Password: "correct-horse",
		Role:     models.RoleEAdmin,
	})
	require.NoError(t, err)
	require.Equal(t, models.RoleEAdmin, created.Role)

	_, err = svc.CreateAdmin(context.Background(), eadmin, CreateAdminInput{
		Username: "another",
		Email:    "another@edba.io",
		Password: "correct-horse",
		Role:     models.RoleEAdmin,
	})
	requireCode(t, err, apperrors.ErrForbidden.Code)

	_, err = svc.CreateAdmin(context.Background(), tadmin, CreateAdminInput{
		Username: "member",
		Email:    "member@edba.io",
		Password: "correct-horse",
		Role:     models.RoleDataConsumer,
	})
	requireCode(t, err, apperrors.ErrValidation.Code)
}

func TestSetAccessLevelGuardsConsumerOnly(t *testing.T) {
	svc, db := newUserService(t)

	tadmin := &models.User{Username: "ops", Email: "ops@edba.io", Role: models.RoleTAdmin}
	consumer := &models.User{Username: "reader", Email: "reader@example.edu", Role: models.RoleDataConsumer}
	require.NoError(t, db.Create(tadmin).Error)
	require.NoError(t, db.Create(consumer).Error)

	_, err := svc.SetAccessLevel(context.Background(), tadmin, consumer.ID, AccessLevelInput{PrivateProvide: true})
	requireCode(t, err, apperrors.ErrValidation.Code)

	updated, err := svc.SetAccessLevel(context.Background(), tadmin, consumer.ID, AccessLevelInput{PublicAccess: true, PrivateConsume: true})
	require.NoError(t, err)
	require.True(t, updated.PublicAccess)
	require.True(t, updated.PrivateConsume)
	require.False(t, updated.PrivateProvide)
}

func TestSetAccessLevelRequiresStaffOrOwnConvener(t *testing.T) {
	svc, db := newUserService(t)

	orgA := "ORG-ACCESS-A"
	orgB := "ORG-ACCESS-B"
	convenerA := &models.User{Username: "conv-a", Email: "conv-a@a.edu", Role: models.RoleOConvener, OrganizationID: &orgA}
	convenerB := &models.User{Username: "conv-b", Email: "conv-b@b.edu", Role: models.RoleOConvener, OrganizationID: &orgB}
	member := &models.User{Username: "member", Email: "member@a.edu", Role: models.RoleDataProvider, OrganizationID: &orgA}
	outsider := &models.User{Username: "outsider", Email: "outsider@c.edu", Role: models.RoleDataConsumer}
	require.NoError(t, db.Create(convenerA).Error)
	require.NoError(t, db.Create(convenerB).Error)
	require.NoError(t, db.Create(member).Error)
	require.NoError(t, db.Create(outsider).Error)

	_, err := svc.SetAccessLevel(context.Background(), nil, member.ID, AccessLevelInput{PublicAccess: true})
	requireCode(t, err, apperrors.ErrUnauthorized.Code)

	_, err = svc.SetAccessLevel(context.Background(), outsider, member.ID, AccessLevelInput{PublicAccess: true})
	requireCode(t, err, apperrors.ErrForbidden.Code)

	_, err = svc.SetAccessLevel(context.Background(), convenerB, member.ID, AccessLevelInput{PublicAccess: true})
	requireCode(t, err, apperrors.ErrForbidden.Code)

	var unchanged models.User
	require.NoError(t, db.First(&unchanged, "id = ?", member.ID).Error)
	require.False(t, unchanged.PublicAccess)

	updated, err := svc.SetAccessLevel(context.Background(), convenerA, member.ID, AccessLevelInput{PublicAccess: true, PrivateProvide: true})
	require.NoError(t, err)
	require.True(t, updated.PublicAccess)
	require.True(t, updated.PrivateProvide)
}

func TestDeleteAdminRequiresTechnicalAdmin(t *testing.T) {
	svc, db := newUserService(t)

	tadmin := &models.User{Username: "ops", Email: "ops@edba.io", Role: models.RoleTAdmin}
	eadmin := &models.User{Username: "review", Email: "review@edba.io", Role: models.RoleEAdmin}
	require.NoError(t, db.Create(tadmin).Error)
	require.NoError(t, db.Create(eadmin).Error)

	err := svc.Delete(context.Background(), eadmin, tadmin.ID)
	requireCode(t, err, apperrors.ErrForbidden.Code)

	require.NoError(t, svc.Delete(context.Background(), tadmin, eadmin.ID))

	_, err = svc.Get(context.Background(), eadmin.ID)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestListUsersFilters(t *testing.T) {
	svc, db := newUserService(t)

	orgID := "ORG-3001"
	require.NoError(t, db.Create(&models.User{Username: "a", Email: "a@x.edu", Role: models.RoleDataProvider, OrganizationID: &orgID}).Error)
	require.NoError(t, db.Create(&models.User{Username: "b", Email: "b@x.edu", Role: models.RoleDataConsumer, OrganizationID: &orgID}).Error)
	require.NoError(t, db.Create(&models.User{Username: "c", Email: "c@y.edu", Role: models.RoleDataConsumer}).Error)

	users, total, err := svc.List(context.Background(), ListUsersOptions{Filters: UserFilters{OrganizationID: orgID}})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, users, 2)

	users, total, err = svc.List(context.Background(), ListUsersOptions{Filters: UserFilters{Role: models.RoleDataConsumer}})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	for _, u := range users {
		require.Equal(t, models.RoleDataConsumer, u.Role)
	}
}
