package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/edba-platform/edba/internal/app"
	iauth "github.com/edba-platform/edba/internal/auth"
	testutil "github.com/edba-platform/edba/internal/database/testutil"
	"github.com/edba-platform/edba/internal/models"
	"github.com/edba-platform/edba/internal/services"
	"github.com/edba-platform/edba/internal/storage"
	"github.com/edba-platform/edba/pkg/mail"
)

type captureMailer struct {
	sent []mail.Message
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "router-test-secret",
		Issuer:         "edba-test",
		AccessTokenTTL: 15 * time.Minute,
	})
	require.NoError(t, err)

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)
	verification, err := services.NewVerificationService(db, &captureMailer{}, audit)
	require.NoError(t, err)
	users, err := services.NewUserService(db, verification, audit)
	require.NoError(t, err)
	approvals, err := services.NewApprovalService(db, verification, audit)
	require.NoError(t, err)
	organizations, err := services.NewOrganizationService(db, audit)
	require.NoError(t, err)
	bank, err := services.NewBankService(db, audit)
	require.NoError(t, err)
	members, err := services.NewMemberService(db, bank, audit)
	require.NoError(t, err)
	policies, err := services.NewPolicyService(db, audit)
	require.NoError(t, err)
	help, err := services.NewHelpService(db, audit)
	require.NoError(t, err)

	store, err := storage.NewFilesystemDocumentStore(t.TempDir())
	require.NoError(t, err)

	cfg := &app.Config{}
	cfg.Monitoring.Prometheus.Enabled = true
	cfg.Monitoring.Prometheus.Endpoint = "/metrics"

	router, err := NewRouter(db, jwtSvc, cfg, Services{
		Audit:         audit,
		Verification:  verification,
		Users:         users,
		Approvals:     approvals,
		Organizations: organizations,
		Members:       members,
		Bank:          bank,
		Policies:      policies,
		Help:          help,
	}, store)
	require.NoError(t, err)

	return router, db
}

func performJSON(t *testing.T, router *gin.Engine, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func storedCode(t *testing.T, db *gorm.DB, email string) string {
	t.Helper()
	var record models.VerificationCode
	require.NoError(t, db.Where("email = ?", email).First(&record).Error)
	return record.Code
}

func TestRouterPublicAndProtectedRoutes(t *testing.T) {
	router, _ := newTestRouter(t)

	w := performJSON(t, router, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = performJSON(t, router, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = performJSON(t, router, http.MethodGet, "/api/auth/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = performJSON(t, router, http.MethodGet, "/api/users", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = performJSON(t, router, http.MethodGet, "/no/such/route", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterRegistrationAndCodeLogin(t *testing.T) {
	router, db := newTestRouter(t)
	email := "convener@example.edu"

	w := performJSON(t, router, http.MethodPost, "/api/auth/code", "", gin.H{
		"email":   email,
		"purpose": models.CodePurposeRegistration,
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	w = performJSON(t, router, http.MethodPost, "/api/auth/register", "", gin.H{
		"username": "convener",
		"email":    email,
		"password": "register-pass-1",
		"role":     models.RoleOConvener,
		"code":     storedCode(t, db, email),
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = performJSON(t, router, http.MethodPost, "/api/auth/code", "", gin.H{
		"email":   email,
		"purpose": models.CodePurposeLogin,
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	w = performJSON(t, router, http.MethodPost, "/api/auth/login", "", gin.H{
		"email": email,
		"code":  storedCode(t, db, email),
	})
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data struct {
			Tokens struct {
				AccessToken string `json:"access_token"`
			} `json:"tokens"`
			User struct {
				Role           string `json:"role"`
				OrganizationID string `json:"organization_id"`
			} `json:"user"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotEmpty(t, envelope.Data.Tokens.AccessToken)
	require.Equal(t, models.RoleOConvener, envelope.Data.User.Role)
	require.NotEmpty(t, envelope.Data.User.OrganizationID)

	token := envelope.Data.Tokens.AccessToken

	w = performJSON(t, router, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Conveners are not staff and cannot read the audit trail.
	w = performJSON(t, router, http.MethodGet, "/api/audit", token, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouterLoginRejectsStaleCode(t *testing.T) {
	router, db := newTestRouter(t)
	email := "nobody@example.edu"

	w := performJSON(t, router, http.MethodPost, "/api/auth/code", "", gin.H{
		"email":   email,
		"purpose": models.CodePurposeLogin,
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	require.NoError(t, db.Model(&models.VerificationCode{}).
		Where("email = ?", email).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	w = performJSON(t, router, http.MethodPost, "/api/auth/login", "", gin.H{
		"email": email,
		"code":  storedCode(t, db, email),
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouterStaffGuards(t *testing.T) {
	router, db := newTestRouter(t)

	// Seed a technical admin directly; admin accounts are provisioned, not self-registered.
	hash := "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5B1W4Sc3PYpT7p8mFoJ1R9kR1lFfC"
	admin := models.User{
		Username: "root-admin",
		Email:    "root@edba.example",
		Password: hash,
		Role:     models.RoleTAdmin,
		IsActive: true,
	}
	require.NoError(t, db.Create(&admin).Error)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "router-test-secret",
		Issuer:         "edba-test",
		AccessTokenTTL: 15 * time.Minute,
	})
	require.NoError(t, err)
	token, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{UserID: admin.ID, Role: admin.Role})
	require.NoError(t, err)

	w := performJSON(t, router, http.MethodGet, "/api/audit", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = performJSON(t, router, http.MethodGet, "/api/users", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = performJSON(t, router, http.MethodPost, "/api/users/admins", token, gin.H{
		"username": "helpdesk",
		"email":    "helpdesk@edba.example",
		"password": "helpdesk-pass-1",
		"role":     models.RoleEAdmin,
	})
	require.Equal(t, http.StatusCreated, w.Code)
}
