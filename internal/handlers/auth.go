package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	iauth "github.com/edba-platform/edba/internal/auth"
	"github.com/edba-platform/edba/internal/middleware"
	"github.com/edba-platform/edba/internal/models"
	"github.com/edba-platform/edba/internal/services"
	"github.com/edba-platform/edba/pkg/crypto"
	"github.com/edba-platform/edba/pkg/errors"
	"github.com/edba-platform/edba/pkg/response"
)

// AuthHandler manages the code-based authentication flows.
type AuthHandler struct {
	db           *gorm.DB
	jwt          *iauth.JWTService
	users        *services.UserService
	verification *services.VerificationService
}

func NewAuthHandler(db *gorm.DB, jwt *iauth.JWTService, users *services.UserService, verification *services.VerificationService) (*AuthHandler, error) {
	if db == nil {
		return nil, errors.ErrInternalServer.WithMessage("database handle must be provided")
	}
	if jwt == nil || users == nil || verification == nil {
		return nil, errors.ErrInternalServer.WithMessage("auth collaborators must be provided")
	}
	return &AuthHandler{db: db, jwt: jwt, users: users, verification: verification}, nil
}

type requestCodeRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Purpose string `json:"purpose" validate:"required"`
}

type loginRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required"`
}

type passwordLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// POST /api/auth/code
func (h *AuthHandler) RequestCode(c *gin.Context) {
	var req requestCodeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	expiresAt, err := h.verification.CreateAndSend(requestContext(c), req.Email, req.Purpose)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{"expires_at": expiresAt})
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	if err := h.verification.Verify(ctx, req.Email, req.Code, models.CodePurposeLogin); err != nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	user, err := h.users.GetByEmail(ctx, req.Email)
	if err != nil || !user.IsActive {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	h.issueToken(c, user)
}

// PasswordLogin authenticates staff accounts that hold a password.
//
// POST /api/auth/login/password
func (h *AuthHandler) PasswordLogin(c *gin.Context) {
	var req passwordLoginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.GetByEmail(requestContext(c), req.Email)
	if err != nil || !user.IsActive || user.Password == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	if !user.IsAdmin() {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	if !crypto.VerifyPassword(user.Password, req.Password) {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	h.issueToken(c, user)
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterInput
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Register(requestContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, userPayload(user))
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	response.Success(c, http.StatusOK, userPayload(user))
}

func (h *AuthHandler) issueToken(c *gin.Context, user *models.User) {
	token, err := h.jwt.GenerateAccessToken(iauth.AccessTokenInput{UserID: user.ID, Role: user.Role})
	if err != nil {
		response.Error(c, errors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"tokens": tokenResponse{AccessToken: token, TokenType: "Bearer"},
		"user":   userPayload(user),
	})
}

func userPayload(user *models.User) gin.H {
	var orgID string
	if user.OrganizationID != nil {
		orgID = strings.TrimSpace(*user.OrganizationID)
	}
	return gin.H{
		"id":              user.ID,
		"username":        user.Username,
		"email":           user.Email,
		"role":            user.Role,
		"organization_id": orgID,
		"is_active":       user.IsActive,
		"access_level": gin.H{
			"public_access":   user.PublicAccess,
			"private_consume": user.PrivateConsume,
			"private_provide": user.PrivateProvide,
		},
	}
}
