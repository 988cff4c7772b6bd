package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edba-platform/edba/internal/models"
	"github.com/edba-platform/edba/pkg/crypto"
	apperrors "github.com/edba-platform/edba/pkg/errors"
)

// ErrUserNotFound indicates the requested user does not exist.
var ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)

// RegisterInput describes a self-registration completed after code
// verification.
type RegisterInput struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required"`
	Code     string `json:"code" validate:"required"`
}

// CreateAdminInput describes an admin account created by a Technical Admin.
type CreateAdminInput struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required"`
}

// AccessLevelInput is the boolean capability vector attached to a user.
type AccessLevelInput struct {
	PublicAccess   bool `json:"public_access"`
	PrivateConsume bool `json:"private_consume"`
	PrivateProvide bool `json:"private_provide"`
}

// UserFilters captures listing filters.
type UserFilters struct {
	Role           string
	OrganizationID string
	IsActive       *bool
}

// ListUsersOptions controls pagination for user listing.
type ListUsersOptions struct {
	Page     int
	PageSize int
	Filters  UserFilters
}

// UserService manages the user/role store. Every mutation is validated
// independently and recorded in the audit log.
type UserService struct {
	db           *gorm.DB
	verification *VerificationService
	audit        *AuditService
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB, verification *VerificationService, audit *AuditService) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db, verification: verification, audit: audit}, nil
}

// Register creates a user after verifying the email-control code. A
// convener is assigned an immutable organization identifier at account
// creation.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	email := normaliseEmail(input.Email)
	username := strings.TrimSpace(input.Username)
	if username == "" || email == "" {
		return nil, apperrors.NewValidation("username and email are required")
	}

	switch input.Role {
	case models.RoleOConvener, models.RoleDataProvider, models.RoleDataConsumer:
	default:
		return nil, apperrors.NewValidation("role is not open to self-registration")
	}

	if s.verification != nil {
		if err := s.verification.Verify(ctx, email, input.Code, models.CodePurposeRegistration); err != nil {
			return nil, err
		}
	}

	user, err := s.create(ctx, username, email, input.Password, input.Role)
	if err != nil {
		return nil, err
	}

	if input.Role == models.RoleOConvener {
		orgID := "ORG-" + uuid.NewString()
		if err := s.db.WithContext(ctx).Model(user).Update("organization_id", orgID).Error; err != nil {
			return nil, apperrors.NewPersistence(err)
		}
		user.OrganizationID = &orgID
	}

	s.auditUser(ctx, user, "user.register", "success", map[string]any{"role": user.Role})
	return user, nil
}

// CreateAdmin provisions a platform staff account. Only a Technical
// Admin may do this, and the new role must itself be a staff role.
func (s *UserService) CreateAdmin(ctx context.Context, actor *models.User, input CreateAdminInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	if actor == nil {
		return nil, apperrors.ErrUnauthorized
	}
	if actor.Role != models.RoleTAdmin {
		return nil, apperrors.ErrForbidden.WithMessage("only a technical admin may create admin accounts")
	}

	switch input.Role {
	case models.RoleTAdmin, models.RoleEAdmin, models.RoleSeniorEAdmin:
	default:
		return nil, apperrors.NewValidation("admin creation accepts staff roles only")
	}

	user, err := s.create(ctx, input.Username, normaliseEmail(input.Email), input.Password, input.Role)
	if err != nil {
		return nil, err
	}

	s.auditActor(ctx, actor, "user.create_admin", "success", map[string]any{
		"created_user_id": user.ID,
		"role":            user.Role,
	})
	return user, nil
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, userID string) (*models.User, error) {
	ctx = ensureContext(ctx)

	if !validUUID(userID) {
		return nil, apperrors.ErrInvalidIDFormat
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, apperrors.NewPersistence(err)
	}
	return &user, nil
}

// GetByEmail returns a user by email.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx = ensureContext(ctx)

	email = normaliseEmail(email)
	if email == "" {
		return nil, apperrors.NewValidation("email is required")
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, apperrors.NewPersistence(err)
	}
	return &user, nil
}

// List returns users matching the filters.
func (s *UserService) List(ctx context.Context, opts ListUsersOptions) ([]models.User, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	query := s.db.WithContext(ctx).Model(&models.User{})
	if opts.Filters.Role != "" {
		query = query.Where("role = ?", opts.Filters.Role)
	}
	if opts.Filters.OrganizationID != "" {
		query = query.Where("organization_id = ?", opts.Filters.OrganizationID)
	}
	if opts.Filters.IsActive != nil {
		query = query.Where("is_active = ?", *opts.Filters.IsActive)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: count users: %w", err)
	}

	var users []models.User
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: list users: %w", err)
	}

	return users, total, nil
}

// SetAccessLevel replaces the user's capability vector. Platform staff
// may set any user's vector; a convener may only set members of their
// own organization. A consumer-only role may not hold the
// private-provide bit.
func (s *UserService) SetAccessLevel(ctx context.Context, actor *models.User, userID string, input AccessLevelInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	if actor == nil {
		return nil, apperrors.ErrUnauthorized
	}

	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !actor.IsAdmin() {
		if actor.Role != models.RoleOConvener ||
			actor.OrganizationID == nil || user.OrganizationID == nil ||
			*actor.OrganizationID != *user.OrganizationID {
			return nil, apperrors.ErrForbidden.WithMessage("only platform staff or the member's convener may change access levels")
		}
	}

	if user.IsConsumerOnly() && input.PrivateProvide {
		return nil, apperrors.NewValidation("a consumer-only user may not hold the private-provide access level")
	}

	updates := map[string]any{
		"public_access":   input.PublicAccess,
		"private_consume": input.PrivateConsume,
		"private_provide": input.PrivateProvide,
	}
	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, apperrors.NewPersistence(err)
	}

	user.PublicAccess = input.PublicAccess
	user.PrivateConsume = input.PrivateConsume
	user.PrivateProvide = input.PrivateProvide

	s.auditActor(ctx, actor, "user.set_access_level", "success", map[string]any{
		"user_id":         user.ID,
		"public_access":   input.PublicAccess,
		"private_consume": input.PrivateConsume,
		"private_provide": input.PrivateProvide,
	})
	return user, nil
}

// SetActive toggles the user's active flag.
func (s *UserService) SetActive(ctx context.Context, actor *models.User, userID string, active bool) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(user).Update("is_active", active).Error; err != nil {
		return nil, apperrors.NewPersistence(err)
	}
	user.IsActive = active

	s.auditActor(ctx, actor, "user.set_active", "success", map[string]any{"user_id": user.ID, "active": active})
	return user, nil
}

// Delete removes a user account. Staff accounts require a Technical
// Admin as the acting user.
func (s *UserService) Delete(ctx context.Context, actor *models.User, userID string) error {
	ctx = ensureContext(ctx)

	user, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}

	if user.IsAdmin() {
		if actor == nil || actor.Role != models.RoleTAdmin {
			return apperrors.ErrForbidden.WithMessage("only a technical admin may delete admin accounts")
		}
	}

	if err := s.db.WithContext(ctx).Delete(user).Error; err != nil {
		return apperrors.NewPersistence(err)
	}

	s.auditActor(ctx, actor, "user.delete", "success", map[string]any{"user_id": user.ID})
	return nil
}

func (s *UserService) create(ctx context.Context, username, email, password, role string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperrors.NewValidation("username is required")
	}
	if email == "" {
		return nil, apperrors.NewValidation("email is required")
	}
	if strings.TrimSpace(password) == "" {
		return nil, apperrors.NewValidation("password is required")
	}
	if !models.ValidRole(role) {
		return nil, apperrors.NewValidation(fmt.Sprintf("unknown role %q", role))
	}

	hashed, err := crypto.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := &models.User{
		Username: username,
		Email:    email,
		Password: hashed,
		Role:     role,
		IsActive: true,
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("a user with this email already exists")
		}
		return nil, apperrors.NewPersistence(err)
	}

	return user, nil
}

func (s *UserService) auditUser(ctx context.Context, user *models.User, action, result string, metadata map[string]any) {
	entry := AuditEntry{Action: action, Resource: "user:" + user.ID, Result: result, Metadata: metadata}
	id := user.ID
	entry.UserID = &id
	entry.Username = user.Email
	recordAudit(s.audit, ctx, entry)
}

func (s *UserService) auditActor(ctx context.Context, actor *models.User, action, result string, metadata map[string]any) {
	entry := AuditEntry{Action: action, Resource: "user", Result: result, Metadata: metadata}
	if actor != nil {
		id := actor.ID
		entry.UserID = &id
		entry.Username = actor.Email
	}
	recordAudit(s.audit, ctx, entry)
}
