package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/edba-platform/edba/internal/models"
	apperrors "github.com/edba-platform/edba/pkg/errors"
)

// PolicyInput describes a policy document to publish.
type PolicyInput struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	FileRef     string `json:"file_ref" validate:"required"`
}

// PolicyService manages platform policy documents published by admins.
type PolicyService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewPolicyService constructs a PolicyService instance.
func NewPolicyService(db *gorm.DB, audit *AuditService) (*PolicyService, error) {
	if db == nil {
		return nil, errors.New("policy service: db is required")
	}
	return &PolicyService{db: db, audit: audit}, nil
}

// Publish stores a new policy document record.
func (s *PolicyService) Publish(ctx context.Context, actor *models.User, input PolicyInput) (*models.PolicyDocument, error) {
	ctx = ensureContext(ctx)

	if actor == nil {
		return nil, apperrors.ErrUnauthorized
	}
	if !actor.IsAdmin() {
		return nil, apperrors.ErrForbidden.WithMessage("only platform staff may publish policies")
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidation("policy title is required")
	}
	fileRef := strings.TrimSpace(input.FileRef)
	if fileRef == "" {
		return nil, apperrors.NewValidation("policy document is required")
	}

	policy := models.PolicyDocument{
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		FileRef:     fileRef,
		UploadedBy:  actor.ID,
	}
	if err := s.db.WithContext(ctx).Create(&policy).Error; err != nil {
		return nil, apperrors.NewPersistence(err)
	}

	s.auditPolicy(ctx, actor, "policy.publish", policy.ID)
	return &policy, nil
}

// Get returns a policy by id.
func (s *PolicyService) Get(ctx context.Context, policyID string) (*models.PolicyDocument, error) {
	ctx = ensureContext(ctx)

	if !validUUID(policyID) {
		return nil, apperrors.ErrInvalidIDFormat
	}

	var policy models.PolicyDocument
	if err := s.db.WithContext(ctx).First(&policy, "id = ?", policyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("policy not found")
		}
		return nil, apperrors.NewPersistence(err)
	}
	return &policy, nil
}

// List returns all policies, newest first.
func (s *PolicyService) List(ctx context.Context) ([]models.PolicyDocument, error) {
	ctx = ensureContext(ctx)

	var policies []models.PolicyDocument
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&policies).Error; err != nil {
		return nil, apperrors.NewPersistence(err)
	}
	return policies, nil
}

// Update replaces mutable attributes of a policy.
func (s *PolicyService) Update(ctx context.Context, actor *models.User, policyID string, input PolicyInput) (*models.PolicyDocument, error) {
	ctx = ensureContext(ctx)

	if actor == nil {
		return nil, apperrors.ErrUnauthorized
	}
	if !actor.IsAdmin() {
		return nil, apperrors.ErrForbidden.WithMessage("only platform staff may update policies")
	}

	policy, err := s.Get(ctx, policyID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if title := strings.TrimSpace(input.Title); title != "" {
		updates["title"] = title
	}
	if desc := strings.TrimSpace(input.Description); desc != "" {
		updates["description"] = desc
	}
	if ref := strings.TrimSpace(input.FileRef); ref != "" {
		updates["file_ref"] = ref
	}
	if len(updates) == 0 {
		return policy, nil
	}

	if err := s.db.WithContext(ctx).Model(policy).Updates(updates).Error; err != nil {
		return nil, apperrors.NewPersistence(err)
	}
	if err := s.db.WithContext(ctx).First(policy, "id = ?", policy.ID).Error; err != nil {
		return nil, apperrors.NewPersistence(err)
	}

	s.auditPolicy(ctx, actor, "policy.update", policy.ID)
	return policy, nil
}

// Delete removes a policy record.
func (s *PolicyService) Delete(ctx context.Context, actor *models.User, policyID string) error {
	ctx = ensureContext(ctx)

	if actor == nil {
		return apperrors.ErrUnauthorized
	}
	if !actor.IsAdmin() {
		return apperrors.ErrForbidden.WithMessage("only platform staff may delete policies")
	}

	policy, err := s.Get(ctx, policyID)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(policy).Error; err != nil {
		return apperrors.NewPersistence(err)
	}

	s.auditPolicy(ctx, actor, "policy.delete", policy.ID)
	return nil
}

func (s *PolicyService) auditPolicy(ctx context.Context, actor *models.User, action, policyID string) {
	id := actor.ID
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &id,
		Username: actor.Email,
		Action:   action,
		Resource: "policy:" + policyID,
		Result:   "success",
	})
}
