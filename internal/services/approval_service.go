package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/edba-platform/edba/internal/models"
	apperrors "github.com/edba-platform/edba/pkg/errors"
	"github.com/edba-platform/edba/pkg/metrics"
)

// SubmitApplicationInput carries a convener's organization registration
// application.
type SubmitApplicationInput struct {
	OrganizationName string `json:"organization_name" validate:"required"`
	ProofDocumentRef string `json:"proof_document_ref" validate:"required"`
	Code             string `json:"code" validate:"required"`
}

// ApprovalListOptions controls filtering and pagination for request queries.
type ApprovalListOptions struct {
	Status           string
	SubmittingUserID string
	Page             int
	PageSize         int
}

// ApprovalOption customises the ApprovalService.
type ApprovalOption func(*ApprovalService)

// WithApprovalClock injects a custom time source.
func WithApprovalClock(clock func() time.Time) ApprovalOption {
	return func(s *ApprovalService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// ApprovalService drives organization registration requests through the
// two-stage review chain. Each transition is a conditional update on the
// expected current status so that concurrent callers racing on the same
// request cannot both succeed; the loser observes a wrong-state failure
// and must re-read.
type ApprovalService struct {
	db           *gorm.DB
	verification *VerificationService
	audit        *AuditService
	now          func() time.Time
}

// NewApprovalService constructs an ApprovalService with the provided dependencies.
func NewApprovalService(db *gorm.DB, verification *VerificationService, audit *AuditService, opts ...ApprovalOption) (*ApprovalService, error) {
	if db == nil {
		return nil, errors.New("approval service: db is required")
	}
	if verification == nil {
		return nil, errors.New("approval service: verification service is required")
	}

	service := &ApprovalService{
		db:           db,
		verification: verification,
		audit:        audit,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Submit files a new registration application for the actor's
// organization. It requires a non-empty proposed name, a stored proof
// document reference, a valid verification code for the actor's email
// under the org-setup purpose, and no other pending request for the
// same (actor, organization) pair.
func (s *ApprovalService) Submit(ctx context.Context, actor *models.User, input SubmitApplicationInput) (*models.OrganizationApprovalRequest, error) {
	ctx = ensureContext(ctx)

	if actor == nil {
		return nil, apperrors.ErrUnauthorized
	}
	if actor.Role != models.RoleOConvener {
		return nil, apperrors.ErrForbidden.WithMessage("only an organization convener may submit an application")
	}
	if actor.OrganizationID == nil || strings.TrimSpace(*actor.OrganizationID) == "" {
		return nil, apperrors.NewValidation("actor has no organization identifier assigned")
	}

	name := strings.TrimSpace(input.OrganizationName)
	if name == "" {
		return nil, apperrors.NewValidation("organization name is required")
	}
	proofRef := strings.TrimSpace(input.ProofDocumentRef)
	if proofRef == "" {
		return nil, apperrors.NewValidation("proof document is required")
	}

	orgID := strings.TrimSpace(*actor.OrganizationID)

	// Duplicate check runs before code verification so a rejected
	// duplicate does not consume the submitter's code.
	var pending int64
	if err := s.db.WithContext(ctx).
		Model(&models.OrganizationApprovalRequest{}).
		Where("submitting_user_id = ? AND organization_id = ? AND status IN ?",
			actor.ID, orgID,
			[]string{models.ApprovalStatusPendingEAdmin, models.ApprovalStatusPendingSenior}).
		Count(&pending).Error; err != nil {
		return nil, apperrors.NewPersistence(err)
	}
	if pending > 0 {
		return nil, apperrors.NewConflict("a pending application already exists for this organization")
	}

	if err := s.verification.Verify(ctx, actor.Email, input.Code, models.CodePurposeOrgSetup); err != nil {
		return nil, err
	}

	request := models.OrganizationApprovalRequest{
		OrganizationID:   orgID,
		OrganizationName: name,
		SubmittingUserID: actor.ID,
		ProofDocumentRef: proofRef,
		Status:           models.ApprovalStatusPendingEAdmin,
		SubmittedAt:      s.now(),
	}

	if err := s.db.WithContext(ctx).Create(&request).Error; err != nil {
		s.auditTransition(ctx, actor, "approval.submit", "failure", request.ID, nil)
		return nil, apperrors.NewPersistence(err)
	}

	s.auditTransition(ctx, actor, "approval.submit", "success", request.ID, map[string]any{
		"organization_id":   orgID,
		"organization_name": name,
	})
	metrics.ApprovalTransitions.WithLabelValues("submit", "success").Inc()

	return &request, nil
}

// ApproveFirstStage advances a request awaiting first-stage review.
func (s *ApprovalService) ApproveFirstStage(ctx context.Context, actor *models.User, requestID string) (*models.OrganizationApprovalRequest, error) {
	ctx = ensureContext(ctx)

	if err := s.requireRole(actor, models.RoleEAdmin); err != nil {
		return nil, err
	}

	now := s.now()
	return s.transition(ctx, actor, "approval.eadmin_approve", requestID,
		models.ApprovalStatusPendingEAdmin,
		map[string]any{
			"status":           models.ApprovalStatusPendingSenior,
			"e_admin_id":       actor.ID,
			"e_admin_acted_at": now,
		})
}

// RejectFirstStage rejects a request awaiting first-stage review. The
// reason must be non-empty.
func (s *ApprovalService) RejectFirstStage(ctx context.Context, actor *models.User, requestID, reason string) (*models.OrganizationApprovalRequest, error) {
	ctx = ensureContext(ctx)

	if err := s.requireRole(actor, models.RoleEAdmin); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewValidation("rejection reason is required")
	}

	now := s.now()
	return s.transition(ctx, actor, "approval.eadmin_reject", requestID,
		models.ApprovalStatusPendingEAdmin,
		map[string]any{
			"status":           models.ApprovalStatusRejectedEAdmin,
			"e_admin_id":       actor.ID,
			"e_admin_acted_at": now,
			"rejection_reason": reason,
		})
}

// ApproveFinalStage advances a request awaiting final review to active
// and materializes the organization record. The organization upsert is
// keyed by the business identifier so repeated completions stay
// idempotent.
func (s *ApprovalService) ApproveFinalStage(ctx context.Context, actor *models.User, requestID string) (*models.OrganizationApprovalRequest, error) {
	ctx = ensureContext(ctx)

	if err := s.requireRole(actor, models.RoleSeniorEAdmin); err != nil {
		return nil, err
	}

	now := s.now()
	request, err := s.transition(ctx, actor, "approval.senior_approve", requestID,
		models.ApprovalStatusPendingSenior,
		map[string]any{
			"status":          models.ApprovalStatusActive,
			"senior_id":       actor.ID,
			"senior_acted_at": now,
		})
	if err != nil {
		return nil, err
	}

	organization := models.Organization{
		OrganizationID: request.OrganizationID,
		Name:           request.OrganizationName,
		ConvenerUserID: request.SubmittingUserID,
		Status:         models.OrganizationStatusActive,
	}

	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "organization_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "convener_user_id", "updated_at"}),
		}).
		Create(&organization).Error; err != nil {
		return nil, apperrors.NewPersistence(err)
	}

	return request, nil
}

// RejectFinalStage rejects a request awaiting final review.
func (s *ApprovalService) RejectFinalStage(ctx context.Context, actor *models.User, requestID, reason string) (*models.OrganizationApprovalRequest, error) {
	ctx = ensureContext(ctx)

	if err := s.requireRole(actor, models.RoleSeniorEAdmin); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewValidation("rejection reason is required")
	}

	now := s.now()
	return s.transition(ctx, actor, "approval.senior_reject", requestID,
		models.ApprovalStatusPendingSenior,
		map[string]any{
			"status":           models.ApprovalStatusRejectedSenior,
			"senior_id":        actor.ID,
			"senior_acted_at":  now,
			"rejection_reason": reason,
		})
}

// Get returns a single request by id.
func (s *ApprovalService) Get(ctx context.Context, requestID string) (*models.OrganizationApprovalRequest, error) {
	ctx = ensureContext(ctx)

	requestID = strings.TrimSpace(requestID)
	if !validUUID(requestID) {
		return nil, apperrors.ErrInvalidIDFormat
	}

	var request models.OrganizationApprovalRequest
	if err := s.db.WithContext(ctx).First(&request, "id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("approval request not found")
		}
		return nil, apperrors.NewPersistence(err)
	}
	return &request, nil
}

// List returns requests ordered by submission time descending.
func (s *ApprovalService) List(ctx context.Context, opts ApprovalListOptions) ([]models.OrganizationApprovalRequest, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	query := s.db.WithContext(ctx).Model(&models.OrganizationApprovalRequest{})
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}
	if opts.SubmittingUserID != "" {
		query = query.Where("submitting_user_id = ?", opts.SubmittingUserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("approval service: count requests: %w", err)
	}

	var requests []models.OrganizationApprovalRequest
	if err := query.
		Order("submitted_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&requests).Error; err != nil {
		return nil, 0, fmt.Errorf("approval service: list requests: %w", err)
	}

	return requests, total, nil
}

// transition performs a conditional update matching the request id and
// the expected current status. Zero rows affected means the request has
// moved on since it was read, which surfaces as a wrong-state failure.
func (s *ApprovalService) transition(ctx context.Context, actor *models.User, action, requestID, expectedStatus string, updates map[string]any) (*models.OrganizationApprovalRequest, error) {
	requestID = strings.TrimSpace(requestID)
	if !validUUID(requestID) {
		return nil, apperrors.ErrInvalidIDFormat
	}

	var request models.OrganizationApprovalRequest
	if err := s.db.WithContext(ctx).First(&request, "id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("approval request not found")
		}
		return nil, apperrors.NewPersistence(err)
	}

	result := s.db.WithContext(ctx).
		Model(&models.OrganizationApprovalRequest{}).
		Where("id = ? AND status = ?", requestID, expectedStatus).
		Updates(updates)
	if result.Error != nil {
		s.auditTransition(ctx, actor, action, "error", requestID, nil)
		return nil, apperrors.NewPersistence(result.Error)
	}
	if result.RowsAffected == 0 {
		s.auditTransition(ctx, actor, action, "failure", requestID, map[string]any{
			"expected_status": expectedStatus,
			"actual_status":   request.Status,
		})
		metrics.ApprovalTransitions.WithLabelValues(action, "failure").Inc()
		return nil, apperrors.NewWrongState(fmt.Sprintf("request is %s, expected %s", request.Status, expectedStatus))
	}

	if err := s.db.WithContext(ctx).First(&request, "id = ?", requestID).Error; err != nil {
		return nil, apperrors.NewPersistence(err)
	}

	s.auditTransition(ctx, actor, action, "success", requestID, map[string]any{"status": request.Status})
	metrics.ApprovalTransitions.WithLabelValues(action, "success").Inc()

	return &request, nil
}

func (s *ApprovalService) requireRole(actor *models.User, role string) error {
	if actor == nil {
		return apperrors.ErrUnauthorized
	}
	if actor.Role != role {
		return apperrors.ErrForbidden.WithMessage("actor role does not permit this review stage")
	}
	return nil
}

func (s *ApprovalService) auditTransition(ctx context.Context, actor *models.User, action, result, requestID string, metadata map[string]any) {
	entry := AuditEntry{
		Action:   action,
		Resource: "approval_request:" + requestID,
		Result:   result,
		Metadata: metadata,
	}
	if actor != nil {
		id := actor.ID
		entry.UserID = &id
		entry.Username = actor.Email
	}
	recordAudit(s.audit, ctx, entry)
}
