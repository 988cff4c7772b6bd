package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/edba-platform/edba/internal/models"
	apperrors "github.com/edba-platform/edba/pkg/errors"
)

// HelpRequestInput describes a support question.
type HelpRequestInput struct {
	Subject string `json:"subject" validate:"required"`
	Body    string `json:"body" validate:"required"`
}

// HelpService manages support requests raised by conveners and handled
// by Technical Admins.
type HelpService struct {
	db    *gorm.DB
	audit *AuditService
	now   func() time.Time
}

// NewHelpService constructs a HelpService instance.
func NewHelpService(db *gorm.DB, audit *AuditService) (*HelpService, error) {
	if db == nil {
		return nil, errors.New("help service: db is required")
	}
	return &HelpService{db: db, audit: audit, now: time.Now}, nil
}

// Submit files a help request on behalf of the actor.
func (s *HelpService) Submit(ctx context.Context, actor *models.User, input HelpRequestInput) (*models.HelpRequest, error) {
	ctx = ensureContext(ctx)

	if actor == nil {
		return nil, apperrors.ErrUnauthorized
	}
	subject := strings.TrimSpace(input.Subject)
	body := strings.TrimSpace(input.Body)
	if subject == "" || body == "" {
		return nil, apperrors.NewValidation("subject and body are required")
	}

	request := models.HelpRequest{
		SubmitterID: actor.ID,
		Subject:     subject,
		Body:        body,
		Status:      models.HelpStatusOpen,
	}
	if err := s.db.WithContext(ctx).Create(&request).Error; err != nil {
		return nil, apperrors.NewPersistence(err)
	}

	id := actor.ID
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &id,
		Username: actor.Email,
		Action:   "help.submit",
		Resource: "help_request:" + request.ID,
		Result:   "success",
	})
	return &request, nil
}

// List returns help requests, optionally narrowed to one status.
func (s *HelpService) List(ctx context.Context, status string) ([]models.HelpRequest, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.HelpRequest{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var requests []models.HelpRequest
	if err := query.Order("created_at DESC").Find(&requests).Error; err != nil {
		return nil, apperrors.NewPersistence(err)
	}
	return requests, nil
}

// Resolve answers an open request. Only a Technical Admin may resolve,
// and the response must be non-empty. The status guard is a conditional
// update so an already-resolved request is not overwritten.
func (s *HelpService) Resolve(ctx context.Context, actor *models.User, requestID, response string) (*models.HelpRequest, error) {
	ctx = ensureContext(ctx)

	if actor == nil {
		return nil, apperrors.ErrUnauthorized
	}
	if actor.Role != models.RoleTAdmin {
		return nil, apperrors.ErrForbidden.WithMessage("only a technical admin may resolve help requests")
	}
	response = strings.TrimSpace(response)
	if response == "" {
		return nil, apperrors.NewValidation("response is required")
	}
	if !validUUID(requestID) {
		return nil, apperrors.ErrInvalidIDFormat
	}

	var request models.HelpRequest
	if err := s.db.WithContext(ctx).First(&request, "id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("help request not found")
		}
		return nil, apperrors.NewPersistence(err)
	}

	now := s.now()
	result := s.db.WithContext(ctx).
		Model(&models.HelpRequest{}).
		Where("id = ? AND status = ?", requestID, models.HelpStatusOpen).
		Updates(map[string]any{
			"status":      models.HelpStatusResolved,
			"response":    response,
			"resolved_by": actor.ID,
			"resolved_at": now,
		})
	if result.Error != nil {
		return nil, apperrors.NewPersistence(result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, apperrors.NewWrongState("help request is already resolved")
	}

	if err := s.db.WithContext(ctx).First(&request, "id = ?", requestID).Error; err != nil {
		return nil, apperrors.NewPersistence(err)
	}

	id := actor.ID
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &id,
		Username: actor.Email,
		Action:   "help.resolve",
		Resource: "help_request:" + request.ID,
		Result:   "success",
	})
	return &request, nil
}
