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
	"github.com/edba-platform/edba/pkg/crypto"
	apperrors "github.com/edba-platform/edba/pkg/errors"
	"github.com/edba-platform/edba/pkg/mail"
	"github.com/edba-platform/edba/pkg/metrics"
)

const (
	defaultCodeLifetime = 5 * time.Minute
	defaultCodeLength   = 6
)

// ErrCodeInvalid is the single failure result for verification attempts.
// It deliberately covers "not found", "wrong code", and "expired" so the
// response does not reveal which condition failed.
var ErrCodeInvalid = &apperrors.AppError{
	Code:       "CODE_INVALID",
	Message:    "Verification code is invalid or has expired",
	StatusCode: 400,
}

// VerificationOption customises the VerificationService.
type VerificationOption func(*VerificationService)

// WithCodeLifetime overrides the code expiry window.
func WithCodeLifetime(d time.Duration) VerificationOption {
	return func(s *VerificationService) {
		if d > 0 {
			s.lifetime = d
		}
	}
}

// WithCodeLength adjusts the number of digits in generated codes.
func WithCodeLength(length int) VerificationOption {
	return func(s *VerificationService) {
		if length > 0 {
			s.codeLength = length
		}
	}
}

// WithVerificationClock injects a custom time source.
func WithVerificationClock(clock func() time.Time) VerificationOption {
	return func(s *VerificationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// VerificationService manages single-use, time-limited numeric codes
// keyed by email. A code proves control of an email address for a
// declared purpose (login, registration, admin creation, org setup).
type VerificationService struct {
	db         *gorm.DB
	mailer     mail.Mailer
	audit      *AuditService
	lifetime   time.Duration
	codeLength int
	now        func() time.Time
}

// NewVerificationService constructs a verification service with the provided dependencies.
func NewVerificationService(db *gorm.DB, mailer mail.Mailer, audit *AuditService, opts ...VerificationOption) (*VerificationService, error) {
	if db == nil {
		return nil, errors.New("verification service: db is required")
	}

	service := &VerificationService{
		db:         db,
		mailer:     mailer,
		audit:      audit,
		lifetime:   defaultCodeLifetime,
		codeLength: defaultCodeLength,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// CreateAndSend generates a fresh code for the email, dispatches it
// through the mailer, and upserts it keyed by email. A new code replaces
// any prior pending code for that email regardless of purpose.
// Persistence is strictly conditional on a successful send: a failed
// dispatch leaves any existing stored code untouched.
func (s *VerificationService) CreateAndSend(ctx context.Context, email, purpose string) (time.Time, error) {
	ctx = ensureContext(ctx)

	email = normaliseEmail(email)
	if email == "" {
		return time.Time{}, apperrors.NewValidation("email is required")
	}
	if !models.ValidCodePurpose(purpose) {
		return time.Time{}, apperrors.NewValidation(fmt.Sprintf("unknown verification purpose %q", purpose))
	}

	code, err := crypto.GenerateNumericCode(s.codeLength)
	if err != nil {
		return time.Time{}, apperrors.Wrap(err, "generate verification code")
	}

	now := s.now()
	expiresAt := now.Add(s.lifetime)

	if s.mailer != nil {
		message := mail.Message{
			To:      []string{email},
			Subject: "Your E-DBA verification code",
			Body:    s.codeBody(code, purpose),
		}
		if mailErr := s.mailer.Send(ctx, message); mailErr != nil && !errors.Is(mailErr, mail.ErrSMTPDisabled) {
			s.auditCode(ctx, email, "verification.send", "failure", map[string]any{"purpose": purpose})
			metrics.VerificationCodes.WithLabelValues("send", "failure").Inc()
			return time.Time{}, apperrors.ErrUpstreamFailure.WithMessage("failed to send verification email").WithInternal(mailErr)
		}
	}

	record := models.VerificationCode{
		Email:     email,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: expiresAt,
	}

	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoUpdates: clause.AssignmentColumns([]string{"code", "purpose", "expires_at", "updated_at"}),
		}).
		Create(&record).Error; err != nil {
		s.auditCode(ctx, email, "verification.send", "failure", map[string]any{"purpose": purpose})
		metrics.VerificationCodes.WithLabelValues("send", "failure").Inc()
		return time.Time{}, apperrors.NewPersistence(err)
	}

	s.auditCode(ctx, email, "verification.send", "success", map[string]any{"purpose": purpose})
	metrics.VerificationCodes.WithLabelValues("send", "success").Inc()

	return expiresAt, nil
}

// Verify consumes the code for the email. It succeeds only when a stored
// record matches email, code, and purpose exactly and has not expired;
// the record is deleted on success so a code can be used at most once.
func (s *VerificationService) Verify(ctx context.Context, email, submittedCode, purpose string) error {
	ctx = ensureContext(ctx)

	email = normaliseEmail(email)
	submittedCode = strings.TrimSpace(submittedCode)
	if email == "" || submittedCode == "" {
		return apperrors.NewValidation("email and code are required")
	}

	var record models.VerificationCode
	if err := s.db.WithContext(ctx).
		Where("email = ?", email).
		First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.fail(ctx, email, purpose)
		}
		s.auditCode(ctx, email, "verification.verify", "error", map[string]any{"purpose": purpose})
		return apperrors.NewPersistence(err)
	}

	if record.Code != submittedCode || record.Purpose != purpose || record.Expired(s.now()) {
		return s.fail(ctx, email, purpose)
	}

	if err := s.db.WithContext(ctx).
		Where("email = ? AND code = ?", email, submittedCode).
		Delete(&models.VerificationCode{}).Error; err != nil {
		s.auditCode(ctx, email, "verification.verify", "error", map[string]any{"purpose": purpose})
		return apperrors.NewPersistence(err)
	}

	s.auditCode(ctx, email, "verification.verify", "success", map[string]any{"purpose": purpose})
	metrics.VerificationCodes.WithLabelValues("verify", "success").Inc()
	return nil
}

// CleanupExpired removes codes past their expiry. Expiry is otherwise
// only checked at verification time.
func (s *VerificationService) CleanupExpired(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("expires_at < ?", s.now()).
		Delete(&models.VerificationCode{})
	if result.Error != nil {
		return 0, fmt.Errorf("verification service: cleanup codes: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *VerificationService) fail(ctx context.Context, email, purpose string) error {
	s.auditCode(ctx, email, "verification.verify", "failure", map[string]any{"purpose": purpose})
	metrics.VerificationCodes.WithLabelValues("verify", "failure").Inc()
	return ErrCodeInvalid
}

func (s *VerificationService) auditCode(ctx context.Context, email, action, result string, metadata map[string]any) {
	recordAudit(s.audit, ctx, AuditEntry{
		Username: email,
		Action:   action,
		Resource: "verification_code",
		Result:   result,
		Metadata: metadata,
	})
}

func (s *VerificationService) codeBody(code, purpose string) string {
	return fmt.Sprintf("Your verification code is %s.\n\nIt is valid for %d minutes and can be used once for %s.\nIf you did not request it, you can ignore this message.\n",
		code, int(s.lifetime.Minutes()), purposeLabel(purpose))
}

func purposeLabel(purpose string) string {
	switch purpose {
	case models.CodePurposeLogin:
		return "signing in"
	case models.CodePurposeRegistration:
		return "registration"
	case models.CodePurposeAdminCreation:
		return "admin account creation"
	case models.CodePurposeOrgSetup:
		return "organization registration"
	default:
		return purpose
	}
}
