package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/edba-platform/edba/internal/models"
	apperrors "github.com/edba-platform/edba/pkg/errors"
	"github.com/edba-platform/edba/pkg/metrics"
)

// Membership fee tiers. The fee follows the first selected access-level
// bit in vector order: public access, private consume, private provide.
const (
	FeePublicAccess   = 1000.0
	FeePrivateConsume = 100.0
	FeePrivateProvide = 0.0
)

// FeeForAccessLevel derives the membership fee from the access-level
// vector.
func FeeForAccessLevel(level AccessLevelInput) float64 {
	switch {
	case level.PublicAccess:
		return FeePublicAccess
	case level.PrivateConsume:
		return FeePrivateConsume
	case level.PrivateProvide:
		return FeePrivateProvide
	}
	return 0
}

// AddMemberInput describes a membership addition. When FeeOverride is
// nil the fee is derived from the access-level tier.
type AddMemberInput struct {
	Email       string           `json:"email" validate:"required,email"`
	Username    string           `json:"username"`
	Role        string           `json:"role"`
	AccessLevel AccessLevelInput `json:"access_level"`
	FeeOverride *float64         `json:"fee_override"`
}

// EditMemberInput enumerates mutable membership attributes.
type EditMemberInput struct {
	Username    *string           `json:"username"`
	Role        *string           `json:"role"`
	AccessLevel *AccessLevelInput `json:"access_level"`
}

// MemberService manages organization membership on behalf of the
// convener. Every operation requires the organization to be active.
type MemberService struct {
	db    *gorm.DB
	bank  *BankService
	audit *AuditService
}

// NewMemberService constructs a MemberService instance.
func NewMemberService(db *gorm.DB, bank *BankService, audit *AuditService) (*MemberService, error) {
	if db == nil {
		return nil, errors.New("member service: db is required")
	}
	if bank == nil {
		return nil, errors.New("member service: bank service is required")
	}
	return &MemberService{db: db, bank: bank, audit: audit}, nil
}

// AddMember associates a user with the convener's organization, creating
// the user record when the email is unknown. A positive membership fee
// is transferred from the organization's bank account to the platform
// account before the association is made.
func (s *MemberService) AddMember(ctx context.Context, actor *models.User, input AddMemberInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	org, err := s.requireActiveOrganization(ctx, actor)
	if err != nil {
		return nil, err
	}

	email := normaliseEmail(input.Email)
	if email == "" {
		return nil, apperrors.NewValidation("member email is required")
	}

	role := input.Role
	if role == "" {
		role = models.RoleDataConsumer
	}
	switch role {
	case models.RoleDataProvider, models.RoleDataConsumer:
	default:
		return nil, apperrors.NewValidation("members must hold a data provider or consumer role")
	}
	if role == models.RoleDataConsumer && input.AccessLevel.PrivateProvide {
		return nil, apperrors.NewValidation("a consumer-only member may not hold the private-provide access level")
	}

	fee := FeeForAccessLevel(input.AccessLevel)
	if input.FeeOverride != nil {
		if *input.FeeOverride < 0 {
			return nil, apperrors.NewValidation("membership fee may not be negative")
		}
		fee = *input.FeeOverride
	}

	if fee > 0 {
		if _, err := s.bank.Transfer(ctx, TransferInput{
			FromOwnerType: models.BankOwnerOrganization,
			FromOwnerID:   org.OrganizationID,
			ToOwnerType:   models.BankOwnerPlatform,
			ToOwnerID:     models.PlatformOwnerID,
			Amount:        fee,
			Purpose:       "membership_fee",
			Reference:     email,
		}); err != nil {
			metrics.MembershipChanges.WithLabelValues("add", "failure").Inc()
			return nil, err
		}
	}

	var existing models.User
	err = s.db.WithContext(ctx).First(&existing, "email = ?", email).Error
	switch {
	case err == nil:
		if existing.OrganizationID != nil {
			if *existing.OrganizationID == org.OrganizationID {
				return nil, apperrors.NewConflict("user is already a member of this organization")
			}
			return nil, apperrors.NewConflict("user belongs to another organization")
		}

		updates := map[string]any{
			"organization_id": org.OrganizationID,
			"role":            role,
			"public_access":   input.AccessLevel.PublicAccess,
			"private_consume": input.AccessLevel.PrivateConsume,
			"private_provide": input.AccessLevel.PrivateProvide,
			"membership_fee":  fee,
		}
		if username := strings.TrimSpace(input.Username); username != "" {
			updates["username"] = username
		}
		if err := s.db.WithContext(ctx).Model(&existing).Updates(updates).Error; err != nil {
			metrics.MembershipChanges.WithLabelValues("add", "failure").Inc()
			return nil, apperrors.NewPersistence(err)
		}
		if err := s.db.WithContext(ctx).First(&existing, "id = ?", existing.ID).Error; err != nil {
			return nil, apperrors.NewPersistence(err)
		}

		s.auditMember(ctx, actor, "member.add", "success", map[string]any{"member": email, "fee": fee, "existing_user": true})
		metrics.MembershipChanges.WithLabelValues("add", "success").Inc()
		return &existing, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		username := strings.TrimSpace(input.Username)
		if username == "" {
			username = strings.SplitN(email, "@", 2)[0]
		}

		orgID := org.OrganizationID
		member := models.User{
			Username:       username,
			Email:          email,
			Role:           role,
			PublicAccess:   input.AccessLevel.PublicAccess,
			PrivateConsume: input.AccessLevel.PrivateConsume,
			PrivateProvide: input.AccessLevel.PrivateProvide,
			OrganizationID: &orgID,
			MembershipFee:  &fee,
			IsActive:       true,
		}
		if err := s.db.WithContext(ctx).Create(&member).Error; err != nil {
			metrics.MembershipChanges.WithLabelValues("add", "failure").Inc()
			if isUniqueConstraintError(err) {
				return nil, apperrors.NewConflict("a user with this email already exists")
			}
			return nil, apperrors.NewPersistence(err)
		}

		s.auditMember(ctx, actor, "member.add", "success", map[string]any{"member": email, "fee": fee, "existing_user": false})
		metrics.MembershipChanges.WithLabelValues("add", "success").Inc()
		return &member, nil

	default:
		return nil, apperrors.NewPersistence(err)
	}
}

// MemberImportRowResult records the outcome for one row of a bulk
// member import.
type MemberImportRowResult struct {
	Row    int    `json:"row"`
	Email  string `json:"email"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// MemberImportReport summarises a bulk member import.
type MemberImportReport struct {
	Processed int                     `json:"processed"`
	Added     int                     `json:"added"`
	Failed    int                     `json:"failed"`
	Results   []MemberImportRowResult `json:"results"`
}

// Import file columns. Header names are matched case-insensitively with
// underscores treated as spaces.
const (
	importColEmail    = "email"
	importColUsername = "username"
	importColPublic   = "access public"
	importColConsume  = "access consume"
	importColProvide  = "access provide"
	importColFee      = "membership fee"
)

// ImportMembers adds members in bulk from a CSV stream. Each row is
// validated independently, so one bad row never blocks the rest; the
// report lists the outcome per row. Exactly one access-level column
// must be true per row, and an optional membership-fee column overrides
// the tier-derived fee.
func (s *MemberService) ImportMembers(ctx context.Context, actor *models.User, file io.Reader) (*MemberImportReport, error) {
	ctx = ensureContext(ctx)

	if _, err := s.requireActiveOrganization(ctx, actor); err != nil {
		return nil, err
	}

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, apperrors.NewValidation("import file is empty or not valid CSV")
	}

	columns := map[string]int{}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		name = strings.ReplaceAll(name, "_", " ")
		columns[name] = i
	}

	var missing []string
	for _, required := range []string{importColEmail, importColUsername, importColPublic, importColConsume, importColProvide} {
		if _, ok := columns[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.NewValidation(fmt.Sprintf("missing required column(s): %s", strings.Join(missing, ", ")))
	}

	report := &MemberImportReport{Results: []MemberImportRowResult{}}
	fail := func(row int, email, reason string) {
		report.Failed++
		report.Results = append(report.Results, MemberImportRowResult{Row: row, Email: email, Status: "failed", Reason: reason})
	}

	// Data rows are numbered from 2 to match the source file.
	for row := 2; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		report.Processed++
		if err != nil {
			fail(row, "", "malformed CSV row")
			continue
		}

		cell := func(name string) string {
			idx := columns[name]
			if idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}

		email := normaliseEmail(cell(importColEmail))
		if email == "" {
			fail(row, "", "email is missing")
			continue
		}
		username := cell(importColUsername)
		if username == "" {
			fail(row, email, "username is missing")
			continue
		}

		var level AccessLevelInput
		bits := []struct {
			column string
			target *bool
		}{
			{importColPublic, &level.PublicAccess},
			{importColConsume, &level.PrivateConsume},
			{importColProvide, &level.PrivateProvide},
		}
		selected := 0
		badBit := false
		for _, bit := range bits {
			value, err := parseImportBool(cell(bit.column))
			if err != nil {
				fail(row, email, fmt.Sprintf("invalid value for %s: use TRUE/FALSE, YES/NO or 1/0", bit.column))
				badBit = true
				break
			}
			*bit.target = value
			if value {
				selected++
			}
		}
		if badBit {
			continue
		}
		if selected != 1 {
			fail(row, email, "exactly one access-level column must be TRUE")
			continue
		}

		var feeOverride *float64
		if _, ok := columns[importColFee]; ok {
			if raw := cell(importColFee); raw != "" {
				fee, err := parseImportFee(raw)
				if err != nil {
					fail(row, email, fmt.Sprintf("invalid membership fee %q", raw))
					continue
				}
				if fee < 0 {
					fail(row, email, "membership fee may not be negative")
					continue
				}
				feeOverride = &fee
			}
		}

		role := models.RoleDataConsumer
		if level.PrivateProvide {
			role = models.RoleDataProvider
		}

		if _, err := s.AddMember(ctx, actor, AddMemberInput{
			Email:       email,
			Username:    username,
			Role:        role,
			AccessLevel: level,
			FeeOverride: feeOverride,
		}); err != nil {
			fail(row, email, importFailureReason(err))
			continue
		}

		report.Added++
		report.Results = append(report.Results, MemberImportRowResult{Row: row, Email: email, Status: "added"})
	}

	s.auditMember(ctx, actor, "member.import", "success", map[string]any{
		"processed": report.Processed,
		"added":     report.Added,
		"failed":    report.Failed,
	})
	return report, nil
}

func parseImportBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "true", "t", "yes", "y", "1":
		return true, nil
	case "false", "f", "no", "n", "0":
		return false, nil
	}
	return false, fmt.Errorf("unrecognised boolean %q", raw)
}

func parseImportFee(raw string) (float64, error) {
	// Tolerate currency symbols and thousands separators.
	var cleaned strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			cleaned.WriteRune(r)
		}
	}
	return strconv.ParseFloat(cleaned.String(), 64)
}

func importFailureReason(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}

// RemoveMember detaches a member from the convener's organization. The
// user record survives without an affiliation.
func (s *MemberService) RemoveMember(ctx context.Context, actor *models.User, email string) error {
	ctx = ensureContext(ctx)

	org, err := s.requireActiveOrganization(ctx, actor)
	if err != nil {
		return err
	}

	member, err := s.memberOf(ctx, org, email)
	if err != nil {
		return err
	}

	updates := map[string]any{
		"organization_id": nil,
		"membership_fee":  nil,
		"public_access":   false,
		"private_consume": false,
		"private_provide": false,
	}
	if err := s.db.WithContext(ctx).Model(member).Updates(updates).Error; err != nil {
		metrics.MembershipChanges.WithLabelValues("remove", "failure").Inc()
		return apperrors.NewPersistence(err)
	}

	s.auditMember(ctx, actor, "member.remove", "success", map[string]any{"member": member.Email})
	metrics.MembershipChanges.WithLabelValues("remove", "success").Inc()
	return nil
}

// EditMember updates a member's attributes inside the convener's
// organization.
func (s *MemberService) EditMember(ctx context.Context, actor *models.User, email string, input EditMemberInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	org, err := s.requireActiveOrganization(ctx, actor)
	if err != nil {
		return nil, err
	}

	member, err := s.memberOf(ctx, org, email)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Username != nil {
		username := strings.TrimSpace(*input.Username)
		if username == "" {
			return nil, apperrors.NewValidation("username may not be empty")
		}
		updates["username"] = username
	}
	if input.Role != nil {
		switch *input.Role {
		case models.RoleDataProvider, models.RoleDataConsumer:
		default:
			return nil, apperrors.NewValidation("members must hold a data provider or consumer role")
		}
		updates["role"] = *input.Role
	}
	if input.AccessLevel != nil {
		role := member.Role
		if input.Role != nil {
			role = *input.Role
		}
		if role == models.RoleDataConsumer && input.AccessLevel.PrivateProvide {
			return nil, apperrors.NewValidation("a consumer-only member may not hold the private-provide access level")
		}
		updates["public_access"] = input.AccessLevel.PublicAccess
		updates["private_consume"] = input.AccessLevel.PrivateConsume
		updates["private_provide"] = input.AccessLevel.PrivateProvide
	}
	if len(updates) == 0 {
		return member, nil
	}

	if err := s.db.WithContext(ctx).Model(member).Updates(updates).Error; err != nil {
		metrics.MembershipChanges.WithLabelValues("edit", "failure").Inc()
		return nil, apperrors.NewPersistence(err)
	}
	if err := s.db.WithContext(ctx).First(member, "id = ?", member.ID).Error; err != nil {
		return nil, apperrors.NewPersistence(err)
	}

	s.auditMember(ctx, actor, "member.edit", "success", map[string]any{"member": member.Email})
	metrics.MembershipChanges.WithLabelValues("edit", "success").Inc()
	return member, nil
}

// ListMembers returns all users affiliated with the convener's
// organization.
func (s *MemberService) ListMembers(ctx context.Context, actor *models.User) ([]models.User, error) {
	ctx = ensureContext(ctx)

	org, err := s.requireActiveOrganization(ctx, actor)
	if err != nil {
		return nil, err
	}

	var members []models.User
	if err := s.db.WithContext(ctx).
		Where("organization_id = ?", org.OrganizationID).
		Order("created_at").
		Find(&members).Error; err != nil {
		return nil, apperrors.NewPersistence(err)
	}
	return members, nil
}

func (s *MemberService) requireActiveOrganization(ctx context.Context, actor *models.User) (*models.Organization, error) {
	if actor == nil {
		return nil, apperrors.ErrUnauthorized
	}
	if !actor.CanManageMembers() {
		return nil, apperrors.ErrForbidden.WithMessage("only the organization convener may manage members")
	}
	if actor.OrganizationID == nil || strings.TrimSpace(*actor.OrganizationID) == "" {
		return nil, apperrors.NewValidation("actor has no organization identifier assigned")
	}

	var org models.Organization
	if err := s.db.WithContext(ctx).
		Where("organization_id = ?", strings.TrimSpace(*actor.OrganizationID)).
		First(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewWrongState("organization is not active")
		}
		return nil, apperrors.NewPersistence(err)
	}
	if !org.IsActive() {
		return nil, apperrors.NewWrongState("organization is not active")
	}
	return &org, nil
}

func (s *MemberService) memberOf(ctx context.Context, org *models.Organization, email string) (*models.User, error) {
	email = normaliseEmail(email)
	if email == "" {
		return nil, apperrors.NewValidation("member email is required")
	}

	var member models.User
	if err := s.db.WithContext(ctx).First(&member, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("member not found")
		}
		return nil, apperrors.NewPersistence(err)
	}
	if member.OrganizationID == nil || *member.OrganizationID != org.OrganizationID {
		return nil, apperrors.ErrNotFound.WithMessage("user is not a member of this organization")
	}
	return &member, nil
}

func (s *MemberService) auditMember(ctx context.Context, actor *models.User, action, result string, metadata map[string]any) {
	entry := AuditEntry{Action: action, Resource: "membership", Result: result, Metadata: metadata}
	if actor != nil {
		id := actor.ID
		entry.UserID = &id
		entry.Username = actor.Email
	}
	recordAudit(s.audit, ctx, entry)
}
