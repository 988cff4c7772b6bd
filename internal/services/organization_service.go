package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/edba-platform/edba/internal/models"
	apperrors "github.com/edba-platform/edba/pkg/errors"
)

// ServiceCourseInfo is always shared free of charge and never requires
// provider-side setup.
const ServiceCourseInfo = "courseInfo"

// ServiceConfig is the stored per-service availability configuration.
type ServiceConfig struct {
	Enabled               bool    `json:"enabled"`
	SharingScope          string  `json:"sharing_scope"`
	Fee                   float64 `json:"fee"`
	NeedsConfigByProvider bool    `json:"needs_config_by_provider"`
	DBConfigStatus        string  `json:"db_config_status"`
}

// ServiceConfigInput carries a requested configuration change for one
// service. A nil or negative fee keeps the existing value.
type ServiceConfigInput struct {
	Enabled      bool     `json:"enabled"`
	SharingScope string   `json:"sharing_scope"`
	Fee          *float64 `json:"fee"`
}

// OrganizationService reads and configures materialized organizations.
type OrganizationService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewOrganizationService constructs an OrganizationService instance.
func NewOrganizationService(db *gorm.DB, audit *AuditService) (*OrganizationService, error) {
	if db == nil {
		return nil, errors.New("organization service: db is required")
	}
	return &OrganizationService{db: db, audit: audit}, nil
}

// Get returns the organization with the given business identifier.
func (s *OrganizationService) Get(ctx context.Context, organizationID string) (*models.Organization, error) {
	ctx = ensureContext(ctx)

	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, apperrors.NewValidation("organization id is required")
	}

	var org models.Organization
	if err := s.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		First(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("organization not found")
		}
		return nil, apperrors.NewPersistence(err)
	}
	return &org, nil
}

// List returns all organizations ordered by creation time descending.
func (s *OrganizationService) List(ctx context.Context) ([]models.Organization, error) {
	ctx = ensureContext(ctx)

	var orgs []models.Organization
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&orgs).Error; err != nil {
		return nil, apperrors.NewPersistence(err)
	}
	return orgs, nil
}

// Services decodes the organization's stored service configuration map.
func (s *OrganizationService) Services(ctx context.Context, organizationID string) (map[string]ServiceConfig, error) {
	org, err := s.Get(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	return decodeServices(org.Services)
}

// SetServiceAvailability merges the requested configurations into the
// organization's services map. The organization must be active. Invalid
// or negative fees fall back to the existing value for that service.
func (s *OrganizationService) SetServiceAvailability(ctx context.Context, actor *models.User, organizationID string, configs map[string]ServiceConfigInput) (map[string]ServiceConfig, error) {
	ctx = ensureContext(ctx)

	if err := authorizeOrganizationActor(actor, organizationID); err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, apperrors.NewValidation("at least one service configuration is required")
	}

	org, err := s.Get(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if !org.IsActive() {
		return nil, apperrors.NewWrongState("organization is not active")
	}

	existing, err := decodeServices(org.Services)
	if err != nil {
		return nil, err
	}

	for key, input := range configs {
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, apperrors.NewValidation("service key may not be empty")
		}

		current := existing[key]

		fee := current.Fee
		if input.Fee != nil && *input.Fee >= 0 {
			fee = math.Round(*input.Fee*100) / 100
		}

		scope := strings.TrimSpace(input.SharingScope)
		if scope == "" {
			scope = "organization_only"
		}

		next := ServiceConfig{
			Enabled:               input.Enabled,
			SharingScope:          scope,
			Fee:                   fee,
			NeedsConfigByProvider: key != ServiceCourseInfo,
			DBConfigStatus:        current.DBConfigStatus,
		}
		if next.DBConfigStatus == "" {
			next.DBConfigStatus = "pending_provider_setup"
		}
		if key == ServiceCourseInfo {
			next.Fee = 0
			next.NeedsConfigByProvider = false
			next.DBConfigStatus = "not_applicable"
		}

		existing[key] = next
	}

	encoded, err := json.Marshal(existing)
	if err != nil {
		return nil, fmt.Errorf("organization service: encode services: %w", err)
	}

	if err := s.db.WithContext(ctx).
		Model(&models.Organization{}).
		Where("organization_id = ?", org.OrganizationID).
		Update("services", datatypes.JSON(encoded)).Error; err != nil {
		return nil, apperrors.NewPersistence(err)
	}

	s.auditOrg(ctx, actor, "organization.set_services", "success", map[string]any{
		"organization_id": org.OrganizationID,
		"services":        len(configs),
	})

	return existing, nil
}

// Rename updates the organization's display name.
func (s *OrganizationService) Rename(ctx context.Context, actor *models.User, organizationID, name string) (*models.Organization, error) {
	ctx = ensureContext(ctx)

	if err := authorizeOrganizationActor(actor, organizationID); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidation("organization name is required")
	}

	org, err := s.Get(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).
		Model(&models.Organization{}).
		Where("organization_id = ?", org.OrganizationID).
		Update("name", name).Error; err != nil {
		return nil, apperrors.NewPersistence(err)
	}
	org.Name = name

	s.auditOrg(ctx, actor, "organization.rename", "success", map[string]any{
		"organization_id": org.OrganizationID,
		"name":            name,
	})
	return org, nil
}

// authorizeOrganizationActor gates organization mutations. Platform
// staff may manage any organization; a convener only their own.
func authorizeOrganizationActor(actor *models.User, organizationID string) error {
	if actor == nil {
		return apperrors.ErrUnauthorized
	}
	if actor.IsAdmin() {
		return nil
	}
	if actor.Role == models.RoleOConvener && actor.OrganizationID != nil && *actor.OrganizationID == organizationID {
		return nil
	}
	return apperrors.ErrForbidden.WithMessage("only platform staff or the organization's own convener may manage this organization")
}

func decodeServices(raw datatypes.JSON) (map[string]ServiceConfig, error) {
	services := map[string]ServiceConfig{}
	if len(raw) == 0 {
		return services, nil
	}
	if err := json.Unmarshal(raw, &services); err != nil {
		return nil, fmt.Errorf("organization service: decode services: %w", err)
	}
	return services, nil
}

func (s *OrganizationService) auditOrg(ctx context.Context, actor *models.User, action, result string, metadata map[string]any) {
	entry := AuditEntry{Action: action, Resource: "organization", Result: result, Metadata: metadata}
	if actor != nil {
		id := actor.ID
		entry.UserID = &id
		entry.Username = actor.Email
	}
	recordAudit(s.audit, ctx, entry)
}
