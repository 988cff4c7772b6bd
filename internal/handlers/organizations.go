package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edba-platform/edba/internal/middleware"
	"github.com/edba-platform/edba/internal/services"
	"github.com/edba-platform/edba/pkg/response"
)

// OrganizationHandler exposes materialized organizations and their
// service-availability configuration.
type OrganizationHandler struct {
	svc *services.OrganizationService
}

func NewOrganizationHandler(svc *services.OrganizationService) *OrganizationHandler {
	return &OrganizationHandler{svc: svc}
}

// GET /api/organizations
func (h *OrganizationHandler) List(c *gin.Context) {
	orgs, err := h.svc.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, orgs)
}

// GET /api/organizations/:org_id
func (h *OrganizationHandler) Get(c *gin.Context) {
	org, err := h.svc.Get(requestContext(c), c.Param("org_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, org)
}

// GET /api/organizations/:org_id/services
func (h *OrganizationHandler) Services(c *gin.Context) {
	configs, err := h.svc.Services(requestContext(c), c.Param("org_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, configs)
}

type serviceAvailabilityRequest struct {
	Services map[string]services.ServiceConfigInput `json:"services" validate:"required"`
}

// PUT /api/organizations/:org_id/services
func (h *OrganizationHandler) SetServiceAvailability(c *gin.Context) {
	var req serviceAvailabilityRequest
	if !bindAndValidate(c, &req) {
		return
	}

	configs, err := h.svc.SetServiceAvailability(requestContext(c), middleware.CurrentUser(c), c.Param("org_id"), req.Services)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, configs)
}

type renameRequest struct {
	Name string `json:"name" validate:"required"`
}

// PATCH /api/organizations/:org_id
func (h *OrganizationHandler) Rename(c *gin.Context) {
	var req renameRequest
	if !bindAndValidate(c, &req) {
		return
	}

	org, err := h.svc.Rename(requestContext(c), middleware.CurrentUser(c), c.Param("org_id"), req.Name)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, org)
}
