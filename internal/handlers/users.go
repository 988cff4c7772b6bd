package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edba-platform/edba/internal/middleware"
	"github.com/edba-platform/edba/internal/services"
	"github.com/edba-platform/edba/pkg/response"
)

// UserHandler exposes administrative user management.
type UserHandler struct {
	svc *services.UserService
}

func NewUserHandler(svc *services.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

// POST /api/users/admins
func (h *UserHandler) CreateAdmin(c *gin.Context) {
	var req services.CreateAdminInput
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.svc.CreateAdmin(requestContext(c), middleware.CurrentUser(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, userPayload(user))
}

// GET /api/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.svc.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, userPayload(user))
}

// GET /api/users
func (h *UserHandler) List(c *gin.Context) {
	opts := services.ListUsersOptions{
		Page:     parseIntQuery(c, "page", 1),
		PageSize: parseIntQuery(c, "per_page", 50),
	}
	opts.Filters.Role = c.Query("role")
	opts.Filters.OrganizationID = c.Query("organization_id")
	if raw := strings.TrimSpace(c.Query("is_active")); raw != "" {
		active := raw == "true" || raw == "1"
		opts.Filters.IsActive = &active
	}

	users, total, err := h.svc.List(requestContext(c), opts)
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := make([]gin.H, 0, len(users))
	for i := range users {
		payload = append(payload, userPayload(&users[i]))
	}

	response.SuccessWithMeta(c, http.StatusOK, payload, &response.Meta{
		Page:    opts.Page,
		PerPage: opts.PageSize,
		Total:   int(total),
	})
}

// PUT /api/users/:id/access-level
func (h *UserHandler) SetAccessLevel(c *gin.Context) {
	var req services.AccessLevelInput
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.svc.SetAccessLevel(requestContext(c), middleware.CurrentUser(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, userPayload(user))
}

// POST /api/users/:id/activate
func (h *UserHandler) Activate(c *gin.Context) {
	h.setActive(c, true)
}

// POST /api/users/:id/deactivate
func (h *UserHandler) Deactivate(c *gin.Context) {
	h.setActive(c, false)
}

func (h *UserHandler) setActive(c *gin.Context, active bool) {
	user, err := h.svc.SetActive(requestContext(c), middleware.CurrentUser(c), c.Param("id"), active)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, userPayload(user))
}

// DELETE /api/users/:id
func (h *UserHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(requestContext(c), middleware.CurrentUser(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, http.StatusOK, "user deleted", nil)
}
