package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edba-platform/edba/internal/middleware"
	"github.com/edba-platform/edba/internal/services"
	"github.com/edba-platform/edba/pkg/response"
)

// HelpHandler exposes the support-request workflow.
type HelpHandler struct {
	svc *services.HelpService
}

func NewHelpHandler(svc *services.HelpService) *HelpHandler {
	return &HelpHandler{svc: svc}
}

// POST /api/help
func (h *HelpHandler) Submit(c *gin.Context) {
	var req services.HelpRequestInput
	if !bindAndValidate(c, &req) {
		return
	}

	request, err := h.svc.Submit(requestContext(c), middleware.CurrentUser(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, request)
}

// GET /api/help
func (h *HelpHandler) List(c *gin.Context) {
	requests, err := h.svc.List(requestContext(c), c.Query("status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, requests)
}

type resolveRequest struct {
	Response string `json:"response" validate:"required"`
}

// POST /api/help/:id/resolve
func (h *HelpHandler) Resolve(c *gin.Context) {
	var req resolveRequest
	if !bindAndValidate(c, &req) {
		return
	}

	request, err := h.svc.Resolve(requestContext(c), middleware.CurrentUser(c), c.Param("id"), req.Response)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, request)
}
