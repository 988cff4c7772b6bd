package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edba-platform/edba/internal/middleware"
	"github.com/edba-platform/edba/internal/services"
	"github.com/edba-platform/edba/pkg/response"
)

// ApprovalHandler exposes the organization registration workflow.
type ApprovalHandler struct {
	svc *services.ApprovalService
}

func NewApprovalHandler(svc *services.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{svc: svc}
}

// POST /api/approvals
func (h *ApprovalHandler) Submit(c *gin.Context) {
	var req services.SubmitApplicationInput
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

// GET /api/approvals/:id
func (h *ApprovalHandler) Get(c *gin.Context) {
	request, err := h.svc.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, request)
}

// GET /api/approvals
func (h *ApprovalHandler) List(c *gin.Context) {
	opts := services.ApprovalListOptions{
		Status:           c.Query("status"),
		SubmittingUserID: c.Query("submitting_user_id"),
		Page:             parseIntQuery(c, "page", 1),
		PageSize:         parseIntQuery(c, "per_page", 50),
	}

	requests, total, err := h.svc.List(requestContext(c), opts)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, requests, &response.Meta{
		Page:    opts.Page,
		PerPage: opts.PageSize,
		Total:   int(total),
	})
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// POST /api/approvals/:id/approve-eadmin
func (h *ApprovalHandler) ApproveFirstStage(c *gin.Context) {
	request, err := h.svc.ApproveFirstStage(requestContext(c), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, request)
}

// POST /api/approvals/:id/reject-eadmin
func (h *ApprovalHandler) RejectFirstStage(c *gin.Context) {
	var req rejectRequest
	if !bindAndValidate(c, &req) {
		return
	}

	request, err := h.svc.RejectFirstStage(requestContext(c), middleware.CurrentUser(c), c.Param("id"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, request)
}

// POST /api/approvals/:id/approve-senior
func (h *ApprovalHandler) ApproveFinalStage(c *gin.Context) {
	request, err := h.svc.ApproveFinalStage(requestContext(c), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, request)
}

// POST /api/approvals/:id/reject-senior
func (h *ApprovalHandler) RejectFinalStage(c *gin.Context) {
	var req rejectRequest
	if !bindAndValidate(c, &req) {
		return
	}

	request, err := h.svc.RejectFinalStage(requestContext(c), middleware.CurrentUser(c), c.Param("id"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, request)
}
