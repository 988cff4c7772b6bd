package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edba-platform/edba/internal/services"
	"github.com/edba-platform/edba/pkg/response"
)

// AuditHandler exposes the append-only audit trail to staff accounts.
type AuditHandler struct {
	svc *services.AuditService
}

func NewAuditHandler(svc *services.AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// GET /api/audit
func (h *AuditHandler) List(c *gin.Context) {
	opts := services.AuditListOptions{
		Page:     parseIntQuery(c, "page", 1),
		PageSize: parseIntQuery(c, "per_page", 50),
	}
	opts.Filters.UserID = c.Query("user_id")
	opts.Filters.Action = c.Query("action")
	opts.Filters.Resource = c.Query("resource")
	opts.Filters.Result = c.Query("result")

	if s := c.Query("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			opts.Filters.Since = &t
		}
	}
	if u := c.Query("until"); u != "" {
		if t, err := time.Parse(time.RFC3339, u); err == nil {
			opts.Filters.Until = &t
		}
	}

	logs, total, err := h.svc.List(requestContext(c), opts)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, logs, &response.Meta{
		Page:    opts.Page,
		PerPage: opts.PageSize,
		Total:   int(total),
	})
}

// GET /api/audit/export
func (h *AuditHandler) Export(c *gin.Context) {
	var filters services.AuditFilters
	filters.UserID = c.Query("user_id")
	filters.Action = c.Query("action")
	filters.Resource = c.Query("resource")
	filters.Result = c.Query("result")

	logs, err := h.svc.Export(requestContext(c), filters)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, logs)
}
