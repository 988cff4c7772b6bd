package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edba-platform/edba/internal/middleware"
	"github.com/edba-platform/edba/internal/services"
	"github.com/edba-platform/edba/pkg/errors"
	"github.com/edba-platform/edba/pkg/response"
)

// MemberHandler exposes convener-driven membership management.
type MemberHandler struct {
	svc *services.MemberService
}

func NewMemberHandler(svc *services.MemberService) *MemberHandler {
	return &MemberHandler{svc: svc}
}

// POST /api/members
func (h *MemberHandler) Add(c *gin.Context) {
	var req services.AddMemberInput
	if !bindAndValidate(c, &req) {
		return
	}

	member, err := h.svc.AddMember(requestContext(c), middleware.CurrentUser(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, userPayload(member))
}

// POST /api/members/import
func (h *MemberHandler) Import(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errors.NewValidation("a CSV file upload named 'file' is required"))
		return
	}
	if fileHeader.Size > maxPolicyUploadBytes {
		response.Error(c, errors.NewValidation("import file exceeds the maximum upload size"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, errors.NewValidation("uploaded file could not be read"))
		return
	}
	defer file.Close()

	report, err := h.svc.ImportMembers(requestContext(c), middleware.CurrentUser(c), io.LimitReader(file, maxPolicyUploadBytes))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, report)
}

// GET /api/members
func (h *MemberHandler) List(c *gin.Context) {
	members, err := h.svc.ListMembers(requestContext(c), middleware.CurrentUser(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := make([]gin.H, 0, len(members))
	for i := range members {
		payload = append(payload, userPayload(&members[i]))
	}
	response.Success(c, http.StatusOK, payload)
}

// PATCH /api/members/:email
func (h *MemberHandler) Edit(c *gin.Context) {
	var req services.EditMemberInput
	if !bindAndValidate(c, &req) {
		return
	}

	member, err := h.svc.EditMember(requestContext(c), middleware.CurrentUser(c), c.Param("email"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, userPayload(member))
}

// DELETE /api/members/:email
func (h *MemberHandler) Remove(c *gin.Context) {
	if err := h.svc.RemoveMember(requestContext(c), middleware.CurrentUser(c), c.Param("email")); err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, http.StatusOK, "member removed", nil)
}
