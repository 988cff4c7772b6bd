package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edba-platform/edba/internal/middleware"
	"github.com/edba-platform/edba/internal/services"
	"github.com/edba-platform/edba/internal/storage"
	"github.com/edba-platform/edba/pkg/errors"
	"github.com/edba-platform/edba/pkg/response"
)

// maxPolicyUploadBytes caps multipart policy uploads at 16 MiB.
const maxPolicyUploadBytes = 16 << 20

// PolicyHandler exposes platform policy document management.
type PolicyHandler struct {
	svc   *services.PolicyService
	store storage.DocumentStore
}

func NewPolicyHandler(svc *services.PolicyService, store storage.DocumentStore) *PolicyHandler {
	return &PolicyHandler{svc: svc, store: store}
}

// Publish accepts a multipart form with a "file" part plus title and
// description fields, stores the document and records its metadata.
//
// POST /api/policies
func (h *PolicyHandler) Publish(c *gin.Context) {
	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		response.Error(c, errors.NewValidation("title is required"))
		return
	}

	ref, err := h.storeUpload(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	policy, err := h.svc.Publish(requestContext(c), middleware.CurrentUser(c), services.PolicyInput{
		Title:       title,
		Description: strings.TrimSpace(c.PostForm("description")),
		FileRef:     ref,
	})
	if err != nil {
		// The metadata row failed; drop the stored file so it does not orphan.
		_ = h.store.Delete(requestContext(c), ref)
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, policy)
}

// GET /api/policies
func (h *PolicyHandler) List(c *gin.Context) {
	policies, err := h.svc.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, policies)
}

// GET /api/policies/:id
func (h *PolicyHandler) Get(c *gin.Context) {
	policy, err := h.svc.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, policy)
}

// Download streams the stored document behind a policy.
//
// GET /api/policies/:id/download
func (h *PolicyHandler) Download(c *gin.Context) {
	policy, err := h.svc.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	reader, err := h.store.Open(requestContext(c), policy.FileRef)
	if err != nil {
		response.Error(c, errors.ErrNotFound.WithMessage("policy document is missing from storage"))
		return
	}
	defer reader.Close()

	c.Header("Content-Disposition", "attachment")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, reader)
}

// PATCH /api/policies/:id
func (h *PolicyHandler) Update(c *gin.Context) {
	var req services.PolicyInput
	if !bindAndValidate(c, &req) {
		return
	}

	policy, err := h.svc.Update(requestContext(c), middleware.CurrentUser(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, policy)
}

// DELETE /api/policies/:id
func (h *PolicyHandler) Delete(c *gin.Context) {
	policy, err := h.svc.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.svc.Delete(requestContext(c), middleware.CurrentUser(c), policy.ID); err != nil {
		response.Error(c, err)
		return
	}
	_ = h.store.Delete(requestContext(c), policy.FileRef)

	response.SuccessWithMessage(c, http.StatusOK, "policy deleted", nil)
}

func (h *PolicyHandler) storeUpload(c *gin.Context) (string, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return "", errors.NewValidation("file is required")
	}
	if fileHeader.Size > maxPolicyUploadBytes {
		return "", errors.NewValidation("file exceeds the upload size limit")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return "", errors.ErrInternalServer.WithInternal(err)
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxPolicyUploadBytes))
	if err != nil {
		return "", errors.ErrInternalServer.WithInternal(err)
	}

	ref, err := h.store.Store(requestContext(c), "policies", fileHeader.Filename, content)
	if err != nil {
		return "", errors.ErrInternalServer.WithInternal(err)
	}
	return ref, nil
}
