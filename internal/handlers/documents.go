package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edba-platform/edba/internal/storage"
	"github.com/edba-platform/edba/pkg/errors"
	"github.com/edba-platform/edba/pkg/response"
)

// DocumentHandler stores proof-of-registration uploads and hands back the
// opaque reference that accompanies an approval submission.
type DocumentHandler struct {
	store storage.DocumentStore
}

func NewDocumentHandler(store storage.DocumentStore) *DocumentHandler {
	return &DocumentHandler{store: store}
}

// POST /api/documents/proofs
func (h *DocumentHandler) UploadProof(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errors.NewValidation("file is required"))
		return
	}
	if fileHeader.Size > maxPolicyUploadBytes {
		response.Error(c, errors.NewValidation("file exceeds the upload size limit"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxPolicyUploadBytes))
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	ref, err := h.store.Store(requestContext(c), "proofs", fileHeader.Filename, content)
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"ref": ref})
}
