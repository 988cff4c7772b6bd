package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	appValidator "github.com/edba-platform/edba/pkg/validator"
)

type samplePayload struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required"`
}

func bindThrough(t *testing.T, body string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	c.Request.Header.Set("Content-Type", "application/json")

	var payload samplePayload
	ok := bindAndValidate(c, &payload)
	return w, ok
}

func TestBindAndValidateRejectsMalformedJSON(t *testing.T) {
	w, ok := bindThrough(t, "{not json")
	require.False(t, ok)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "invalid JSON payload")
}

func TestBindAndValidateReportsFieldFailures(t *testing.T) {
	w, ok := bindThrough(t, `{"email":"not-an-email"}`)
	require.False(t, ok)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "email must be a valid email address")
	require.Contains(t, w.Body.String(), "name is required")
}

func TestBindAndValidateAcceptsValidPayload(t *testing.T) {
	w, ok := bindThrough(t, `{"email":"user@example.com","name":"User"}`)
	require.True(t, ok)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestFormatValidationErrorFallbacks(t *testing.T) {
	require.Equal(t, "invalid request payload", formatValidationError(nil))
	require.Equal(t, "invalid request payload", formatValidationError(appValidator.ValidationErrors{}))
}
