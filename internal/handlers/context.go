package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
)

// requestContext extracts the request-scoped context. A nil gin context
// or request, as seen when handlers are exercised directly, falls back
// to the background context.
func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}
