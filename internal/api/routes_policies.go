package api

import (
	"github.com/gin-gonic/gin"

	"github.com/edba-platform/edba/internal/handlers"
)

func registerPolicyRoutes(r *gin.Engine, api *gin.RouterGroup, handler *handlers.PolicyHandler, staffOnly gin.HandlerFunc) {
	// Published policies are world-readable.
	public := r.Group("/api/public/policies")
	{
		public.GET("", handler.List)
		public.GET("/:id", handler.Get)
		public.GET("/:id/download", handler.Download)
	}

	policies := api.Group("/policies")
	{
		policies.GET("", handler.List)
		policies.GET("/:id", handler.Get)
		policies.GET("/:id/download", handler.Download)
		policies.POST("", staffOnly, handler.Publish)
		policies.PATCH("/:id", staffOnly, handler.Update)
		policies.DELETE("/:id", staffOnly, handler.Delete)
	}
}
