package api

import (
	"github.com/gin-gonic/gin"

	"github.com/edba-platform/edba/internal/handlers"
	"github.com/edba-platform/edba/internal/middleware"
	"github.com/edba-platform/edba/internal/models"
)

func registerUserRoutes(api *gin.RouterGroup, handler *handlers.UserHandler, staffOnly gin.HandlerFunc) {
	tAdmin := middleware.RequireRoles(models.RoleTAdmin)

	users := api.Group("/users")
	{
		users.GET("", staffOnly, handler.List)
		users.GET("/:id", staffOnly, handler.Get)
		users.POST("/admins", tAdmin, handler.CreateAdmin)
		users.PUT("/:id/access-level", middleware.RequireRoles(
			models.RoleTAdmin, models.RoleEAdmin, models.RoleSeniorEAdmin, models.RoleOConvener,
		), handler.SetAccessLevel)
		users.POST("/:id/activate", tAdmin, handler.Activate)
		users.POST("/:id/deactivate", tAdmin, handler.Deactivate)
		users.DELETE("/:id", tAdmin, handler.Delete)
	}
}
