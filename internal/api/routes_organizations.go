package api

import (
	"github.com/gin-gonic/gin"

	"github.com/edba-platform/edba/internal/handlers"
	"github.com/edba-platform/edba/internal/middleware"
	"github.com/edba-platform/edba/internal/models"
)

func registerOrganizationRoutes(api *gin.RouterGroup, handler *handlers.OrganizationHandler) {
	orgs := api.Group("/organizations")
	{
		orgs.GET("", handler.List)
		orgs.GET("/:org_id", handler.Get)
		orgs.GET("/:org_id/services", handler.Services)
		orgs.PUT("/:org_id/services", middleware.RequireRoles(models.RoleOConvener), handler.SetServiceAvailability)
		orgs.PATCH("/:org_id", middleware.RequireRoles(models.RoleOConvener, models.RoleEAdmin), handler.Rename)
	}
}

func registerMemberRoutes(api *gin.RouterGroup, handler *handlers.MemberHandler) {
	conveners := middleware.RequireRoles(models.RoleOConvener)

	members := api.Group("/members")
	members.Use(conveners)
	{
		members.POST("", handler.Add)
		members.POST("/import", handler.Import)
		members.GET("", handler.List)
		members.PATCH("/:email", handler.Edit)
		members.DELETE("/:email", handler.Remove)
	}
}
