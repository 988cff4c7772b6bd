package api

import (
	"github.com/gin-gonic/gin"

	"github.com/edba-platform/edba/internal/handlers"
	"github.com/edba-platform/edba/internal/middleware"
	"github.com/edba-platform/edba/internal/models"
)

func registerApprovalRoutes(api *gin.RouterGroup, handler *handlers.ApprovalHandler) {
	reviewers := middleware.RequireRoles(models.RoleEAdmin, models.RoleSeniorEAdmin, models.RoleTAdmin)

	approvals := api.Group("/approvals")
	{
		approvals.POST("", middleware.RequireRoles(models.RoleOConvener), handler.Submit)
		approvals.GET("", reviewers, handler.List)
		approvals.GET("/:id", handler.Get)
		approvals.POST("/:id/approve-eadmin", middleware.RequireRoles(models.RoleEAdmin), handler.ApproveFirstStage)
		approvals.POST("/:id/reject-eadmin", middleware.RequireRoles(models.RoleEAdmin), handler.RejectFirstStage)
		approvals.POST("/:id/approve-senior", middleware.RequireRoles(models.RoleSeniorEAdmin), handler.ApproveFinalStage)
		approvals.POST("/:id/reject-senior", middleware.RequireRoles(models.RoleSeniorEAdmin), handler.RejectFinalStage)
	}
}
