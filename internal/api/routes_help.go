package api

import (
	"github.com/gin-gonic/gin"

	"github.com/edba-platform/edba/internal/handlers"
	"github.com/edba-platform/edba/internal/middleware"
	"github.com/edba-platform/edba/internal/models"
)

func registerHelpRoutes(api *gin.RouterGroup, handler *handlers.HelpHandler) {
	tAdmin := middleware.RequireRoles(models.RoleTAdmin)

	help := api.Group("/help")
	{
		help.POST("", handler.Submit)
		help.GET("", tAdmin, handler.List)
		help.POST("/:id/resolve", tAdmin, handler.Resolve)
	}
}

func registerBankRoutes(api *gin.RouterGroup, handler *handlers.BankHandler) {
	managers := middleware.RequireRoles(models.RoleOConvener, models.RoleTAdmin, models.RoleEAdmin, models.RoleSeniorEAdmin)

	bank := api.Group("/bank")
	bank.Use(managers)
	{
		bank.GET("/organizations/:org_id", handler.GetOrganizationAccount)
		bank.PUT("/organizations/:org_id", handler.EnsureOrganizationAccount)
		bank.POST("/organizations/:org_id/deposit", handler.Deposit)
		bank.POST("/organizations/:org_id/withdraw", handler.Withdraw)
		bank.GET("/organizations/:org_id/ledger", handler.OrganizationLedger)
		bank.GET("/platform/ledger", handler.PlatformLedger)
	}
}
