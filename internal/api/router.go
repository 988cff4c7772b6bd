package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/edba-platform/edba/internal/app"
	iauth "github.com/edba-platform/edba/internal/auth"
	"github.com/edba-platform/edba/internal/handlers"
	"github.com/edba-platform/edba/internal/middleware"
	"github.com/edba-platform/edba/internal/models"
	"github.com/edba-platform/edba/internal/services"
	"github.com/edba-platform/edba/internal/storage"
)

// Services bundles the constructed service layer for route registration.
type Services struct {
	Audit         *services.AuditService
	Verification  *services.VerificationService
	Users         *services.UserService
	Approvals     *services.ApprovalService
	Organizations *services.OrganizationService
	Members       *services.MemberService
	Bank          *services.BankService
	Policies      *services.PolicyService
	Help          *services.HelpService
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, svcs Services, store storage.DocumentStore) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if store == nil {
		return nil, fmt.Errorf("document store must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())

	r.NoRoute(middleware.NotFoundHandler)

	// Public endpoints
	r.GET("/health", handlers.Health(db))
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	authHandler, err := handlers.NewAuthHandler(db, jwt, svcs.Users, svcs.Verification)
	if err != nil {
		return nil, err
	}

	auth := r.Group("/api/auth")
	{
		auth.POST("/code", authHandler.RequestCode)
		auth.POST("/login", authHandler.Login)
		auth.POST("/login/password", authHandler.PasswordLogin)
		auth.POST("/register", authHandler.Register)
	}

	requireAuth := middleware.Auth(jwt, svcs.Users)

	api := r.Group("/api")
	api.Use(requireAuth)

	api.GET("/auth/me", authHandler.Me)

	staffOnly := middleware.RequireRoles(models.RoleTAdmin, models.RoleEAdmin, models.RoleSeniorEAdmin)

	registerApprovalRoutes(api, handlers.NewApprovalHandler(svcs.Approvals))
	registerOrganizationRoutes(api, handlers.NewOrganizationHandler(svcs.Organizations))
	registerMemberRoutes(api, handlers.NewMemberHandler(svcs.Members))
	registerUserRoutes(api, handlers.NewUserHandler(svcs.Users), staffOnly)
	registerPolicyRoutes(r, api, handlers.NewPolicyHandler(svcs.Policies, store), staffOnly)
	registerHelpRoutes(api, handlers.NewHelpHandler(svcs.Help))
	registerBankRoutes(api, handlers.NewBankHandler(svcs.Bank))

	documentHandler := handlers.NewDocumentHandler(store)
	api.POST("/documents/proofs", middleware.RequireRoles(models.RoleOConvener), documentHandler.UploadProof)

	auditHandler := handlers.NewAuditHandler(svcs.Audit)
	audit := api.Group("/audit")
	audit.Use(staffOnly)
	audit.GET("", auditHandler.List)
	audit.GET("/export", auditHandler.Export)

	return r, nil
}
