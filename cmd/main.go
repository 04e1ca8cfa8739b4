package main

import (
	"tenant-admin-service/internal/handler"
	"tenant-admin-service/internal/middleware"
	"tenant-admin-service/pkg/config"
	"tenant-admin-service/pkg/database"
	"tenant-admin-service/pkg/jwtutil"
	"tenant-admin-service/pkg/logger"
	"tenant-admin-service/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	logger.InitLogger(cfg)
	log := logger.GetLogger()
	log.Info("Starting tenant admin service...", zap.String("environment", cfg.Server.Env))

	// Initialize database
	if err := database.InitDB(cfg); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	// Initialize JWT utility
	jwtutil.Initialize(&cfg.JWT)
	log.Info("JWT utility initialized")

	// Initialize Prometheus metrics
	prometheus.InitMetrics(cfg)
	log.Info("Prometheus metrics initialized")

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)

	// Authentication routes
	auth := e.Group("/auth")
	auth.POST("/login", handler.Login)

	// API routes - all require authentication
	api := e.Group("/api")
	api.Use(middleware.AuthMiddleware)

	// User management
	users := api.Group("/users")
	users.GET("", handler.ListUsers)
	users.POST("", handler.CreateUser)
	users.GET("/:id", handler.GetUser)
	users.PUT("/:id", handler.UpdateUser)
	users.DELETE("/:id", handler.DeleteUser)
	users.POST("/:id/roles/:role_id", handler.ToggleUserRole)
	users.POST("/:id/tenants/:tenant_id/roles/:role_id", handler.ToggleTenantUserRole)

	// Tenant management
	tenants := api.Group("/tenants")
	tenants.GET("", handler.ListUserTenants)
	tenants.POST("", handler.CreateTenant)
	tenants.GET("/:id", handler.GetTenant)
	tenants.PUT("/:id", handler.UpdateTenant)
	tenants.DELETE("/:id", handler.DeleteTenant)
	tenants.GET("/:id/users", handler.ListTenantUsers)
	tenants.POST("/:id/users", handler.AddUserToTenant)
	tenants.DELETE("/:id/users/:user_id", handler.RemoveUserFromTenant)
	tenants.GET("/:id/roles", handler.ListTenantRoles)
	tenants.POST("/:id/roles", handler.CreateTenantRole)
	tenants.DELETE("/:id/roles/:role_id", handler.DeleteTenantRole)

	// Global role management
	roles := api.Group("/roles")
	roles.GET("", handler.ListRoles)
	roles.POST("", handler.CreateRole)
	roles.GET("/:id", handler.GetRole)

	// Application management
	applications := api.Group("/applications")
	applications.GET("", handler.ListApplications)
	applications.POST("", handler.CreateApplication)
	applications.GET("/:id", handler.GetApplication)
	applications.PUT("/:id", handler.UpdateApplication)
	applications.DELETE("/:id", handler.DeleteApplication)

	// Start server
	port := cfg.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
