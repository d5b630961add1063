package main

import (
	"github.com/gin-gonic/gin"
	"github.com/usagekit/harvest-scheduler/internal/middleware"
	"github.com/usagekit/harvest-scheduler/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	// Rate limiter for manual-start routes
	startLimiter := middleware.NewRateLimiter(5, 10)

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "harvest-scheduler"})
	})

	api := r.Group("/erm-usage-harvester", middleware.TenantRequired())
	{
		api.GET("/periodic", svc.periodicHandler.Get)
		api.POST("/periodic", svc.periodicHandler.Upsert)
		api.DELETE("/periodic", svc.periodicHandler.Delete)

		start := api.Group("", startLimiter.Middleware())
		{
			start.GET("/start", svc.harvestHandler.StartTenant)
			start.GET("/start/:providerId", svc.harvestHandler.StartProvider)
		}

		api.GET("/runs", svc.runHandler.List)
	}
}
