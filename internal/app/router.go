package app

import (
	"cognitest_backend/docs"
	"cognitest_backend/internal/config"
	"cognitest_backend/internal/middleware"
	"cognitest_backend/internal/model"

	"cognitest_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 考生测验接口
	a.registerExamineeRoutes(router, c, cfg)

	// 3. 管理端接口（题库维护与统计报表）
	a.registerAdminRoutes(router, c, cfg)
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}
}

func (a *App) registerExamineeRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	adaptive := router.Group("/api/adaptive")
	adaptive.Use(middleware.AuthMiddleware(cfg))
	{
		adaptive.POST("/sessions", c.adaptive.StartTest)
		adaptive.GET("/sessions/:sessionId", c.adaptive.GetSession)
		adaptive.POST("/sessions/:sessionId/responses", c.adaptive.SubmitAnswer)
		adaptive.POST("/sessions/:sessionId/abandon", c.adaptive.AbandonTest)
	}

	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		authGroup.GET("/profile", c.auth.GetProfile)
	}
}

func (a *App) registerAdminRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg), middleware.RoleMiddleware(model.Operator, model.Admin))
	{
		// 题库维护
		admin.POST("/items", c.item.CreateItem)
		admin.GET("/items", c.item.ListItems)
		admin.PATCH("/items/:itemId/quality-flag", c.item.OverrideQualityFlag)
		admin.POST("/forms/build", c.item.BuildFixedForm)

		// 统计报表
		admin.GET("/analytics/discrimination-report", c.analytics.DiscriminationReport)
		admin.GET("/analytics/discrimination/:itemId", c.analytics.ItemDetail)
		admin.GET("/analytics/reliability-report", c.analytics.ReliabilityReport)
		admin.GET("/analytics/reliability-history", c.analytics.ReliabilityHistory)
	}
}
