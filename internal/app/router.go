package app

import (
	"strings"

	"github.com/gin-gonic/gin"

	"credit-core.io/creditcore/internal/api/handlers"
	"credit-core.io/creditcore/internal/api/middleware"
	"credit-core.io/creditcore/internal/config"
	"credit-core.io/creditcore/internal/pkg/logger"
	"credit-core.io/creditcore/internal/pkg/metrics"
)

// Public routes that do NOT require JWT authentication. The webhook
// authenticates with its HMAC signature; the WebSocket endpoint carries no
// caller identity.
var publicPrefixes = []string{
	"/health",
	"/metrics",
	"/log/level",
	"/api/v1/webhooks/",
	"/api/v1/ws",
}

func newRouter(cfg *config.Config, server *handlers.Server, m *metrics.Metrics) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.ErrorHandler())
	router.Use(middleware.MaxPayload(cfg.Server.MaxPayloadBytes))
	router.Use(jwtSkipPublic([]byte(cfg.Security.JWTSigningKey)))

	router.GET("/health", server.Health)
	router.GET("/metrics", gin.WrapH(m.Handler()))
	if levelHandler := logger.HTTPHandler(); levelHandler != nil {
		router.GET("/log/level", gin.WrapH(levelHandler))
		router.PUT("/log/level", gin.WrapH(levelHandler))
	}

	v1 := router.Group("/api/v1")
	{
		v1.POST("/applications", server.CreateApplication)
		v1.GET("/applications", server.ListApplications)
		v1.GET("/applications/:id", server.GetApplication)
		v1.POST("/applications/:id/cancel", server.CancelApplication)
		v1.PATCH("/applications/:id/status", server.UpdateApplicationStatus)
		v1.DELETE("/applications/:id", server.DeleteApplication)
		v1.GET("/applications/:id/audit-logs", server.ListAuditLogs)

		v1.POST("/webhooks/bank-confirmation", server.BankConfirmationWebhook)
		v1.GET("/ws", server.WebSocket)

		v1.GET("/admin/failed-jobs", server.ListFailedJobs)
		v1.POST("/admin/failed-jobs/:id/review", server.ReviewFailedJob)
		v1.POST("/admin/failed-jobs/:id/retry", server.RetryFailedJob)
	}

	return router
}

// jwtSkipPublic applies JWT auth only on non-public routes.
func jwtSkipPublic(signingKey []byte) gin.HandlerFunc {
	jwtMw := middleware.JWTAuth(signingKey)
	return func(c *gin.Context) {
		for _, prefix := range publicPrefixes {
			if strings.HasPrefix(c.Request.URL.Path, prefix) {
				c.Next()
				return
			}
		}
		jwtMw(c)
	}
}
