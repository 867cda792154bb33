package playbackmodule

import (
	"github.com/gin-gonic/gin"
)

// registerRoutes registers all playback module routes
func registerRoutes(router *gin.Engine, handler *APIHandler) {
	sessionsGroup := router.Group("/api/sessions")
	{
		sessionsGroup.POST("/start", handler.HandleStartSession)
		sessionsGroup.POST("/:sessionId/heartbeat", handler.HandleHeartbeat)
		sessionsGroup.POST("/:sessionId/stop", handler.HandleStopSession)
		sessionsGroup.GET("/user/:userId/active", handler.HandleActiveSessions)
	}

	drmGroup := router.Group("/api/drm")
	{
		drmGroup.GET("/token/:filmId", handler.HandleIssueTokens)
		drmGroup.POST("/license/:system/:filmId", handler.HandleLicenseRequest)
	}
}
