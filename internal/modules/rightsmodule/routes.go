package rightsmodule

import (
	"github.com/gin-gonic/gin"
)

// registerRoutes registers all rights module routes
func registerRoutes(router *gin.Engine, handler *APIHandler) {
	availabilityGroup := router.Group("/api/availability")
	{
		availabilityGroup.POST("/bulk", handler.HandleResolveBulk)
		availabilityGroup.GET("/upcoming/:filmId", handler.HandleUpcomingWindows)
		availabilityGroup.GET("/:filmId", handler.HandleResolve)
	}

	windowsGroup := router.Group("/api/windows")
	{
		windowsGroup.GET("/film/:filmId", handler.HandleListWindows)
		windowsGroup.GET("/type/:windowType", handler.HandleActiveWindowsByType)
		windowsGroup.POST("", handler.HandleCreateWindow)
		windowsGroup.GET("/:windowId", handler.HandleGetWindow)
		windowsGroup.PATCH("/:windowId", handler.HandleUpdateWindow)
		windowsGroup.DELETE("/:windowId", handler.HandleDeleteWindow)
		windowsGroup.PATCH("/:windowId/toggle", handler.HandleToggleWindow)
	}
}
