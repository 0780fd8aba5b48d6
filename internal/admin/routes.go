package admin

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes registers key administration on group, which must already
// carry the origin gate.
func SetupRoutes(group *gin.RouterGroup, handler *Handler) {
	keysGroup := group.Group("/api/keys")
	{
		keysGroup.GET("", handler.ListKeysHandler)
		keysGroup.POST("/new", handler.CreateKeyHandler)
		keysGroup.POST("/:id/toggle", handler.ToggleKeyHandler)
	}
}
