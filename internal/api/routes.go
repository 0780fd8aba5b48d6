package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes registers the JSON API on group, which must already carry the
// token gate.
func SetupRoutes(group *gin.RouterGroup, handler *Handler) {
	group.GET("/random/:count", handler.RandomHandler)
	group.POST("/add", handler.AddHandler)
}
