package web

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes registers the UI pages on group, which must already carry the
// origin gate.
func SetupRoutes(group *gin.RouterGroup, handler *Handler) {
	group.GET("/", handler.IndexHandler)
	group.GET("/browse", handler.BrowseHandler)
	group.GET("/add", handler.AddFormHandler)
	group.POST("/add", handler.AddSubmitHandler)
}
