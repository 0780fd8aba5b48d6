package llm

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes registers the JSON endpoints on api, which must carry the token
// gate, and the dashboard on ui, which must carry the origin gate.
func SetupRoutes(api, ui *gin.RouterGroup, handler *Handler) {
	llmGroup := api.Group("/llm", handler.RequireEnabled())
	{
		llmGroup.GET("/models", handler.ModelsHandler)
		llmGroup.POST("/chat", handler.ChatHandler)
		llmGroup.POST("/generate", handler.GenerateHandler)
	}
	ui.GET("/llm", handler.DashboardHandler)
}
