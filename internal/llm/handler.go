package llm

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ubuygold/puzzlebox/internal/web"
)

type Handler struct {
	service  *Service
	enabled  bool
	renderer *web.Renderer
	logger   *slog.Logger
}

// NewHandler creates the LLM handler. service may be nil when enabled is false.
func NewHandler(service *Service, enabled bool, renderer *web.Renderer, logger *slog.Logger) *Handler {
	return &Handler{service: service, enabled: enabled, renderer: renderer, logger: logger.With("component", "llm")}
}

// RequireEnabled rejects every LLM API call with 403 while the feature is off.
func (h *Handler) RequireEnabled() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.enabled || h.service == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "LLM features are disabled"})
			return
		}
		c.Next()
	}
}

func (h *Handler) ModelsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"models":        h.service.AvailableModels(),
		"default_model": h.service.DefaultModel(),
	})
}

func (h *Handler) ChatHandler(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "messages must be a non-empty list of {role, content}"})
		return
	}

	completion, err := h.service.Chat(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, completion)
}

func (h *Handler) GenerateHandler(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "prompt cannot be empty"})
		return
	}

	completion, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if text, ok := completion.Text(); ok {
		c.JSON(http.StatusOK, gin.H{"text": text, "model": completion.Model})
		return
	}
	c.JSON(http.StatusOK, completion)
}

// DashboardHandler renders the provider overview page.
func (h *Handler) DashboardHandler(c *gin.Context) {
	if !h.enabled || h.service == nil {
		if err := h.renderer.Flashes().Add(c, web.FlashError, "LLM 功能未启用，请在配置文件中启用"); err != nil {
			h.logger.Warn("Failed to store flash message", "error", err)
		}
		c.Redirect(http.StatusFound, "/")
		return
	}
	h.renderer.HTML(c, http.StatusOK, "llm.html", "LLM", gin.H{
		"Models":       h.service.AvailableModels(),
		"DefaultModel": h.service.DefaultModel(),
	})
}

func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrAuthentication):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "type": "authentication_error"})
	case errors.Is(err, ErrModelNotSupported):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "type": "invalid_request_error"})
	case errors.Is(err, ErrUpstream):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error(), "type": "upstream_error"})
	default:
		h.logger.Error("LLM request failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
