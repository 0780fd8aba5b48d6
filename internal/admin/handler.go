package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ubuygold/puzzlebox/internal/db"
	"github.com/ubuygold/puzzlebox/internal/model"
	"github.com/ubuygold/puzzlebox/internal/web"
)

const keysPath = "/api/keys"

type CreateKeyRequest struct {
	Description string `json:"description" form:"description" binding:"max=200"`
}

type Handler struct {
	db       db.Service
	renderer *web.Renderer
	logger   *slog.Logger
}

func NewHandler(dbService db.Service, renderer *web.Renderer, logger *slog.Logger) *Handler {
	return &Handler{db: dbService, renderer: renderer, logger: logger.With("component", "admin")}
}

func wantsJSON(c *gin.Context) bool {
	return c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON
}

// ListKeysHandler serves the key list as a page, or as JSON when the client
// asks for it.
func (h *Handler) ListKeysHandler(c *gin.Context) {
	keys, err := h.db.ListAPIKeys(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list api keys", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to list api keys"})
		return
	}

	if wantsJSON(c) {
		c.JSON(http.StatusOK, keys)
		return
	}
	h.renderer.HTML(c, http.StatusOK, "api_keys.html", "API 密钥", gin.H{"Keys": keys})
}

func (h *Handler) CreateKeyHandler(c *gin.Context) {
	var req CreateKeyRequest
	if err := c.ShouldBind(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	token, err := model.GenerateAPIKey()
	if err != nil {
		h.logger.Error("Failed to generate api key", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to create api key"})
		return
	}
	key := &model.APIKey{Key: token, Description: strings.TrimSpace(req.Description), IsActive: true}
	if err := h.db.CreateAPIKey(c.Request.Context(), key); err != nil {
		h.logger.Error("Failed to create api key", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to create api key"})
		return
	}
	h.logger.Info("API key created", "id", key.ID, "key_suffix", model.KeySuffix(key.Key))

	if wantsJSON(c) {
		c.JSON(http.StatusCreated, key)
		return
	}
	h.flash(c, web.FlashSuccess, "New API key created successfully")
	c.Redirect(http.StatusFound, keysPath)
}

func (h *Handler) ToggleKeyHandler(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "API key not found"})
		return
	}

	key, err := h.db.ToggleAPIKey(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "API key not found"})
			return
		}
		h.logger.Error("Failed to toggle api key", "id", id, "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to toggle api key"})
		return
	}

	status := "deactivated"
	if key.IsActive {
		status = "activated"
	}
	h.logger.Info("API key toggled", "id", key.ID, "status", status)

	if wantsJSON(c) {
		c.JSON(http.StatusOK, key)
		return
	}
	h.flash(c, web.FlashSuccess, "API key "+status+" successfully")
	c.Redirect(http.StatusFound, keysPath)
}

func (h *Handler) flash(c *gin.Context, kind, message string) {
	if err := h.renderer.Flashes().Add(c, kind, message); err != nil {
		h.logger.Warn("Failed to store flash message", "error", err)
	}
}
