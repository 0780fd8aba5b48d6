package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ubuygold/puzzlebox/internal/entries"
)

// maxBodyBytes bounds the size of an insert request body.
const maxBodyBytes = 4 << 20

type Handler struct {
	entries *entries.Service
	logger  *slog.Logger
}

func NewHandler(entryService *entries.Service, logger *slog.Logger) *Handler {
	return &Handler{entries: entryService, logger: logger.With("component", "api")}
}

// RandomHandler serves GET /api/random/:count?category=.
func (h *Handler) RandomHandler(c *gin.Context) {
	count, err := strconv.Atoi(c.Param("count"))
	if err != nil || count < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "count must be a non-negative integer"})
		return
	}

	result, err := h.entries.Random(c.Request.Context(), count, c.Query("category"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AddHandler serves POST /api/add. The body is a single entry object or an
// array of entries.
func (h *Handler) AddHandler(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			})
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	payload, err := entries.DecodePayload(body)
	if err != nil {
		h.respondError(c, err)
		return
	}

	result, err := h.entries.Submit(c.Request.Context(), payload)
	switch payload.Kind {
	case entries.PayloadBatch:
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":   "failed to add entries: " + err.Error(),
				"results": result.Batch,
			})
			return
		}
		c.JSON(http.StatusCreated, result.Batch)
	default:
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, result.Entry)
	}
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var dup *entries.DuplicateError
	var invalid *entries.ValidationError
	switch {
	case errors.As(err, &dup):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error":       "entry already exists",
			"existing_id": dup.ExistingID,
		})
	case errors.As(err, &invalid):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": invalid.Reason})
	default:
		h.logger.Error("Request failed", "path", c.Request.URL.Path, "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
