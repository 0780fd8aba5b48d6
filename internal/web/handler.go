package web

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ubuygold/puzzlebox/internal/entries"
)

type Handler struct {
	entries  *entries.Service
	labels   map[string]string
	renderer *Renderer
	logger   *slog.Logger
}

// NewHandler creates the UI handler. labels maps each category to the
// question/answer separator used by the bulk text form.
func NewHandler(entryService *entries.Service, labels map[string]string, renderer *Renderer, logger *slog.Logger) *Handler {
	return &Handler{
		entries:  entryService,
		labels:   labels,
		renderer: renderer,
		logger:   logger.With("component", "web"),
	}
}

func (h *Handler) IndexHandler(c *gin.Context) {
	page, err := h.entries.Page(c.Request.Context(), "", 1)
	if err != nil {
		h.logger.Error("Failed to count entries", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.renderer.HTML(c, http.StatusOK, "index.html", "Puzzlebox", gin.H{
		"Total":      page.Total,
		"Categories": h.entries.APICategories(),
	})
}

func (h *Handler) BrowseHandler(c *gin.Context) {
	pageNum, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		pageNum = 1
	}
	category := c.Query("category")

	page, err := h.entries.Page(c.Request.Context(), category, pageNum)
	if err != nil {
		h.logger.Error("Failed to list entries", "category", category, "page", pageNum, "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	title := "浏览条目"
	if category != "" {
		title = "浏览" + CategoryName(category)
	}
	h.renderer.HTML(c, http.StatusOK, "browse.html", title, gin.H{
		"Page":       page,
		"Categories": h.entries.APICategories(),
	})
}

func (h *Handler) AddFormHandler(c *gin.Context) {
	labels := make(map[string]string)
	for _, category := range h.entries.FormCategories() {
		labels[category] = h.labels[category]
	}
	h.renderer.HTML(c, http.StatusOK, "add.html", "批量添加条目", gin.H{
		"Categories": h.entries.FormCategories(),
		"Labels":     labels,
	})
}

// AddSubmitHandler handles the bulk text form. Results are reported through
// flash messages on the redirected page.
func (h *Handler) AddSubmitHandler(c *gin.Context) {
	blob := strings.TrimSpace(c.PostForm("batch_entries"))
	category := c.PostForm("batch_category")

	result, err := h.entries.AddText(c.Request.Context(), blob, category)
	if err != nil {
		var invalid *entries.ValidationError
		if errors.As(err, &invalid) {
			h.flash(c, FlashError, validationMessage(blob))
			c.Redirect(http.StatusFound, "/add")
			return
		}
		h.logger.Error("Failed to commit bulk text entries", "category", category, "error", err)
		h.flash(c, FlashError, "提交批量条目时出错: "+err.Error())
		c.Redirect(http.StatusFound, "/browse")
		return
	}

	switch {
	case result.Success > 0:
		h.flash(c, FlashSuccess, fmt.Sprintf("成功添加 %d 个条目！%d 个重复，%d 个失败。",
			result.Success, result.Duplicates, result.Failed))
	case result.Duplicates > 0:
		h.flash(c, FlashWarning, fmt.Sprintf("未添加任何条目。%d 个重复，%d 个失败。",
			result.Duplicates, result.Failed))
	default:
		h.flash(c, FlashError, "未添加任何条目。请检查输入格式。")
	}
	c.Redirect(http.StatusFound, "/browse")
}

func (h *Handler) flash(c *gin.Context, kind, message string) {
	if err := h.renderer.Flashes().Add(c, kind, message); err != nil {
		h.logger.Warn("Failed to store flash message", "error", err)
	}
}

func validationMessage(blob string) string {
	if blob == "" {
		return "批量条目不能为空"
	}
	return "无效的类别"
}
