package web

import (
	"embed"
	"html/template"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templateFS embed.FS

var categoryNames = map[string]string{
	"riddle":       "谜语",
	"joke":         "笑话",
	"idiom":        "成语",
	"brain_teaser": "脑筋急转弯",
}

// CategoryName returns the display name of a category.
func CategoryName(category string) string {
	if name, ok := categoryNames[category]; ok {
		return name
	}
	return category
}

// Templates parses the embedded page templates.
func Templates() *template.Template {
	return template.Must(template.New("").Funcs(template.FuncMap{
		"categoryName": CategoryName,
		"add":          func(a, b int) int { return a + b },
		"sub":          func(a, b int) int { return a - b },
	}).ParseFS(templateFS, "templates/*.html"))
}

// Renderer renders pages with the shared layout data filled in.
type Renderer struct {
	flashes    *FlashStore
	llmEnabled bool
}

// NewRenderer creates a Renderer. Call LoadTemplates on the engine first.
func NewRenderer(flashes *FlashStore, llmEnabled bool) *Renderer {
	return &Renderer{flashes: flashes, llmEnabled: llmEnabled}
}

// LoadTemplates installs the embedded templates on router.
func LoadTemplates(router *gin.Engine) {
	router.SetHTMLTemplate(Templates())
}

// Flashes exposes the flash store to handlers outside this package.
func (r *Renderer) Flashes() *FlashStore {
	return r.flashes
}

// HTML renders the named page. data may be nil.
func (r *Renderer) HTML(c *gin.Context, code int, name, title string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["Title"] = title
	data["Flashes"] = r.flashes.Pop(c)
	data["LLMEnabled"] = r.llmEnabled
	c.HTML(code, name, data)
}
