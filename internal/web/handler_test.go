package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubuygold/puzzlebox/internal/auth"
	"github.com/ubuygold/puzzlebox/internal/config"
	"github.com/ubuygold/puzzlebox/internal/db"
	"github.com/ubuygold/puzzlebox/internal/entries"
	"github.com/ubuygold/puzzlebox/internal/logger"
)

const (
	localAddr  = "127.0.0.1:40000"
	remoteAddr = "203.0.113.9:40000"
)

func setupRouter(t *testing.T) (*gin.Engine, *entries.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewWithWriter(io.Discard, false)

	cfg := &config.Config{}
	cfg.SetDefaults()
	store, err := db.NewService(config.DatabaseConfig{Type: "sqlite", DSN: "file::memory:"})
	require.NoError(t, err)
	entryService := entries.NewService(store, cfg.Categories, log)

	router := gin.New()
	LoadTemplates(router)
	renderer := NewRenderer(NewFlashStore("test-secret"), true)
	group := router.Group("/", auth.LocalOnly(auth.NewOriginMatcher([]string{"127.0.0.1"}, log)))
	SetupRoutes(group, NewHandler(entryService, cfg.Categories.Labels, renderer, log))
	return router, entryService
}

func get(router http.Handler, target, remote string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = remote
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func postForm(router http.Handler, target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = localAddr
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestOriginGate(t *testing.T) {
	router, _ := setupRouter(t)

	for _, target := range []string{"/", "/browse", "/add"} {
		rr := get(router, target, remoteAddr, nil)
		assert.Equal(t, http.StatusForbidden, rr.Code, target)

		rr = get(router, target, localAddr, nil)
		assert.Equal(t, http.StatusOK, rr.Code, target)
	}

	req := httptest.NewRequest(http.MethodPost, "/add", nil)
	req.RemoteAddr = remoteAddr
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestBrowseHandler(t *testing.T) {
	router, svc := setupRouter(t)
	ctx := context.Background()

	for i := 0; i < 22; i++ {
		_, err := svc.Add(ctx, entries.Input{Question: fmt.Sprintf("问题%d", i), Answer: "答案", Category: "riddle"})
		require.NoError(t, err)
	}
	_, err := svc.Add(ctx, entries.Input{Question: "笑话问题", Answer: "笑话答案", Category: "joke"})
	require.NoError(t, err)

	rr := get(router, "/browse?category=riddle", localAddr, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "问题21")
	assert.NotContains(t, body, "笑话问题")
	assert.Contains(t, body, "page=2")

	rr = get(router, "/browse?category=riddle&page=2", localAddr, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "问题0")

	rr = get(router, "/browse?page=abc", localAddr, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = get(router, "/browse?page=50", localAddr, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "没有条目")
}

func TestAddFormHandler(t *testing.T) {
	router, _ := setupRouter(t)

	rr := get(router, "/add", localAddr, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `value="riddle"`)
	assert.Contains(t, body, `value="idiom"`)
	assert.NotContains(t, body, `value="brain_teaser"`)
	assert.Contains(t, body, "含义：")
}

func TestAddSubmitHandler(t *testing.T) {
	router, svc := setupRouter(t)

	form := url.Values{
		"batch_category": {"riddle"},
		"batch_entries":  {"什么东西越洗越脏？ 答案：水\n---\n格式错误\n---\n什么门永远关不上？ 答案：球门"},
	}
	rr := postForm(router, "/add", form)
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/browse", rr.Header().Get("Location"))

	rr = get(router, "/browse", localAddr, rr.Result().Cookies())
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "成功添加 2 个条目！0 个重复，1 个失败。")
	assert.Contains(t, rr.Body.String(), "球门")

	page, err := svc.Page(context.Background(), "riddle", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	// Submitting the same text again only produces duplicates.
	rr = postForm(router, "/add", form)
	require.Equal(t, http.StatusFound, rr.Code)
	rr = get(router, "/browse", localAddr, rr.Result().Cookies())
	assert.Contains(t, rr.Body.String(), "未添加任何条目。2 个重复，1 个失败。")
}

func TestAddSubmitHandler_Validation(t *testing.T) {
	router, _ := setupRouter(t)

	tests := []struct {
		name    string
		form    url.Values
		message string
	}{
		{"empty", url.Values{"batch_category": {"riddle"}, "batch_entries": {"  "}}, "批量条目不能为空"},
		{"bad category", url.Values{"batch_category": {"brain_teaser"}, "batch_entries": {"q 答案：a"}}, "无效的类别"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postForm(router, "/add", tt.form)
			require.Equal(t, http.StatusFound, rr.Code)
			assert.Equal(t, "/add", rr.Header().Get("Location"))

			rr = get(router, "/add", localAddr, rr.Result().Cookies())
			assert.Contains(t, rr.Body.String(), tt.message)
		})
	}
}

func TestAddSubmitHandler_NothingParsed(t *testing.T) {
	router, _ := setupRouter(t)

	rr := postForm(router, "/add", url.Values{"batch_category": {"joke"}, "batch_entries": {"没有分隔符"}})
	require.Equal(t, http.StatusFound, rr.Code)
	rr = get(router, "/browse", localAddr, rr.Result().Cookies())
	assert.Contains(t, rr.Body.String(), "未添加任何条目。请检查输入格式。")
}

func TestFlashesAreConsumed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	flashes := NewFlashStore("secret")
	router := gin.New()
	router.GET("/set", func(c *gin.Context) {
		require.NoError(t, flashes.Add(c, FlashWarning, "hello"))
		c.Status(http.StatusNoContent)
	})
	router.GET("/pop", func(c *gin.Context) {
		got := flashes.Pop(c)
		c.String(http.StatusOK, fmt.Sprint(len(got)))
	})

	rr := get(router, "/set", localAddr, nil)
	cookies := rr.Result().Cookies()
	require.NotEmpty(t, cookies)

	rr = get(router, "/pop", localAddr, cookies)
	assert.Equal(t, "1", rr.Body.String())
}

func TestCategoryName(t *testing.T) {
	assert.Equal(t, "谜语", CategoryName("riddle"))
	assert.Equal(t, "other", CategoryName("other"))
}
