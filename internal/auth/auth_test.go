package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ubuygold/puzzlebox/internal/config"
	"github.com/ubuygold/puzzlebox/internal/db"
	"github.com/ubuygold/puzzlebox/internal/logger"
	"github.com/ubuygold/puzzlebox/internal/model"
)

// MockDBService is a mock type for the db.Service type
type MockDBService struct {
	mock.Mock
	db.Service
}

func (m *MockDBService) FindActiveAPIKey(ctx context.Context, key string) (*model.APIKey, error) {
	args := m.Called(ctx, key)
	apiKey, _ := args.Get(0).(*model.APIKey)
	return apiKey, args.Error(1)
}

func (m *MockDBService) TouchAPIKey(ctx context.Context, id uint, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

var discard = logger.NewWithWriter(io.Discard, false)

func TestOriginMatcher(t *testing.T) {
	m := NewOriginMatcher([]string{
		"127.0.0.1",
		"::1",
		"10.0.0.0/8",
		`^192\.168\.\d+\.\d+$`,
		`172\.(1[6-9]|2\d|3[0-1])\.`,
		"[invalid(",
	}, discard)

	tests := []struct {
		ip   string
		want bool
	}{
		{"127.0.0.1", true},
		{"::1", true},
		{"::ffff:127.0.0.1", true},
		{"127.0.0.10", false},
		{"10.1.2.3", true},
		{"11.0.0.1", false},
		{"192.168.1.20", true},
		{"192.169.1.20", false},
		{"172.20.0.5", true},
		{"8.172.16.1", false},
		{"203.0.113.9", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.want, m.IsLocal(tt.ip))
		})
	}
}

func newRouter(middleware gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware)
	router.GET("/", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func request(router http.Handler, remoteAddr string, header map[string]string, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = remoteAddr
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestLocalOnly(t *testing.T) {
	router := newRouter(LocalOnly(NewOriginMatcher([]string{"127.0.0.1"}, discard)))

	rr := request(router, "127.0.0.1:5555", nil, "/")
	assert.Equal(t, http.StatusOK, rr.Code)

	// A valid token does not open an origin-gated route.
	rr = request(router, "203.0.113.9:5555", map[string]string{APIKeyHeader: "anything"}, "/")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.JSONEq(t, `{"error":"forbidden"}`, rr.Body.String())

	// Forwarded headers are not trusted.
	rr = request(router, "203.0.113.9:5555", map[string]string{"X-Forwarded-For": "127.0.0.1"}, "/")
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRequireAPIKey(t *testing.T) {
	active := &model.APIKey{ID: 7, Key: "valid-client-key", IsActive: true}

	store := new(MockDBService)
	store.On("FindActiveAPIKey", mock.Anything, "valid-client-key").Return(active, nil)
	store.On("FindActiveAPIKey", mock.Anything, "inactive-key").Return(nil, db.ErrNotFound)
	store.On("FindActiveAPIKey", mock.Anything, "broken").Return(nil, errors.New("connection reset"))
	store.On("TouchAPIKey", mock.Anything, uint(7), mock.AnythingOfType("time.Time")).Return(nil)

	matcher := NewOriginMatcher([]string{"127.0.0.1"}, discard)
	router := newRouter(RequireAPIKey(matcher, store, discard))

	t.Run("local caller without token", func(t *testing.T) {
		rr := request(router, "127.0.0.1:1000", nil, "/")
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("remote caller without token", func(t *testing.T) {
		rr := request(router, "203.0.113.9:1000", nil, "/")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.JSONEq(t, `{"error":"unauthorized"}`, rr.Body.String())
	})

	t.Run("remote caller with inactive token", func(t *testing.T) {
		rr := request(router, "203.0.113.9:1000", map[string]string{APIKeyHeader: "inactive-key"}, "/")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.JSONEq(t, `{"error":"unauthorized"}`, rr.Body.String())
	})

	t.Run("remote caller with header token", func(t *testing.T) {
		rr := request(router, "203.0.113.9:1000", map[string]string{APIKeyHeader: "valid-client-key"}, "/")
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("remote caller with query token", func(t *testing.T) {
		rr := request(router, "203.0.113.9:1000", nil, "/?api_key=valid-client-key")
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		rr := request(router, "203.0.113.9:1000", map[string]string{APIKeyHeader: "broken"}, "/")
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})

	store.AssertNumberOfCalls(t, "TouchAPIKey", 2)
}

func TestRequireAPIKey_UpdatesLastUsed(t *testing.T) {
	store, err := db.NewService(config.DatabaseConfig{Type: "sqlite", DSN: "file::memory:"})
	require.NoError(t, err)
	key := &model.APIKey{Key: "real-key", IsActive: true}
	require.NoError(t, store.CreateAPIKey(context.Background(), key))

	var seen *model.APIKey
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequireAPIKey(NewOriginMatcher(nil, discard), store, discard))
	router.GET("/", func(c *gin.Context) {
		seen, _ = APIKeyFromContext(c)
		c.Status(http.StatusOK)
	})

	rr := request(router, "203.0.113.9:1000", map[string]string{APIKeyHeader: "real-key"}, "/")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, seen)
	assert.Equal(t, key.ID, seen.ID)

	reloaded, err := store.GetAPIKey(context.Background(), key.ID)
	require.NoError(t, err)
	assert.NotNil(t, reloaded.LastUsedAt)
}
