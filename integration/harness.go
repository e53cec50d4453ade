package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skillquest/server/agent"
	apirest "github.com/skillquest/server/api/rest"
	"github.com/skillquest/server/api/sse"
	"github.com/skillquest/server/audit"
	"github.com/skillquest/server/cache"
	"github.com/skillquest/server/config"
	mw "github.com/skillquest/server/middleware"
	"github.com/skillquest/server/quest"
	"github.com/skillquest/server/store/gormstore"
	"github.com/skillquest/server/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// TestServer wraps a real HTTP server with the full platform wired together:
// auth, quest lifecycle, stub agents, audit, cache and SSE.
type TestServer struct {
	DB     *gorm.DB
	Cache  cache.Cache
	PubSub cache.PubSub
	Quests *quest.Service
	Server *httptest.Server
	URL    string
	Sec    config.SecurityConfig
}

// NewTestServer mirrors the dependency wiring in main.go, with the stub
// agent in place of Gemini and an in-memory database.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
	}

	auditSvc := audit.New(db, logger)
	t.Cleanup(func() { auditSvc.Stop(context.Background()) })

	stub := agent.NewStub()
	st := gormstore.New(db)
	questSvc := quest.NewService(st, st, quest.Config{
		CourseWeeks:    18,
		RetryBaseDelay: time.Millisecond,
	}, logger)
	generator := quest.NewGenerator(stub, stub, questSvc, logger)

	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	authH := apirest.NewAuthHandler(db, c, sec)
	questH := apirest.NewQuestHandler(db, questSvc, generator, stub, c,
		&apirest.QuestEvents{PubSub: pubsub}, auditSvc, 30*time.Second, logger)
	adminH := apirest.NewAdminHandler(db, logger)
	sseH := sse.NewHandler(pubsub, c, db, sec, logger)

	api := r.Group("/api")
	{
		api.POST("/auth/login", authH.Login)
		api.POST("/auth/logout", mw.Auth(sec, c), authH.Logout)
		api.POST("/auth/refresh", mw.Auth(sec, c), authH.Refresh)

		questG := api.Group("")
		questG.Use(mw.Auth(sec, c))
		questG.POST("/quests/generate", questH.Generate)
		questG.POST("/quests/regenerate", questH.Regenerate)
		questG.GET("/periods/:pid/quests", questH.ListByPeriod)
		questG.GET("/quests/:id", questH.Detail)
		questG.PUT("/quests/:id/status", questH.UpdateStatus)
		questG.POST("/quests/:id/submit", questH.Submit)

		adminG := api.Group("/admin")
		adminG.Use(apirest.AdminAuth("integration-admin-key"))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/audit", adminH.ListAuditLogs)
	}
	r.GET("/sse", sseH.ServeSSE)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &TestServer{
		DB:     db,
		Cache:  c,
		PubSub: pubsub,
		Quests: questSvc,
		Server: server,
		URL:    server.URL,
		Sec:    sec,
	}
}

// Login authenticates (auto-registering on first use) and returns the token.
func (ts *TestServer) Login(t *testing.T, username, password string) string {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body)
	token, _ := resp.JSON["token"].(string)
	require.NotEmpty(t, token)
	return token
}

// Response bundles a decoded HTTP response for assertions.
type Response struct {
	Code int
	Body string
	JSON map[string]interface{}
}

func (ts *TestServer) do(t *testing.T, method, path, token string, body interface{}) *Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := &Response{Code: resp.StatusCode, Body: string(raw)}
	var decoded map[string]interface{}
	if json.Unmarshal(raw, &decoded) == nil {
		out.JSON = decoded
	}
	return out
}

// GetJSON performs an authenticated GET.
func (ts *TestServer) GetJSON(t *testing.T, path, token string) *Response {
	return ts.do(t, http.MethodGet, path, token, nil)
}

// PostJSON performs an authenticated POST with a JSON body.
func (ts *TestServer) PostJSON(t *testing.T, path, token string, body interface{}) *Response {
	return ts.do(t, http.MethodPost, path, token, body)
}

// PutJSON performs an authenticated PUT with a JSON body.
func (ts *TestServer) PutJSON(t *testing.T, path, token string, body interface{}) *Response {
	return ts.do(t, http.MethodPut, path, token, body)
}
