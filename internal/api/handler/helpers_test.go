package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/qs3c/hashtag_server/config"
	"github.com/qs3c/hashtag_server/internal/api/middleware"
	"github.com/qs3c/hashtag_server/internal/pkg/jwt"
	"github.com/qs3c/hashtag_server/internal/pkg/oauth"
	"github.com/qs3c/hashtag_server/internal/pkg/queue"
	"github.com/qs3c/hashtag_server/internal/pkg/response"
	"github.com/qs3c/hashtag_server/internal/repository"
	"github.com/qs3c/hashtag_server/internal/service"
	"github.com/qs3c/hashtag_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testWebhookSecret = "whsec_test"

type fixture struct {
	db     *gorm.DB
	mr     *miniredis.Miniredis
	auth   *service.AuthService
	queue  *queue.Queue
	router *gin.Engine
}

func newTestConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			Secret: strings.Repeat("k", 32),
			TTL:    time.Hour,
			Issuer: "hashtag-test",
		},
		Auth: config.AuthConfig{
			LockoutThreshold: 5,
			LockoutDuration:  15 * time.Minute,
			BcryptCost:       bcrypt.MinCost,
			HashConcurrency:  4,
			RepoTimeout:      5 * time.Second,
		},
		Plans: config.DefaultPlans(),
	}
}

// setupHandlers 用 sqlite 内存库和 miniredis 组装全部 handler
func setupHandlers(t *testing.T) *fixture {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := newTestConfig()
	log := zaptest.NewLogger(t)

	tokens := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.TTL, cfg.JWT.Issuer).
		WithDenylist(jwt.NewDenylist(time.Minute))
	usage := service.NewUsageService(repository.NewUsageRepository(db), cfg.Auth.RepoTimeout, log)
	authService := service.NewAuthService(cfg,
		repository.NewUserRepository(db),
		repository.NewSubscriptionRepository(db),
		usage,
		tokens,
		log,
	)
	hashtagService := service.NewHashtagService(authService, service.NewKeywordGenerator(), log)
	billingQueue := queue.NewQueue(rdb, "billing_test")

	authHandler := NewAuthHandler(authService, oauth.NewStateStore(rdb), false)
	userHandler := NewUserHandler(authService)
	hashtagHandler := NewHashtagHandler(hashtagService, authService)
	billingHandler := NewBillingHandler(billingQueue, testWebhookSecret)

	router := gin.New()
	api := router.Group("/api/v1")
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)
	api.GET("/auth/github", authHandler.GithubAuth)
	api.GET("/auth/github/callback", authHandler.GithubCallback)

	authed := api.Group("/auth", middleware.Auth(authService))
	authed.POST("/logout", authHandler.Logout)
	authed.GET("/me", userHandler.Me)
	authed.GET("/usage", userHandler.Usage)

	api.POST("/hashtags/generate", middleware.OptionalAuth(authService), hashtagHandler.Generate)
	api.POST("/billing/webhook", billingHandler.Webhook)

	return &fixture{
		db:     db,
		mr:     mr,
		auth:   authService,
		queue:  billingQueue,
		router: router,
	}
}

type requestOption func(*http.Request)

func withBearer(token string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withHeader(key, value string) requestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

func withCookie(c *http.Cookie) requestOption {
	return func(r *http.Request) { r.AddCookie(c) }
}

func performRequest(r http.Handler, method, path string, body interface{}, opts ...requestOption) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

// decodeData 把响应中的 data 解到 out
func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var envelope struct {
		Code int             `json:"code"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookie {
			return c
		}
	}
	return nil
}

type fakeGithub struct {
	user *oauth.GithubUser
	err  error
}

func (f *fakeGithub) Enabled() bool { return true }

func (f *fakeGithub) AuthURL(state string) string {
	return "https://github.example/login/oauth/authorize?state=" + state
}

func (f *fakeGithub) FetchUser(context.Context, string) (*oauth.GithubUser, error) {
	return f.user, f.err
}
