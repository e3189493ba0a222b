package service

import (
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/qs3c/hashtag_server/config"
	"github.com/qs3c/hashtag_server/internal/pkg/jwt"
	"github.com/qs3c/hashtag_server/internal/repository"
	"github.com/qs3c/hashtag_server/internal/testutil"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Now().UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
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

type authFixture struct {
	svc    *AuthService
	usage  *UsageService
	db     *gorm.DB
	tokens *jwt.Manager
	clock  *fakeClock
}

func setupAuthService(t *testing.T) (*authFixture, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	cfg := newTestConfig()
	log := zaptest.NewLogger(t)

	tokens := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.TTL, cfg.JWT.Issuer).
		WithDenylist(jwt.NewDenylist(time.Minute))
	usage := NewUsageService(repository.NewUsageRepository(db), cfg.Auth.RepoTimeout, log)
	clock := newFakeClock()

	svc := NewAuthService(cfg,
		repository.NewUserRepository(db),
		repository.NewSubscriptionRepository(db),
		usage,
		tokens,
		log,
	).WithClock(clock.Now)

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}

	return &authFixture{svc: svc, usage: usage, db: db, tokens: tokens, clock: clock}, cleanup
}
