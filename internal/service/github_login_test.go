package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/hashtag_server/internal/model"
	"github.com/qs3c/hashtag_server/internal/model/dto"
	"github.com/qs3c/hashtag_server/internal/pkg/oauth"
	"github.com/qs3c/hashtag_server/internal/testutil"
)

type fakeGithub struct {
	user *oauth.GithubUser
	err  error
}

func (f *fakeGithub) Enabled() bool { return true }

func (f *fakeGithub) AuthURL(state string) string {
	return "https://github.example/authorize?state=" + state
}

func (f *fakeGithub) FetchUser(ctx context.Context, code string) (*oauth.GithubUser, error) {
	return f.user, f.err
}

func TestAuthService_GithubCallback_CreatesUser(t *testing.T) {
	f, cleanup := setupAuthService(t)
	defer cleanup()

	f.svc.WithGithub(&fakeGithub{user: &oauth.GithubUser{
		ID: 99, Login: "octocat", Email: "octo@example.com", AvatarURL: "https://avatar",
	}})
	ctx := context.Background()

	resp, err := f.svc.GithubCallback(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, "octo@example.com", resp.User.Email)
	assert.Equal(t, "octocat", resp.User.Username)
	assert.Equal(t, "free", resp.User.PlanID)
	assert.True(t, resp.User.EmailVerified)

	var stored model.User
	require.NoError(t, f.db.Preload("Subscription").First(&stored, resp.User.ID).Error)
	assert.Nil(t, stored.PasswordHash)
	require.NotNil(t, stored.Subscription)

	// 第二次登录复用同一账号
	again, err := f.svc.GithubCallback(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, again.User.ID)

	// 无密码账号不能用密码登录
	_, err = f.svc.Login(ctx, &dto.LoginRequest{Email: "octo@example.com", Password: "anything"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_GithubCallback_NoEmail(t *testing.T) {
	f, cleanup := setupAuthService(t)
	defer cleanup()

	testutil.TestUser(t, f.db, testutil.WithUsername("octocat"))
	f.svc.WithGithub(&fakeGithub{user: &oauth.GithubUser{ID: 7, Login: "octocat"}})

	resp, err := f.svc.GithubCallback(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, "7+octocat@users.noreply.github.com", resp.User.Email)
	assert.Equal(t, "octocat_7", resp.User.Username)
}

func TestAuthService_GithubCallback_LinksExistingEmail(t *testing.T) {
	f, cleanup := setupAuthService(t)
	defer cleanup()

	existing := testutil.TestUser(t, f.db, testutil.WithEmail("linked@example.com"))
	f.svc.WithGithub(&fakeGithub{user: &oauth.GithubUser{ID: 5, Login: "linker", Email: "linked@example.com"}})

	resp, err := f.svc.GithubCallback(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, resp.User.ID)

	var stored model.User
	require.NoError(t, f.db.First(&stored, existing.ID).Error)
	require.NotNil(t, stored.GithubID)
	assert.Equal(t, "5", *stored.GithubID)
	assert.NotNil(t, stored.PasswordHash)
}

func TestAuthService_GithubCallback_Locked(t *testing.T) {
	f, cleanup := setupAuthService(t)
	defer cleanup()

	testutil.TestUser(t, f.db,
		testutil.WithGithubID("11"),
		testutil.WithLockedUntil(f.clock.Now().Add(time.Minute)),
	)
	f.svc.WithGithub(&fakeGithub{user: &oauth.GithubUser{ID: 11, Login: "locked"}})

	_, err := f.svc.GithubCallback(context.Background(), "code")
	assert.ErrorIs(t, err, ErrAccountLocked)
}

func TestAuthService_GithubCallback_ProviderError(t *testing.T) {
	f, cleanup := setupAuthService(t)
	defer cleanup()

	providerErr := errors.New("bad_verification_code")
	f.svc.WithGithub(&fakeGithub{err: providerErr})

	_, err := f.svc.GithubCallback(context.Background(), "code")
	assert.ErrorIs(t, err, providerErr)
	assert.ErrorIs(t, err, ErrOAuthFailed)
}

func TestAuthService_Github_Disabled(t *testing.T) {
	f, cleanup := setupAuthService(t)
	defer cleanup()

	assert.False(t, f.svc.GithubEnabled())

	_, err := f.svc.GetGithubAuthURL("state")
	assert.ErrorIs(t, err, ErrOAuthDisabled)

	_, err = f.svc.GithubCallback(context.Background(), "code")
	assert.ErrorIs(t, err, ErrOAuthDisabled)
}

func TestAuthService_GetGithubAuthURL(t *testing.T) {
	f, cleanup := setupAuthService(t)
	defer cleanup()

	f.svc.WithGithub(&fakeGithub{})

	url, err := f.svc.GetGithubAuthURL("abc")
	require.NoError(t, err)
	assert.Contains(t, url, "state=abc")
}
