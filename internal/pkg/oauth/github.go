package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const defaultAPIBase = "https://api.github.com"

// ErrNotConfigured 未配置 client id
var ErrNotConfigured = errors.New("github oauth is not configured")

// GithubUser GitHub 账号信息；Email 只取已验证的邮箱
type GithubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	Name      string `json:"name"`
}

type GithubOAuth struct {
	config  *oauth2.Config
	apiBase string
}

func NewGithubOAuth(clientID, clientSecret, redirectURI string) *GithubOAuth {
	return &GithubOAuth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{"user:email"},
			Endpoint:     github.Endpoint,
		},
		apiBase: defaultAPIBase,
	}
}

// WithEndpoint 替换授权、令牌和 API 地址（测试或 GitHub Enterprise）
func (g *GithubOAuth) WithEndpoint(authURL, tokenURL, apiBase string) *GithubOAuth {
	g.config.Endpoint = oauth2.Endpoint{
		AuthURL:   authURL,
		TokenURL:  tokenURL,
		AuthStyle: oauth2.AuthStyleInParams,
	}
	g.apiBase = strings.TrimRight(apiBase, "/")
	return g
}

// Enabled 是否配置了 GitHub 登录
func (g *GithubOAuth) Enabled() bool {
	return g != nil && g.config.ClientID != ""
}

// AuthURL 获取 GitHub 授权 URL
func (g *GithubOAuth) AuthURL(state string) string {
	return g.config.AuthCodeURL(state)
}

// FetchUser 用授权码换取 access token 并读取账号信息
func (g *GithubOAuth) FetchUser(ctx context.Context, code string) (*GithubUser, error) {
	if !g.Enabled() {
		return nil, ErrNotConfigured
	}

	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	client := g.config.Client(ctx, token)

	var user GithubUser
	if err := g.getJSON(ctx, client, "/user", &user); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user.ID == 0 {
		return nil, errors.New("get user: empty github id")
	}

	// /user 返回的是公开邮箱，未必经过验证，统一以 /user/emails 为准
	user.Email = ""
	email, err := g.primaryEmail(ctx, client)
	if err == nil {
		user.Email = strings.ToLower(email)
	}

	return &user, nil
}

func (g *GithubOAuth) primaryEmail(ctx context.Context, client *http.Client) (string, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := g.getJSON(ctx, client, "/user/emails", &emails); err != nil {
		return "", err
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email, nil
		}
	}
	return "", errors.New("no verified email")
}

func (g *GithubOAuth) getJSON(ctx context.Context, client *http.Client, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiBase+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("github api %s: %d %s", path, resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
