package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")

	// 以下均满足 errors.Is(err, ErrInvalidToken)，仅用于内部日志和指标
	ErrMalformedToken   = fmt.Errorf("%w: malformed", ErrInvalidToken)
	ErrExpiredToken     = fmt.Errorf("%w: token has expired", ErrInvalidToken)
	ErrSignatureInvalid = fmt.Errorf("%w: signature is invalid", ErrInvalidToken)
	ErrRevokedToken     = fmt.Errorf("%w: token has been revoked", ErrInvalidToken)
)

// Claims 会话令牌携带的信息
type Claims struct {
	UserID int64  `json:"uid"`
	Email  string `json:"email"`
	PlanID string `json:"plan"`
	jwt.RegisteredClaims
}

// Manager 签发和校验 HS256 会话令牌。服务端不保存会话，
// 令牌只能靠过期或注销名单失效。
type Manager struct {
	secret   []byte
	ttl      time.Duration
	issuer   string
	denylist *Denylist
	now      func() time.Time
}

func NewManager(secret string, ttl time.Duration, issuer string) *Manager {
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
	}
}

// WithDenylist 启用注销名单
func (m *Manager) WithDenylist(d *Denylist) *Manager {
	m.denylist = d
	return m
}

// WithClock 替换时钟（测试用）
func (m *Manager) WithClock(now func() time.Time) *Manager {
	if now != nil {
		m.now = now
	}
	return m
}

// TTL 默认有效期
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue 签发令牌；ttl <= 0 时使用默认有效期
func (m *Manager) Issue(userID int64, email, planID string, ttl time.Duration) (string, *Claims, error) {
	if ttl <= 0 {
		ttl = m.ttl
	}
	now := m.now()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		PlanID: planID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    m.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Verify 校验签名、过期时间和注销名单，不访问网络
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMalformedToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrMalformedToken
	}

	if m.denylist != nil && m.denylist.IsRevoked(claims.ID) {
		return nil, ErrRevokedToken
	}

	return claims, nil
}

// Revoke 将令牌加入注销名单直到其自然过期
func (m *Manager) Revoke(claims *Claims) {
	if m.denylist == nil || claims == nil || claims.ExpiresAt == nil {
		return
	}
	m.denylist.Add(claims.ID, claims.ExpiresAt.Time.Sub(m.now()))
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpiredToken
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrSignatureInvalid
	default:
		return ErrMalformedToken
	}
}

// Reason 失败原因标签，用于日志和指标
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrExpiredToken):
		return "expired"
	case errors.Is(err, ErrSignatureInvalid):
		return "signature"
	case errors.Is(err, ErrRevokedToken):
		return "revoked"
	default:
		return "malformed"
	}
}
