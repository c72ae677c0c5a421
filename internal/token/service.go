// Package token はローカル発行のアクセストークン/リフレッシュトークンの
// 署名と検証を提供する。
//
// アクセストークンとリフレッシュトークンは異なる署名鍵と異なるaudienceで発行され、
// 一方をもう一方として検証することはできない。
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hitoshi/travelmate/internal/model"
)

const (
	audienceAccess  = "access"
	audienceRefresh = "refresh"
)

var (
	// ErrTokenMissing はトークンが空の場合に返る。
	ErrTokenMissing = errors.New("token is missing")
	// ErrTokenInvalid は署名・形式・アルゴリズム・audienceのいずれかが不正な場合に返る。
	ErrTokenInvalid = errors.New("token is invalid")
	// ErrTokenExpired は有効期限切れの場合に返る。
	ErrTokenExpired = errors.New("token is expired")
)

// AccessClaims はアクセストークンのクレーム。
type AccessClaims struct {
	Email     string          `json:"email"`
	Name      string          `json:"name,omitempty"`
	LoginType model.LoginType `json:"loginType,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims はリフレッシュトークンのクレーム。subjectのみを持つ。
type RefreshClaims struct {
	jwt.RegisteredClaims
}

// Config はトークンサービスの設定。
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte // 空の場合はAccessSecretから導出する
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Service はHS256で署名されたトークンペアを発行・検証する。
// 状態を持たないため並行利用できる。
type Service struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// Option はServiceの生成オプション。
type Option func(*Service)

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService はServiceを生成する。
// リフレッシュトークンの有効期間はアクセストークンより長くなければならない。
func NewService(cfg Config, opts ...Option) (*Service, error) {
	if len(cfg.AccessSecret) == 0 {
		return nil, fmt.Errorf("access token secret is required")
	}
	if cfg.AccessTTL <= 0 {
		return nil, fmt.Errorf("access token TTL must be positive")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, fmt.Errorf("refresh token TTL (%s) must exceed access token TTL (%s)", cfg.RefreshTTL, cfg.AccessTTL)
	}

	refreshSecret := cfg.RefreshSecret
	if len(refreshSecret) == 0 {
		refreshSecret = deriveSecret(cfg.AccessSecret, audienceRefresh)
	}
	if hmac.Equal(refreshSecret, cfg.AccessSecret) {
		return nil, fmt.Errorf("refresh token secret must differ from access token secret")
	}

	s := &Service{
		accessSecret:  cfg.AccessSecret,
		refreshSecret: refreshSecret,
		issuer:        cfg.Issuer,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// GeneratePair はユーザーとログイン種別からトークンペアを発行する。
func (s *Service) GeneratePair(user *model.User, loginType model.LoginType) (model.TokenPair, error) {
	if user == nil || user.ID == "" {
		return model.TokenPair{}, fmt.Errorf("user with ID is required")
	}

	now := s.now()
	accessExp := now.Add(s.accessTTL)
	refreshExp := now.Add(s.refreshTTL)

	access := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		Email:     user.Email,
		Name:      user.Name,
		LoginType: loginType,
		RegisteredClaims: s.registered(user.ID, audienceAccess, now, accessExp),
	})
	accessToken, err := access.SignedString(s.accessSecret)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("failed to sign access token: %w", err)
	}

	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, RefreshClaims{
		RegisteredClaims: s.registered(user.ID, audienceRefresh, now, refreshExp),
	})
	refreshToken, err := refresh.SignedString(s.refreshSecret)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return model.TokenPair{
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
		AccessTokenExpiresAt:  accessExp,
		RefreshTokenExpiresAt: refreshExp,
	}, nil
}

// VerifyAccess はアクセストークンを検証してクレームを返す。
func (s *Service) VerifyAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := s.parse(tokenString, claims, s.accessSecret, audienceAccess); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefresh はリフレッシュトークンを検証してクレームを返す。
func (s *Service) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := s.parse(tokenString, claims, s.refreshSecret, audienceRefresh); err != nil {
		return nil, err
	}
	return claims, nil
}

// parse は署名アルゴリズムをHS256に固定して検証する。
func (s *Service) parse(tokenString string, claims jwt.Claims, secret []byte, audience string) error {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return ErrTokenMissing
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
		// 末尾の未使用ビットが異なる非正規なbase64urlも拒否する
		jwt.WithStrictDecoding(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return nil
}

func (s *Service) registered(subject, audience string, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}
}

// deriveSecret は単一の秘密鍵から用途別の鍵を導出する。
func deriveSecret(secret []byte, purpose string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte("travelmate/" + purpose))
	return mac.Sum(nil)
}
