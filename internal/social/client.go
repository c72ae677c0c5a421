// Package social はApple/Googleのトークンエンドポイントとの連携を提供する。
// 認可コードをリフレッシュトークンに交換し、連携解除時に失効させる。
package social

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

const (
	defaultAppleTokenURL   = "https://appleid.apple.com/auth/token"
	defaultAppleRevokeURL  = "https://appleid.apple.com/auth/revoke"
	defaultGoogleTokenURL  = "https://oauth2.googleapis.com/token"
	defaultGoogleRevokeURL = "https://oauth2.googleapis.com/revoke"

	appleAudience = "https://appleid.apple.com"
	// appleSecretTTL はAppleクライアントシークレット（JWT）の有効期間。
	appleSecretTTL = 10 * time.Minute

	defaultTimeout = 10 * time.Second
)

var (
	// ErrNotConfigured はプロバイダーの資格情報が未設定であることを表す。
	ErrNotConfigured = errors.New("social provider credentials are not configured")
	// ErrUnavailable はトークンエンドポイントの呼び出し失敗を表す。
	ErrUnavailable = errors.New("social provider request failed")
)

// AppleConfig はSign in with Appleの設定。
type AppleConfig struct {
	ClientID    string
	TeamID      string
	KeyID       string
	PrivateKey  string // PKCS#8 PEM。"\n"のエスケープは実際の改行として扱う。
	RedirectURI string

	// テスト用にオーバーライド可能なURL
	TokenURL  string
	RevokeURL string
}

func (c AppleConfig) configured() bool {
	return c.ClientID != "" && c.TeamID != "" && c.KeyID != "" && c.PrivateKey != ""
}

// GoogleConfig はGoogle OAuthの設定。
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// テスト用にオーバーライド可能なURL
	TokenURL  string
	RevokeURL string
}

func (c GoogleConfig) configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Config はClientの設定。
type Config struct {
	Apple   AppleConfig
	Google  GoogleConfig
	Timeout time.Duration
}

// Client はApple/Googleのトークン交換と失効を行う。
type Client struct {
	apple      AppleConfig
	google     GoogleConfig
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient はClientを生成する。
// 本番ではSSRF防止付きのhttpClientを渡す。
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if cfg.Apple.TokenURL == "" {
		cfg.Apple.TokenURL = defaultAppleTokenURL
	}
	if cfg.Apple.RevokeURL == "" {
		cfg.Apple.RevokeURL = defaultAppleRevokeURL
	}
	if cfg.Google.TokenURL == "" {
		cfg.Google.TokenURL = defaultGoogleTokenURL
	}
	if cfg.Google.RevokeURL == "" {
		cfg.Google.RevokeURL = defaultGoogleRevokeURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apple:      cfg.Apple,
		google:     cfg.Google,
		timeout:    cfg.Timeout,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

// AppleClientSecret はAppleのトークンエンドポイント用のクライアントシークレットを生成する。
// チームIDを発行者とし、キーIDをヘッダーに持つES256署名のJWT。
func (c *Client) AppleClientSecret() (string, error) {
	if !c.apple.configured() {
		return "", fmt.Errorf("apple: %w", ErrNotConfigured)
	}

	pem := strings.ReplaceAll(c.apple.PrivateKey, `\n`, "\n")
	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(pem))
	if err != nil {
		return "", fmt.Errorf("failed to parse apple private key: %w", err)
	}

	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.RegisteredClaims{
		Issuer:    c.apple.TeamID,
		Subject:   c.apple.ClientID,
		Audience:  jwt.ClaimStrings{appleAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(appleSecretTTL)),
	})
	token.Header["kid"] = c.apple.KeyID

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign apple client secret: %w", err)
	}
	return signed, nil
}

// ExchangeAppleCode はAppleの認可コードをリフレッシュトークンに交換する。
func (c *Client) ExchangeAppleCode(ctx context.Context, code string) (string, error) {
	secret, err := c.AppleClientSecret()
	if err != nil {
		return "", err
	}

	conf := &oauth2.Config{
		ClientID:     c.apple.ClientID,
		ClientSecret: secret,
		RedirectURL:  c.apple.RedirectURI,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.apple.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	return c.exchange(ctx, "apple", conf, code)
}

// ExchangeGoogleCode はGoogleの認可コードをリフレッシュトークンに交換する。
// redirectURIが空の場合は設定値を使う。codeVerifierはPKCE利用時のみ送信する。
func (c *Client) ExchangeGoogleCode(ctx context.Context, code, codeVerifier, redirectURI string) (string, error) {
	if !c.google.configured() {
		return "", fmt.Errorf("google: %w", ErrNotConfigured)
	}
	if redirectURI == "" {
		redirectURI = c.google.RedirectURI
	}
	if redirectURI == "" {
		return "", fmt.Errorf("google redirect URI: %w", ErrNotConfigured)
	}

	conf := &oauth2.Config{
		ClientID:     c.google.ClientID,
		ClientSecret: c.google.ClientSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.google.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	var opts []oauth2.AuthCodeOption
	if codeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(codeVerifier))
	}
	return c.exchange(ctx, "google", conf, code, opts...)
}

// RevokeApple はAppleのリフレッシュトークンを失効させる。
func (c *Client) RevokeApple(ctx context.Context, refreshToken string) error {
	secret, err := c.AppleClientSecret()
	if err != nil {
		return err
	}
	form := url.Values{
		"token":           {refreshToken},
		"token_type_hint": {"refresh_token"},
		"client_id":       {c.apple.ClientID},
		"client_secret":   {secret},
	}
	return c.revoke(ctx, "apple", c.apple.RevokeURL, form)
}

// RevokeGoogle はGoogleのリフレッシュトークンを失効させる。
func (c *Client) RevokeGoogle(ctx context.Context, refreshToken string) error {
	if !c.google.configured() {
		return fmt.Errorf("google: %w", ErrNotConfigured)
	}
	form := url.Values{
		"token":         {refreshToken},
		"client_id":     {c.google.ClientID},
		"client_secret": {c.google.ClientSecret},
	}
	return c.revoke(ctx, "google", c.google.RevokeURL, form)
}

// exchange はoauth2で認可コードを交換し、リフレッシュトークンを返す。
func (c *Client) exchange(ctx context.Context, name string, conf *oauth2.Config, code string, opts ...oauth2.AuthCodeOption) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := conf.Exchange(ctx, code, opts...)
	if err != nil {
		attrs := []any{slog.String("provider", name), slog.String("error", err.Error())}
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil {
			attrs = append(attrs, slog.Int("http_status", rerr.Response.StatusCode))
		}
		c.logger.Warn("token exchange failed", attrs...)
		return "", fmt.Errorf("%s token exchange: %w: %v", name, ErrUnavailable, err)
	}
	if tok.RefreshToken == "" {
		return "", fmt.Errorf("%s did not return a refresh_token: %w", name, ErrUnavailable)
	}
	return tok.RefreshToken, nil
}

// revoke はトークン失効エンドポイントにフォームをPOSTする。
func (c *Client) revoke(ctx context.Context, name, endpoint string, form url.Values) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("token revoke failed",
			slog.String("provider", name),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%s revoke: %w: %v", name, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn("token revoke rejected",
			slog.String("provider", name),
			slog.Int("http_status", resp.StatusCode),
		)
		return fmt.Errorf("%s revoke failed with status %d: %s: %w", name, resp.StatusCode, string(body), ErrUnavailable)
	}
	return nil
}
