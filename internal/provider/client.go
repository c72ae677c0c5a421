package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout はIdP呼び出し1回あたりの既定タイムアウト。
const DefaultTimeout = 10 * time.Second

// maxResponseSize はレスポンスボディの読み取り上限。
const maxResponseSize = 1 << 20

// Config はSupabase Authクライアントの設定。
type Config struct {
	BaseURL        string // 例: https://<project>.supabase.co
	AnonKey        string
	ServiceRoleKey string
	Timeout        time.Duration
}

// Client はSupabase Auth（GoTrue）のREST APIクライアント。
// すべての呼び出しはTimeoutで打ち切られ、タイムアウトはErrUnavailableとして返る。
// 自動リトライは行わない。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	anonKey    string
	serviceKey string
	timeout    time.Duration
}

// NewClient はClientを生成する。httpClientがnilの場合はhttp.DefaultClientを使う。
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		anonKey:    cfg.AnonKey,
		serviceKey: cfg.ServiceRoleKey,
		timeout:    timeout,
	}
}

// SignUp はメールアドレスとパスワードでユーザーを作成する。
// メール確認が有効な場合、レスポンスはセッションを含まずユーザーのみとなる。
// ユーザーが得られなかった場合は(nil, nil)を返す。
func (c *Client) SignUp(ctx context.Context, email, password string, metadata UserMetadata) (*User, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
		"data":     metadata,
	}

	// 確認メール待ちの場合はユーザーのみ、自動確認の場合はセッションが返る
	var resp struct {
		User
		Nested *User `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/signup", nil, body, c.anonKey, &resp); err != nil {
		return nil, err
	}

	if resp.Nested != nil && resp.Nested.ID != "" {
		return resp.Nested, nil
	}
	if resp.ID != "" {
		u := resp.User
		return &u, nil
	}
	return nil, nil
}

// SignInWithPassword はパスワードグラントでサインインする。
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	q := url.Values{"grant_type": {"password"}}
	body := map[string]string{"email": email, "password": password}

	var sess Session
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token", q, body, c.anonKey, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// ExchangeCodeForSession はPKCEの認可コードをセッションに交換する。
func (c *Client) ExchangeCodeForSession(ctx context.Context, code, codeVerifier string) (*Session, error) {
	q := url.Values{"grant_type": {"pkce"}}
	body := map[string]string{"auth_code": code, "code_verifier": codeVerifier}

	var sess Session
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token", q, body, c.anonKey, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetUserByID は管理APIでユーザーを取得する。
func (c *Client) GetUserByID(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	var u User
	if err := c.do(ctx, http.MethodGet, "/auth/v1/admin/users/"+url.PathEscape(id), nil, nil, c.serviceKey, &u); err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, ErrNotFound
	}
	return &u, nil
}

// GetUserFromToken はIdPが発行したアクセストークンからユーザーを取得する。
func (c *Client) GetUserFromToken(ctx context.Context, accessToken string) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", nil, nil, accessToken, &u); err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, ErrNotFound
	}
	return &u, nil
}

// DeleteUser は管理APIでユーザーを削除する。
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	return c.do(ctx, http.MethodDelete, "/auth/v1/admin/users/"+url.PathEscape(id), nil, nil, c.serviceKey, nil)
}

// AuthorizeURL はソーシャルプロバイダーのPKCE認可URLを組み立てる。
func (c *Client) AuthorizeURL(provider, redirectTo, state, codeChallenge string) string {
	q := url.Values{
		"provider":              {provider},
		"code_challenge":        {codeChallenge},
		"code_challenge_method": {"S256"},
	}
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	if state != "" {
		q.Set("state", state)
	}
	return c.baseURL + "/auth/v1/authorize?" + q.Encode()
}

// do はリクエストを送信し、2xxの場合はoutにデコードする。
// bearerはAuthorizationヘッダーに設定するトークン。apikeyヘッダーには常にanonキーを設定する。
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in any, bearer string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("identity provider request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
		if isUnavailable(err) {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return fmt.Errorf("identity provider request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if isUnavailable(err) {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = json.Unmarshal(body, &eb)
		perr := eb.toError(resp.StatusCode)
		if perr.Message == "" {
			perr.Message = http.StatusText(resp.StatusCode)
		}
		c.logger.Warn("identity provider returned error",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
			slog.String("error_code", perr.Code),
		)
		return perr
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// isUnavailable はタイムアウトや接続失敗かどうかを判定する。
func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
