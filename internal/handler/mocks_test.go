package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/travelmate/internal/auth"
	"github.com/hitoshi/travelmate/internal/middleware"
	"github.com/hitoshi/travelmate/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	signupFn                func(ctx context.Context, in auth.SignupInput) (*model.AuthResult, error)
	loginFn                 func(ctx context.Context, in auth.LoginInput) (*model.AuthResult, error)
	refreshFn               func(ctx context.Context, refreshToken string) (*model.AuthResult, error)
	authorizeURLFn          func(redirectTo, clientState string) (string, error)
	completeAuthorizeFn     func(ctx context.Context, code, stateID string) (*model.AuthResult, string, error)
	loginWithProviderCodeFn func(ctx context.Context, code, codeVerifier string, lt model.LoginType) (*model.AuthResult, error)
	deleteAccountFn         func(ctx context.Context, user *model.User) (auth.DeleteResult, error)
}

func (m *mockAuthService) Signup(ctx context.Context, in auth.SignupInput) (*model.AuthResult, error) {
	return m.signupFn(ctx, in)
}

func (m *mockAuthService) Login(ctx context.Context, in auth.LoginInput) (*model.AuthResult, error) {
	return m.loginFn(ctx, in)
}

func (m *mockAuthService) Refresh(ctx context.Context, refreshToken string) (*model.AuthResult, error) {
	return m.refreshFn(ctx, refreshToken)
}

func (m *mockAuthService) AuthorizeURL(redirectTo, clientState string) (string, error) {
	return m.authorizeURLFn(redirectTo, clientState)
}

func (m *mockAuthService) CompleteAuthorize(ctx context.Context, code, stateID string) (*model.AuthResult, string, error) {
	return m.completeAuthorizeFn(ctx, code, stateID)
}

func (m *mockAuthService) LoginWithProviderCode(ctx context.Context, code, codeVerifier string, lt model.LoginType) (*model.AuthResult, error) {
	return m.loginWithProviderCodeFn(ctx, code, codeVerifier, lt)
}

func (m *mockAuthService) DeleteAccount(ctx context.Context, user *model.User) (auth.DeleteResult, error) {
	return m.deleteAccountFn(ctx, user)
}

type mockOAuthService struct {
	loginWithOAuthTokenFn func(ctx context.Context, accessToken string, lt model.LoginType, opts auth.OAuthTokenOptions) (*model.AuthResult, error)
	checkOAuthAccountFn   func(ctx context.Context, accessToken string) (bool, error)
	revokeAppleFn         func(ctx context.Context, userID, refreshToken string) error
	revokeGoogleFn        func(ctx context.Context, userID, refreshToken string) error
}

func (m *mockOAuthService) LoginWithOAuthToken(ctx context.Context, accessToken string, lt model.LoginType, opts auth.OAuthTokenOptions) (*model.AuthResult, error) {
	return m.loginWithOAuthTokenFn(ctx, accessToken, lt, opts)
}

func (m *mockOAuthService) CheckOAuthAccount(ctx context.Context, accessToken string) (bool, error) {
	return m.checkOAuthAccountFn(ctx, accessToken)
}

func (m *mockOAuthService) RevokeApple(ctx context.Context, userID, refreshToken string) error {
	return m.revokeAppleFn(ctx, userID, refreshToken)
}

func (m *mockOAuthService) RevokeGoogle(ctx context.Context, userID, refreshToken string) error {
	return m.revokeGoogleFn(ctx, userID, refreshToken)
}

type mockSessionStore struct {
	getFn    func(id string) (*model.Session, bool)
	touchFn  func(id string) (*model.Session, bool)
	deleteFn func(id string) bool
}

func (m *mockSessionStore) Get(id string) (*model.Session, bool) {
	return m.getFn(id)
}

func (m *mockSessionStore) Touch(id string) (*model.Session, bool) {
	return m.touchFn(id)
}

func (m *mockSessionStore) Delete(id string) bool {
	return m.deleteFn(id)
}

type mockProfileService struct {
	findByIDFn      func(ctx context.Context, id string) (*model.User, error)
	updateProfileFn func(ctx context.Context, id string, upd model.ProfileUpdate) (*model.User, error)
}

func (m *mockProfileService) FindByID(ctx context.Context, id string) (*model.User, error) {
	return m.findByIDFn(ctx, id)
}

func (m *mockProfileService) UpdateProfile(ctx context.Context, id string, upd model.ProfileUpdate) (*model.User, error) {
	return m.updateProfileFn(ctx, id, upd)
}

// --- ヘルパー ---

var fixedTime = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

// sampleAuthResult はテスト用の認証結果を返す。
func sampleAuthResult(lt model.LoginType) *model.AuthResult {
	return &model.AuthResult{
		User: &model.User{
			ID:        "user-1",
			Email:     "taro@example.com",
			Name:      "Taro",
			Username:  "taro",
			CreatedAt: fixedTime,
		},
		Tokens: model.TokenPair{
			AccessToken:           "access-token",
			RefreshToken:          "refresh-token",
			AccessTokenExpiresAt:  fixedTime.Add(15 * time.Minute),
			RefreshTokenExpiresAt: fixedTime.Add(720 * time.Hour),
		},
		Session: &model.Session{
			ID:          "session-1",
			UserID:      "user-1",
			Email:       "taro@example.com",
			LoginType:   lt,
			CreatedAt:   fixedTime,
			LastLoginAt: fixedTime,
			ExpiresAt:   fixedTime.Add(24 * time.Hour),
		},
		LoginType: lt,
	}
}

// withIdentity はテスト用に認証済みIDをコンテキストに注入するヘルパー。
func withIdentity(r *http.Request, userID string, lt model.LoginType) *http.Request {
	ctx := middleware.ContextWithIdentity(r.Context(), &middleware.Identity{
		User:      &model.User{ID: userID, Email: "taro@example.com", Name: "Taro"},
		LoginType: lt,
		Token:     "bearer-token",
	})
	return r.WithContext(ctx)
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// envelope は成功レスポンスのデコード先。
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeSuccess(t *testing.T, w *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if data != nil {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("failed to decode data: %v (raw: %s)", err, env.Data)
		}
	}
	return env
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body
}
