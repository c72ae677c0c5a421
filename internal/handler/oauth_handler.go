package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/hitoshi/travelmate/internal/auth"
	"github.com/hitoshi/travelmate/internal/middleware"
	"github.com/hitoshi/travelmate/internal/model"
)

// OAuthServiceInterface はIdPアクセストークンを使うソーシャル連携のサービスインターフェース。
// auth.Serviceが実装する。
type OAuthServiceInterface interface {
	LoginWithOAuthToken(ctx context.Context, accessToken string, loginType model.LoginType, opts auth.OAuthTokenOptions) (*model.AuthResult, error)
	CheckOAuthAccount(ctx context.Context, accessToken string) (bool, error)
	RevokeApple(ctx context.Context, userID, refreshToken string) error
	RevokeGoogle(ctx context.Context, userID, refreshToken string) error
}

// OAuthHandler はソーシャルログインとトークン失効のHTTPハンドラー。
type OAuthHandler struct {
	service OAuthServiceInterface
}

// NewOAuthHandler はOAuthHandlerを生成する。
func NewOAuthHandler(service OAuthServiceInterface) *OAuthHandler {
	return &OAuthHandler{service: service}
}

type oauthTokenRequest struct {
	AccessToken        string `json:"accessToken"`
	LoginType          string `json:"loginType"`
	AppleRefreshToken  string `json:"appleRefreshToken"`
	GoogleRefreshToken string `json:"googleRefreshToken"`
	AuthorizationCode  string `json:"authorizationCode"`
	CodeVerifier       string `json:"codeVerifier"`
	RedirectURI        string `json:"redirectUri"`
}

type lookupRequest struct {
	AccessToken string `json:"accessToken"`
}

type revokeRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Signup はIdPアクセストークンでのサインアップを処理する。
// POST /api/v1/oauth/signup
func (h *OAuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	h.loginWithToken(w, r, "OAuth signup successful")
}

// Login はIdPアクセストークンでのログインを処理する。
// POST /api/v1/oauth/login
func (h *OAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.loginWithToken(w, r, "OAuth login successful")
}

func (h *OAuthHandler) loginWithToken(w http.ResponseWriter, r *http.Request, message string) {
	var req oauthTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("accessToken is required"))
		return
	}
	loginType, ok := model.ParseLoginType(req.LoginType, model.LoginTypeEmail)
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Invalid loginType"))
		return
	}

	res, err := h.service.LoginWithOAuthToken(r.Context(), req.AccessToken, loginType, auth.OAuthTokenOptions{
		AppleRefreshToken:  req.AppleRefreshToken,
		GoogleRefreshToken: req.GoogleRefreshToken,
		AuthorizationCode:  req.AuthorizationCode,
		CodeVerifier:       req.CodeVerifier,
		RedirectURI:        req.RedirectURI,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, message, toAuthResponse(res))
}

// Lookup はIdPアクセストークンのユーザーが登録済みかを返す。
// POST /api/v1/oauth/lookup
func (h *OAuthHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	var req lookupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("accessToken is required"))
		return
	}

	registered, err := h.service.CheckOAuthAccount(r.Context(), req.AccessToken)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, "Lookup successful", map[string]bool{"registered": registered})
}

// RevokeApple は保存済みまたは指定のAppleリフレッシュトークンを失効させる。
// POST /api/v1/oauth/apple/revoke
func (h *OAuthHandler) RevokeApple(w http.ResponseWriter, r *http.Request) {
	h.revoke(w, r, h.service.RevokeApple, "Apple token revoked")
}

// RevokeGoogle は保存済みまたは指定のGoogleリフレッシュトークンを失効させる。
// POST /api/v1/oauth/google/revoke
func (h *OAuthHandler) RevokeGoogle(w http.ResponseWriter, r *http.Request) {
	h.revoke(w, r, h.service.RevokeGoogle, "Google token revoked")
}

func (h *OAuthHandler) revoke(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, userID, refreshToken string) error, message string) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError(""))
		return
	}

	// ボディは任意。空の場合は保存済みトークンを使う。
	var req revokeRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}

	if err := fn(r.Context(), userID, req.RefreshToken); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, message, map[string]bool{"revoked": true})
}
