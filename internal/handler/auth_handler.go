package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/hitoshi/travelmate/internal/auth"
	"github.com/hitoshi/travelmate/internal/middleware"
	"github.com/hitoshi/travelmate/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
// auth.Serviceが実装する。
type AuthServiceInterface interface {
	Signup(ctx context.Context, in auth.SignupInput) (*model.AuthResult, error)
	Login(ctx context.Context, in auth.LoginInput) (*model.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*model.AuthResult, error)
	AuthorizeURL(redirectTo, clientState string) (string, error)
	CompleteAuthorize(ctx context.Context, code, stateID string) (*model.AuthResult, string, error)
	LoginWithProviderCode(ctx context.Context, code, codeVerifier string, loginType model.LoginType) (*model.AuthResult, error)
	DeleteAccount(ctx context.Context, user *model.User) (auth.DeleteResult, error)
}

// AuthHandler はメール/パスワード認証とApple認可コードフローのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type codeCallbackRequest struct {
	Code         string `json:"code"`
	CodeVerifier string `json:"codeVerifier"`
	State        string `json:"state"`
}

type deleteAccountResponse struct {
	UserID          string `json:"userID"`
	SupabaseDeleted bool   `json:"supabaseDeleted"`
	SessionsRemoved int    `json:"sessionsRemoved"`
}

// Signup はユーザー登録を処理する。
// POST /api/v1/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.Signup(r.Context(), auth.SignupInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, "Signup successful", toAuthResponse(res))
}

// Login はメールアドレスまたはユーザー名でのログインを処理する。
// POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	identifier := req.Identifier
	if strings.TrimSpace(identifier) == "" {
		identifier = req.Email
	}

	res, err := h.service.Login(r.Context(), auth.LoginInput{
		Identifier: identifier,
		Password:   req.Password,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, "Login successful", toAuthResponse(res))
}

// Refresh はリフレッシュトークンから新しいトークンペアを発行する。
// POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("refreshToken is required"))
		return
	}

	res, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, "Token refreshed successfully", toAuthResponse(res))
}

// AppleAuthorize はApple認可URLを発行する。mode=redirectの場合は302で遷移させる。
// GET /api/v1/auth/apple?redirectTo=...&clientState=...&mode=redirect
func (h *AuthHandler) AppleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	url, err := h.service.AuthorizeURL(q.Get("redirectTo"), q.Get("clientState"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if q.Get("mode") == "redirect" {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}
	writeSuccess(w, "Apple authorization URL", map[string]string{"url": url})
}

// AppleCallback はIdPからのリダイレクトを受け、stateに紐づくverifierでコードを交換する。
// GET /api/v1/auth/apple/callback?code=...&state=...
func (h *AuthHandler) AppleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	if code == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("code is required"))
		return
	}

	res, clientState, err := h.service.CompleteAuthorize(r.Context(), code, q.Get("state"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	data := toAuthResponse(res)
	data.State = clientState
	writeSuccess(w, "Apple login successful", data)
}

// AppleCodeExchange はクライアントが保持するverifierで認可コードを交換する。
// POST /api/v1/auth/apple/callback
func (h *AuthHandler) AppleCodeExchange(w http.ResponseWriter, r *http.Request) {
	var req codeCallbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Code == "" || req.CodeVerifier == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("code and codeVerifier are required"))
		return
	}

	res, err := h.service.LoginWithProviderCode(r.Context(), req.Code, req.CodeVerifier, model.LoginTypeApple)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	data := toAuthResponse(res)
	data.State = req.State
	writeSuccess(w, "Apple login successful", data)
}

// DeleteAccount は認証済みユーザーのアカウントを削除する。
// DELETE /api/v1/auth/account
func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError(""))
		return
	}

	res, err := h.service.DeleteAccount(r.Context(), identity.User)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, "Account deleted successfully", deleteAccountResponse{
		UserID:          identity.User.ID,
		SupabaseDeleted: res.ProviderDeleted,
		SessionsRemoved: res.SessionsRemoved,
	})
}
