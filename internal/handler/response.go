// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/travelmate/internal/middleware"
	"github.com/hitoshi/travelmate/internal/model"
)

// maxRequestBodyBytes はJSONリクエストボディの上限。
const maxRequestBodyBytes = 64 << 10

// successResponse は成功時の共通エンベロープ。
type successResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// writeSuccess は200と共通エンベロープを書き込む。
func writeSuccess(w http.ResponseWriter, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(successResponse{
		Code:    http.StatusOK,
		Message: message,
		Data:    data,
	})
}

// decodeJSON はリクエストボディをデコードする。
// 空ボディ・不正なJSON・上限超過はすべてVALIDATION_FAILEDとして書き込み、falseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decodeBody(w, r, dst, false)
}

// decodeOptionalJSON はdecodeJSONと同じだが、空ボディはdstを変更せずtrueを返す。
// Content-Lengthではなく実際に読んだ内容で判定するため、chunkedの空ボディも空として扱う。
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decodeBody(w, r, dst, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}
	if optional && errors.Is(err, io.EOF) {
		return true
	}

	msg := "Invalid JSON body"
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		msg = "Request body is required"
	case errors.As(err, &tooLarge):
		msg = "Request body is too large"
	}
	middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(msg))
	return false
}

// handleServiceError はサービス層のエラーをHTTPレスポンスに変換する。
// APIError以外のエラーはログに記録し、500の一般的なメッセージを返す。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		slog.Error("unexpected service error",
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	status := statusForCode(apiErr.Code)
	if status >= http.StatusInternalServerError {
		slog.Error("service error",
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			slog.String("code", apiErr.Code),
			slog.String("error", apiErr.Error()),
		)
	}
	middleware.WriteErrorResponse(w, status, apiErr)
}

// statusForCode はエラーコードに対応するHTTPステータスを返す。
func statusForCode(code string) int {
	switch code {
	case model.ErrCodeInvalidCredentials,
		model.ErrCodeUnauthorized,
		model.ErrCodeInvalidToken,
		model.ErrCodeTokenExpired,
		model.ErrCodeUserVerificationFailed:
		return http.StatusUnauthorized
	case model.ErrCodeValidation, model.ErrCodeInvalidState:
		return http.StatusBadRequest
	case model.ErrCodeNotFound:
		return http.StatusNotFound
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeProviderError:
		return http.StatusBadGateway
	case model.ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// formatTime はRFC3339（UTC）で時刻を整形する。ゼロ値は空文字列。
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// userResponse はレスポンスに含めるユーザー情報。
type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarURL,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	UserID    string `json:"userId,omitempty"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
		CreatedAt: formatTime(u.CreatedAt),
		UserID:    u.Username,
	}
}

// authResponse は認証フロー成功時のレスポンスデータ。
type authResponse struct {
	User                  userResponse `json:"user"`
	TokenType             string       `json:"tokenType"`
	AccessToken           string       `json:"accessToken"`
	RefreshToken          string       `json:"refreshToken"`
	AccessTokenExpiresAt  string       `json:"accessTokenExpiresAt"`
	RefreshTokenExpiresAt string       `json:"refreshTokenExpiresAt"`
	SessionID             string       `json:"sessionId"`
	SessionExpiresAt      string       `json:"sessionExpiresAt"`
	LastLoginAt           string       `json:"lastLoginAt"`
	LoginType             string       `json:"loginType"`
	State                 string       `json:"state,omitempty"`
}

func toAuthResponse(res *model.AuthResult) authResponse {
	out := authResponse{
		User:                  toUserResponse(res.User),
		TokenType:             "Bearer",
		AccessToken:           res.Tokens.AccessToken,
		RefreshToken:          res.Tokens.RefreshToken,
		AccessTokenExpiresAt:  formatTime(res.Tokens.AccessTokenExpiresAt),
		RefreshTokenExpiresAt: formatTime(res.Tokens.RefreshTokenExpiresAt),
		LoginType:             string(res.LoginType),
	}
	if res.Session != nil {
		out.SessionID = res.Session.ID
		out.SessionExpiresAt = formatTime(res.Session.ExpiresAt)
		out.LastLoginAt = formatTime(res.Session.LastLoginAt)
	}
	return out
}
