// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
// causeはサーバー側のログ専用で、レスポンスには含めない。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, provider, system
	Action   string // ユーザー向け対処方法

	cause error
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.cause
}

// Is はコードが一致するAPIErrorを同一とみなす。
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code == e.Code
}

// WithCause は原因エラーを付与したコピーを返す。
func (e *APIError) WithCause(err error) *APIError {
	cp := *e
	cp.cause = err
	return &cp
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	ErrCodeUnauthorized           = "UNAUTHORIZED"
	ErrCodeInvalidToken           = "INVALID_TOKEN"
	ErrCodeTokenExpired           = "TOKEN_EXPIRED"
	ErrCodeUserVerificationFailed = "USER_VERIFICATION_FAILED"
	ErrCodeProviderError          = "PROVIDER_ERROR"
	ErrCodeServiceUnavailable     = "SERVICE_UNAVAILABLE"
	ErrCodeInternal               = "INTERNAL_ERROR"
	ErrCodeValidation             = "VALIDATION_FAILED"
	ErrCodeInvalidState           = "INVALID_STATE"
	ErrCodeNotFound               = "NOT_FOUND"
	ErrCodeRateLimited            = "RATE_LIMITED"
)

// errors.Isでの比較用の番兵値。
var (
	ErrInvalidCredentials     = &APIError{Code: ErrCodeInvalidCredentials}
	ErrUnauthorized           = &APIError{Code: ErrCodeUnauthorized}
	ErrInvalidToken           = &APIError{Code: ErrCodeInvalidToken}
	ErrUserVerificationFailed = &APIError{Code: ErrCodeUserVerificationFailed}
	ErrProvider               = &APIError{Code: ErrCodeProviderError}
	ErrServiceUnavailable     = &APIError{Code: ErrCodeServiceUnavailable}
	ErrInternal               = &APIError{Code: ErrCodeInternal}
	ErrValidation             = &APIError{Code: ErrCodeValidation}
	ErrInvalidState           = &APIError{Code: ErrCodeInvalidState}
	ErrNotFound               = &APIError{Code: ErrCodeNotFound}
)

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// ユーザー不在とパスワード誤りを区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid credentials",
		Category: "auth",
		Action:   "メールアドレス（またはユーザーID）とパスワードを確認してください。",
	}
}

// NewUnauthorizedError は認証失敗エラーを生成する。
func NewUnauthorizedError(message string) *APIError {
	if message == "" {
		message = "Unauthorized"
	}
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  message,
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidTokenError は無効なリフレッシュトークンのエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "Invalid or expired refresh token",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewUserVerificationFailedError はリフレッシュ時のユーザー再確認失敗エラーを生成する。
func NewUserVerificationFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeUserVerificationFailed,
		Message:  "User verification failed",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewProviderError は外部IdPの処理失敗エラーを生成する。
func NewProviderError(message string) *APIError {
	if message == "" {
		message = "Identity provider request failed"
	}
	return &APIError{
		Code:     ErrCodeProviderError,
		Message:  message,
		Category: "provider",
		Action:   "入力内容を確認し、再度お試しください。",
	}
}

// NewServiceUnavailableError は外部サービスへの接続失敗エラーを生成する。
// タイムアウトを含む。クライアントは再試行してよい。
func NewServiceUnavailableError(message string) *APIError {
	if message == "" {
		message = "Identity provider is unavailable"
	}
	return &APIError{
		Code:     ErrCodeServiceUnavailable,
		Message:  message,
		Category: "provider",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はcauseとしてログのみに残す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Internal server error",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewValidationError はリクエスト検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewInvalidStateError はOAuth stateの検証失敗エラーを生成する。
func NewInvalidStateError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidState,
		Message:  "Invalid or expired state",
		Category: "auth",
		Action:   "ログインを最初からやり直してください。",
	}
}

// NewNotFoundError はリソース未検出エラーを生成する。
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  message,
		Category: "validation",
		Action:   "指定内容を確認してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
