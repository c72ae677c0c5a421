// Package provider は外部IdP（Supabase Auth）のREST APIクライアントを提供する。
//
// レスポンスはこのパッケージの境界で一度だけ明示的な構造体にデコードし、
// 呼び出し側に任意フィールドの動的な判定を持ち込まない。
package provider

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUnavailable はIdPへの接続失敗・タイムアウト・5xx応答を表す。
	ErrUnavailable = errors.New("identity provider unavailable")
	// ErrNotFound は対象ユーザーが存在しないことを表す。
	ErrNotFound = errors.New("identity provider: not found")
	// ErrRejected はIdPがリクエストを拒否したことを表す（資格情報の誤りなど）。
	ErrRejected = errors.New("identity provider rejected request")
)

// Error はIdPが返したエラー応答。
// ステータスに応じてErrNotFound、ErrUnavailable、ErrRejectedのいずれかにUnwrapされる。
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("identity provider returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("identity provider returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap はステータスに対応する番兵エラーを返す。
func (e *Error) Unwrap() error {
	switch {
	case e.StatusCode >= 500:
		return ErrUnavailable
	case e.StatusCode == 404:
		return ErrNotFound
	case strings.Contains(strings.ToLower(e.Message), "not found"):
		return ErrNotFound
	default:
		return ErrRejected
	}
}

// UserMetadata はユーザーに紐づく任意のプロフィール情報。
// IdPやソーシャルプロバイダーによって埋まるキーが異なる。
type UserMetadata struct {
	Name      string `json:"name,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Picture   string `json:"picture,omitempty"`
	Username  string `json:"username,omitempty"`
}

// DisplayName はname、full_nameの順で最初に空でない値を返す。
func (m UserMetadata) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.FullName
}

// Avatar はavatar_url、pictureの順で最初に空でない値を返す。
func (m UserMetadata) Avatar() string {
	if m.AvatarURL != "" {
		return m.AvatarURL
	}
	return m.Picture
}

// AppMetadata はIdPが管理するメタデータ。
type AppMetadata struct {
	Provider  string   `json:"provider,omitempty"`
	Providers []string `json:"providers,omitempty"`
}

// User はIdP上のユーザー。
type User struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	UserMetadata UserMetadata `json:"user_metadata"`
	AppMetadata  AppMetadata  `json:"app_metadata"`
}

// Session はIdPが発行したセッション。
// ProviderRefreshTokenはソーシャルログイン時のみ設定される。
type Session struct {
	AccessToken          string `json:"access_token"`
	TokenType            string `json:"token_type"`
	ExpiresIn            int    `json:"expires_in"`
	RefreshToken         string `json:"refresh_token"`
	ProviderToken        string `json:"provider_token,omitempty"`
	ProviderRefreshToken string `json:"provider_refresh_token,omitempty"`
	User                 *User  `json:"user"`
}

// errorBody はIdPのエラーレスポンス。バージョンによってキーが異なる。
type errorBody struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (b errorBody) toError(status int) *Error {
	e := &Error{StatusCode: status, Code: b.ErrorCode}
	if e.Code == "" {
		e.Code = b.Error
	}
	for _, m := range []string{b.Msg, b.Message, b.ErrorDescription, b.Error} {
		if m != "" {
			e.Message = m
			break
		}
	}
	return e
}
