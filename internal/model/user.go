// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// User はサービス利用ユーザーを表す。
// IDは外部IdP（Supabase）が割り当てた値をそのまま使う。
type User struct {
	ID           string
	Email        string // 小文字に正規化済み
	Name         string // 任意
	AvatarURL    string // 任意
	Username     string // 既定ではメールアドレスの@より前
	PasswordHash string // サインアップ時のみ設定される
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DefaultUsername はメールアドレスからユーザー名を導出する。
// ローカル部が空の場合は "user_" + IDの先頭8文字を返す。
func DefaultUsername(email, id string) string {
	local, _, _ := strings.Cut(email, "@")
	if local != "" {
		return strings.ToLower(local)
	}
	if len(id) > 8 {
		id = id[:8]
	}
	return "user_" + id
}

// ProfileUpdate はプロフィール更新の入力。nilのフィールドは変更しない。
type ProfileUpdate struct {
	Name      *string
	AvatarURL *string
}

// LoginType はセッション・トークンを発行した認証経路を表す。
type LoginType string

const (
	LoginTypeEmail    LoginType = "email"
	LoginTypeUsername LoginType = "username"
	LoginTypeSignup   LoginType = "signup"
	LoginTypeApple    LoginType = "apple"
	LoginTypeGoogle   LoginType = "google"
	LoginTypeKakao    LoginType = "kakao"
)

// loginTypes は受け付けるLoginTypeの一覧。
var loginTypes = []LoginType{
	LoginTypeEmail,
	LoginTypeUsername,
	LoginTypeSignup,
	LoginTypeApple,
	LoginTypeGoogle,
	LoginTypeKakao,
}

// ParseLoginType は文字列をLoginTypeに変換する。
// 空文字列の場合はfallbackを返し、未知の値の場合はfalseを返す。
func ParseLoginType(s string, fallback LoginType) (LoginType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return fallback, true
	}
	for _, lt := range loginTypes {
		if string(lt) == s {
			return lt, true
		}
	}
	return "", false
}

// IsSocial はソーシャルログイン由来のLoginTypeかどうかを返す。
// ソーシャルログインでは表示名を優先してレスポンスを組み立てる。
func (t LoginType) IsSocial() bool {
	return t != LoginTypeEmail && t != LoginTypeUsername && t != LoginTypeSignup
}

// Session はユーザーのログインセッションを表す。
// トークンとは独立したメタデータで、認可判定には使わない。
type Session struct {
	ID          string
	UserID      string
	Email       string
	Name        string
	LoginType   LoginType
	CreatedAt   time.Time
	LastLoginAt time.Time
	ExpiresAt   time.Time
}

// Expired は指定時刻においてセッションが期限切れかどうかを返す。
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// TokenPair はアクセストークンとリフレッシュトークンの組を表す。
// 発行後は変更されず、次回のリフレッシュで置き換えられる。
type TokenPair struct {
	AccessToken           string
	RefreshToken          string
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time
}

// AuthResult は認証フロー成功時にまとめて返す値。
type AuthResult struct {
	User      *User
	Tokens    TokenPair
	Session   *Session
	LoginType LoginType
}
