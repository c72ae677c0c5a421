// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/travelmate/internal/model"
)

// ErrConflict は一意制約に違反したことを表す。
var ErrConflict = errors.New("repository: unique constraint violation")

// ProfileRepository はプロフィールデータの永続化インターフェース。
// 資格情報はIdPが保持し、ここではユーザー名の解決と表示用情報のみを扱う。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名（大文字小文字を区別しない）でプロフィールを取得する。
	// 見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// Ensure はプロフィールが存在しなければ作成し、存在すればメールアドレスとログイン種別を更新する。
	// 既存の表示名とアバターは上書きしない。
	Ensure(ctx context.Context, user *model.User, loginType model.LoginType) (*model.User, error)

	// UpdateProfile は表示名とアバターURLを更新する。見つからない場合はnilを返す。
	UpdateProfile(ctx context.Context, id string, upd model.ProfileUpdate) (*model.User, error)

	// SaveRefreshToken はソーシャルプロバイダーのリフレッシュトークンを保存する。
	// 空文字列の場合は削除する。
	SaveRefreshToken(ctx context.Context, userID string, provider model.LoginType, token string) error

	// GetRefreshToken は保存済みのリフレッシュトークンを返す。未保存の場合は空文字列を返す。
	GetRefreshToken(ctx context.Context, userID string, provider model.LoginType) (string, error)

	// DeleteByID はプロフィールを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error
}
