package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/travelmate/internal/model"
)

const (
	uniqueViolation      = "23505"
	usernameConstraint   = "profiles_username_key"
	profileReturningCols = `id, email, username, name, avatar_url, created_at, updated_at`
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+profileReturningCols+` FROM profiles WHERE id = $1`,
		id,
	)
	user, err := scanProfile(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by ID: %w", err)
	}
	return user, nil
}

// FindByUsername はユーザー名でプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+profileReturningCols+` FROM profiles WHERE LOWER(username) = LOWER($1) LIMIT 1`,
		username,
	)
	user, err := scanProfile(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by username: %w", err)
	}
	return user, nil
}

// Ensure はプロフィールを作成または更新する。
// ユーザー名が他のユーザーと衝突した場合は "user_" + IDの先頭8文字で1回だけ再試行する。
func (r *PostgresProfileRepo) Ensure(ctx context.Context, user *model.User, loginType model.LoginType) (*model.User, error) {
	username := user.Username
	if username == "" {
		username = model.DefaultUsername(user.Email, user.ID)
	}

	saved, err := r.upsert(ctx, user, username, loginType)
	if isUniqueViolation(err, usernameConstraint) {
		saved, err = r.upsert(ctx, user, model.DefaultUsername("", user.ID), loginType)
	}
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, fmt.Errorf("failed to ensure profile: %w: %v", ErrConflict, err)
		}
		return nil, fmt.Errorf("failed to ensure profile: %w", err)
	}
	return saved, nil
}

func (r *PostgresProfileRepo) upsert(ctx context.Context, user *model.User, username string, loginType model.LoginType) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO profiles (id, email, username, name, avatar_url, login_type, created_at, updated_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, NOW(), NOW())
		 ON CONFLICT (id) DO UPDATE SET
		   email = EXCLUDED.email,
		   name = COALESCE(profiles.name, EXCLUDED.name),
		   avatar_url = COALESCE(profiles.avatar_url, EXCLUDED.avatar_url),
		   login_type = EXCLUDED.login_type,
		   updated_at = NOW()
		 RETURNING `+profileReturningCols,
		user.ID, user.Email, username, user.Name, user.AvatarURL, string(loginType),
	)
	saved, err := scanProfile(row)
	if err != nil {
		return nil, err
	}
	if saved == nil {
		return nil, fmt.Errorf("upsert returned no row for profile %s", user.ID)
	}
	return saved, nil
}

// UpdateProfile は表示名とアバターURLを更新する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) UpdateProfile(ctx context.Context, id string, upd model.ProfileUpdate) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE profiles
		 SET name = COALESCE($2, name),
		     avatar_url = COALESCE($3, avatar_url),
		     updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+profileReturningCols,
		id, nullableString(upd.Name), nullableString(upd.AvatarURL),
	)
	user, err := scanProfile(row)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return user, nil
}

// SaveRefreshToken はソーシャルプロバイダーのリフレッシュトークンを保存する。
func (r *PostgresProfileRepo) SaveRefreshToken(ctx context.Context, userID string, provider model.LoginType, token string) error {
	col, err := refreshTokenColumn(provider)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE profiles SET `+col+` = NULLIF($2, ''), updated_at = NOW() WHERE id = $1`,
		userID, token,
	)
	if err != nil {
		return fmt.Errorf("failed to save %s refresh token: %w", provider, err)
	}
	return nil
}

// GetRefreshToken は保存済みのリフレッシュトークンを返す。
func (r *PostgresProfileRepo) GetRefreshToken(ctx context.Context, userID string, provider model.LoginType) (string, error) {
	col, err := refreshTokenColumn(provider)
	if err != nil {
		return "", err
	}
	var token sql.NullString
	err = r.db.QueryRowContext(ctx,
		`SELECT `+col+` FROM profiles WHERE id = $1`,
		userID,
	).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s refresh token: %w", provider, err)
	}
	return token.String, nil
}

// DeleteByID はプロフィールを削除する。
func (r *PostgresProfileRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return nil
}

// refreshTokenColumn はプロバイダーに対応するカラム名を返す。
func refreshTokenColumn(provider model.LoginType) (string, error) {
	switch provider {
	case model.LoginTypeApple:
		return "apple_refresh_token", nil
	case model.LoginTypeGoogle:
		return "google_refresh_token", nil
	default:
		return "", fmt.Errorf("no refresh token storage for provider %q", provider)
	}
}

// scanProfile は1行をmodel.Userに変換する。行がない場合は(nil, nil)を返す。
func scanProfile(row *sql.Row) (*model.User, error) {
	var (
		user      model.User
		name      sql.NullString
		avatarURL sql.NullString
	)
	err := row.Scan(&user.ID, &user.Email, &user.Username, &name, &avatarURL, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user.Name = name.String
	user.AvatarURL = avatarURL.String
	return &user, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// isUniqueViolation は一意制約違反かどうかを判定する。
// constraintが空の場合は制約名を問わない。
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
