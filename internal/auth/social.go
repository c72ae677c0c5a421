package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/hitoshi/travelmate/internal/model"
	"github.com/hitoshi/travelmate/internal/provider"
	"github.com/hitoshi/travelmate/internal/social"
)

// OAuthTokenOptions はIdPアクセストークンによるログイン時の追加入力。
// リフレッシュトークンが無く認可コードがある場合はコードを交換して取得する。
type OAuthTokenOptions struct {
	AppleRefreshToken  string
	GoogleRefreshToken string
	AuthorizationCode  string
	CodeVerifier       string
	RedirectURI        string
}

// AuthorizeURL はPKCE stateを発行し、IdPの認可URLを返す。
func (s *Service) AuthorizeURL(redirectTo, clientState string) (string, error) {
	if s.states == nil {
		return "", model.NewServiceUnavailableError("Social login is not configured")
	}
	issued, err := s.states.Generate(clientState)
	if err != nil {
		return "", s.internal("failed to generate oauth state", err)
	}
	return s.provider.AuthorizeURL(string(s.authorizeProvider), redirectTo, issued.StateID, issued.CodeChallenge), nil
}

// CompleteAuthorize はコールバックのstateを消費し、保存していたcode_verifierで
// 認可コードを交換してログインする。戻り値の文字列はクライアントが渡したstate。
func (s *Service) CompleteAuthorize(ctx context.Context, code, stateID string) (*model.AuthResult, string, error) {
	if s.states == nil {
		return nil, "", model.NewServiceUnavailableError("Social login is not configured")
	}
	if stateID == "" {
		return nil, "", model.NewInvalidStateError()
	}
	st, ok := s.states.Consume(stateID)
	if !ok {
		s.logger.Warn("oauth state missing or expired")
		return nil, "", model.NewInvalidStateError()
	}

	result, err := s.LoginWithProviderCode(ctx, code, st.CodeVerifier, s.authorizeProvider)
	if err != nil {
		return nil, "", err
	}
	return result, st.ClientState, nil
}

// LoginWithOAuthToken はクライアントが取得済みのIdPアクセストークンでログインする。
// プロフィールとプロバイダーのリフレッシュトークンの保存に失敗した場合はログインも失敗する。
func (s *Service) LoginWithOAuthToken(ctx context.Context, accessToken string, loginType model.LoginType, opts OAuthTokenOptions) (result *model.AuthResult, err error) {
	defer s.observe("oauth_token", s.now(), &err)

	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, model.NewUnauthorizedError("Access token is required")
	}
	if loginType == "" {
		loginType = model.LoginTypeApple
	}

	user, err := s.verifyProviderToken(ctx, accessToken, loginType.IsSocial())
	if err != nil {
		return nil, err
	}

	saved, err := s.profiles.Ensure(ctx, user, loginType)
	if err != nil {
		return nil, s.internal("failed to ensure profile", err)
	}
	if saved != nil {
		applyProfile(user, saved)
	}

	refreshToken, err := s.providerRefreshToken(ctx, loginType, opts)
	if err != nil {
		return nil, err
	}
	if refreshToken != "" {
		if err := s.profiles.SaveRefreshToken(ctx, user.ID, loginType, refreshToken); err != nil {
			return nil, s.internal("failed to store provider refresh token", err)
		}
	}

	return s.issue(user, loginType)
}

// CheckOAuthAccount はIdPアクセストークンのユーザーがローカルに登録済みかどうかを返す。
func (s *Service) CheckOAuthAccount(ctx context.Context, accessToken string) (bool, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return false, model.NewUnauthorizedError("Access token is required")
	}
	user, err := s.verifyProviderToken(ctx, accessToken, true)
	if err != nil {
		return false, err
	}
	profile, err := s.profiles.FindByID(ctx, user.ID)
	if err != nil {
		return false, s.internal("failed to look up profile", err)
	}
	return profile != nil, nil
}

// RevokeApple はAppleのリフレッシュトークンを失効させ、保存済みの値を消去する。
// refreshTokenが空の場合は保存済みの値を使う。
func (s *Service) RevokeApple(ctx context.Context, userID, refreshToken string) error {
	return s.revoke(ctx, userID, refreshToken, model.LoginTypeApple)
}

// RevokeGoogle はGoogleのリフレッシュトークンを失効させ、保存済みの値を消去する。
func (s *Service) RevokeGoogle(ctx context.Context, userID, refreshToken string) error {
	return s.revoke(ctx, userID, refreshToken, model.LoginTypeGoogle)
}

func (s *Service) revoke(ctx context.Context, userID, refreshToken string, lt model.LoginType) (err error) {
	defer s.observe("revoke_"+string(lt), s.now(), &err)

	if userID == "" {
		return model.NewUnauthorizedError("")
	}
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		stored, err := s.profiles.GetRefreshToken(ctx, userID, lt)
		if err != nil {
			return s.internal("failed to load provider refresh token", err)
		}
		refreshToken = stored
	}
	if refreshToken == "" {
		return model.NewValidationError(string(lt) + " refresh token is required")
	}
	if s.social == nil {
		return model.NewServiceUnavailableError("Social login is not configured")
	}

	if lt == model.LoginTypeApple {
		err = s.social.RevokeApple(ctx, refreshToken)
	} else {
		err = s.social.RevokeGoogle(ctx, refreshToken)
	}
	if err != nil {
		s.logger.Warn("provider token revocation failed",
			slog.String("user_id", userID),
			slog.String("login_type", string(lt)),
			slog.String("error", err.Error()),
		)
		return model.NewServiceUnavailableError("Token revocation failed").WithCause(err)
	}

	if err := s.profiles.SaveRefreshToken(ctx, userID, lt, ""); err != nil {
		s.logger.Warn("failed to clear provider refresh token",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
	s.logger.Info("provider token revoked",
		slog.String("user_id", userID),
		slog.String("login_type", string(lt)),
	)
	return nil
}

// verifyProviderToken はIdPアクセストークンからユーザーを取得する。IDとメールアドレスが必須。
func (s *Service) verifyProviderToken(ctx context.Context, accessToken string, preferDisplayName bool) (*model.User, error) {
	pu, err := s.provider.GetUserFromToken(ctx, accessToken)
	if err != nil {
		if errors.Is(err, provider.ErrUnavailable) {
			return nil, model.NewServiceUnavailableError("").WithCause(err)
		}
		return nil, model.NewUnauthorizedError("Invalid provider token").WithCause(err)
	}
	if pu == nil || pu.ID == "" || pu.Email == "" {
		return nil, model.NewUnauthorizedError("Invalid provider token")
	}
	return userFromProvider(pu, preferDisplayName), nil
}

// providerRefreshToken は保存すべきプロバイダーのリフレッシュトークンを決める。
func (s *Service) providerRefreshToken(ctx context.Context, lt model.LoginType, opts OAuthTokenOptions) (string, error) {
	var token string
	switch lt {
	case model.LoginTypeApple:
		token = opts.AppleRefreshToken
	case model.LoginTypeGoogle:
		token = opts.GoogleRefreshToken
	default:
		return "", nil
	}
	if token != "" || opts.AuthorizationCode == "" {
		return token, nil
	}
	if s.social == nil {
		return "", model.NewServiceUnavailableError("Social login is not configured")
	}

	var err error
	if lt == model.LoginTypeApple {
		token, err = s.social.ExchangeAppleCode(ctx, opts.AuthorizationCode)
	} else {
		token, err = s.social.ExchangeGoogleCode(ctx, opts.AuthorizationCode, opts.CodeVerifier, opts.RedirectURI)
	}
	if err != nil {
		if errors.Is(err, social.ErrNotConfigured) || errors.Is(err, social.ErrUnavailable) {
			return "", model.NewServiceUnavailableError("Social login is not available").WithCause(err)
		}
		return "", model.NewUnauthorizedError("Authorization code exchange failed").WithCause(err)
	}
	return token, nil
}
