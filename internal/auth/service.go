package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/travelmate/internal/metrics"
	"github.com/hitoshi/travelmate/internal/model"
	"github.com/hitoshi/travelmate/internal/provider"
)

// DefaultBcryptCost はサインアップ時のパスワードハッシュのコスト。
const DefaultBcryptCost = 10

// minPasswordLength はサインアップ時に受け付ける最短のパスワード長。
const minPasswordLength = 6

// Deps はServiceの依存関係。SocialとStatesは未設定でもよい。
type Deps struct {
	Provider IdentityProvider
	Tokens   TokenIssuer
	Sessions SessionRecorder
	Profiles ProfileStore
	States   StateStore
	Social   SocialConnector
	Metrics  metrics.Recorder
	Logger   *slog.Logger
}

// Config はServiceの設定。
type Config struct {
	BcryptCost int
	// AuthorizeProvider はAuthorizeURLで使うソーシャルプロバイダー名。既定は"apple"。
	AuthorizeProvider model.LoginType
}

// Service は認証フローのオーケストレーター。
type Service struct {
	provider IdentityProvider
	tokens   TokenIssuer
	sessions SessionRecorder
	profiles ProfileStore
	states   StateStore
	social   SocialConnector
	metrics  metrics.Recorder
	logger   *slog.Logger

	bcryptCost        int
	authorizeProvider model.LoginType
	now               func() time.Time
}

// NewService はServiceを生成する。
func NewService(deps Deps, cfg Config) *Service {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Noop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = DefaultBcryptCost
	}
	if cfg.AuthorizeProvider == "" {
		cfg.AuthorizeProvider = model.LoginTypeApple
	}
	return &Service{
		provider:          deps.Provider,
		tokens:            deps.Tokens,
		sessions:          deps.Sessions,
		profiles:          deps.Profiles,
		states:            deps.States,
		social:            deps.Social,
		metrics:           deps.Metrics,
		logger:            deps.Logger,
		bcryptCost:        cfg.BcryptCost,
		authorizeProvider: cfg.AuthorizeProvider,
		now:               time.Now,
	}
}

// SignupInput はサインアップの入力。
type SignupInput struct {
	Email    string
	Password string
	Name     string
}

// LoginInput はログインの入力。Identifierはメールアドレスまたはユーザー名。
type LoginInput struct {
	Identifier string
	Password   string
}

// DeleteResult はアカウント削除の結果。
type DeleteResult struct {
	// ProviderDeleted はIdP上のユーザーを実際に削除した場合にtrue。既に存在しなかった場合はfalse。
	ProviderDeleted bool
	SessionsRemoved int
}

// Signup はIdPにユーザーを作成し、トークンペアとセッションを発行する。
func (s *Service) Signup(ctx context.Context, in SignupInput) (result *model.AuthResult, err error) {
	defer s.observe("signup", s.now(), &err)

	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, model.NewValidationError("A valid email address is required")
	}
	if len(in.Password) < minPasswordLength {
		return nil, model.NewValidationError("Password must be at least 6 characters")
	}
	name := strings.TrimSpace(in.Name)

	pu, err := s.provider.SignUp(ctx, email, in.Password, provider.UserMetadata{Name: name})
	if err != nil {
		return nil, s.providerFailure("signup", err, model.NewProviderError("Signup was rejected by the identity provider"))
	}
	if pu == nil || pu.ID == "" {
		s.logger.Error("identity provider returned no user on signup", slog.String("email_domain", emailDomain(email)))
		return nil, model.NewInternalError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, s.internal("failed to hash password", err)
	}

	now := s.now()
	user := &model.User{
		ID:           pu.ID,
		Email:        email,
		Name:         name,
		Username:     model.DefaultUsername(email, pu.ID),
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// IdP側のユーザーは作成済みのため、プロフィール保存の失敗では中断しない
	if saved, err := s.profiles.Ensure(ctx, user, model.LoginTypeSignup); err != nil {
		s.logger.Warn("failed to ensure profile on signup",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	} else if saved != nil {
		user.Username = saved.Username
	}

	return s.issue(user, model.LoginTypeSignup)
}

// Login はメールアドレスまたはユーザー名とパスワードでログインする。
// ユーザー不在とパスワード誤りは同じInvalidCredentialsエラーになる。
func (s *Service) Login(ctx context.Context, in LoginInput) (result *model.AuthResult, err error) {
	defer s.observe("login", s.now(), &err)

	identifier := strings.ToLower(strings.TrimSpace(in.Identifier))
	if identifier == "" || in.Password == "" {
		return nil, model.NewInvalidCredentialsError()
	}

	loginType := model.LoginTypeEmail
	var profile *model.User

	email := identifier
	if !strings.Contains(identifier, "@") {
		loginType = model.LoginTypeUsername
		profile, err = s.profiles.FindByUsername(ctx, identifier)
		if err != nil {
			s.logger.Warn("username lookup failed", slog.String("error", err.Error()))
			return nil, model.NewInvalidCredentialsError()
		}
		if profile == nil || profile.Email == "" {
			return nil, model.NewInvalidCredentialsError()
		}
		email = strings.ToLower(profile.Email)
	} else if email, err = normalizeEmail(identifier); err != nil {
		return nil, model.NewInvalidCredentialsError()
	}

	sess, err := s.provider.SignInWithPassword(ctx, email, in.Password)
	if err != nil {
		if errors.Is(err, provider.ErrUnavailable) {
			return nil, model.NewServiceUnavailableError("").WithCause(err)
		}
		return nil, model.NewInvalidCredentialsError()
	}
	if sess == nil || sess.User == nil || sess.User.ID == "" {
		return nil, model.NewInvalidCredentialsError()
	}

	user := userFromProvider(sess.User, false)
	if profile != nil {
		user.Username = profile.Username
	}

	return s.issue(user, loginType)
}

// Refresh はリフレッシュトークンを検証し、IdPでユーザーの存在を再確認したうえで
// 新しいトークンペアと新しいセッションを発行する。古いセッションは無効化しない。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (result *model.AuthResult, err error) {
	defer s.observe("refresh", s.now(), &err)

	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, model.NewInvalidTokenError().WithCause(err)
	}
	if claims.Subject == "" {
		return nil, model.NewInvalidTokenError()
	}

	pu, err := s.provider.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, provider.ErrUnavailable) {
			return nil, model.NewServiceUnavailableError("").WithCause(err)
		}
		return nil, model.NewUserVerificationFailedError().WithCause(err)
	}
	if pu == nil || pu.ID == "" {
		return nil, model.NewUserVerificationFailedError()
	}

	return s.issue(userFromProvider(pu, false), model.LoginTypeEmail)
}

// LoginWithProviderCode はPKCEの認可コードをIdPのセッションに交換してログインする。
// loginTypeが空の場合は"apple"とする。
func (s *Service) LoginWithProviderCode(ctx context.Context, code, codeVerifier string, loginType model.LoginType) (result *model.AuthResult, err error) {
	defer s.observe("provider_code", s.now(), &err)

	if loginType == "" {
		loginType = model.LoginTypeApple
	}
	if strings.TrimSpace(code) == "" {
		return nil, model.NewValidationError("Authorization code is required")
	}

	sess, err := s.provider.ExchangeCodeForSession(ctx, code, codeVerifier)
	if err != nil {
		return nil, s.providerFailure("exchange_code", err, model.NewUnauthorizedError("Authorization code exchange failed"))
	}
	if sess == nil || sess.User == nil || sess.User.ID == "" {
		return nil, model.NewUnauthorizedError("Provider session does not include a user")
	}

	user := userFromProvider(sess.User, loginType.IsSocial())
	if saved, err := s.profiles.Ensure(ctx, user, loginType); err != nil {
		s.logger.Warn("failed to ensure profile on code exchange",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	} else if saved != nil {
		applyProfile(user, saved)
	}

	if sess.ProviderRefreshToken != "" && hasRefreshTokenStorage(loginType) {
		if err := s.profiles.SaveRefreshToken(ctx, user.ID, loginType, sess.ProviderRefreshToken); err != nil {
			s.logger.Warn("failed to store provider refresh token",
				slog.String("user_id", user.ID),
				slog.String("login_type", string(loginType)),
				slog.String("error", err.Error()),
			)
		}
	}

	return s.issue(user, loginType)
}

// DeleteAccount はIdP上のユーザーを削除し、ローカルのセッションとプロフィールを破棄する。
// IdP上に既に存在しない場合は成功として扱う。
func (s *Service) DeleteAccount(ctx context.Context, user *model.User) (result DeleteResult, err error) {
	defer s.observe("delete_account", s.now(), &err)

	if user == nil || user.ID == "" {
		return DeleteResult{}, model.NewUnauthorizedError("")
	}

	if err := s.provider.DeleteUser(ctx, user.ID); err != nil {
		if !errors.Is(err, provider.ErrNotFound) {
			return DeleteResult{}, s.providerFailure("delete_user", err, model.NewProviderError("Failed to delete account"))
		}
		s.logger.Info("account already absent at identity provider", slog.String("user_id", user.ID))
	} else {
		result.ProviderDeleted = true
	}

	result.SessionsRemoved = s.sessions.DeleteUserSessions(user.ID)

	if err := s.profiles.DeleteByID(ctx, user.ID); err != nil {
		s.logger.Warn("failed to delete profile",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("account deleted",
		slog.String("user_id", user.ID),
		slog.Bool("provider_deleted", result.ProviderDeleted),
		slog.Int("sessions_removed", result.SessionsRemoved),
	)
	return result, nil
}

// issue はトークンペアとセッションを発行する。
func (s *Service) issue(user *model.User, loginType model.LoginType) (*model.AuthResult, error) {
	pair, err := s.tokens.GeneratePair(user, loginType)
	if err != nil {
		return nil, s.internal("failed to generate token pair", err)
	}
	sess, err := s.sessions.Create(user, loginType)
	if err != nil {
		return nil, s.internal("failed to create session", err)
	}

	s.logger.Info("user authenticated",
		slog.String("user_id", user.ID),
		slog.String("login_type", string(loginType)),
	)

	return &model.AuthResult{
		User:      user,
		Tokens:    pair,
		Session:   sess,
		LoginType: loginType,
	}, nil
}

// providerFailure はIdPのエラーをドメインエラーに変換する。
// 接続失敗とタイムアウトはServiceUnavailable、それ以外はrejectedを返す。
func (s *Service) providerFailure(op string, err error, rejected *model.APIError) error {
	if errors.Is(err, provider.ErrUnavailable) {
		s.logger.Warn("identity provider unavailable",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return model.NewServiceUnavailableError("").WithCause(err)
	}
	s.logger.Warn("identity provider rejected request",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	return rejected.WithCause(err)
}

// internal は内部エラーをログに残して汎用エラーを返す。
func (s *Service) internal(msg string, err error) error {
	s.logger.Error(msg, slog.String("error", err.Error()))
	return model.NewInternalError().WithCause(err)
}

// observe はフローの結果をメトリクスに記録する。deferで呼ぶ。
func (s *Service) observe(flow string, start time.Time, err *error) {
	outcome := metrics.OutcomeSuccess
	if *err != nil {
		outcome = metrics.OutcomeFailure
	}
	s.metrics.RecordAuthAttempt(flow, outcome, s.now().Sub(start))
}

// userFromProvider はIdPのユーザーをmodel.Userに変換する。
// preferDisplayNameがtrueの場合、nameが空ならfull_nameを使う。
func userFromProvider(pu *provider.User, preferDisplayName bool) *model.User {
	email := strings.ToLower(pu.Email)
	name := pu.UserMetadata.Name
	if preferDisplayName {
		name = pu.UserMetadata.DisplayName()
	}
	username := pu.UserMetadata.Username
	if username == "" {
		username = model.DefaultUsername(email, pu.ID)
	}
	return &model.User{
		ID:        pu.ID,
		Email:     email,
		Name:      name,
		AvatarURL: pu.UserMetadata.Avatar(),
		Username:  username,
		CreatedAt: pu.CreatedAt,
		UpdatedAt: pu.UpdatedAt,
	}
}

// applyProfile は保存済みプロフィールの値でユーザーを補完する。
func applyProfile(user, profile *model.User) {
	if profile.Username != "" {
		user.Username = profile.Username
	}
	if profile.Name != "" {
		user.Name = profile.Name
	}
	if profile.AvatarURL != "" {
		user.AvatarURL = profile.AvatarURL
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = profile.CreatedAt
	}
}

func hasRefreshTokenStorage(lt model.LoginType) bool {
	return lt == model.LoginTypeApple || lt == model.LoginTypeGoogle
}
