// Package auth はサインアップ・ログイン・リフレッシュ・ソーシャル連携の各フローを
// 1つの発行契約（トークンペア＋セッション）にまとめる。
//
// 資格情報の検証は外部IdPに委譲し、このパッケージはローカルのトークンと
// セッションの発行、エラーの正規化のみを担う。
package auth

import (
	"context"

	"github.com/hitoshi/travelmate/internal/model"
	"github.com/hitoshi/travelmate/internal/oauthstate"
	"github.com/hitoshi/travelmate/internal/provider"
	"github.com/hitoshi/travelmate/internal/token"
)

// IdentityProvider は外部IdPの操作のうちこのパッケージが使うもの。
// provider.Clientが実装する。
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password string, metadata provider.UserMetadata) (*provider.User, error)
	SignInWithPassword(ctx context.Context, email, password string) (*provider.Session, error)
	ExchangeCodeForSession(ctx context.Context, code, codeVerifier string) (*provider.Session, error)
	GetUserByID(ctx context.Context, id string) (*provider.User, error)
	GetUserFromToken(ctx context.Context, accessToken string) (*provider.User, error)
	DeleteUser(ctx context.Context, id string) error
	AuthorizeURL(providerName, redirectTo, state, codeChallenge string) string
}

// TokenIssuer はローカルトークンの発行と検証。token.Serviceが実装する。
type TokenIssuer interface {
	GeneratePair(user *model.User, loginType model.LoginType) (model.TokenPair, error)
	VerifyRefresh(tokenString string) (*token.RefreshClaims, error)
}

// SessionRecorder はセッションの記録。session.Storeが実装する。
type SessionRecorder interface {
	Create(user *model.User, loginType model.LoginType) (*model.Session, error)
	DeleteUserSessions(userID string) int
}

// StateStore はPKCE stateの発行と消費。oauthstate.Storeが実装する。
type StateStore interface {
	Generate(clientState string) (oauthstate.Issued, error)
	Consume(stateID string) (*oauthstate.State, bool)
}

// SocialConnector はApple/Googleのトークン交換と失効。social.Clientが実装する。
type SocialConnector interface {
	ExchangeAppleCode(ctx context.Context, code string) (string, error)
	ExchangeGoogleCode(ctx context.Context, code, codeVerifier, redirectURI string) (string, error)
	RevokeApple(ctx context.Context, refreshToken string) error
	RevokeGoogle(ctx context.Context, refreshToken string) error
}

// ProfileStore はプロフィールの参照と更新。repository.PostgresProfileRepoが実装する。
type ProfileStore interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	Ensure(ctx context.Context, user *model.User, loginType model.LoginType) (*model.User, error)
	SaveRefreshToken(ctx context.Context, userID string, provider model.LoginType, token string) error
	GetRefreshToken(ctx context.Context, userID string, provider model.LoginType) (string, error)
	DeleteByID(ctx context.Context, id string) error
}
