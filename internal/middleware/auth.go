// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"unicode"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/travelmate/internal/metrics"
	"github.com/hitoshi/travelmate/internal/model"
	"github.com/hitoshi/travelmate/internal/provider"
	"github.com/hitoshi/travelmate/internal/token"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに認証済みIDを格納するためのキー。
var identityContextKey = contextKey("identity")

// AccessVerifier はローカル発行のアクセストークンを検証する。token.Serviceが実装する。
type AccessVerifier interface {
	VerifyAccess(tokenString string) (*token.AccessClaims, error)
}

// TokenUserFetcher はIdP発行のトークンからユーザーを取得する。provider.Clientが実装する。
type TokenUserFetcher interface {
	GetUserFromToken(ctx context.Context, accessToken string) (*provider.User, error)
}

// Identity は認証済みリクエストのユーザー情報。
type Identity struct {
	User      *model.User
	LoginType model.LoginType
	// Token はリクエストで提示されたbearerトークン。
	Token string
}

// NewAuthMiddleware はbearerトークンを検証するミドルウェアを返す。
// まずローカルのアクセストークンとして検証し、失敗した場合のみIdPに問い合わせる。
// 同一トークンへの同時問い合わせは1回にまとめる。
// どちらでも解決できない場合は401 UNAUTHORIZEDを返す。
func NewAuthMiddleware(verifier AccessVerifier, fetcher TokenUserFetcher, rec metrics.Recorder) func(next http.Handler) http.Handler {
	if rec == nil {
		rec = metrics.Noop{}
	}
	var group singleflight.Group

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				rec.RecordGuardDecision(metrics.GuardRejected)
				writeUnauthorized(w)
				return
			}

			// 1. ローカル検証
			if claims, err := verifier.VerifyAccess(raw); err == nil && claims.Subject != "" && claims.Email != "" {
				rec.RecordGuardDecision(metrics.GuardLocal)
				id := &Identity{
					User: &model.User{
						ID:    claims.Subject,
						Email: claims.Email,
						Name:  claims.Name,
					},
					LoginType: claims.LoginType,
					Token:     raw,
				}
				next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
				return
			}

			// 2. IdPによる検証
			v, err, _ := group.Do(raw, func() (any, error) {
				return fetcher.GetUserFromToken(context.WithoutCancel(r.Context()), raw)
			})
			pu, _ := v.(*provider.User)
			if err != nil || pu == nil || pu.ID == "" || pu.Email == "" {
				if err != nil {
					slog.Debug("provider token verification failed", slog.String("error", err.Error()))
				}
				rec.RecordGuardDecision(metrics.GuardRejected)
				writeUnauthorized(w)
				return
			}

			rec.RecordGuardDecision(metrics.GuardProvider)
			loginType, ok := model.ParseLoginType(pu.AppMetadata.Provider, model.LoginTypeEmail)
			if !ok {
				loginType = model.LoginTypeEmail
			}
			id := &Identity{
				User: &model.User{
					ID:        pu.ID,
					Email:     strings.ToLower(pu.Email),
					Name:      pu.UserMetadata.DisplayName(),
					AvatarURL: pu.UserMetadata.Avatar(),
					CreatedAt: pu.CreatedAt,
				},
				LoginType: loginType,
				Token:     raw,
			}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
		})
	}
}

// bearerToken はAuthorizationヘッダーからトークンを取り出す。スキームの大文字小文字は区別しない。
func bearerToken(header string) (string, bool) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	// 空白を含む値はトークンとして扱わない
	if tok == "" || strings.ContainsFunc(tok, unicode.IsSpace) {
		return "", false
	}
	return tok, true
}

func writeUnauthorized(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError(""))
}

// IdentityFromContext はリクエストコンテキストから認証済みIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || id == nil || id.User == nil {
		return nil, false
	}
	return id, true
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok || id.User.ID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return id.User.ID, nil
}

// ContextWithIdentity はコンテキストに認証済みIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	if holder, ok := ctx.Value(identityHolderKey).(*identityHolder); ok && id != nil && id.User != nil {
		holder.userID = id.User.ID
	}
	return context.WithValue(ctx, identityContextKey, id)
}
