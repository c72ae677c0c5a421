package auth

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/travelmate/internal/model"
	"github.com/hitoshi/travelmate/internal/oauthstate"
	"github.com/hitoshi/travelmate/internal/provider"
	"github.com/hitoshi/travelmate/internal/session"
	"github.com/hitoshi/travelmate/internal/token"
)

// --- モック ---

type mockProvider struct {
	signUpFn        func(ctx context.Context, email, password string, md provider.UserMetadata) (*provider.User, error)
	signInFn        func(ctx context.Context, email, password string) (*provider.Session, error)
	exchangeFn      func(ctx context.Context, code, verifier string) (*provider.Session, error)
	getUserByIDFn   func(ctx context.Context, id string) (*provider.User, error)
	getUserByTokFn  func(ctx context.Context, accessToken string) (*provider.User, error)
	deleteUserFn    func(ctx context.Context, id string) error
	authorizeURLArg []string
}

func (m *mockProvider) SignUp(ctx context.Context, email, password string, md provider.UserMetadata) (*provider.User, error) {
	return m.signUpFn(ctx, email, password, md)
}
func (m *mockProvider) SignInWithPassword(ctx context.Context, email, password string) (*provider.Session, error) {
	return m.signInFn(ctx, email, password)
}
func (m *mockProvider) ExchangeCodeForSession(ctx context.Context, code, verifier string) (*provider.Session, error) {
	return m.exchangeFn(ctx, code, verifier)
}
func (m *mockProvider) GetUserByID(ctx context.Context, id string) (*provider.User, error) {
	return m.getUserByIDFn(ctx, id)
}
func (m *mockProvider) GetUserFromToken(ctx context.Context, accessToken string) (*provider.User, error) {
	return m.getUserByTokFn(ctx, accessToken)
}
func (m *mockProvider) DeleteUser(ctx context.Context, id string) error {
	return m.deleteUserFn(ctx, id)
}
func (m *mockProvider) AuthorizeURL(providerName, redirectTo, state, challenge string) string {
	m.authorizeURLArg = []string{providerName, redirectTo, state, challenge}
	return "https://idp.example.com/authorize?state=" + state
}

type mockProfiles struct {
	findByIDFn       func(ctx context.Context, id string) (*model.User, error)
	findByUsernameFn func(ctx context.Context, username string) (*model.User, error)
	ensureFn         func(ctx context.Context, user *model.User, lt model.LoginType) (*model.User, error)
	saveRefreshFn    func(ctx context.Context, userID string, lt model.LoginType, token string) error
	getRefreshFn     func(ctx context.Context, userID string, lt model.LoginType) (string, error)
	deleteByIDFn     func(ctx context.Context, id string) error

	ensured []*model.User
	saved   map[model.LoginType]string
}

func (m *mockProfiles) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockProfiles) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	if m.findByUsernameFn != nil {
		return m.findByUsernameFn(ctx, username)
	}
	return nil, nil
}
func (m *mockProfiles) Ensure(ctx context.Context, user *model.User, lt model.LoginType) (*model.User, error) {
	m.ensured = append(m.ensured, user)
	if m.ensureFn != nil {
		return m.ensureFn(ctx, user, lt)
	}
	cp := *user
	return &cp, nil
}
func (m *mockProfiles) SaveRefreshToken(ctx context.Context, userID string, lt model.LoginType, token string) error {
	if m.saveRefreshFn != nil {
		return m.saveRefreshFn(ctx, userID, lt, token)
	}
	if m.saved == nil {
		m.saved = make(map[model.LoginType]string)
	}
	m.saved[lt] = token
	return nil
}
func (m *mockProfiles) GetRefreshToken(ctx context.Context, userID string, lt model.LoginType) (string, error) {
	if m.getRefreshFn != nil {
		return m.getRefreshFn(ctx, userID, lt)
	}
	return m.saved[lt], nil
}
func (m *mockProfiles) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

type mockSocial struct {
	exchangeAppleFn  func(ctx context.Context, code string) (string, error)
	exchangeGoogleFn func(ctx context.Context, code, verifier, redirectURI string) (string, error)
	revokeAppleFn    func(ctx context.Context, rt string) error
	revokeGoogleFn   func(ctx context.Context, rt string) error
}

func (m *mockSocial) ExchangeAppleCode(ctx context.Context, code string) (string, error) {
	return m.exchangeAppleFn(ctx, code)
}
func (m *mockSocial) ExchangeGoogleCode(ctx context.Context, code, verifier, redirectURI string) (string, error) {
	return m.exchangeGoogleFn(ctx, code, verifier, redirectURI)
}
func (m *mockSocial) RevokeApple(ctx context.Context, rt string) error {
	return m.revokeAppleFn(ctx, rt)
}
func (m *mockSocial) RevokeGoogle(ctx context.Context, rt string) error {
	return m.revokeGoogleFn(ctx, rt)
}

// --- テストヘルパー ---

type fixture struct {
	svc      *Service
	provider *mockProvider
	profiles *mockProfiles
	social   *mockSocial
	tokens   *token.Service
	sessions *session.Store
	states   *oauthstate.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tokens, err := token.NewService(token.Config{
		AccessSecret: []byte("test-access-secret-32-bytes-long"),
		Issuer:       "travelmate",
		AccessTTL:    15 * time.Minute,
		RefreshTTL:   720 * time.Hour,
	})
	require.NoError(t, err)

	f := &fixture{
		provider: &mockProvider{},
		profiles: &mockProfiles{},
		social:   &mockSocial{},
		tokens:   tokens,
		sessions: session.NewStore(0),
		states:   oauthstate.NewStore(0),
	}
	f.svc = NewService(Deps{
		Provider: f.provider,
		Tokens:   f.tokens,
		Sessions: f.sessions,
		Profiles: f.profiles,
		States:   f.states,
		Social:   f.social,
		Logger:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}, Config{BcryptCost: bcrypt.MinCost})
	return f
}

func providerUser(id, email string) *provider.User {
	return &provider.User{ID: id, Email: email}
}
