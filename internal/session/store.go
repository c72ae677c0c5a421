// Package session はプロセス内のセッションレジストリを提供する。
//
// セッションはトークンに付随するメタデータであり、認可判定には使わない。
// 永続化はしないため、プロセス再起動で全セッションが失われる。
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/hitoshi/travelmate/internal/model"
)

// DefaultTTL はセッションの既定有効期間（1440分）。
const DefaultTTL = 1440 * time.Minute

// sessionIDBytes はセッションIDの生成に使うランダムバイト数。
const sessionIDBytes = 32

// Store はミューテックスで保護されたセッションのマップ。
// 期限切れの判定と削除は同一のクリティカルセクション内で行う。
type Store struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	ttl      time.Duration
	now      func() time.Time
}

// Option はStoreの生成オプション。
type Option func(*Store)

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore は新しいStoreを生成する。ttlが0以下の場合はDefaultTTLを使う。
func NewStore(ttl time.Duration, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		sessions: make(map[string]*model.Session),
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create はStoreの既定TTLでセッションを作成する。
func (s *Store) Create(user *model.User, loginType model.LoginType) (*model.Session, error) {
	return s.CreateWithTTL(user, loginType, s.ttl)
}

// CreateWithTTL は指定TTLでセッションを作成する。
func (s *Store) CreateWithTTL(user *model.User, loginType model.LoginType, ttl time.Duration) (*model.Session, error) {
	if user == nil || user.ID == "" {
		return nil, fmt.Errorf("user with ID is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session TTL must be positive: %s", ttl)
	}

	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess := &model.Session{
		ID:          id,
		UserID:      user.ID,
		Email:       user.Email,
		Name:        user.Name,
		LoginType:   loginType,
		CreatedAt:   now,
		LastLoginAt: now,
		ExpiresAt:   now.Add(ttl),
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	cp := *sess
	return &cp, nil
}

// Get はセッションを取得する。期限切れの場合は削除してfalseを返す。
func (s *Store) Get(id string) (*model.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.liveLocked(id)
	if !ok {
		return nil, false
	}
	cp := *sess
	return &cp, true
}

// Touch はセッションの最終ログイン時刻を現在時刻に更新する。
// 期限切れの場合は削除してfalseを返す。
func (s *Store) Touch(id string) (*model.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.liveLocked(id)
	if !ok {
		return nil, false
	}
	sess.LastLoginAt = s.now()
	cp := *sess
	return &cp, true
}

// Delete はセッションを削除する。存在した場合にtrueを返す。
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// DeleteUserSessions は指定ユーザーの全セッションを削除し、削除件数を返す。
func (s *Store) DeleteUserSessions(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// CleanExpired は期限切れのセッションをすべて削除し、削除件数を返す。
func (s *Store) CleanExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// Count は保持しているセッション数を返す。期限切れで未削除のものも含む。
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// liveLocked は期限内のセッションを返す。呼び出し側でロックを保持すること。
func (s *Store) liveLocked(id string) (*model.Session, bool) {
	if id == "" {
		return nil, false
	}
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if sess.Expired(s.now()) {
		delete(s.sessions, id)
		return nil, false
	}
	return sess, true
}

// generateSessionID は暗号学的に安全なランダムセッションIDを生成する。
// 32バイトのランダム値を16進数文字列（64文字）として返す。
func generateSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session ID: %w", err)
	}
	return hex.EncodeToString(b), nil
}
