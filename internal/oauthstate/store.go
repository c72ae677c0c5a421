// Package oauthstate はPKCE付きOAuth認可フローのstateを一時保持する。
//
// stateは認可リクエストとコールバックの間をつなぐ一回限りの値で、
// 取り出し時に期限の成否にかかわらず必ず削除される。
package oauthstate

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTTL はstateの既定有効期間。
const DefaultTTL = 5 * time.Minute

const stateIDBytes = 16

// State は保存されたPKCE state。
type State struct {
	CodeVerifier string
	ClientState  string // 呼び出し元から渡された任意の値。そのまま返す。
	CreatedAt    time.Time
}

// Issued は認可URLに埋め込む値。
type Issued struct {
	StateID       string
	CodeChallenge string
}

// Store はミューテックスで保護されたstateのマップ。
type Store struct {
	mu     sync.Mutex
	states map[string]State
	ttl    time.Duration
	now    func() time.Time
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
		states: make(map[string]State),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate はcode verifierとstate IDを生成して保存し、
// 認可URLに埋め込むstate IDとS256 code challengeを返す。
func (s *Store) Generate(clientState string) (Issued, error) {
	verifier := oauth2.GenerateVerifier()

	b := make([]byte, stateIDBytes)
	if _, err := rand.Read(b); err != nil {
		return Issued{}, fmt.Errorf("failed to generate state ID: %w", err)
	}
	stateID := hex.EncodeToString(b)

	s.mu.Lock()
	s.states[stateID] = State{
		CodeVerifier: verifier,
		ClientState:  clientState,
		CreatedAt:    s.now(),
	}
	s.mu.Unlock()

	return Issued{
		StateID:       stateID,
		CodeChallenge: oauth2.S256ChallengeFromVerifier(verifier),
	}, nil
}

// Consume はstateを取り出して削除する。
// 未登録または期限切れの場合はfalseを返す。期限切れのエントリも削除する。
func (s *Store) Consume(stateID string) (*State, bool) {
	if stateID == "" {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[stateID]
	if !ok {
		return nil, false
	}
	delete(s.states, stateID)

	if s.expired(st) {
		return nil, false
	}
	return &st, true
}

// CleanExpired は期限切れのstateを削除し、削除件数を返す。
func (s *Store) CleanExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, st := range s.states {
		if s.expired(st) {
			delete(s.states, id)
			n++
		}
	}
	return n
}

// Len は保持しているstate数を返す。
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

func (s *Store) expired(st State) bool {
	return s.now().Sub(st.CreatedAt) > s.ttl
}
