package handler

import (
	"net/http"

	"github.com/hitoshi/travelmate/internal/middleware"
	"github.com/hitoshi/travelmate/internal/model"
)

// SessionStore はセッションハンドラーが必要とするセッション操作。
// session.Storeが実装する。
type SessionStore interface {
	Get(id string) (*model.Session, bool)
	Touch(id string) (*model.Session, bool)
	Delete(id string) bool
}

// SessionHandler はセッション参照・破棄のHTTPハンドラー。
type SessionHandler struct {
	store SessionStore
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(store SessionStore) *SessionHandler {
	return &SessionHandler{store: store}
}

type sessionResponse struct {
	SessionID   string `json:"sessionId"`
	UserID      string `json:"userId"`
	Email       string `json:"email"`
	LoginType   string `json:"loginType"`
	CreatedAt   string `json:"createdAt"`
	LastLoginAt string `json:"lastLoginAt"`
	ExpiresAt   string `json:"expiresAt"`
}

func toSessionResponse(s *model.Session) sessionResponse {
	return sessionResponse{
		SessionID:   s.ID,
		UserID:      s.UserID,
		Email:       s.Email,
		LoginType:   string(s.LoginType),
		CreatedAt:   formatTime(s.CreatedAt),
		LastLoginAt: formatTime(s.LastLoginAt),
		ExpiresAt:   formatTime(s.ExpiresAt),
	}
}

// GetSession はセッション情報を返し、最終アクセス時刻を更新する。
// GET /api/v1/session?sessionId=...
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("sessionId")
	if id == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("sessionId is required"))
		return
	}

	sess, ok := h.store.Touch(id)
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("Invalid or expired session"))
		return
	}
	writeSuccess(w, "Session retrieved", toSessionResponse(sess))
}

// DeleteSession は認証済みユーザー自身のセッションを破棄する。
// 他ユーザーのセッションは存在しないものとして扱う。
// DELETE /api/v1/session?sessionId=...
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError(""))
		return
	}

	id := r.URL.Query().Get("sessionId")
	if id == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("sessionId is required"))
		return
	}

	sess, ok := h.store.Get(id)
	if !ok || sess.UserID != userID {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewNotFoundError("Session not found"))
		return
	}

	h.store.Delete(id)
	writeSuccess(w, "Session deleted", map[string]string{"sessionId": id})
}
