package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/travelmate/internal/model"
)

func sampleSession(id, userID string) *model.Session {
	return &model.Session{
		ID:          id,
		UserID:      userID,
		Email:       "taro@example.com",
		LoginType:   model.LoginTypeEmail,
		CreatedAt:   fixedTime,
		LastLoginAt: fixedTime.Add(time.Hour),
		ExpiresAt:   fixedTime.Add(24 * time.Hour),
	}
}

func TestSessionHandler_GetSession_TouchesAndReturns(t *testing.T) {
	var touched string
	store := &mockSessionStore{
		touchFn: func(id string) (*model.Session, bool) {
			touched = id
			return sampleSession(id, "user-1"), true
		},
	}
	h := NewSessionHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session?sessionId=s1", nil)
	w := httptest.NewRecorder()
	h.GetSession(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if touched != "s1" {
		t.Errorf("touched = %q, want s1", touched)
	}
	var data sessionResponse
	decodeSuccess(t, w, &data)
	if data.SessionID != "s1" || data.UserID != "user-1" || data.LoginType != "email" {
		t.Errorf("data = %+v", data)
	}
	if data.LastLoginAt != "2026-04-01T10:00:00Z" {
		t.Errorf("lastLoginAt = %q", data.LastLoginAt)
	}
}

func TestSessionHandler_GetSession_MissingID_Returns400(t *testing.T) {
	h := NewSessionHandler(&mockSessionStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	w := httptest.NewRecorder()
	h.GetSession(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestSessionHandler_GetSession_Unknown_Returns401(t *testing.T) {
	store := &mockSessionStore{
		touchFn: func(id string) (*model.Session, bool) { return nil, false },
	}
	h := NewSessionHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session?sessionId=gone", nil)
	w := httptest.NewRecorder()
	h.GetSession(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if body := decodeError(t, w); body.Message != "Invalid or expired session" {
		t.Errorf("message = %q", body.Message)
	}
}

func TestSessionHandler_DeleteSession_OwnSession(t *testing.T) {
	var deleted string
	store := &mockSessionStore{
		getFn: func(id string) (*model.Session, bool) { return sampleSession(id, "user-1"), true },
		deleteFn: func(id string) bool {
			deleted = id
			return true
		},
	}
	h := NewSessionHandler(store)

	req := withIdentity(httptest.NewRequest(http.MethodDelete, "/api/v1/session?sessionId=s1", nil), "user-1", model.LoginTypeEmail)
	w := httptest.NewRecorder()
	h.DeleteSession(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if deleted != "s1" {
		t.Errorf("deleted = %q, want s1", deleted)
	}
}

func TestSessionHandler_DeleteSession_OtherUsersSession_Returns404(t *testing.T) {
	store := &mockSessionStore{
		getFn: func(id string) (*model.Session, bool) { return sampleSession(id, "someone-else"), true },
		deleteFn: func(id string) bool {
			t.Error("Delete must not be called for another user's session")
			return false
		},
	}
	h := NewSessionHandler(store)

	req := withIdentity(httptest.NewRequest(http.MethodDelete, "/api/v1/session?sessionId=s1", nil), "user-1", model.LoginTypeEmail)
	w := httptest.NewRecorder()
	h.DeleteSession(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestSessionHandler_DeleteSession_NoIdentity_Returns401(t *testing.T) {
	h := NewSessionHandler(&mockSessionStore{})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/session?sessionId=s1", nil)
	w := httptest.NewRecorder()
	h.DeleteSession(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
