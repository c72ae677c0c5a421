package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/travelmate/internal/model"
)

func TestProfileHandler_GetMe_ReturnsStoredProfile(t *testing.T) {
	profiles := &mockProfileService{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{
				ID:        id,
				Email:     "taro@example.com",
				Name:      "Taro Yamada",
				Username:  "taro",
				AvatarURL: "https://cdn.example.com/a.png",
				CreatedAt: fixedTime,
				UpdatedAt: fixedTime,
			}, nil
		},
	}
	h := NewProfileHandler(profiles, nil)

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/v1/profile/me", nil), "user-1", model.LoginTypeApple)
	w := httptest.NewRecorder()
	h.GetMe(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var data profileResponse
	decodeSuccess(t, w, &data)
	if data.Name != "Taro Yamada" || data.UserID != "taro" || data.LoginType != "apple" {
		t.Errorf("data = %+v", data)
	}
}

func TestProfileHandler_GetMe_FallsBackToIdentity(t *testing.T) {
	for name, fn := range map[string]func(ctx context.Context, id string) (*model.User, error){
		"not found": func(ctx context.Context, id string) (*model.User, error) { return nil, nil },
		"db error":  func(ctx context.Context, id string) (*model.User, error) { return nil, errors.New("db down") },
	} {
		t.Run(name, func(t *testing.T) {
			h := NewProfileHandler(&mockProfileService{findByIDFn: fn}, nil)

			req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/v1/profile/me", nil), "user-1", model.LoginTypeEmail)
			w := httptest.NewRecorder()
			h.GetMe(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			var data profileResponse
			decodeSuccess(t, w, &data)
			if data.ID != "user-1" || data.Email != "taro@example.com" {
				t.Errorf("data = %+v", data)
			}
		})
	}
}

func TestProfileHandler_UpdateMe_SanitizesName(t *testing.T) {
	var got model.ProfileUpdate
	profiles := &mockProfileService{
		updateProfileFn: func(ctx context.Context, id string, upd model.ProfileUpdate) (*model.User, error) {
			got = upd
			return &model.User{ID: id, Email: "taro@example.com", Name: *upd.Name}, nil
		},
	}
	h := NewProfileHandler(profiles, nil)

	req := withIdentity(jsonRequest(http.MethodPatch, "/api/v1/profile/me", `{"name":"<b>Taro</b>   Yamada"}`), "user-1", model.LoginTypeEmail)
	w := httptest.NewRecorder()
	h.UpdateMe(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	if got.Name == nil || *got.Name != "Taro Yamada" {
		t.Errorf("name = %v, want Taro Yamada", got.Name)
	}
	if got.AvatarURL != nil {
		t.Errorf("avatarURL should be untouched, got %q", *got.AvatarURL)
	}
}

func TestProfileHandler_UpdateMe_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no fields", `{}`},
		{"blank name", `{"name":"<script></script>"}`},
		{"http avatar", `{"avatarURL":"http://cdn.example.com/a.png"}`},
		{"private avatar", `{"avatarURL":"https://127.0.0.1/a.png"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profiles := &mockProfileService{
				updateProfileFn: func(ctx context.Context, id string, upd model.ProfileUpdate) (*model.User, error) {
					t.Error("UpdateProfile must not be called")
					return nil, nil
				},
			}
			h := NewProfileHandler(profiles, nil)

			req := withIdentity(jsonRequest(http.MethodPatch, "/api/v1/profile/me", tt.body), "user-1", model.LoginTypeEmail)
			w := httptest.NewRecorder()
			h.UpdateMe(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestProfileHandler_UpdateMe_ClearsAvatar(t *testing.T) {
	var got model.ProfileUpdate
	profiles := &mockProfileService{
		updateProfileFn: func(ctx context.Context, id string, upd model.ProfileUpdate) (*model.User, error) {
			got = upd
			return &model.User{ID: id}, nil
		},
	}
	h := NewProfileHandler(profiles, nil)

	req := withIdentity(jsonRequest(http.MethodPatch, "/api/v1/profile/me", `{"avatarURL":""}`), "user-1", model.LoginTypeEmail)
	w := httptest.NewRecorder()
	h.UpdateMe(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got.AvatarURL == nil || *got.AvatarURL != "" {
		t.Errorf("avatarURL = %v, want empty string", got.AvatarURL)
	}
}

func TestProfileHandler_UpdateMe_MissingProfile_Returns404(t *testing.T) {
	profiles := &mockProfileService{
		updateProfileFn: func(ctx context.Context, id string, upd model.ProfileUpdate) (*model.User, error) {
			return nil, nil
		},
	}
	h := NewProfileHandler(profiles, nil)

	req := withIdentity(jsonRequest(http.MethodPatch, "/api/v1/profile/me", `{"name":"Taro"}`), "user-1", model.LoginTypeEmail)
	w := httptest.NewRecorder()
	h.UpdateMe(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestProfileHandler_UpdateMe_StorageError_Returns500(t *testing.T) {
	profiles := &mockProfileService{
		updateProfileFn: func(ctx context.Context, id string, upd model.ProfileUpdate) (*model.User, error) {
			return nil, errors.New("connection refused")
		},
	}
	h := NewProfileHandler(profiles, nil)

	req := withIdentity(jsonRequest(http.MethodPatch, "/api/v1/profile/me", `{"name":"Taro"}`), "user-1", model.LoginTypeEmail)
	w := httptest.NewRecorder()
	h.UpdateMe(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}
