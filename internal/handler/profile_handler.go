package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/travelmate/internal/middleware"
	"github.com/hitoshi/travelmate/internal/model"
	"github.com/hitoshi/travelmate/internal/security"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とする永続化操作。
// repository.PostgresProfileRepoが実装する。
type ProfileServiceInterface interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	UpdateProfile(ctx context.Context, id string, upd model.ProfileUpdate) (*model.User, error)
}

// NameSanitizer は表示名のサニタイズ。security.NameSanitizerが実装する。
type NameSanitizer interface {
	Sanitize(name string) string
}

// ProfileHandler は自分のプロフィール参照・更新のHTTPハンドラー。
type ProfileHandler struct {
	profiles  ProfileServiceInterface
	sanitizer NameSanitizer
}

// NewProfileHandler はProfileHandlerを生成する。sanitizerがnilの場合は既定のものを使う。
func NewProfileHandler(profiles ProfileServiceInterface, sanitizer NameSanitizer) *ProfileHandler {
	if sanitizer == nil {
		sanitizer = security.NewNameSanitizer()
	}
	return &ProfileHandler{profiles: profiles, sanitizer: sanitizer}
}

type profileResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarURL"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
	LoginType string `json:"loginType"`
}

type updateProfileRequest struct {
	Name      *string `json:"name"`
	AvatarURL *string `json:"avatarURL"`
}

func toProfileResponse(u *model.User, lt model.LoginType) profileResponse {
	return profileResponse{
		ID:        u.ID,
		UserID:    u.Username,
		Email:     u.Email,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
		CreatedAt: formatTime(u.CreatedAt),
		UpdatedAt: formatTime(u.UpdatedAt),
		LoginType: string(lt),
	}
}

// GetMe は認証済みユーザーのプロフィールを返す。
// プロフィール行が無い場合はトークンから得たユーザー情報で応答する。
// GET /api/v1/profile/me
func (h *ProfileHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError(""))
		return
	}

	user := identity.User
	profile, err := h.profiles.FindByID(r.Context(), user.ID)
	if err != nil {
		slog.Warn("failed to load profile, falling back to token identity",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	} else if profile != nil {
		user = profile
	}

	writeSuccess(w, "Profile retrieved", toProfileResponse(user, identity.LoginType))
}

// UpdateMe は表示名とアバターURLを更新する。指定の無いフィールドは変更しない。
// PATCH /api/v1/profile/me
func (h *ProfileHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError(""))
		return
	}

	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == nil && req.AvatarURL == nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("name or avatarURL is required"))
		return
	}

	var upd model.ProfileUpdate
	if req.Name != nil {
		name := h.sanitizer.Sanitize(*req.Name)
		if name == "" {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("name must not be empty"))
			return
		}
		upd.Name = &name
	}
	if req.AvatarURL != nil {
		avatar := *req.AvatarURL
		// 空文字列はアバターの解除として扱う。
		if avatar != "" {
			if err := security.ValidateAvatarURL(avatar); err != nil {
				middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Invalid avatarURL"))
				return
			}
		}
		upd.AvatarURL = &avatar
	}

	updated, err := h.profiles.UpdateProfile(r.Context(), identity.User.ID, upd)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if updated == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewNotFoundError("Profile not found"))
		return
	}

	writeSuccess(w, "Profile updated", toProfileResponse(updated, identity.LoginType))
}
