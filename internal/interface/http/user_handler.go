package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	userapp "github.com/banku/user-service/internal/application"
	"github.com/banku/user-service/internal/domain/aggregate"
	"github.com/banku/user-service/internal/domain/repository"
	"github.com/banku/user-service/pkg/response"
	"github.com/banku/user-service/pkg/validation"
)

const maxAvatarBytes = 5 << 20

type UserHandler struct {
	Svc    *userapp.Service
	Logger *logrus.Logger
}

func NewUserHandler(svc *userapp.Service, logger *logrus.Logger) *UserHandler {
	return &UserHandler{Svc: svc, Logger: logger}
}

type updateMeRequest struct {
	Email             *string `json:"email" binding:"omitempty,email"`
	CurrentPassword   *string `json:"current_password"`
	NewPassword       *string `json:"new_password" binding:"omitempty,pwd"`
	PreferredLanguage *string `json:"preferred_language"`
}

func userView(u *aggregate.User) gin.H {
	logins := make([]gin.H, 0, len(u.LoginHistory))
	for _, e := range u.LoginHistory {
		logins = append(logins, gin.H{"at": e.At, "success": e.Success})
	}
	return gin.H{
		"id":                 u.ID,
		"version":            u.Version,
		"email":              u.Email,
		"first_name":         u.FirstName,
		"last_name":          u.LastName,
		"provider":           u.Provider,
		"profile_picture":    u.ProfilePicture,
		"preferred_language": u.PreferredLanguage,
		"login_history":      logins,
	}
}

// Me GET /api/me
func (h *UserHandler) Me(c *gin.Context) {
	uid := c.GetString("userID")
	u, err := h.Svc.GetSelf(c.Request.Context(), uid)
	if err != nil {
		response.Error(c, http.StatusNotFound, "user not found", nil)
		return
	}
	response.Success(c, http.StatusOK, userView(u), "profile", nil)
}

// UpdateMe PUT /api/me
func (h *UserHandler) UpdateMe(c *gin.Context) {
	uid := c.GetString("userID")
	var req updateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	u, err := h.Svc.UpdateSelf(c.Request.Context(), uid, userapp.UpdateSelfInput{
		Email:             req.Email,
		CurrentPassword:   req.CurrentPassword,
		NewPassword:       req.NewPassword,
		PreferredLanguage: req.PreferredLanguage,
	})
	if err != nil {
		switch {
		case errors.Is(err, userapp.ErrInvalidPassword):
			response.Error(c, http.StatusBadRequest, "invalid password change request", nil)
		case errors.Is(err, repository.ErrDuplicateEmail):
			response.Error(c, http.StatusConflict, "email already registered", nil)
		case errors.Is(err, repository.ErrNotFound):
			response.Error(c, http.StatusNotFound, "user not found", nil)
		case errors.Is(err, repository.ErrConcurrentModification):
			response.Error(c, http.StatusConflict, "conflicting update, retry", nil)
		default:
			h.Logger.WithError(err).WithField("user_id", uid).Error("update failed")
			response.Error(c, http.StatusInternalServerError, "failed to update profile", nil)
		}
		return
	}
	response.Success(c, http.StatusOK, userView(u), "profile updated", nil)
}

// DeleteMe DELETE /api/me
func (h *UserHandler) DeleteMe(c *gin.Context) {
	uid := c.GetString("userID")
	if err := h.Svc.DeleteSelf(c.Request.Context(), uid); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.Error(c, http.StatusNotFound, "user not found", nil)
			return
		}
		h.Logger.WithError(err).WithField("user_id", uid).Error("delete failed")
		response.Error(c, http.StatusInternalServerError, "failed to delete account", nil)
		return
	}
	response.Success[any](c, http.StatusOK, gin.H{"deleted": true}, "account deleted", nil)
}

// UploadAvatar POST /api/me/avatar (multipart form, field "avatar")
func (h *UserHandler) UploadAvatar(c *gin.Context) {
	uid := c.GetString("userID")

	fh, err := c.FormFile("avatar")
	if err != nil {
		response.Error(c, http.StatusBadRequest, "missing avatar file", nil)
		return
	}
	if fh.Size > maxAvatarBytes {
		response.Error(c, http.StatusRequestEntityTooLarge, "avatar too large", nil)
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, "unreadable avatar file", nil)
		return
	}
	defer func() { _ = f.Close() }()

	url, err := h.Svc.UploadAvatar(c.Request.Context(), uid, f, fh.Filename, fh.Header.Get("Content-Type"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.Error(c, http.StatusNotFound, "user not found", nil)
			return
		}
		h.Logger.WithError(err).WithField("user_id", uid).Error("avatar upload failed")
		response.Error(c, http.StatusInternalServerError, "failed to upload avatar", nil)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"profile_picture": url}, "avatar updated", nil)
}

// Search GET /api/users/search?q=...&size=...
func (h *UserHandler) Search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		response.Error(c, http.StatusBadRequest, "missing query", nil)
		return
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))

	hits, err := h.Svc.SearchUsers(c.Request.Context(), q, size)
	if err != nil {
		h.Logger.WithError(err).Error("user search failed")
		response.Error(c, http.StatusBadGateway, "search unavailable", nil)
		return
	}
	response.Success(c, http.StatusOK, hits, "search results", map[string]any{"count": len(hits)})
}
