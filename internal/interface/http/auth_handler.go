package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	userapp "github.com/banku/user-service/internal/application"
	"github.com/banku/user-service/internal/domain/repository"
	"github.com/banku/user-service/pkg/response"
	"github.com/banku/user-service/pkg/validation"
)

type AuthHandler struct {
	Svc    *userapp.Service
	Logger *logrus.Logger
}

func NewAuthHandler(svc *userapp.Service, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{Svc: svc, Logger: logger}
}

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,pwd"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type oauthCallbackRequest struct {
	Code string `json:"code" binding:"required"`
}

func tokenMeta(pair userapp.TokenPair) map[string]any {
	return map[string]any{
		"access_expires_at":  pair.AccessTokenExpiry,
		"refresh_expires_at": pair.RefreshTokenExpiry,
	}
}

func tokenBody(pair userapp.TokenPair) gin.H {
	return gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	}
}

// Register POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	id, pair, err := h.Svc.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			response.Error(c, http.StatusConflict, "email already registered", nil)
			return
		}
		h.Logger.WithError(err).Error("register failed")
		response.Error(c, http.StatusInternalServerError, "registration failed", nil)
		return
	}

	body := tokenBody(pair)
	body["id"] = id
	response.Success(c, http.StatusCreated, body, "registered", tokenMeta(pair))
}

// Login POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	u, pair, err := h.Svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, userapp.ErrInvalidCredentials) {
			response.Error(c, http.StatusUnauthorized, "invalid credentials", nil)
			return
		}
		h.Logger.WithError(err).Error("login failed")
		response.Error(c, http.StatusInternalServerError, "login failed", nil)
		return
	}

	body := tokenBody(pair)
	body["id"] = u.ID
	body["email"] = u.Email
	response.Success(c, http.StatusOK, body, "login successful", tokenMeta(pair))
}

// Refresh POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	id, pair, err := h.Svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "invalid refresh token", nil)
		return
	}

	body := tokenBody(pair)
	body["id"] = id
	response.Success(c, http.StatusOK, body, "token refreshed", tokenMeta(pair))
}

// OAuthGoogle GET /api/auth/oauth/google
// Hands the client the Google consent URL together with a one-shot state.
func (h *AuthHandler) OAuthGoogle(c *gin.Context) {
	if h.Svc.OAuth == nil {
		response.Error(c, http.StatusNotImplemented, "oauth not configured", nil)
		return
	}
	state, err := randomState()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "state generation failed", nil)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"auth_url": h.Svc.OAuth.AuthURL(state),
		"state":    state,
	}, "oauth redirect", nil)
}

// OAuthGoogleCallback POST /api/auth/oauth/google/callback
func (h *AuthHandler) OAuthGoogleCallback(c *gin.Context) {
	var req oauthCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	u, pair, err := h.Svc.OAuthLogin(c.Request.Context(), req.Code)
	if err != nil {
		h.Logger.WithError(err).Warn("oauth login failed")
		response.Error(c, http.StatusUnauthorized, "oauth login failed", nil)
		return
	}

	body := tokenBody(pair)
	body["id"] = u.ID
	body["email"] = u.Email
	response.Success(c, http.StatusOK, body, "login successful", tokenMeta(pair))
}

func randomState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
