package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/banku/user-service/internal/container"
	handlers "github.com/banku/user-service/internal/interface/http"
	"github.com/banku/user-service/internal/interface/middleware"
	"github.com/banku/user-service/pkg/helpers"
)

// AuthModule registers the public authentication endpoints.
// POST /api/auth/register, /api/auth/login, /api/auth/refresh and the Google
// OAuth pair. All carry per-IP rate limits since they are unauthenticated.
type AuthModule struct {
	Handler *handlers.AuthHandler
	JWT     *helpers.JWTManager
}

func NewAuthModule(h *handlers.AuthHandler, jwt *helpers.JWTManager) *AuthModule {
	return &AuthModule{Handler: h, JWT: jwt}
}

func (m *AuthModule) Register(rg *gin.RouterGroup) {
	registerLimiter := middleware.RateLimit(container.GetRedis(), 10, time.Minute, middleware.KeyByIPAndPath(), nil)
	loginLimiter := middleware.RateLimit(container.GetRedis(), 10, time.Minute, middleware.KeyByIP(), nil)
	refreshLimiter := middleware.RateLimit(container.GetRedis(), 60, time.Minute, middleware.KeyByIP(), nil)
	oauthLimiter := middleware.RateLimit(container.GetRedis(), 30, time.Minute, middleware.KeyByIPAndPath(), nil)

	rg.POST("/auth/register", registerLimiter, m.Handler.Register)
	rg.POST("/auth/login", loginLimiter, m.Handler.Login)
	rg.POST("/auth/refresh", refreshLimiter, m.Handler.Refresh)
	rg.GET("/auth/oauth/google", oauthLimiter, m.Handler.OAuthGoogle)
	rg.POST("/auth/oauth/google/callback", oauthLimiter, m.Handler.OAuthGoogleCallback)
}
