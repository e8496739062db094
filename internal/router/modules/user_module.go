package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/banku/user-service/internal/container"
	handlers "github.com/banku/user-service/internal/interface/http"
	"github.com/banku/user-service/internal/interface/middleware"
	"github.com/banku/user-service/pkg/helpers"
)

// UserModule wires the authenticated user endpoints.
// GET/PUT/DELETE /api/me, POST /api/me/avatar, GET /api/users/search.
type UserModule struct {
	Handler *handlers.UserHandler
	JWT     *helpers.JWTManager
}

func NewUserModule(h *handlers.UserHandler, jwt *helpers.JWTManager) *UserModule {
	return &UserModule{Handler: h, JWT: jwt}
}

func (m *UserModule) Register(rg *gin.RouterGroup) {
	auth := rg.Group("/")
	auth.Use(middleware.Auth(m.JWT))
	auth.Use(
		middleware.RateLimit(container.GetRedis(), 300, time.Minute, middleware.KeyByIP(), nil),
		middleware.RateLimit(container.GetRedis(), 120, time.Minute, middleware.KeyByUserID(), nil),
	)
	{
		auth.GET("/me", m.Handler.Me)
		auth.PUT("/me", m.Handler.UpdateMe)
		auth.DELETE("/me", m.Handler.DeleteMe)
		auth.POST("/me/avatar", m.Handler.UploadAvatar)
		auth.GET("/users/search", m.Handler.Search)
	}
}
