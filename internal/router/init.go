package router

import (
	userapp "github.com/banku/user-service/internal/application"
	"github.com/banku/user-service/internal/container"
	"github.com/banku/user-service/internal/domain/repository"
	"github.com/banku/user-service/internal/infrastructure/elastic"
	pginfra "github.com/banku/user-service/internal/infrastructure/postgres"
	"github.com/banku/user-service/internal/infrastructure/redisindex"
	handlers "github.com/banku/user-service/internal/interface/http"
	"github.com/banku/user-service/internal/router/modules"
)

func buildService() *userapp.Service {
	cfg := container.GetConfig()
	logger := container.GetLogger()

	store := pginfra.NewEventStore(container.GetPGPool())
	emails := redisindex.NewEmailIndex(container.GetRedis())
	repo := repository.NewUserRepository(store, container.GetEventPub(), emails, logger)

	index := elastic.NewUserIndex(container.GetES(), cfg.ESUsersIndex, logger)

	var oauth *userapp.GoogleOAuth
	if cfg.GoogleClientID != "" {
		oauth = userapp.NewGoogleOAuth(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
	}

	return userapp.NewService(repo, container.GetJWT(), container.GetGCS(), cfg.GCSBucket, index, oauth, logger)
}

// InitModules initializes all application modules and registers them with the
// router registry. Called once during application startup.
func InitModules(r *Registry) {
	svc := buildService()
	logger := container.GetLogger()

	r.Add(modules.NewAuthModule(handlers.NewAuthHandler(svc, logger), container.GetJWT()))
	r.Add(modules.NewUserModule(handlers.NewUserHandler(svc, logger), container.GetJWT()))
}
