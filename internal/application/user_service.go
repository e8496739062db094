package application

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/banku/user-service/internal/domain/aggregate"
	"github.com/banku/user-service/internal/domain/event"
	"github.com/banku/user-service/internal/domain/repository"
	"github.com/banku/user-service/internal/infrastructure/elastic"
	"github.com/banku/user-service/pkg/helpers"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidPassword    = errors.New("invalid password change request")
)

// Service drives the user commands: it owns nothing durable itself and goes
// through the aggregate repository for every state change.
type Service struct {
	Repo      *repository.UserRepository
	JWT       *helpers.JWTManager
	GCS       *storage.Client
	GCSBucket string
	Index     *elastic.UserIndex
	OAuth     *GoogleOAuth
	Logger    *logrus.Logger
}

func NewService(repo *repository.UserRepository, jwt *helpers.JWTManager, gcs *storage.Client, gcsBucket string, index *elastic.UserIndex, oauth *GoogleOAuth, logger *logrus.Logger) *Service {
	return &Service{Repo: repo, JWT: jwt, GCS: gcs, GCSBucket: gcsBucket, Index: index, OAuth: oauth, Logger: logger}
}

type TokenPair struct {
	AccessToken        string
	AccessTokenExpiry  time.Time
	RefreshToken       string
	RefreshTokenExpiry time.Time
}

func (s *Service) issueTokens(userID string) (TokenPair, error) {
	access, aexp, err := s.JWT.GenerateAccessToken(userID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, rexp, err := s.JWT.GenerateRefreshToken(userID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, AccessTokenExpiry: aexp, RefreshToken: refresh, RefreshTokenExpiry: rexp}, nil
}

// Register creates a new aggregate from an email/password signup.
func (s *Service) Register(ctx context.Context, email, password string) (string, TokenPair, error) {
	hash, err := helpers.HashPassword(password)
	if err != nil {
		return "", TokenPair{}, err
	}

	id := uuid.NewString()
	if _, err := s.Repo.Create(ctx, id, event.UserCreated{Email: email, PasswordHash: hash}); err != nil {
		return "", TokenPair{}, err
	}

	pair, err := s.issueTokens(id)
	if err != nil {
		return "", TokenPair{}, err
	}
	s.Logger.WithFields(logrus.Fields{"user_id": id}).Info("user registered")
	return id, pair, nil
}

// Login authenticates by email/password. Both outcomes append a LoginRecorded
// event; the failure path deliberately collapses every cause into
// ErrInvalidCredentials so callers cannot probe which emails exist.
func (s *Service) Login(ctx context.Context, email, password string) (*aggregate.User, TokenPair, error) {
	u, err := s.Repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, TokenPair{}, ErrInvalidCredentials
		}
		return nil, TokenPair{}, err
	}

	if !helpers.CompareHashAndPassword(u.PasswordHash, password) {
		if rErr := s.Repo.RecordLogin(ctx, u.ID, false); rErr != nil {
			s.Logger.WithError(rErr).WithField("user_id", u.ID).Warn("failed login not recorded")
		}
		return nil, TokenPair{}, ErrInvalidCredentials
	}

	if err := s.Repo.RecordLogin(ctx, u.ID, true); err != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Warn("successful login not recorded")
	}

	pair, err := s.issueTokens(u.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return u, pair, nil
}

// Refresh rotates the token pair from a valid refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, TokenPair, error) {
	claims, err := s.JWT.ParseRefreshToken(refreshToken)
	if err != nil {
		return "", TokenPair{}, ErrInvalidCredentials
	}
	u, err := s.GetSelf(ctx, claims.UserID)
	if err != nil {
		return "", TokenPair{}, ErrInvalidCredentials
	}
	pair, err := s.issueTokens(u.ID)
	if err != nil {
		return "", TokenPair{}, err
	}
	return u.ID, pair, nil
}

// OAuthLogin exchanges a provider authorization code and signs the user in,
// registering them on first contact.
func (s *Service) OAuthLogin(ctx context.Context, code string) (*aggregate.User, TokenPair, error) {
	if s.OAuth == nil {
		return nil, TokenPair{}, errors.New("oauth not configured")
	}
	info, err := s.OAuth.UserInfo(ctx, code)
	if err != nil {
		return nil, TokenPair{}, err
	}

	u, err := s.Repo.FindByEmail(ctx, info.Email)
	if errors.Is(err, repository.ErrNotFound) {
		id := uuid.NewString()
		if _, cErr := s.Repo.Create(ctx, id, event.UserCreated{
			Email:          info.Email,
			Provider:       info.Provider,
			ProviderID:     info.ProviderID,
			FirstName:      info.FirstName,
			LastName:       info.LastName,
			ProfilePicture: info.Picture,
		}); cErr != nil {
			return nil, TokenPair{}, cErr
		}
		u, err = s.Repo.Load(ctx, id)
	}
	if err != nil {
		return nil, TokenPair{}, err
	}

	if rErr := s.Repo.RecordLogin(ctx, u.ID, true); rErr != nil {
		s.Logger.WithError(rErr).WithField("user_id", u.ID).Warn("oauth login not recorded")
	}

	pair, err := s.issueTokens(u.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return u, pair, nil
}

// GetSelf loads the caller's aggregate. A tombstoned aggregate is reported as
// not found: deletion is invisible at the service boundary.
func (s *Service) GetSelf(ctx context.Context, userID string) (*aggregate.User, error) {
	u, err := s.Repo.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Deleted {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

type UpdateSelfInput struct {
	Email             *string
	CurrentPassword   *string
	NewPassword       *string
	PreferredLanguage *string
}

// UpdateSelf validates the change request against the current aggregate and
// appends a partial UserUpdated event carrying only the changed fields.
func (s *Service) UpdateSelf(ctx context.Context, userID string, in UpdateSelfInput) (*aggregate.User, error) {
	u, err := s.GetSelf(ctx, userID)
	if err != nil {
		return nil, err
	}

	payload := event.UserUpdated{
		Email:             in.Email,
		PreferredLanguage: in.PreferredLanguage,
	}

	// Password changes require both halves, a matching current password, and
	// an actually-new password.
	if (in.CurrentPassword == nil) != (in.NewPassword == nil) {
		return nil, ErrInvalidPassword
	}
	if in.CurrentPassword != nil {
		if !helpers.CompareHashAndPassword(u.PasswordHash, *in.CurrentPassword) {
			return nil, ErrInvalidPassword
		}
		if *in.CurrentPassword == *in.NewPassword {
			return nil, ErrInvalidPassword
		}
		hash, err := helpers.HashPassword(*in.NewPassword)
		if err != nil {
			return nil, err
		}
		payload.PasswordHash = &hash
	}

	if payload.Email == nil && payload.PasswordHash == nil && payload.PreferredLanguage == nil {
		return u, nil // nothing to change, no event
	}

	return s.Repo.Update(ctx, userID, payload)
}

// DeleteSelf tombstones the caller's aggregate.
func (s *Service) DeleteSelf(ctx context.Context, userID string) error {
	if _, err := s.GetSelf(ctx, userID); err != nil {
		return err
	}
	return s.Repo.Delete(ctx, userID)
}

// UploadAvatar stores the image in GCS and records the new profile picture as
// an update event.
func (s *Service) UploadAvatar(ctx context.Context, userID string, r io.Reader, filename, contentType string) (string, error) {
	if s.GCS == nil || s.GCSBucket == "" {
		return "", errors.New("gcs not configured")
	}
	if _, err := s.GetSelf(ctx, userID); err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	objectPath := filepath.ToSlash(filepath.Join("avatars", userID, uuid.NewString()+ext))
	url, err := helpers.UploadImageToGCS(ctx, s.GCS, s.GCSBucket, objectPath, contentType, r)
	if err != nil {
		return "", err
	}

	if _, err := s.Repo.Update(ctx, userID, event.UserUpdated{ProfilePicture: &url}); err != nil {
		return "", err
	}
	return url, nil
}

// SearchUsers queries the Elasticsearch read model fed by the event worker.
func (s *Service) SearchUsers(ctx context.Context, q string, size int) ([]map[string]any, error) {
	if s.Index == nil {
		return []map[string]any{}, nil
	}
	return s.Index.Search(ctx, q, size)
}
