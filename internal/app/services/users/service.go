// Package users exposes campus member profiles and the points ledger that
// completed swaps feed.
package users

import (
	"context"
	"strings"

	"github.com/swapam/marketplace/internal/app/domain/user"
	"github.com/swapam/marketplace/internal/app/storage"
	apperrors "github.com/swapam/marketplace/internal/errors"
	"github.com/swapam/marketplace/internal/logging"
)

// Service manages user profiles and swap statistics.
type Service struct {
	users storage.UserStore
	log   *logging.Logger
}

// New constructs a user service.
func New(users storage.UserStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("users")
	}
	return &Service{users: users, log: log}
}

// EnsureRequest carries the profile fields synced on login.
type EnsureRequest struct {
	Name  string
	Email string
}

// Ensure upserts the profile for an authenticated user. Called on first
// contact so stats accrual always has a row to increment.
func (s *Service) Ensure(ctx context.Context, id string, req EnsureRequest) (user.User, error) {
	if strings.TrimSpace(id) == "" {
		return user.User{}, apperrors.Validation("user id is required")
	}
	u, err := s.users.EnsureUser(ctx, user.User{
		ID:    id,
		Name:  strings.TrimSpace(req.Name),
		Email: strings.TrimSpace(req.Email),
	})
	if err != nil {
		return user.User{}, apperrors.Internal("ensure user", err)
	}
	return u, nil
}

// Get returns a user's profile with campus points and completed swap count.
func (s *Service) Get(ctx context.Context, id string) (user.User, error) {
	u, err := s.users.GetUser(ctx, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return user.User{}, apperrors.NotFound("user", id)
		}
		return user.User{}, apperrors.Internal("load user", err)
	}
	return u, nil
}
