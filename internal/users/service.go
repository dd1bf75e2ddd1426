package users

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	pkgerrors "github.com/cipimmobiliare/cip-backend/pkg/errors"
)

// Service exposes profile reads and admin flags.
type Service interface {
	GetProfile(ctx context.Context, userID int64) (*UserDTO, error)
	SetVIP(ctx context.Context, userID int64, vip bool) (*UserDTO, error)
}

type service struct {
	repo *Repository
}

// NewService builds a users service bound to the repository.
func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetProfile(ctx context.Context, userID int64) (*UserDTO, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return FromModel(user), nil
}

func (s *service) SetVIP(ctx context.Context, userID int64, vip bool) (*UserDTO, error) {
	if _, err := s.GetProfile(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.repo.SetVIP(ctx, userID, vip); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update vip flag")
	}
	return s.GetProfile(ctx, userID)
}
