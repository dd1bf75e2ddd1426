package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/cipimmobiliare/cip-backend/internal/portfolios"
	"github.com/cipimmobiliare/cip-backend/internal/users"
	"github.com/cipimmobiliare/cip-backend/pkg/config"
	"github.com/cipimmobiliare/cip-backend/pkg/db"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
	pkgerrors "github.com/cipimmobiliare/cip-backend/pkg/errors"
	"github.com/cipimmobiliare/cip-backend/pkg/security"
	"gorm.io/gorm"
)

// RegisterService handles the onboarding transaction.
type RegisterService interface {
	Register(ctx context.Context, req RegisterRequest) (*users.UserDTO, error)
}

// RegisterServiceParams packages the dependencies for the registration flow.
type RegisterServiceParams struct {
	DB             *db.Client
	PasswordConfig config.PasswordConfig
}

type registerService struct {
	db          *db.Client
	passwordCfg config.PasswordConfig
}

// NewRegisterService builds a registration service with the provided dependencies.
func NewRegisterService(params RegisterServiceParams) (RegisterService, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	}
	return &registerService{
		db:          params.DB,
		passwordCfg: params.PasswordConfig,
	}, nil
}

// Register creates the investor, their empty portfolio and their referral
// code in one transaction.
func (s *registerService) Register(ctx context.Context, req RegisterRequest) (*users.UserDTO, error) {
	return createAccount(ctx, s.db, s.passwordCfg, accountInput{
		email:        req.Email,
		password:     req.Password,
		fullName:     req.FullName,
		role:         enums.UserRoleInvestor,
		referralCode: req.ReferralCode,
	})
}

type accountInput struct {
	email        string
	password     string
	fullName     string
	role         enums.UserRole
	referralCode *string
}

func createAccount(ctx context.Context, client *db.Client, passwordCfg config.PasswordConfig, in accountInput) (*users.UserDTO, error) {
	email := strings.ToLower(strings.TrimSpace(in.email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	fullName := strings.TrimSpace(in.fullName)
	if fullName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "full_name is required")
	}
	if err := security.ValidatePassword(in.password); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}

	passwordHash, err := security.HashPassword(in.password, passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	var created *users.UserDTO
	err = client.WithTx(ctx, func(tx *gorm.DB) error {
		userRepo := users.NewRepository(tx)
		portfolioRepo := portfolios.NewRepository(tx)

		if _, err := userRepo.FindByEmail(ctx, email); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check user email")
		}

		var referredBy *int64
		if in.referralCode != nil {
			code := strings.ToUpper(strings.TrimSpace(*in.referralCode))
			if code != "" {
				referrer, err := userRepo.FindByReferralCode(ctx, code)
				if err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						return pkgerrors.New(pkgerrors.CodeValidation, "invalid referral code")
					}
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup referral code")
				}
				referredBy = &referrer.ID
			}
		}

		user, err := userRepo.Create(ctx, users.CreateUserDTO{
			Email:        email,
			PasswordHash: passwordHash,
			FullName:     fullName,
			Role:         in.role,
			ReferredBy:   referredBy,
		})
		if err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
		}

		code := users.ReferralCodeFor(user.ID)
		if err := userRepo.AssignReferralCode(ctx, user.ID, code); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "assign referral code")
		}
		user.ReferralCode = &code

		if err := portfolioRepo.Ensure(ctx, user.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create portfolio")
		}

		created = users.FromModel(user)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
