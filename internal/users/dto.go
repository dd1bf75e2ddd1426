package users

import (
	"time"

	"github.com/cipimmobiliare/cip-backend/pkg/db/models"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
)

// UserDTO is the transport shape that omits sensitive credentials.
type UserDTO struct {
	ID           int64           `json:"id"`
	Email        string          `json:"email"`
	FullName     string          `json:"full_name"`
	Role         enums.UserRole  `json:"role"`
	KYCStatus    enums.KYCStatus `json:"kyc_status"`
	ReferralCode *string         `json:"referral_code,omitempty"`
	ReferredBy   *int64          `json:"referred_by,omitempty"`
	IsVIP        bool            `json:"is_vip"`
	LastLoginAt  *time.Time      `json:"last_login_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Email        string
	PasswordHash string
	FullName     string
	Role         enums.UserRole
	ReferredBy   *int64
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}

	return &UserDTO{
		ID:           u.ID,
		Email:        u.Email,
		FullName:     u.FullName,
		Role:         u.Role,
		KYCStatus:    u.KYCStatus,
		ReferralCode: u.ReferralCode,
		ReferredBy:   u.ReferredBy,
		IsVIP:        u.IsVIP,
		LastLoginAt:  u.LastLoginAt,
		CreatedAt:    u.CreatedAt,
	}
}

func (c CreateUserDTO) ToModel() *models.User {
	role := c.Role
	if role == "" {
		role = enums.UserRoleInvestor
	}
	return &models.User{
		Email:        c.Email,
		PasswordHash: c.PasswordHash,
		FullName:     c.FullName,
		Role:         role,
		KYCStatus:    enums.KYCStatusUnverified,
		ReferredBy:   c.ReferredBy,
	}
}
