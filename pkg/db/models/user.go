package models

import (
	"time"

	"github.com/cipimmobiliare/cip-backend/pkg/enums"
)

// User is an investor or back-office account.
type User struct {
	ID           int64           `gorm:"column:id;primaryKey;autoIncrement"`
	Email        string          `gorm:"column:email;type:text;not null;uniqueIndex"`
	PasswordHash string          `gorm:"column:password_hash;not null"`
	FullName     string          `gorm:"column:full_name;type:text;not null"`
	Role         enums.UserRole  `gorm:"column:role;type:text;not null;default:investor"`
	KYCStatus    enums.KYCStatus `gorm:"column:kyc_status;type:text;not null;default:unverified"`
	ReferralCode *string         `gorm:"column:referral_code;type:text;uniqueIndex"`
	ReferredBy   *int64          `gorm:"column:referred_by;index"`
	IsVIP        bool            `gorm:"column:is_vip;not null;default:false"`
	LastLoginAt  *time.Time      `gorm:"column:last_login_at"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// IsAdmin reports whether the account has back-office access.
func (u User) IsAdmin() bool {
	return u.Role == enums.UserRoleAdmin
}

// CanInvest reports whether KYC allows placing investments.
func (u User) CanInvest() bool {
	return u.KYCStatus == enums.KYCStatusVerified
}
