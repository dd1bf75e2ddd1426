package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cipimmobiliare/cip-backend/pkg/enums"
)

// Portfolio holds the four balances of a user. Every balance stays >= 0;
// InvestedCapital equals the sum of the owner's active investments.
type Portfolio struct {
	ID              int64           `gorm:"column:id;primaryKey;autoIncrement"`
	UserID          int64           `gorm:"column:user_id;not null;uniqueIndex"`
	FreeCapital     decimal.Decimal `gorm:"column:free_capital;type:numeric(14,2);not null;default:0"`
	Profits         decimal.Decimal `gorm:"column:profits;type:numeric(14,2);not null;default:0"`
	ReferralBonus   decimal.Decimal `gorm:"column:referral_bonus;type:numeric(14,2);not null;default:0"`
	InvestedCapital decimal.Decimal `gorm:"column:invested_capital;type:numeric(14,2);not null;default:0"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Portfolio) TableName() string { return "user_portfolios" }

// Balance returns the balance backing a spendable source.
func (p Portfolio) Balance(source enums.FundSource) decimal.Decimal {
	switch source {
	case enums.FundSourceFreeCapital:
		return p.FreeCapital
	case enums.FundSourceProfits:
		return p.Profits
	case enums.FundSourceReferralBonus:
		return p.ReferralBonus
	default:
		return decimal.Zero
	}
}

// Available is the sum of the three spendable balances.
func (p Portfolio) Available() decimal.Decimal {
	return p.FreeCapital.Add(p.Profits).Add(p.ReferralBonus)
}

// Total includes capital locked in active investments.
func (p Portfolio) Total() decimal.Decimal {
	return p.Available().Add(p.InvestedCapital)
}
