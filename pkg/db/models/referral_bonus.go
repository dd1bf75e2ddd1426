package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ReferralLevelFallback = 0
	ReferralLevelDirect   = 1
)

// ReferralBonus records one accrual toward a receiver's referral_bonus balance.
type ReferralBonus struct {
	ID             int64           `gorm:"column:id;primaryKey;autoIncrement"`
	ReceiverUserID int64           `gorm:"column:receiver_user_id;not null;index"`
	SourceUserID   int64           `gorm:"column:source_user_id;not null"`
	ProjectID      int64           `gorm:"column:project_id;not null"`
	Level          int             `gorm:"column:level;not null"`
	Percentage     decimal.Decimal `gorm:"column:percentage;type:numeric(5,2);not null"`
	ProfitAmount   decimal.Decimal `gorm:"column:profit_amount;type:numeric(14,2);not null"`
	Amount         decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null"`
	MonthRef       string          `gorm:"column:month_ref;type:text;not null"`
	Status         string          `gorm:"column:status;type:text;not null;default:accrued"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
}
