package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cipimmobiliare/cip-backend/pkg/enums"
)

// PortfolioTransaction is an append-only audit row for every balance movement.
type PortfolioTransaction struct {
	ID            int64                 `gorm:"column:id;primaryKey;autoIncrement"`
	UserID        int64                 `gorm:"column:user_id;not null;index"`
	Type          enums.TransactionType `gorm:"column:type;type:text;not null"`
	Amount        decimal.Decimal       `gorm:"column:amount;type:numeric(14,2);not null"`
	BalanceBefore decimal.Decimal       `gorm:"column:balance_before;type:numeric(14,2);not null"`
	BalanceAfter  decimal.Decimal       `gorm:"column:balance_after;type:numeric(14,2);not null"`
	FundSource    string                `gorm:"column:fund_source;type:text;not null"`
	ReferenceType string                `gorm:"column:reference_type;type:text"`
	ReferenceID   *int64                `gorm:"column:reference_id"`
	Description   string                `gorm:"column:description;type:text"`
	Status        string                `gorm:"column:status;type:text;not null;default:completed"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
}
