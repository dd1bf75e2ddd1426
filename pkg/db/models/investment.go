package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cipimmobiliare/cip-backend/pkg/enums"
)

// Investment joins a user to a project. Amount never changes after insert.
type Investment struct {
	ID         int64                  `gorm:"column:id;primaryKey;autoIncrement"`
	UserID     int64                  `gorm:"column:user_id;not null;index"`
	ProjectID  int64                  `gorm:"column:project_id;not null;index"`
	Amount     decimal.Decimal        `gorm:"column:amount;type:numeric(14,2);not null"`
	FundSource enums.FundSource       `gorm:"column:fund_source;type:text;not null"`
	Status     enums.InvestmentStatus `gorm:"column:status;type:text;not null;default:active"`
	CreatedAt  time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
