package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cipimmobiliare/cip-backend/pkg/enums"
)

// DepositRequest tracks a manual bank transfer awaiting admin reconciliation.
type DepositRequest struct {
	ID               int64               `gorm:"column:id;primaryKey;autoIncrement"`
	UserID           int64               `gorm:"column:user_id;not null;index"`
	Amount           decimal.Decimal     `gorm:"column:amount;type:numeric(14,2);not null"`
	AmountReceived   *decimal.Decimal    `gorm:"column:amount_received;type:numeric(14,2)"`
	IBAN             string              `gorm:"column:iban;type:text;not null"`
	UniqueKey        string              `gorm:"column:unique_key;type:text;not null;uniqueIndex"`
	PaymentReference string              `gorm:"column:payment_reference;type:text;not null;uniqueIndex"`
	Status           enums.DepositStatus `gorm:"column:status;type:text;not null;default:pending"`
	AdminNotes       *string             `gorm:"column:admin_notes;type:text"`
	ApprovedBy       *int64              `gorm:"column:approved_by"`
	ApprovedAt       *time.Time          `gorm:"column:approved_at"`
	ExpiresAt        time.Time           `gorm:"column:expires_at;not null"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
