package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cipimmobiliare/cip-backend/pkg/enums"
)

// WithdrawalRequest is a payout awaiting admin approval. The source balance is
// debited only on approval.
type WithdrawalRequest struct {
	ID            int64                  `gorm:"column:id;primaryKey;autoIncrement"`
	UserID        int64                  `gorm:"column:user_id;not null;index"`
	Amount        decimal.Decimal        `gorm:"column:amount;type:numeric(14,2);not null"`
	SourceSection enums.FundSource       `gorm:"column:source_section;type:text;not null"`
	Method        enums.WithdrawalMethod `gorm:"column:method;type:text;not null"`
	WalletAddress *string                `gorm:"column:wallet_address;type:text"`
	IBAN          *string                `gorm:"column:iban;type:text"`
	AccountHolder *string                `gorm:"column:account_holder;type:text"`
	Status        enums.WithdrawalStatus `gorm:"column:status;type:text;not null;default:pending"`
	AdminNotes    *string                `gorm:"column:admin_notes;type:text"`
	ApprovedBy    *int64                 `gorm:"column:approved_by"`
	ApprovedAt    *time.Time             `gorm:"column:approved_at"`
	CreatedAt     time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
