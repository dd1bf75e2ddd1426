package payloads

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cipimmobiliare/cip-backend/pkg/enums"
)

// InvestmentPlacedEvent is emitted once an investment commits against a project.
type InvestmentPlacedEvent struct {
	InvestmentID      int64            `json:"investment_id"`
	ProjectID         int64            `json:"project_id"`
	UserID            int64            `json:"user_id"`
	Amount            decimal.Decimal  `json:"amount"`
	FundSource        enums.FundSource `json:"fund_source"`
	FundedAmount      decimal.Decimal  `json:"funded_amount"`
	CompletionPercent int              `json:"completion_percent"`
	IsFunded          bool             `json:"is_funded"`
}

// ProjectCancelledEvent summarises the refunds issued when a project is cancelled.
type ProjectCancelledEvent struct {
	ProjectID     int64           `json:"project_id"`
	RefundedCount int             `json:"refunded_count"`
	RefundedTotal decimal.Decimal `json:"refunded_total"`
	CancelledAt   time.Time       `json:"cancelled_at"`
}

// ProjectSoldEvent is emitted when the sale proceeds have been settled to investors.
type ProjectSoldEvent struct {
	ProjectID      int64           `json:"project_id"`
	SalePrice      decimal.Decimal `json:"sale_price"`
	SettledCount   int             `json:"settled_count"`
	TotalProfit    decimal.Decimal `json:"total_profit"`
	TotalBonusPaid decimal.Decimal `json:"total_bonus_paid"`
	SoldAt         time.Time       `json:"sold_at"`
}

// ReferralBonusDistributedEvent lists the bonus rows created for one realized profit.
type ReferralBonusDistributedEvent struct {
	InvestorID   int64           `json:"investor_id"`
	ProjectID    int64           `json:"project_id"`
	InvestmentID int64           `json:"investment_id,omitempty"`
	ProfitAmount decimal.Decimal `json:"profit_amount"`
	Bonuses      []BonusShare    `json:"bonuses"`
}

// BonusShare is a single credited referral bonus.
type BonusShare struct {
	ReceiverID int64           `json:"receiver_id"`
	Level      int             `json:"level"`
	Percentage decimal.Decimal `json:"percentage"`
	Amount     decimal.Decimal `json:"amount"`
}

// DepositApprovedEvent records a deposit credit to free capital.
type DepositApprovedEvent struct {
	DepositID  int64           `json:"deposit_id"`
	UserID     int64           `json:"user_id"`
	Amount     decimal.Decimal `json:"amount"`
	ApprovedBy int64           `json:"approved_by"`
}

// WithdrawalApprovedEvent records a payout debited from a portfolio section.
type WithdrawalApprovedEvent struct {
	WithdrawalID int64                  `json:"withdrawal_id"`
	UserID       int64                  `json:"user_id"`
	Amount       decimal.Decimal        `json:"amount"`
	Source       enums.FundSource       `json:"source"`
	Method       enums.WithdrawalMethod `json:"method"`
	ApprovedBy   int64                  `json:"approved_by"`
}

// KYCStatusChangedEvent tracks identity verification transitions.
type KYCStatusChangedEvent struct {
	UserID     int64           `json:"user_id"`
	RequestID  int64           `json:"request_id"`
	Status     enums.KYCStatus `json:"status"`
	ReviewedBy *int64          `json:"reviewed_by,omitempty"`
	Reason     string          `json:"reason,omitempty"`
}
