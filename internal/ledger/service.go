package ledger

import (
	"context"
	"fmt"

	"github.com/cipimmobiliare/cip-backend/pkg/db/models"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const statusCompleted = "completed"

// Service records the append-only audit trail of balance movements.
type Service interface {
	WithTx(tx *gorm.DB) Service
	Record(ctx context.Context, input RecordEntryInput) (*models.PortfolioTransaction, error)
}

type service struct {
	repo Repository
}

// RecordEntryInput captures one balance movement. BalanceBefore and
// BalanceAfter describe the balance that moved (the fund source for debits).
type RecordEntryInput struct {
	UserID        int64
	Type          enums.TransactionType
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	FundSource    string
	ReferenceType string
	ReferenceID   int64
	Description   string
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	return &service{repo: s.repo.WithTx(tx)}
}

func (s *service) Record(ctx context.Context, input RecordEntryInput) (*models.PortfolioTransaction, error) {
	if input.UserID <= 0 {
		return nil, fmt.Errorf("user id is required")
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("invalid transaction type %q", input.Type)
	}
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("transaction amount must be positive")
	}
	if input.BalanceAfter.IsNegative() {
		return nil, fmt.Errorf("balance after cannot be negative")
	}

	entry := &models.PortfolioTransaction{
		UserID:        input.UserID,
		Type:          input.Type,
		Amount:        input.Amount,
		BalanceBefore: input.BalanceBefore,
		BalanceAfter:  input.BalanceAfter,
		FundSource:    input.FundSource,
		ReferenceType: input.ReferenceType,
		Description:   input.Description,
		Status:        statusCompleted,
	}
	if input.ReferenceID > 0 {
		ref := input.ReferenceID
		entry.ReferenceID = &ref
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}
