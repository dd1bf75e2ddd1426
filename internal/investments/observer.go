package investments

import (
	"context"

	"github.com/shopspring/decimal"
)

// Observer is notified after a ledger transaction commits. Implementations
// must not assume they can roll anything back.
type Observer interface {
	InvestmentPlaced(ctx context.Context, placed Placed) error
	ProjectCancelled(ctx context.Context, summary RefundSummary) error
}

// Placed describes a committed placement for observers.
type Placed struct {
	UserID       int64
	ProjectID    int64
	ProjectTitle string
	Amount       decimal.Decimal
	Confirmation Confirmation
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) InvestmentPlaced(context.Context, Placed) error        { return nil }
func (NopObserver) ProjectCancelled(context.Context, RefundSummary) error { return nil }
