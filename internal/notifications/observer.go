package notifications

import (
	"context"
	"fmt"

	"github.com/cipimmobiliare/cip-backend/internal/investments"
	"github.com/cipimmobiliare/cip-backend/pkg/db/models"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
)

const (
	entityInvestment = "investment"
	entityProject    = "project"
	entityDeposit    = "deposit_request"
	entityWithdrawal = "withdrawal_request"
	entityKYC        = "kyc_request"
)

// Notifier turns committed ledger activity into admin inbox entries. It
// implements the observer interfaces of investments, deposits, withdrawals and
// kyc.
type Notifier struct {
	svc Service
}

// NewNotifier builds a Notifier on top of the inbox service.
func NewNotifier(svc Service) *Notifier {
	return &Notifier{svc: svc}
}

func (n *Notifier) InvestmentPlaced(ctx context.Context, placed investments.Placed) error {
	if _, err := n.svc.Create(ctx, CreateInput{
		Type:              enums.NotificationTypeNewInvestment,
		Title:             "New investment",
		Message:           fmt.Sprintf("User %d invested €%s in %s", placed.UserID, placed.Amount.StringFixed(2), placed.ProjectTitle),
		Priority:          enums.NotificationPriorityLow,
		RelatedEntityType: entityInvestment,
		RelatedEntityID:   placed.Confirmation.InvestmentID,
	}); err != nil {
		return err
	}
	if !placed.Confirmation.ProjectUpdate.IsFunded {
		return nil
	}
	_, err := n.svc.Create(ctx, CreateInput{
		Type:              enums.NotificationTypeProjectFunded,
		Title:             "Project fully funded",
		Message:           fmt.Sprintf("%s reached its funding target", placed.ProjectTitle),
		Priority:          enums.NotificationPriorityHigh,
		RelatedEntityType: entityProject,
		RelatedEntityID:   placed.ProjectID,
	})
	return err
}

func (n *Notifier) ProjectCancelled(ctx context.Context, summary investments.RefundSummary) error {
	_, err := n.svc.Create(ctx, CreateInput{
		Type:              enums.NotificationTypeProjectCancelled,
		Title:             "Project cancelled",
		Message:           fmt.Sprintf("%d investments refunded for a total of €%s", summary.RefundedCount, summary.RefundedTotal.StringFixed(2)),
		Priority:          enums.NotificationPriorityMedium,
		RelatedEntityType: entityProject,
		RelatedEntityID:   summary.ProjectID,
	})
	return err
}

func (n *Notifier) DepositRequested(ctx context.Context, req models.DepositRequest) error {
	_, err := n.svc.Create(ctx, CreateInput{
		Type:              enums.NotificationTypeDepositRequest,
		Title:             "Deposit request",
		Message:           fmt.Sprintf("User %d announced a transfer of €%s (ref %s)", req.UserID, req.Amount.StringFixed(2), req.PaymentReference),
		Priority:          enums.NotificationPriorityMedium,
		RelatedEntityType: entityDeposit,
		RelatedEntityID:   req.ID,
	})
	return err
}

func (n *Notifier) WithdrawalRequested(ctx context.Context, req models.WithdrawalRequest) error {
	_, err := n.svc.Create(ctx, CreateInput{
		Type:              enums.NotificationTypeWithdrawalRequest,
		Title:             "Withdrawal request",
		Message:           fmt.Sprintf("User %d requested €%s from %s via %s", req.UserID, req.Amount.StringFixed(2), req.SourceSection, req.Method),
		Priority:          enums.NotificationPriorityHigh,
		RelatedEntityType: entityWithdrawal,
		RelatedEntityID:   req.ID,
	})
	return err
}

func (n *Notifier) KYCSubmitted(ctx context.Context, req models.KYCRequest) error {
	_, err := n.svc.Create(ctx, CreateInput{
		Type:              enums.NotificationTypeKYCSubmitted,
		Title:             "KYC submitted",
		Message:           fmt.Sprintf("User %d submitted a %s for review", req.UserID, req.DocumentType),
		Priority:          enums.NotificationPriorityMedium,
		RelatedEntityType: entityKYC,
		RelatedEntityID:   req.ID,
	})
	return err
}
