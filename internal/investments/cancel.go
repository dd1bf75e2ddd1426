package investments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cipimmobiliare/cip-backend/internal/ledger"
	"github.com/cipimmobiliare/cip-backend/pkg/db/models"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
	pkgerrors "github.com/cipimmobiliare/cip-backend/pkg/errors"
	"github.com/cipimmobiliare/cip-backend/pkg/outbox"
	"github.com/cipimmobiliare/cip-backend/pkg/outbox/payloads"
)

// CancelProject refunds every active investment to its owner's free capital
// and closes the project. Either every refund commits or none does.
func (s *service) CancelProject(ctx context.Context, projectID int64) (*RefundSummary, error) {
	ctx = s.logg.WithProjectID(ctx, projectID)
	summary := RefundSummary{ProjectID: projectID, RefundedTotal: decimal.Zero}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		projectRepo := s.projects.WithTx(tx)
		portfolioRepo := s.portfolios.WithTx(tx)
		investmentRepo := s.investments.WithTx(tx)
		ledgerSvc := s.ledger.WithTx(tx)

		project, err := projectRepo.LockByID(ctx, projectID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeProjectNotFound, "project not found")
			}
			return fmt.Errorf("lock project: %w", err)
		}
		if project.Status != enums.ProjectStatusActive {
			return pkgerrors.New(pkgerrors.CodeNotCancellable, fmt.Sprintf("project is %s", project.Status))
		}

		active, err := investmentRepo.ListActiveByProject(ctx, projectID)
		if err != nil {
			return fmt.Errorf("list active investments: %w", err)
		}

		owners := distinctOwners(active)
		for _, userID := range owners {
			if err := portfolioRepo.Ensure(ctx, userID); err != nil {
				return fmt.Errorf("ensure portfolio %d: %w", userID, err)
			}
		}
		locked, err := portfolioRepo.LockByUserIDs(ctx, owners)
		if err != nil {
			return fmt.Errorf("lock portfolios: %w", err)
		}
		freeCapital := make(map[int64]decimal.Decimal, len(locked))
		for _, p := range locked {
			freeCapital[p.UserID] = p.FreeCapital
		}

		for _, inv := range active {
			refunded, err := portfolioRepo.RefundInvested(ctx, inv.UserID, inv.Amount)
			if err != nil {
				return fmt.Errorf("refund investment %d: %w", inv.ID, err)
			}
			if !refunded {
				return fmt.Errorf("refund investment %d: portfolio of user %d missing", inv.ID, inv.UserID)
			}
			moved, err := investmentRepo.TransitionStatus(ctx, inv.ID, enums.InvestmentStatusActive, enums.InvestmentStatusCancelled)
			if err != nil {
				return fmt.Errorf("cancel investment %d: %w", inv.ID, err)
			}
			if !moved {
				return fmt.Errorf("cancel investment %d: no longer active", inv.ID)
			}

			before := freeCapital[inv.UserID]
			after := before.Add(inv.Amount)
			freeCapital[inv.UserID] = after
			if _, err := ledgerSvc.Record(ctx, ledger.RecordEntryInput{
				UserID:        inv.UserID,
				Type:          enums.TransactionTypeRefund,
				Amount:        inv.Amount,
				BalanceBefore: before,
				BalanceAfter:  after,
				FundSource:    enums.FundSourceFreeCapital.String(),
				ReferenceType: referenceInvestment,
				ReferenceID:   inv.ID,
				Description:   fmt.Sprintf("Refund for cancelled project %s", project.Title),
			}); err != nil {
				return fmt.Errorf("record refund %d: %w", inv.ID, err)
			}

			summary.RefundedCount++
			summary.RefundedTotal = summary.RefundedTotal.Add(inv.Amount)
		}

		closed, err := projectRepo.TransitionStatus(ctx, projectID, []enums.ProjectStatus{enums.ProjectStatusActive}, enums.ProjectStatusCancelled)
		if err != nil {
			return fmt.Errorf("close project: %w", err)
		}
		if !closed {
			return pkgerrors.New(pkgerrors.CodeNotCancellable, "project is no longer active")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventProjectCancelled,
			AggregateType: enums.AggregateProject,
			AggregateID:   projectID,
			Data: payloads.ProjectCancelledEvent{
				ProjectID:     projectID,
				RefundedCount: summary.RefundedCount,
				RefundedTotal: summary.RefundedTotal,
				CancelledAt:   time.Now().UTC(),
			},
		})
	})
	if err != nil {
		err = s.unexpected(ctx, "cancel project", err)
		s.metrics.ObserveCancellation(resultLabel(err), decimal.Zero)
		return nil, err
	}
	s.metrics.ObserveCancellation(resultLabel(nil), summary.RefundedTotal)

	if err := s.observer.ProjectCancelled(ctx, summary); err != nil {
		s.logg.Error(ctx, "cancellation observer failed", err)
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"refunded_count": summary.RefundedCount,
		"refunded_total": summary.RefundedTotal.StringFixed(2),
	})
	s.logg.Info(ctx, "project cancelled")
	return &summary, nil
}

func distinctOwners(rows []models.Investment) []int64 {
	seen := make(map[int64]struct{}, len(rows))
	owners := make([]int64, 0, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.UserID]; ok {
			continue
		}
		seen[row.UserID] = struct{}{}
		owners = append(owners, row.UserID)
	}
	return owners
}
