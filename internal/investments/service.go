package investments

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cipimmobiliare/cip-backend/internal/ledger"
	"github.com/cipimmobiliare/cip-backend/internal/portfolios"
	"github.com/cipimmobiliare/cip-backend/internal/projects"
	"github.com/cipimmobiliare/cip-backend/pkg/db/models"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
	pkgerrors "github.com/cipimmobiliare/cip-backend/pkg/errors"
	"github.com/cipimmobiliare/cip-backend/pkg/logger"
	"github.com/cipimmobiliare/cip-backend/pkg/metrics"
	"github.com/cipimmobiliare/cip-backend/pkg/outbox"
	"github.com/cipimmobiliare/cip-backend/pkg/pagination"
)

// MinimumInvestment is the platform floor; a project may only raise it.
var MinimumInvestment = decimal.NewFromInt(100)

// Service is the investment ledger.
type Service interface {
	PlaceInvestment(ctx context.Context, input PlaceInput) (*Confirmation, error)
	CancelProject(ctx context.Context, projectID int64) (*RefundSummary, error)
	ListForUser(ctx context.Context, userID int64, params pagination.Params, statuses []enums.InvestmentStatus) (*InvestmentList, error)
}

// PlaceInput is a validated placement request. UserID is the caller, never
// taken from the request body.
type PlaceInput struct {
	UserID     int64
	ProjectID  int64
	Amount     decimal.Decimal
	FundSource enums.FundSource
}

// ProjectUpdate is the project's funding state right after a placement.
type ProjectUpdate struct {
	FundedAmount      decimal.Decimal `json:"funded_amount"`
	CompletionPercent int             `json:"completion_percent"`
	RemainingAmount   decimal.Decimal `json:"remaining_amount"`
	IsFunded          bool            `json:"is_funded"`
}

// Confirmation is returned for a committed placement.
type Confirmation struct {
	InvestmentID  int64            `json:"investment_id"`
	FundSource    enums.FundSource `json:"fund_source"`
	ProjectUpdate ProjectUpdate    `json:"project_update"`
}

// RefundSummary reports what a cancellation returned to investors.
type RefundSummary struct {
	ProjectID     int64           `json:"project_id"`
	RefundedCount int             `json:"refunded_count"`
	RefundedTotal decimal.Decimal `json:"refunded_total"`
}

// InvestmentList is one page of an investor's investments.
type InvestmentList struct {
	Items      []models.Investment `json:"items"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams bundles the ledger collaborators. Observer and Metrics are optional.
type ServiceParams struct {
	DB          txRunner
	Investments Repository
	Projects    projects.Repository
	Portfolios  portfolios.Repository
	Ledger      ledger.Service
	Outbox      outbox.Emitter
	Observer    Observer
	Metrics     *metrics.LedgerMetrics
	Logger      *logger.Logger
}

type service struct {
	db          txRunner
	investments Repository
	projects    projects.Repository
	portfolios  portfolios.Repository
	ledger      ledger.Service
	outbox      outbox.Emitter
	observer    Observer
	metrics     *metrics.LedgerMetrics
	logg        *logger.Logger
}

// NewService wires the investment ledger.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Investments == nil {
		return nil, fmt.Errorf("investments repository required")
	}
	if params.Projects == nil {
		return nil, fmt.Errorf("projects repository required")
	}
	if params.Portfolios == nil {
		return nil, fmt.Errorf("portfolios repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	observer := params.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	return &service{
		db:          params.DB,
		investments: params.Investments,
		projects:    params.Projects,
		portfolios:  params.Portfolios,
		ledger:      params.Ledger,
		outbox:      params.Outbox,
		observer:    observer,
		metrics:     params.Metrics,
		logg:        params.Logger,
	}, nil
}

func (s *service) ListForUser(ctx context.Context, userID int64, params pagination.Params, statuses []enums.InvestmentStatus) (*InvestmentList, error) {
	for _, status := range statuses {
		if !status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid investment status")
		}
	}
	before, err := params.BeforeID()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.investments.ListByUser(ctx, userID, ListFilter{
		Statuses: statuses,
		BeforeID: before,
		Limit:    pagination.LimitWithBuffer(params.Limit),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list investments")
	}
	page, next := pagination.Trim(rows, params.Limit, func(inv models.Investment) int64 { return inv.ID })
	return &InvestmentList{Items: page, NextCursor: next}, nil
}

// unexpected logs an unclassified failure with its context and replaces it
// with the generic internal error. Classified errors pass through.
func (s *service) unexpected(ctx context.Context, op string, err error) error {
	if typed := pkgerrors.As(err); typed != nil && typed.Code() != pkgerrors.CodeInternal {
		return err
	}
	ctx = s.logg.WithField(ctx, "error_dump", pkgerrors.Dump(err))
	s.logg.Error(ctx, op+" failed unexpectedly", err)
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op+" failed")
}

func resultLabel(err error) string {
	if err == nil {
		return metrics.ResultOK
	}
	if typed := pkgerrors.As(err); typed != nil {
		return string(typed.Code())
	}
	return string(pkgerrors.CodeInternal)
}
