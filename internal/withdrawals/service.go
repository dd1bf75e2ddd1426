package withdrawals

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cipimmobiliare/cip-backend/internal/ledger"
	"github.com/cipimmobiliare/cip-backend/internal/portfolios"
	"github.com/cipimmobiliare/cip-backend/pkg/config"
	"github.com/cipimmobiliare/cip-backend/pkg/db/models"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
	pkgerrors "github.com/cipimmobiliare/cip-backend/pkg/errors"
	"github.com/cipimmobiliare/cip-backend/pkg/logger"
	"github.com/cipimmobiliare/cip-backend/pkg/outbox"
	"github.com/cipimmobiliare/cip-backend/pkg/outbox/payloads"
	"github.com/cipimmobiliare/cip-backend/pkg/pagination"
)

const (
	referenceWithdrawal = "withdrawal_request"
	cooldownScope       = "withdrawal"
)

// MinimumWithdrawal is the smallest payout accepted.
var MinimumWithdrawal = decimal.NewFromInt(50)

var (
	walletPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	ibanPattern   = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z0-9]{11,30}$`)
)

// Cooldown claims a per-user window. *redis.Client satisfies it.
type Cooldown interface {
	AcquireCooldown(ctx context.Context, scope, subject string, window time.Duration) (bool, time.Duration, error)
	ReleaseCooldown(ctx context.Context, scope, subject string) error
}

// Observer is notified after a withdrawal request commits.
type Observer interface {
	WithdrawalRequested(ctx context.Context, req models.WithdrawalRequest) error
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) WithdrawalRequested(context.Context, models.WithdrawalRequest) error { return nil }

// Service manages payout requests.
type Service interface {
	CreateRequest(ctx context.Context, input CreateInput) (*models.WithdrawalRequest, error)
	Approve(ctx context.Context, withdrawalID, adminID int64, notes string) (*models.WithdrawalRequest, error)
	Reject(ctx context.Context, withdrawalID, adminID int64, notes string) (*models.WithdrawalRequest, error)
	ListForUser(ctx context.Context, userID int64, params pagination.Params) (*WithdrawalList, error)
	ListPending(ctx context.Context, params pagination.Params) (*WithdrawalList, error)
}

// CreateInput is a payout request. WalletAddress applies to usdt, IBAN and
// AccountHolder to bank.
type CreateInput struct {
	UserID        int64
	Amount        decimal.Decimal
	Source        enums.FundSource
	Method        enums.WithdrawalMethod
	WalletAddress string
	IBAN          string
	AccountHolder string
}

// WithdrawalList is one page of withdrawal requests.
type WithdrawalList struct {
	Items      []models.WithdrawalRequest `json:"items"`
	NextCursor string                     `json:"next_cursor,omitempty"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams bundles withdrawal collaborators. Cooldown may be nil, which
// disables the per-user rate limit.
type ServiceParams struct {
	DB         txRunner
	Repo       Repository
	Portfolios portfolios.Repository
	Ledger     ledger.Service
	Outbox     outbox.Emitter
	Cooldown   Cooldown
	Observer   Observer
	Config     config.WithdrawalsConfig
	Logger     *logger.Logger
	Clock      func() time.Time
}

type service struct {
	db         txRunner
	repo       Repository
	portfolios portfolios.Repository
	ledger     ledger.Service
	outbox     outbox.Emitter
	cooldown   Cooldown
	observer   Observer
	window     time.Duration
	logg       *logger.Logger
	now        func() time.Time
}

// NewService wires the withdrawals service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("withdrawals repository required")
	case params.Portfolios == nil:
		return nil, fmt.Errorf("portfolios repository required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger service required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	observer := params.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	window := params.Config.RateLimitWindow
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &service{
		db:         params.DB,
		repo:       params.Repo,
		portfolios: params.Portfolios,
		ledger:     params.Ledger,
		outbox:     params.Outbox,
		cooldown:   params.Cooldown,
		observer:   observer,
		window:     window,
		logg:       params.Logger,
		now:        clock,
	}, nil
}

func validateCreate(input *CreateInput) error {
	if input.UserID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.Amount.Exponent() < -2 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must have at most 2 decimal places")
	}
	if input.Amount.LessThan(MinimumWithdrawal) {
		return pkgerrors.New(pkgerrors.CodeAmountTooLow, "amount is below the minimum withdrawal").
			WithDetails(map[string]string{"minimum": MinimumWithdrawal.StringFixed(2)})
	}
	if !input.Source.IsValid() {
		return pkgerrors.New(pkgerrors.CodeInvalidFundSource, "invalid source_section")
	}

	switch input.Method {
	case enums.WithdrawalMethodUSDT:
		input.WalletAddress = strings.TrimSpace(input.WalletAddress)
		if !walletPattern.MatchString(input.WalletAddress) {
			return pkgerrors.New(pkgerrors.CodeValidation, "wallet_address must be 0x followed by 40 hex characters")
		}
		input.IBAN, input.AccountHolder = "", ""
	case enums.WithdrawalMethodBank:
		input.IBAN = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(input.IBAN), " ", ""))
		input.AccountHolder = strings.TrimSpace(input.AccountHolder)
		if !ibanPattern.MatchString(input.IBAN) {
			return pkgerrors.New(pkgerrors.CodeValidation, "iban is invalid")
		}
		if input.AccountHolder == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "account_holder is required")
		}
		input.WalletAddress = ""
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "method must be usdt or bank")
	}
	return nil
}

func (s *service) CreateRequest(ctx context.Context, input CreateInput) (*models.WithdrawalRequest, error) {
	if err := validateCreate(&input); err != nil {
		return nil, err
	}

	portfolio, err := s.portfolios.FindByUserID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodePortfolioNotFound, "portfolio not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load portfolio")
	}
	if available := portfolio.Balance(input.Source); available.LessThan(input.Amount) {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient funds in "+input.Source.String()).
			WithDetails(map[string]string{"fund_source": input.Source.String(), "available": available.StringFixed(2)})
	}

	subject := strconv.FormatInt(input.UserID, 10)
	if s.cooldown != nil {
		ok, retryAfter, err := s.cooldown.AcquireCooldown(ctx, cooldownScope, subject, s.window)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "withdrawal rate limit")
		}
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeRateLimit, "one withdrawal request allowed every few minutes").
				WithDetails(map[string]int64{"retry_after_seconds": int64(retryAfter.Seconds())})
		}
	}

	req := &models.WithdrawalRequest{
		UserID:        input.UserID,
		Amount:        input.Amount,
		SourceSection: input.Source,
		Method:        input.Method,
		WalletAddress: optional(input.WalletAddress),
		IBAN:          optional(input.IBAN),
		AccountHolder: optional(input.AccountHolder),
		Status:        enums.WithdrawalStatusPending,
	}
	if err := s.repo.Create(ctx, req); err != nil {
		if s.cooldown != nil {
			if releaseErr := s.cooldown.ReleaseCooldown(ctx, cooldownScope, subject); releaseErr != nil {
				s.logg.Error(ctx, "failed to release withdrawal cooldown", releaseErr)
			}
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create withdrawal request")
	}

	if err := s.observer.WithdrawalRequested(ctx, *req); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "withdrawal observer failed")
	}
	s.logg.Info(s.logg.WithField(ctx, "withdrawal_id", req.ID), "withdrawal requested")
	return req, nil
}

// Approve debits the source section. The balance is checked again here since
// it may have been spent after the request was filed.
func (s *service) Approve(ctx context.Context, withdrawalID, adminID int64, notes string) (*models.WithdrawalRequest, error) {
	var approved *models.WithdrawalRequest
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		portfolioRepo := s.portfolios.WithTx(tx)

		req, err := lockPending(ctx, repo, withdrawalID)
		if err != nil {
			return err
		}
		portfolio, err := portfolioRepo.LockByUserID(ctx, req.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodePortfolioNotFound, "portfolio not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock portfolio")
		}
		before := portfolio.Balance(req.SourceSection)
		debited, err := portfolioRepo.Debit(ctx, req.UserID, req.SourceSection, req.Amount)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debit withdrawal")
		}
		if !debited {
			return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient funds in "+req.SourceSection.String()).
				WithDetails(map[string]string{"fund_source": req.SourceSection.String(), "available": before.StringFixed(2)})
		}

		ok, err := repo.Resolve(ctx, req.ID, enums.WithdrawalStatusCompleted, reviewFields(adminID, notes, s.now()))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve withdrawal")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "withdrawal is no longer pending")
		}

		if _, err := s.ledger.WithTx(tx).Record(ctx, ledger.RecordEntryInput{
			UserID:        req.UserID,
			Type:          enums.TransactionTypeWithdrawal,
			Amount:        req.Amount,
			BalanceBefore: before,
			BalanceAfter:  before.Sub(req.Amount),
			FundSource:    req.SourceSection.String(),
			ReferenceType: referenceWithdrawal,
			ReferenceID:   req.ID,
			Description:   "Withdrawal via " + string(req.Method),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record withdrawal")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWithdrawalApproved,
			AggregateType: enums.AggregateWithdrawal,
			AggregateID:   req.ID,
			Actor:         &outbox.ActorRef{UserID: adminID, Role: enums.UserRoleAdmin.String()},
			Data: payloads.WithdrawalApprovedEvent{
				WithdrawalID: req.ID,
				UserID:       req.UserID,
				Amount:       req.Amount,
				Source:       req.SourceSection,
				Method:       req.Method,
				ApprovedBy:   adminID,
			},
		}); err != nil {
			return err
		}

		approved, err = repo.FindByID(ctx, req.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload withdrawal")
		}
		return nil
	})
	if err != nil {
		return nil, s.classify(ctx, "approve withdrawal", err)
	}
	s.logg.Info(s.logg.WithField(ctx, "withdrawal_id", approved.ID), "withdrawal approved")
	return approved, nil
}

func (s *service) Reject(ctx context.Context, withdrawalID, adminID int64, notes string) (*models.WithdrawalRequest, error) {
	var rejected *models.WithdrawalRequest
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		req, err := lockPending(ctx, repo, withdrawalID)
		if err != nil {
			return err
		}
		ok, err := repo.Resolve(ctx, req.ID, enums.WithdrawalStatusRejected, reviewFields(adminID, notes, s.now()))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject withdrawal")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "withdrawal is no longer pending")
		}
		rejected, err = repo.FindByID(ctx, req.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload withdrawal")
		}
		return nil
	})
	if err != nil {
		return nil, s.classify(ctx, "reject withdrawal", err)
	}
	return rejected, nil
}

func (s *service) ListForUser(ctx context.Context, userID int64, params pagination.Params) (*WithdrawalList, error) {
	return s.list(ctx, ListFilter{UserID: userID}, params)
}

func (s *service) ListPending(ctx context.Context, params pagination.Params) (*WithdrawalList, error) {
	return s.list(ctx, ListFilter{Statuses: []enums.WithdrawalStatus{enums.WithdrawalStatusPending}}, params)
}

func (s *service) list(ctx context.Context, filter ListFilter, params pagination.Params) (*WithdrawalList, error) {
	before, err := params.BeforeID()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	filter.BeforeID = before
	filter.Limit = pagination.LimitWithBuffer(params.Limit)
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list withdrawals")
	}
	page, next := pagination.Trim(rows, params.Limit, func(w models.WithdrawalRequest) int64 { return w.ID })
	return &WithdrawalList{Items: page, NextCursor: next}, nil
}

func lockPending(ctx context.Context, repo Repository, id int64) (*models.WithdrawalRequest, error) {
	req, err := repo.LockByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock withdrawal")
	}
	if req.Status != enums.WithdrawalStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("withdrawal is %s", req.Status))
	}
	return req, nil
}

func reviewFields(adminID int64, notes string, now time.Time) map[string]any {
	fields := map[string]any{
		"approved_by": adminID,
		"approved_at": now.UTC(),
	}
	if trimmed := strings.TrimSpace(notes); trimmed != "" {
		fields["admin_notes"] = trimmed
	}
	return fields
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func (s *service) classify(ctx context.Context, op string, err error) error {
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	s.logg.Error(s.logg.WithField(ctx, "error_dump", pkgerrors.Dump(err)), op+" failed", err)
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op+" failed")
}
