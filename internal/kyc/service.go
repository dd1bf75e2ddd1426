package kyc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/cipimmobiliare/cip-backend/internal/users"
	"github.com/cipimmobiliare/cip-backend/pkg/db/models"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
	pkgerrors "github.com/cipimmobiliare/cip-backend/pkg/errors"
	"github.com/cipimmobiliare/cip-backend/pkg/logger"
	"github.com/cipimmobiliare/cip-backend/pkg/outbox"
	"github.com/cipimmobiliare/cip-backend/pkg/outbox/payloads"
	"github.com/cipimmobiliare/cip-backend/pkg/pagination"
)

// Observer is notified after a submission commits.
type Observer interface {
	KYCSubmitted(ctx context.Context, req models.KYCRequest) error
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) KYCSubmitted(context.Context, models.KYCRequest) error { return nil }

// Service runs the identity verification workflow.
type Service interface {
	Submit(ctx context.Context, input SubmitInput) (*models.KYCRequest, error)
	Approve(ctx context.Context, requestID, adminID int64, notes string) (*models.KYCRequest, error)
	Reject(ctx context.Context, requestID, adminID int64, reason string) (*models.KYCRequest, error)
	Status(ctx context.Context, userID int64) (*StatusView, error)
	ListPending(ctx context.Context, params pagination.Params) (*RequestList, error)
}

// SubmitInput is an investor's verification request.
type SubmitInput struct {
	UserID            int64
	DocumentType      enums.KYCDocumentType
	DocumentReference string
}

// StatusView is the user's verification state and latest request.
type StatusView struct {
	Status    enums.KYCStatus    `json:"status"`
	CanSubmit bool               `json:"can_submit"`
	Latest    *models.KYCRequest `json:"latest_request,omitempty"`
}

// RequestList is one page of pending requests.
type RequestList struct {
	Items      []models.KYCRequest `json:"items"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams bundles KYC collaborators.
type ServiceParams struct {
	DB       txRunner
	Repo     Repository
	Users    *users.Repository
	Outbox   outbox.Emitter
	Observer Observer
	Logger   *logger.Logger
	Clock    func() time.Time
}

type service struct {
	db       txRunner
	repo     Repository
	users    *users.Repository
	outbox   outbox.Emitter
	observer Observer
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("kyc repository required")
	case params.Users == nil:
		return nil, fmt.Errorf("users repository required")
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
	return &service{
		db:       params.DB,
		repo:     params.Repo,
		users:    params.Users,
		outbox:   params.Outbox,
		observer: observer,
		logg:     params.Logger,
		now:      clock,
	}, nil
}

func (s *service) Submit(ctx context.Context, input SubmitInput) (*models.KYCRequest, error) {
	if !input.DocumentType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "document_type must be id_card, passport or driving_license")
	}
	reference := strings.TrimSpace(input.DocumentReference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "document_reference is required")
	}

	var created *models.KYCRequest
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		userRepo := s.users.WithTx(tx)

		user, err := userRepo.LockByID(ctx, input.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock user")
		}
		pending, err := repo.HasPending(ctx, user.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pending kyc")
		}
		if pending {
			return pkgerrors.New(pkgerrors.CodeRequestPending, "a verification request is already pending")
		}
		if !user.KYCStatus.CanSubmit() {
			return pkgerrors.New(pkgerrors.CodeReviewDisallowed, fmt.Sprintf("kyc status is %s", user.KYCStatus))
		}

		req := &models.KYCRequest{
			UserID:            user.ID,
			DocumentType:      input.DocumentType,
			DocumentReference: reference,
			Status:            enums.KYCStatusPending,
		}
		if err := repo.Create(ctx, req); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create kyc request")
		}
		if err := userRepo.UpdateKYCStatus(ctx, user.ID, enums.KYCStatusPending); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update kyc status")
		}
		if err := s.emit(ctx, tx, req, enums.KYCStatusPending, nil, ""); err != nil {
			return err
		}
		created = req
		return nil
	})
	if err != nil {
		return nil, s.classify(ctx, "submit kyc", err)
	}

	if err := s.observer.KYCSubmitted(ctx, *created); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "kyc observer failed")
	}
	return created, nil
}

func (s *service) Approve(ctx context.Context, requestID, adminID int64, notes string) (*models.KYCRequest, error) {
	return s.review(ctx, requestID, adminID, enums.KYCStatusVerified, notes)
}

func (s *service) Reject(ctx context.Context, requestID, adminID int64, reason string) (*models.KYCRequest, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a rejection reason is required")
	}
	return s.review(ctx, requestID, adminID, enums.KYCStatusRejected, reason)
}

func (s *service) review(ctx context.Context, requestID, adminID int64, to enums.KYCStatus, notes string) (*models.KYCRequest, error) {
	var reviewed *models.KYCRequest
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		req, err := repo.LockByID(ctx, requestID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "kyc request not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock kyc request")
		}
		if req.Status != enums.KYCStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("kyc request is %s", req.Status))
		}

		fields := map[string]any{
			"reviewed_by": adminID,
			"reviewed_at": s.now().UTC(),
		}
		trimmed := strings.TrimSpace(notes)
		if trimmed != "" {
			fields["admin_notes"] = trimmed
		}
		ok, err := repo.Resolve(ctx, req.ID, to, fields)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve kyc request")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "kyc request is no longer pending")
		}
		if err := s.users.WithTx(tx).UpdateKYCStatus(ctx, req.UserID, to); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update kyc status")
		}
		reason := ""
		if to == enums.KYCStatusRejected {
			reason = trimmed
		}
		if err := s.emit(ctx, tx, req, to, &adminID, reason); err != nil {
			return err
		}

		reviewed, err = repo.FindByID(ctx, req.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload kyc request")
		}
		return nil
	})
	if err != nil {
		return nil, s.classify(ctx, "review kyc", err)
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"kyc_request_id": requestID, "status": to}), "kyc reviewed")
	return reviewed, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, req *models.KYCRequest, status enums.KYCStatus, reviewer *int64, reason string) error {
	event := outbox.DomainEvent{
		EventType:     enums.EventKYCStatusChanged,
		AggregateType: enums.AggregateUser,
		AggregateID:   req.UserID,
		Data: payloads.KYCStatusChangedEvent{
			UserID:     req.UserID,
			RequestID:  req.ID,
			Status:     status,
			ReviewedBy: reviewer,
			Reason:     reason,
		},
	}
	if reviewer != nil {
		event.Actor = &outbox.ActorRef{UserID: *reviewer, Role: enums.UserRoleAdmin.String()}
	} else {
		event.Actor = &outbox.ActorRef{UserID: req.UserID, Role: enums.UserRoleInvestor.String()}
	}
	return s.outbox.Emit(ctx, tx, event)
}

func (s *service) Status(ctx context.Context, userID int64) (*StatusView, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	view := &StatusView{Status: user.KYCStatus, CanSubmit: user.KYCStatus.CanSubmit()}
	latest, err := s.repo.Latest(ctx, userID)
	switch {
	case err == nil:
		view.Latest = latest
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load latest kyc request")
	}
	return view, nil
}

func (s *service) ListPending(ctx context.Context, params pagination.Params) (*RequestList, error) {
	before, err := params.BeforeID()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListPending(ctx, before, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list kyc requests")
	}
	page, next := pagination.Trim(rows, params.Limit, func(r models.KYCRequest) int64 { return r.ID })
	return &RequestList{Items: page, NextCursor: next}, nil
}

func (s *service) classify(ctx context.Context, op string, err error) error {
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	s.logg.Error(s.logg.WithField(ctx, "error_dump", pkgerrors.Dump(err)), op+" failed", err)
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op+" failed")
}
