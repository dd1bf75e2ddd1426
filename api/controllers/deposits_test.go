package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cipimmobiliare/cip-backend/api/middleware"
	"github.com/cipimmobiliare/cip-backend/internal/deposits"
	"github.com/cipimmobiliare/cip-backend/internal/withdrawals"
	"github.com/cipimmobiliare/cip-backend/pkg/db/models"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
	pkgerrors "github.com/cipimmobiliare/cip-backend/pkg/errors"
	"github.com/cipimmobiliare/cip-backend/pkg/pagination"
)

type testDepositsService struct {
	createFn  func(ctx context.Context, userID int64, amount decimal.Decimal) (*deposits.Instructions, error)
	approveFn func(ctx context.Context, input deposits.ApproveInput) (*models.DepositRequest, error)
	rejectFn  func(ctx context.Context, depositID, adminID int64, notes string) (*models.DepositRequest, error)
}

func (s *testDepositsService) CreateRequest(ctx context.Context, userID int64, amount decimal.Decimal) (*deposits.Instructions, error) {
	if s.createFn != nil {
		return s.createFn(ctx, userID, amount)
	}
	return &deposits.Instructions{}, nil
}

func (s *testDepositsService) Approve(ctx context.Context, input deposits.ApproveInput) (*models.DepositRequest, error) {
	if s.approveFn != nil {
		return s.approveFn(ctx, input)
	}
	return &models.DepositRequest{}, nil
}

func (s *testDepositsService) Reject(ctx context.Context, depositID, adminID int64, notes string) (*models.DepositRequest, error) {
	if s.rejectFn != nil {
		return s.rejectFn(ctx, depositID, adminID, notes)
	}
	return &models.DepositRequest{}, nil
}

func (s *testDepositsService) ListForUser(ctx context.Context, userID int64, params pagination.Params) (*deposits.DepositList, error) {
	return &deposits.DepositList{}, nil
}

func (s *testDepositsService) ListPending(ctx context.Context, params pagination.Params) (*deposits.DepositList, error) {
	return &deposits.DepositList{}, nil
}

func (s *testDepositsService) ExpirePending(ctx context.Context) (int64, error) {
	return 0, nil
}

type testWithdrawalsService struct {
	createFn  func(ctx context.Context, input withdrawals.CreateInput) (*models.WithdrawalRequest, error)
	approveFn func(ctx context.Context, withdrawalID, adminID int64, notes string) (*models.WithdrawalRequest, error)
	rejectFn  func(ctx context.Context, withdrawalID, adminID int64, notes string) (*models.WithdrawalRequest, error)
}

func (s *testWithdrawalsService) CreateRequest(ctx context.Context, input withdrawals.CreateInput) (*models.WithdrawalRequest, error) {
	if s.createFn != nil {
		return s.createFn(ctx, input)
	}
	return &models.WithdrawalRequest{}, nil
}

func (s *testWithdrawalsService) Approve(ctx context.Context, withdrawalID, adminID int64, notes string) (*models.WithdrawalRequest, error) {
	if s.approveFn != nil {
		return s.approveFn(ctx, withdrawalID, adminID, notes)
	}
	return &models.WithdrawalRequest{}, nil
}

func (s *testWithdrawalsService) Reject(ctx context.Context, withdrawalID, adminID int64, notes string) (*models.WithdrawalRequest, error) {
	if s.rejectFn != nil {
		return s.rejectFn(ctx, withdrawalID, adminID, notes)
	}
	return &models.WithdrawalRequest{}, nil
}

func (s *testWithdrawalsService) ListForUser(ctx context.Context, userID int64, params pagination.Params) (*withdrawals.WithdrawalList, error) {
	return &withdrawals.WithdrawalList{}, nil
}

func (s *testWithdrawalsService) ListPending(ctx context.Context, params pagination.Params) (*withdrawals.WithdrawalList, error) {
	return &withdrawals.WithdrawalList{}, nil
}

func adminRequest(method, target, body string, adminID int64) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return req.WithContext(middleware.WithIdentity(req.Context(), adminID, enums.UserRoleAdmin))
}

func TestCreateDepositReturnsInstructions(t *testing.T) {
	svc := &testDepositsService{
		createFn: func(ctx context.Context, userID int64, amount decimal.Decimal) (*deposits.Instructions, error) {
			assert.Equal(t, int64(9), userID)
			assert.True(t, amount.Equal(decimal.NewFromInt(750)))
			return &deposits.Instructions{
				DepositID:        1,
				Amount:           amount,
				IBAN:             "IT60X0542811101000000123456",
				PaymentReference: "CIP-DEP-000001",
				ExpiresAt:        time.Now().Add(72 * time.Hour),
			}, nil
		},
	}

	req := investorRequest(http.MethodPost, "/api/deposits", `{"amount":"750"}`, 9)
	resp := httptest.NewRecorder()
	CreateDeposit(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.Contains(t, resp.Body.String(), "CIP-DEP-000001")
}

func TestCreateDepositRejectsNonPositiveAmount(t *testing.T) {
	req := investorRequest(http.MethodPost, "/api/deposits", `{"amount":"-5"}`, 9)
	resp := httptest.NewRecorder()
	CreateDeposit(&testDepositsService{}, testLogger())(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestApproveDepositAcceptsEmptyBody(t *testing.T) {
	var got deposits.ApproveInput
	svc := &testDepositsService{
		approveFn: func(ctx context.Context, input deposits.ApproveInput) (*models.DepositRequest, error) {
			got = input
			return &models.DepositRequest{ID: input.DepositID, Status: enums.DepositStatusCompleted}, nil
		},
	}

	req := withURLParam(adminRequest(http.MethodPost, "/api/admin/deposits/3/approve", "", 1), "depositId", "3")
	resp := httptest.NewRecorder()
	ApproveDeposit(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, int64(3), got.DepositID)
	assert.Equal(t, int64(1), got.AdminID)
	assert.Nil(t, got.AmountReceived)
}

func TestApproveDepositPassesReceivedAmount(t *testing.T) {
	var got deposits.ApproveInput
	svc := &testDepositsService{
		approveFn: func(ctx context.Context, input deposits.ApproveInput) (*models.DepositRequest, error) {
			got = input
			return &models.DepositRequest{ID: input.DepositID}, nil
		},
	}

	req := withURLParam(adminRequest(http.MethodPost, "/api/admin/deposits/3/approve", `{"amount_received":"480.00","notes":"bank fee"}`, 1), "depositId", "3")
	resp := httptest.NewRecorder()
	ApproveDeposit(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.NotNil(t, got.AmountReceived)
	assert.True(t, got.AmountReceived.Equal(decimal.NewFromInt(480)))
	assert.Equal(t, "bank fee", got.Notes)
}

func TestCreateWithdrawalParsesEnums(t *testing.T) {
	var got withdrawals.CreateInput
	svc := &testWithdrawalsService{
		createFn: func(ctx context.Context, input withdrawals.CreateInput) (*models.WithdrawalRequest, error) {
			got = input
			return &models.WithdrawalRequest{ID: 1}, nil
		},
	}

	body := `{"amount":"120","source_section":"referral_bonus","method":"usdt","wallet_address":"0x52908400098527886E0F7030069857D2E4169EE7"}`
	req := investorRequest(http.MethodPost, "/api/withdrawals", body, 9)
	resp := httptest.NewRecorder()
	CreateWithdrawal(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.Equal(t, enums.FundSourceReferralBonus, got.Source)
	assert.Equal(t, enums.WithdrawalMethodUSDT, got.Method)
	assert.Equal(t, int64(9), got.UserID)
}

func TestCreateWithdrawalRejectsUnknownSection(t *testing.T) {
	body := `{"amount":"120","source_section":"invested_capital","method":"bank"}`
	req := investorRequest(http.MethodPost, "/api/withdrawals", body, 9)
	resp := httptest.NewRecorder()
	CreateWithdrawal(&testWithdrawalsService{}, testLogger())(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, string(pkgerrors.CodeInvalidFundSource), decodeError(t, resp)["code"])
}

func TestReviewWithdrawalDispatchesDecision(t *testing.T) {
	approved, rejected := false, false
	svc := &testWithdrawalsService{
		approveFn: func(ctx context.Context, withdrawalID, adminID int64, notes string) (*models.WithdrawalRequest, error) {
			approved = true
			return &models.WithdrawalRequest{ID: withdrawalID}, nil
		},
		rejectFn: func(ctx context.Context, withdrawalID, adminID int64, notes string) (*models.WithdrawalRequest, error) {
			rejected = true
			assert.Equal(t, "wallet mismatch", notes)
			return &models.WithdrawalRequest{ID: withdrawalID}, nil
		},
	}

	req := withURLParam(adminRequest(http.MethodPost, "/api/admin/withdrawals/8/approve", "", 1), "withdrawalId", "8")
	resp := httptest.NewRecorder()
	ApproveWithdrawal(svc, testLogger())(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	req = withURLParam(adminRequest(http.MethodPost, "/api/admin/withdrawals/8/reject", `{"notes":"wallet mismatch"}`, 1), "withdrawalId", "8")
	resp = httptest.NewRecorder()
	RejectWithdrawal(svc, testLogger())(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	assert.True(t, approved)
	assert.True(t, rejected)
}

func TestApproveWithdrawalSurfacesInsufficientFunds(t *testing.T) {
	svc := &testWithdrawalsService{
		approveFn: func(ctx context.Context, withdrawalID, adminID int64, notes string) (*models.WithdrawalRequest, error) {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient funds in profits. Available: €10")
		},
	}

	req := withURLParam(adminRequest(http.MethodPost, "/api/admin/withdrawals/8/approve", "", 1), "withdrawalId", "8")
	resp := httptest.NewRecorder()
	ApproveWithdrawal(svc, testLogger())(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, string(pkgerrors.CodeInsufficientFunds), decodeError(t, resp)["code"])
}
