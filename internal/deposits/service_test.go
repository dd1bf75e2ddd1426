package deposits

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cipimmobiliare/cip-backend/internal/ledger"
	"github.com/cipimmobiliare/cip-backend/internal/portfolios"
	"github.com/cipimmobiliare/cip-backend/pkg/config"
	"github.com/cipimmobiliare/cip-backend/pkg/db/dbtest"
	"github.com/cipimmobiliare/cip-backend/pkg/db/models"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
	pkgerrors "github.com/cipimmobiliare/cip-backend/pkg/errors"
	"github.com/cipimmobiliare/cip-backend/pkg/logger"
	"github.com/cipimmobiliare/cip-backend/pkg/outbox"
	"github.com/cipimmobiliare/cip-backend/pkg/pagination"
)

type countingObserver struct {
	requested []models.DepositRequest
}

func (o *countingObserver) DepositRequested(_ context.Context, req models.DepositRequest) error {
	o.requested = append(o.requested, req)
	return nil
}

type fixture struct {
	svc      Service
	env      *dbtest.Env
	observer *countingObserver
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	env := dbtest.NewEnv(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(env.Conn))
	require.NoError(t, err)

	f := &fixture{env: env, observer: &countingObserver{}, now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc, err := NewService(ServiceParams{
		DB:         env.Client,
		Repo:       NewRepository(env.Conn),
		Portfolios: portfolios.NewRepository(env.Conn),
		Ledger:     ledgerSvc,
		Outbox:     outbox.NewService(outbox.NewRepository(env.Conn), logg),
		Observer:   f.observer,
		Config: config.DepositsConfig{
			IBAN:          "IT60X0542811101000000123456",
			AccountHolder: "CIP Immobiliare S.r.l.",
			TTL:           72 * time.Hour,
		},
		Logger: logg,
		Clock:  func() time.Time { return f.now },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestCreateRequestIssuesInstructions(t *testing.T) {
	f := newFixture(t)
	user := dbtest.SeedUser(t, f.env.Conn, "investor@example.com")

	instr, err := f.svc.CreateRequest(context.Background(), user.ID, dbtest.D("750"))
	require.NoError(t, err)
	assert.Equal(t, "IT60X0542811101000000123456", instr.IBAN)
	assert.Len(t, instr.UniqueKey, 6)
	assert.Regexp(t, `^CIP-[A-Z2-9]{12}$`, instr.PaymentReference)
	assert.Equal(t, f.now.Add(72*time.Hour), instr.ExpiresAt.UTC())
	require.Len(t, f.observer.requested, 1)

	_, err = f.svc.CreateRequest(context.Background(), user.ID, dbtest.D("900"))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeRequestPending))
}

func TestCreateRequestEnforcesMinimum(t *testing.T) {
	f := newFixture(t)
	user := dbtest.SeedUser(t, f.env.Conn, "investor@example.com")

	_, err := f.svc.CreateRequest(context.Background(), user.ID, dbtest.D("499.99"))
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeAmountTooLow))
	assert.Equal(t, map[string]string{"minimum": "500.00"}, pkgerrors.As(err).Details())
	assert.Empty(t, f.observer.requested)
}

func TestApproveCreditsReceivedAmount(t *testing.T) {
	f := newFixture(t)
	user := dbtest.SeedUser(t, f.env.Conn, "investor@example.com")
	admin := dbtest.SeedUser(t, f.env.Conn, "admin@example.com", dbtest.AsAdmin())
	dbtest.SeedPortfolio(t, f.env.Conn, user.ID, dbtest.Balances{FreeCapital: "100"})

	instr, err := f.svc.CreateRequest(context.Background(), user.ID, dbtest.D("1000"))
	require.NoError(t, err)

	received := dbtest.D("995.5")
	approved, err := f.svc.Approve(context.Background(), ApproveInput{
		DepositID:      instr.DepositID,
		AdminID:        admin.ID,
		AmountReceived: &received,
		Notes:          "bank fee deducted",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.DepositStatusCompleted, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, admin.ID, *approved.ApprovedBy)

	p := dbtest.ReloadPortfolio(t, f.env.Conn, user.ID)
	dbtest.RequireDecimal(t, "1095.5", p.FreeCapital)

	var tx models.PortfolioTransaction
	require.NoError(t, f.env.Conn.Where("user_id = ? AND type = ?", user.ID, enums.TransactionTypeDeposit).First(&tx).Error)
	dbtest.RequireDecimal(t, "995.5", tx.Amount)
	dbtest.RequireDecimal(t, "100", tx.BalanceBefore)

	var events int64
	require.NoError(t, f.env.Conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventDepositApproved).Count(&events).Error)
	assert.Equal(t, int64(1), events)

	_, err = f.svc.Approve(context.Background(), ApproveInput{DepositID: instr.DepositID, AdminID: admin.ID})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))
}

func TestRejectLeavesBalancesUntouched(t *testing.T) {
	f := newFixture(t)
	user := dbtest.SeedUser(t, f.env.Conn, "investor@example.com")
	dbtest.SeedPortfolio(t, f.env.Conn, user.ID, dbtest.Balances{})

	instr, err := f.svc.CreateRequest(context.Background(), user.ID, dbtest.D("600"))
	require.NoError(t, err)

	rejected, err := f.svc.Reject(context.Background(), instr.DepositID, 1, "transfer not found")
	require.NoError(t, err)
	assert.Equal(t, enums.DepositStatusRejected, rejected.Status)
	require.NotNil(t, rejected.AdminNotes)
	assert.Equal(t, "transfer not found", *rejected.AdminNotes)
	dbtest.RequireDecimal(t, "0", dbtest.ReloadPortfolio(t, f.env.Conn, user.ID).FreeCapital)

	_, err = f.svc.Reject(context.Background(), 9999, 1, "")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	// a rejected request no longer blocks a new one
	_, err = f.svc.CreateRequest(context.Background(), user.ID, dbtest.D("600"))
	require.NoError(t, err)
}

func TestExpirePendingAfterTTL(t *testing.T) {
	f := newFixture(t)
	user := dbtest.SeedUser(t, f.env.Conn, "investor@example.com")

	instr, err := f.svc.CreateRequest(context.Background(), user.ID, dbtest.D("500"))
	require.NoError(t, err)

	count, err := f.svc.ExpirePending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)

	f.now = f.now.Add(73 * time.Hour)
	count, err = f.svc.ExpirePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	list, err := f.svc.ListForUser(context.Background(), user.ID, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, instr.DepositID, list.Items[0].ID)
	assert.Equal(t, enums.DepositStatusExpired, list.Items[0].Status)

	_, err = f.svc.Approve(context.Background(), ApproveInput{DepositID: instr.DepositID, AdminID: 1})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))
}
