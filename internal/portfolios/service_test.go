package portfolios

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cipimmobiliare/cip-backend/internal/ledger"
	"github.com/cipimmobiliare/cip-backend/pkg/db/dbtest"
	"github.com/cipimmobiliare/cip-backend/pkg/db/models"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
	pkgerrors "github.com/cipimmobiliare/cip-backend/pkg/errors"
	"github.com/cipimmobiliare/cip-backend/pkg/pagination"
)

func newTestService(t *testing.T) (Service, Repository, *dbtest.Env) {
	t.Helper()
	env := dbtest.NewEnv(t)
	repo := NewRepository(env.Conn)
	svc, err := NewService(repo, ledger.NewRepository(env.Conn))
	require.NoError(t, err)
	return svc, repo, env
}

func TestEnsurePortfolioIsIdempotent(t *testing.T) {
	svc, _, env := newTestService(t)
	user := dbtest.SeedUser(t, env.Conn, "a@example.com")
	ctx := context.Background()

	first, err := svc.EnsurePortfolio(ctx, user.ID)
	require.NoError(t, err)
	dbtest.RequireDecimal(t, "0", first.FreeCapital)

	_, err = NewRepository(env.Conn).Credit(ctx, user.ID, enums.FundSourceFreeCapital, dbtest.D("250"))
	require.NoError(t, err)

	second, err := svc.EnsurePortfolio(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	dbtest.RequireDecimal(t, "250", second.FreeCapital)

	var count int64
	require.NoError(t, env.Conn.Model(&models.Portfolio{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEnsurePortfolioRejectsMissingUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.EnsurePortfolio(context.Background(), 0)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestGuardedMutations(t *testing.T) {
	_, repo, env := newTestService(t)
	user := dbtest.SeedUser(t, env.Conn, "b@example.com")
	dbtest.SeedPortfolio(t, env.Conn, user.ID, dbtest.Balances{FreeCapital: "1000", Profits: "300"})
	ctx := context.Background()

	ok, err := repo.MoveToInvested(ctx, user.ID, enums.FundSourceProfits, dbtest.D("400"))
	require.NoError(t, err)
	assert.False(t, ok, "profits guard must reject overspend")

	ok, err = repo.MoveToInvested(ctx, user.ID, enums.FundSourceFreeCapital, dbtest.D("600"))
	require.NoError(t, err)
	assert.True(t, ok)

	p := dbtest.ReloadPortfolio(t, env.Conn, user.ID)
	dbtest.RequireDecimal(t, "400", p.FreeCapital)
	dbtest.RequireDecimal(t, "600", p.InvestedCapital)
	dbtest.RequireDecimal(t, "300", p.Profits)

	ok, err = repo.ReleaseInvested(ctx, user.ID, dbtest.D("700"), dbtest.D("0"))
	require.NoError(t, err)
	assert.False(t, ok, "cannot release more than invested")

	ok, err = repo.ReleaseInvested(ctx, user.ID, dbtest.D("600"), dbtest.D("90"))
	require.NoError(t, err)
	assert.True(t, ok)

	p = dbtest.ReloadPortfolio(t, env.Conn, user.ID)
	dbtest.RequireDecimal(t, "1000", p.FreeCapital)
	dbtest.RequireDecimal(t, "0", p.InvestedCapital)
	dbtest.RequireDecimal(t, "390", p.Profits)

	ok, err = repo.Debit(ctx, user.ID, enums.FundSourceReferralBonus, dbtest.D("1"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Credit(ctx, 9999, enums.FundSourceFreeCapital, dbtest.D("1"))
	require.NoError(t, err)
	assert.False(t, ok, "credit on a missing portfolio touches no row")
}

func TestLockByUserIDsOrdersAscending(t *testing.T) {
	_, repo, env := newTestService(t)
	a := dbtest.SeedUser(t, env.Conn, "a@example.com")
	b := dbtest.SeedUser(t, env.Conn, "b@example.com")
	dbtest.SeedPortfolio(t, env.Conn, b.ID, dbtest.Balances{})
	dbtest.SeedPortfolio(t, env.Conn, a.ID, dbtest.Balances{})

	rows, err := repo.LockByUserIDs(context.Background(), []int64{b.ID, a.ID})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, a.ID, rows[0].UserID)
	assert.Equal(t, b.ID, rows[1].UserID)
}

func TestGetOverviewIncludesHoldings(t *testing.T) {
	svc, _, env := newTestService(t)
	user := dbtest.SeedUser(t, env.Conn, "c@example.com")
	dbtest.SeedPortfolio(t, env.Conn, user.ID, dbtest.Balances{FreeCapital: "500", Profits: "20", InvestedCapital: "500"})
	project := dbtest.SeedProject(t, env.Conn, "10000", "500", "500")
	dbtest.SeedInvestment(t, env.Conn, user.ID, project.ID, "500")

	overview, err := svc.GetOverview(context.Background(), user.ID)
	require.NoError(t, err)
	dbtest.RequireDecimal(t, "520", overview.Balances.Available)
	dbtest.RequireDecimal(t, "1020", overview.Balances.Total)
	require.Len(t, overview.Holdings, 1)
	assert.Equal(t, project.Code, overview.Holdings[0].ProjectCode)
	assert.Equal(t, 5, overview.Holdings[0].CompletionPercent)
}

func TestGetOverviewCreatesMissingPortfolio(t *testing.T) {
	svc, _, env := newTestService(t)
	user := dbtest.SeedUser(t, env.Conn, "d@example.com")

	overview, err := svc.GetOverview(context.Background(), user.ID)
	require.NoError(t, err)
	dbtest.RequireDecimal(t, "0", overview.Balances.Total)
	assert.Empty(t, overview.Holdings)
}

func TestListTransactionsPages(t *testing.T) {
	svc, _, env := newTestService(t)
	user := dbtest.SeedUser(t, env.Conn, "e@example.com")
	journal, err := ledger.NewService(ledger.NewRepository(env.Conn))
	require.NoError(t, err)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := journal.Record(ctx, ledger.RecordEntryInput{
			UserID:       user.ID,
			Type:         enums.TransactionTypeDeposit,
			Amount:       dbtest.D("500"),
			BalanceAfter: dbtest.D("500"),
			FundSource:   enums.FundSourceFreeCapital.String(),
		})
		require.NoError(t, err)
	}

	first, err := svc.ListTransactions(ctx, user.ID, pagination.Params{Limit: 2}, "")
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.NextCursor)

	second, err := svc.ListTransactions(ctx, user.ID, pagination.Params{Limit: 2, Cursor: first.NextCursor}, "")
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Empty(t, second.NextCursor)
	assert.Less(t, second.Items[0].ID, first.Items[1].ID)

	_, err = svc.ListTransactions(ctx, user.ID, pagination.Params{}, "bogus")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestRefundInvestedFloorsAtZero(t *testing.T) {
	_, repo, env := newTestService(t)
	user := dbtest.SeedUser(t, env.Conn, "refund@example.com")
	ctx := context.Background()

	ok, err := repo.RefundInvested(ctx, user.ID, dbtest.D("100"))
	require.NoError(t, err)
	assert.False(t, ok, "no portfolio row yet")

	require.NoError(t, repo.Ensure(ctx, user.ID))
	ok, err = repo.RefundInvested(ctx, user.ID, dbtest.D("600"))
	require.NoError(t, err)
	assert.True(t, ok)

	p := dbtest.ReloadPortfolio(t, env.Conn, user.ID)
	dbtest.RequireDecimal(t, "600", p.FreeCapital)
	dbtest.RequireDecimal(t, "0", p.InvestedCapital)

	_, err = repo.MoveToInvested(ctx, user.ID, enums.FundSourceFreeCapital, dbtest.D("500"))
	require.NoError(t, err)
	ok, err = repo.RefundInvested(ctx, user.ID, dbtest.D("200"))
	require.NoError(t, err)
	assert.True(t, ok)

	p = dbtest.ReloadPortfolio(t, env.Conn, user.ID)
	dbtest.RequireDecimal(t, "300", p.FreeCapital)
	dbtest.RequireDecimal(t, "300", p.InvestedCapital)
}
