package projects

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cipimmobiliare/cip-backend/pkg/db/dbtest"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
	pkgerrors "github.com/cipimmobiliare/cip-backend/pkg/errors"
	"github.com/cipimmobiliare/cip-backend/pkg/pagination"
)

func newTestService(t *testing.T) (Service, Repository, *dbtest.Env) {
	t.Helper()
	env := dbtest.NewEnv(t)
	repo := NewRepository(env.Conn)
	svc, err := NewService(repo)
	require.NoError(t, err)
	return svc, repo, env
}

func validCreate(code string) CreateInput {
	return CreateInput{
		Code:          code,
		Title:         "Residenza Navigli",
		Location:      "Milano",
		PropertyType:  "residential",
		TotalAmount:   dbtest.D("10000"),
		MinInvestment: dbtest.D("500"),
		ExpectedROI:   dbtest.D("8.5"),
	}
}

func TestCreatePublishComplete(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, validCreate("mil-001"))
	require.NoError(t, err)
	assert.Equal(t, "MIL-001", created.Code)
	assert.Equal(t, enums.ProjectStatusDraft, created.Status)
	assert.Equal(t, 0, created.CompletionPercent)
	assert.False(t, created.IsFunded)

	_, err = svc.Get(ctx, created.ID, false)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeProjectNotFound), "drafts stay hidden from investors")

	_, err = svc.Complete(ctx, created.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))

	published, err := svc.Publish(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ProjectStatusActive, published.Status)

	_, err = svc.Publish(ctx, created.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))

	completed, err := svc.Complete(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ProjectStatusCompleted, completed.Status)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	bad := validCreate("X-1")
	bad.TotalAmount = dbtest.D("0")
	_, err := svc.Create(ctx, bad)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	bad = validCreate("X-2")
	bad.MinInvestment = dbtest.D("20000")
	_, err = svc.Create(ctx, bad)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = svc.Create(ctx, validCreate("DUP"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, validCreate("dup"))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict))
}

func TestUpdateKeepsTotalAboveFunded(t *testing.T) {
	svc, _, env := newTestService(t)
	project := dbtest.SeedProject(t, env.Conn, "1000", "900", "100")

	low := dbtest.D("800")
	_, err := svc.Update(context.Background(), project.ID, UpdateInput{TotalAmount: &low})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	high := dbtest.D("2000")
	title := "Nuovo titolo"
	updated, err := svc.Update(context.Background(), project.ID, UpdateInput{TotalAmount: &high, Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Nuovo titolo", updated.Title)
	dbtest.RequireDecimal(t, "1100", updated.RemainingAmount)
	assert.Equal(t, 45, updated.CompletionPercent)
}

func TestAddFundingGuardsCapacityAndStatus(t *testing.T) {
	_, repo, env := newTestService(t)
	ctx := context.Background()
	project := dbtest.SeedProject(t, env.Conn, "1000", "900", "100")

	ok, err := repo.AddFunding(ctx, project.ID, dbtest.D("200"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.AddFunding(ctx, project.ID, dbtest.D("100"))
	require.NoError(t, err)
	assert.True(t, ok)

	reloaded := dbtest.ReloadProject(t, env.Conn, project.ID)
	dbtest.RequireDecimal(t, "1000", reloaded.FundedAmount)
	assert.True(t, reloaded.IsFunded())
	assert.Equal(t, 100, reloaded.CompletionPercent())

	ok, err = repo.TransitionStatus(ctx, project.ID, []enums.ProjectStatus{enums.ProjectStatusActive}, enums.ProjectStatusCancelled)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.AddFunding(ctx, project.ID, dbtest.D("0.5"))
	require.NoError(t, err)
	assert.False(t, ok, "cancelled projects accept no funding")
}

func TestListHidesDraftsFromInvestors(t *testing.T) {
	svc, _, env := newTestService(t)
	ctx := context.Background()

	active := dbtest.SeedProject(t, env.Conn, "1000", "0", "100")
	_, err := svc.Create(ctx, validCreate("DRAFT-1"))
	require.NoError(t, err)

	public, err := svc.List(ctx, pagination.Params{}, nil, false)
	require.NoError(t, err)
	require.Len(t, public.Items, 1)
	assert.Equal(t, active.ID, public.Items[0].ID)

	all, err := svc.List(ctx, pagination.Params{}, nil, true)
	require.NoError(t, err)
	assert.Len(t, all.Items, 2)

	_, err = svc.List(ctx, pagination.Params{}, []enums.ProjectStatus{enums.ProjectStatusDraft}, false)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestListPages(t *testing.T) {
	svc, _, env := newTestService(t)
	for i := 0; i < 3; i++ {
		dbtest.SeedProject(t, env.Conn, "1000", "0", "100")
	}

	first, err := svc.List(context.Background(), pagination.Params{Limit: 2}, nil, false)
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.NextCursor)

	second, err := svc.List(context.Background(), pagination.Params{Limit: 2, Cursor: first.NextCursor}, nil, false)
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Empty(t, second.NextCursor)
	assert.Less(t, second.Items[0].ID, first.Items[1].ID)
}
