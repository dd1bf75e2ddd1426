package routes

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cipimmobiliare/cip-backend/internal/investments"
	"github.com/cipimmobiliare/cip-backend/internal/notifications"
	"github.com/cipimmobiliare/cip-backend/internal/projects"
	"github.com/cipimmobiliare/cip-backend/internal/users"
	pkgAuth "github.com/cipimmobiliare/cip-backend/pkg/auth"
	"github.com/cipimmobiliare/cip-backend/pkg/config"
	"github.com/cipimmobiliare/cip-backend/pkg/db/models"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
	"github.com/cipimmobiliare/cip-backend/pkg/logger"
	"github.com/cipimmobiliare/cip-backend/pkg/pagination"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type stubUsersService struct {
	kyc enums.KYCStatus
}

func (s stubUsersService) GetProfile(ctx context.Context, userID int64) (*users.UserDTO, error) {
	return &users.UserDTO{ID: userID, Role: enums.UserRoleInvestor, KYCStatus: s.kyc}, nil
}

func (stubUsersService) SetVIP(ctx context.Context, userID int64, vip bool) (*users.UserDTO, error) {
	return &users.UserDTO{ID: userID, IsVIP: vip}, nil
}

type stubInvestmentsService struct{}

func (stubInvestmentsService) PlaceInvestment(ctx context.Context, input investments.PlaceInput) (*investments.Confirmation, error) {
	return &investments.Confirmation{
		InvestmentID: 42,
		FundSource:   input.FundSource,
		ProjectUpdate: investments.ProjectUpdate{
			FundedAmount:      input.Amount,
			CompletionPercent: 10,
			RemainingAmount:   decimal.NewFromInt(9000),
		},
	}, nil
}

func (stubInvestmentsService) CancelProject(ctx context.Context, projectID int64) (*investments.RefundSummary, error) {
	return &investments.RefundSummary{ProjectID: projectID, RefundedCount: 2, RefundedTotal: decimal.NewFromInt(1500)}, nil
}

func (stubInvestmentsService) ListForUser(ctx context.Context, userID int64, params pagination.Params, statuses []enums.InvestmentStatus) (*investments.InvestmentList, error) {
	return &investments.InvestmentList{Items: []models.Investment{}}, nil
}

type stubProjectsService struct{}

func (stubProjectsService) Create(ctx context.Context, input projects.CreateInput) (*projects.ProjectDTO, error) {
	return &projects.ProjectDTO{ID: 1, Code: input.Code}, nil
}

func (stubProjectsService) Update(ctx context.Context, id int64, input projects.UpdateInput) (*projects.ProjectDTO, error) {
	return &projects.ProjectDTO{ID: id}, nil
}

func (stubProjectsService) Publish(ctx context.Context, id int64) (*projects.ProjectDTO, error) {
	return &projects.ProjectDTO{ID: id, Status: enums.ProjectStatusActive}, nil
}

func (stubProjectsService) Complete(ctx context.Context, id int64) (*projects.ProjectDTO, error) {
	return &projects.ProjectDTO{ID: id, Status: enums.ProjectStatusCompleted}, nil
}

func (stubProjectsService) Get(ctx context.Context, id int64, includeHidden bool) (*projects.ProjectDTO, error) {
	return &projects.ProjectDTO{ID: id}, nil
}

func (stubProjectsService) List(ctx context.Context, params pagination.Params, statuses []enums.ProjectStatus, includeHidden bool) (*projects.ProjectList, error) {
	return &projects.ProjectList{Items: []projects.ProjectDTO{}}, nil
}

type stubNotificationsService struct{}

func (stubNotificationsService) Create(ctx context.Context, input notifications.CreateInput) (*models.AdminNotification, error) {
	return &models.AdminNotification{}, nil
}

func (stubNotificationsService) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	return &notifications.ListResult{Items: []models.AdminNotification{}}, nil
}

func (stubNotificationsService) MarkRead(ctx context.Context, notificationID int64) error {
	return nil
}

func (stubNotificationsService) MarkAllRead(ctx context.Context) (int64, error) {
	return 0, nil
}

func (stubNotificationsService) PurgeRead(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
	}
}

func newTestRouter(cfg *config.Config, deps Dependencies) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(cfg, logg, deps, Services{
		Users:         stubUsersService{kyc: enums.KYCStatusVerified},
		Investments:   stubInvestmentsService{},
		Projects:      stubProjectsService{},
		Notifications: stubNotificationsService{},
	})
}

func buildToken(t *testing.T, cfg *config.Config, userID int64, role enums.UserRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID:    userID,
		Role:      role,
		KYCStatus: enums.KYCStatusVerified,
	})
	require.NoError(t, err)
	return token
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(testConfig(), Dependencies{})
	resp := serve(router, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "test", resp.Header().Get("X-CIP-Env"))
}

func TestHealthReadyReportsFailingDependency(t *testing.T) {
	router := newTestRouter(testConfig(), Dependencies{
		DB:    stubPinger{},
		Redis: stubPinger{err: errors.New("connection refused")},
	})
	resp := serve(router, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)

	router = newTestRouter(testConfig(), Dependencies{DB: stubPinger{}, Redis: stubPinger{}})
	resp = serve(router, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestPublicProjectsNeedNoToken(t *testing.T) {
	router := newTestRouter(testConfig(), Dependencies{})
	resp := serve(router, httptest.NewRequest(http.MethodGet, "/api/public/projects", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestInvestorRoutesRejectMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig(), Dependencies{})
	resp := serve(router, httptest.NewRequest(http.MethodGet, "/api/investments", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestInvestorRoutesRejectAdminRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/api/investments", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, 1, enums.UserRoleAdmin))
	resp := serve(router, req)
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, Dependencies{})

	investor := httptest.NewRequest(http.MethodGet, "/api/admin/notifications", nil)
	investor.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, 7, enums.UserRoleInvestor))
	assert.Equal(t, http.StatusForbidden, serve(router, investor).Code)

	admin := httptest.NewRequest(http.MethodGet, "/api/admin/notifications", nil)
	admin.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, 1, enums.UserRoleAdmin))
	assert.Equal(t, http.StatusOK, serve(router, admin).Code)
}

func TestPlaceInvestmentRouteReturnsFlatPayload(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, Dependencies{})

	body := `{"project_id":3,"amount":"1000.00","fund_source":"free_capital"}`
	req := httptest.NewRequest(http.MethodPost, "/api/investments", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, 7, enums.UserRoleInvestor))
	req.Header.Set("Content-Type", "application/json")
	resp := serve(router, req)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var payload map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	assert.Equal(t, true, payload["success"])
	assert.EqualValues(t, 42, payload["investment_id"])
	assert.Equal(t, "free_capital", payload["fund_source"])
	update, ok := payload["project_update"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1000", update["funded_amount"])
	assert.EqualValues(t, 10, update["completion_percent"])
}

func TestCancelProjectRouteIsAdminOnly(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, Dependencies{})

	investor := httptest.NewRequest(http.MethodPost, "/api/admin/projects/9/cancel", nil)
	investor.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, 7, enums.UserRoleInvestor))
	assert.Equal(t, http.StatusForbidden, serve(router, investor).Code)

	admin := httptest.NewRequest(http.MethodPost, "/api/admin/projects/9/cancel", nil)
	admin.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, 1, enums.UserRoleAdmin))
	resp := serve(router, admin)
	require.Equal(t, http.StatusOK, resp.Code)

	var payload struct {
		Success       bool   `json:"success"`
		RefundedCount int    `json:"refunded_count"`
		RefundedTotal string `json:"refunded_total"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	assert.True(t, payload.Success)
	assert.Equal(t, 2, payload.RefundedCount)
	assert.Equal(t, "1500", payload.RefundedTotal)
}

func TestMissingServiceAnswersInternalError(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/api/portfolio", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, 7, enums.UserRoleInvestor))
	assert.Equal(t, http.StatusInternalServerError, serve(router, req).Code)
}

func TestAssignReferrerRouteIsAdminOnly(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, Dependencies{})

	req := httptest.NewRequest(http.MethodPut, "/api/admin/users/4/referrer", strings.NewReader(`{"referrer_id":2}`))
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, 7, enums.UserRoleInvestor))
	assert.Equal(t, http.StatusForbidden, serve(router, req).Code)
}
