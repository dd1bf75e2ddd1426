package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/cipimmobiliare/cip-backend/api/routes"
	"github.com/cipimmobiliare/cip-backend/internal/auth"
	"github.com/cipimmobiliare/cip-backend/internal/deposits"
	"github.com/cipimmobiliare/cip-backend/internal/investments"
	"github.com/cipimmobiliare/cip-backend/internal/kyc"
	"github.com/cipimmobiliare/cip-backend/internal/ledger"
	"github.com/cipimmobiliare/cip-backend/internal/notifications"
	"github.com/cipimmobiliare/cip-backend/internal/portfolios"
	"github.com/cipimmobiliare/cip-backend/internal/profits"
	"github.com/cipimmobiliare/cip-backend/internal/projects"
	"github.com/cipimmobiliare/cip-backend/internal/referrals"
	"github.com/cipimmobiliare/cip-backend/internal/users"
	"github.com/cipimmobiliare/cip-backend/internal/withdrawals"
	"github.com/cipimmobiliare/cip-backend/pkg/config"
	"github.com/cipimmobiliare/cip-backend/pkg/db"
	"github.com/cipimmobiliare/cip-backend/pkg/logger"
	"github.com/cipimmobiliare/cip-backend/pkg/metrics"
	"github.com/cipimmobiliare/cip-backend/pkg/migrate"
	"github.com/cipimmobiliare/cip-backend/pkg/outbox"
	"github.com/cipimmobiliare/cip-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := multierr.Combine(redisClient.Close(), dbClient.Close()); err != nil {
			logg.Error(context.Background(), "error closing connections", err)
		}
	}()

	services, err := buildServices(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Dependencies{
			DB:      dbClient,
			Redis:   redisClient,
			Store:   redisClient,
			Metrics: promhttp.Handler(),
		}, *services),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
		}
		return
	case <-sigCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "api server shutdown failed", err)
		return
	}
	logg.Info(ctx, "api server stopped")
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*routes.Services, error) {
	gormDB := dbClient.DB()

	usersRepo := users.NewRepository(gormDB)
	portfoliosRepo := portfolios.NewRepository(gormDB)
	projectsRepo := projects.NewRepository(gormDB)
	investmentsRepo := investments.NewRepository(gormDB)
	ledgerRepo := ledger.NewRepository(gormDB)
	emitter := outbox.NewService(outbox.NewRepository(gormDB), logg)
	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)

	ledgerSvc, err := ledger.NewService(ledgerRepo)
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}

	notificationsSvc, err := notifications.NewService(notifications.NewRepository(gormDB))
	if err != nil {
		return nil, fmt.Errorf("notifications service: %w", err)
	}
	notifier := notifications.NewNotifier(notificationsSvc)

	authSvc, err := auth.NewService(auth.ServiceParams{
		UserRepo:  usersRepo,
		JWTConfig: cfg.JWT,
	})
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}
	registerSvc, err := auth.NewRegisterService(auth.RegisterServiceParams{
		DB:             dbClient,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("register service: %w", err)
	}
	adminRegisterSvc, err := auth.NewAdminRegisterService(auth.AdminRegisterServiceParams{
		DB:             dbClient,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("admin register service: %w", err)
	}

	usersSvc, err := users.NewService(usersRepo)
	if err != nil {
		return nil, fmt.Errorf("users service: %w", err)
	}
	projectsSvc, err := projects.NewService(projectsRepo)
	if err != nil {
		return nil, fmt.Errorf("projects service: %w", err)
	}
	portfoliosSvc, err := portfolios.NewService(portfoliosRepo, ledgerRepo)
	if err != nil {
		return nil, fmt.Errorf("portfolios service: %w", err)
	}

	investmentsSvc, err := investments.NewService(investments.ServiceParams{
		DB:          dbClient,
		Investments: investmentsRepo,
		Projects:    projectsRepo,
		Portfolios:  portfoliosRepo,
		Ledger:      ledgerSvc,
		Outbox:      emitter,
		Observer:    notifier,
		Metrics:     ledgerMetrics,
		Logger:      logg,
	})
	if err != nil {
		return nil, fmt.Errorf("investments service: %w", err)
	}

	referralsSvc, err := referrals.NewService(referrals.ServiceParams{
		DB:         dbClient,
		Repo:       referrals.NewRepository(gormDB),
		Users:      usersRepo,
		Portfolios: portfoliosRepo,
		Ledger:     ledgerSvc,
		Outbox:     emitter,
		Config:     cfg.Referral,
		Metrics:    ledgerMetrics,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("referrals service: %w", err)
	}

	profitsSvc, err := profits.NewService(profits.ServiceParams{
		DB:          dbClient,
		Projects:    projectsRepo,
		Investments: investmentsRepo,
		Portfolios:  portfoliosRepo,
		Ledger:      ledgerSvc,
		Referrals:   referralsSvc,
		Outbox:      emitter,
		Logger:      logg,
	})
	if err != nil {
		return nil, fmt.Errorf("profits service: %w", err)
	}

	depositsSvc, err := deposits.NewService(deposits.ServiceParams{
		DB:         dbClient,
		Repo:       deposits.NewRepository(gormDB),
		Portfolios: portfoliosRepo,
		Ledger:     ledgerSvc,
		Outbox:     emitter,
		Observer:   notifier,
		Config:     cfg.Deposits,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("deposits service: %w", err)
	}

	withdrawalsSvc, err := withdrawals.NewService(withdrawals.ServiceParams{
		DB:         dbClient,
		Repo:       withdrawals.NewRepository(gormDB),
		Portfolios: portfoliosRepo,
		Ledger:     ledgerSvc,
		Outbox:     emitter,
		Cooldown:   redisClient,
		Observer:   notifier,
		Config:     cfg.Withdrawals,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("withdrawals service: %w", err)
	}

	kycSvc, err := kyc.NewService(kyc.ServiceParams{
		DB:       dbClient,
		Repo:     kyc.NewRepository(gormDB),
		Users:    usersRepo,
		Outbox:   emitter,
		Observer: notifier,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("kyc service: %w", err)
	}

	return &routes.Services{
		Auth:          authSvc,
		Register:      registerSvc,
		AdminRegister: adminRegisterSvc,
		Users:         usersSvc,
		Projects:      projectsSvc,
		Investments:   investmentsSvc,
		Portfolios:    portfoliosSvc,
		Profits:       profitsSvc,
		Referrals:     referralsSvc,
		Deposits:      depositsSvc,
		Withdrawals:   withdrawalsSvc,
		KYC:           kycSvc,
		Notifications: notificationsSvc,
	}, nil
}
