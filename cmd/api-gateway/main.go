package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/kyc-attestation-api/api/swagger"
	"github.com/noah-isme/kyc-attestation-api/internal/handler"
	"github.com/noah-isme/kyc-attestation-api/internal/ledger"
	internalmiddleware "github.com/noah-isme/kyc-attestation-api/internal/middleware"
	"github.com/noah-isme/kyc-attestation-api/internal/repository"
	"github.com/noah-isme/kyc-attestation-api/internal/service"
	"github.com/noah-isme/kyc-attestation-api/pkg/cache"
	"github.com/noah-isme/kyc-attestation-api/pkg/chain"
	"github.com/noah-isme/kyc-attestation-api/pkg/config"
	"github.com/noah-isme/kyc-attestation-api/pkg/database"
	"github.com/noah-isme/kyc-attestation-api/pkg/export"
	"github.com/noah-isme/kyc-attestation-api/pkg/lighthouse"
	"github.com/noah-isme/kyc-attestation-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/kyc-attestation-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/kyc-attestation-api/pkg/middleware/requestid"
	"github.com/noah-isme/kyc-attestation-api/pkg/wallet"
)

// @title KYC Attestation API
// @version 1.0.0
// @description Encrypted document upload and on-chain attestation gateway
// @BasePath /
// @schemes http

// ledgerBackend is what the service layer needs from either ledger mode.
type ledgerBackend interface {
	ledger.Binding
	ledger.EventSource
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := cfg.Validate(); err != nil {
		logr.Sugar().Fatalw("invalid configuration", "error", err)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]handler.ReadinessCheck{}
	metricsSvc := service.NewMetricsService()

	var (
		cacheRepo    service.CacheRepository
		sessionStore service.SessionStore = repository.NewMemorySessionStore()
	)
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect redis", "error", err)
		}
		defer redisClient.Close() //nolint:errcheck

		redisRepo := repository.NewCacheRepository(redisClient, logr)
		cacheRepo = redisRepo
		sessionStore = repository.NewSessionRepository(redisClient)
		checks["redis"] = redisRepo.Ping
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr, cfg.Redis.Enabled)

	var db *sqlx.DB
	if cfg.Journal.Enabled {
		db, err = database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect postgres", "error", err)
		}
		defer db.Close() //nolint:errcheck
		checks["postgres"] = db.PingContext
	}

	backend, err := openLedger(ctx, cfg.Ledger, logr, checks)
	if err != nil {
		logr.Sugar().Fatalw("failed to open ledger", "mode", cfg.Ledger.Mode, "error", err)
	}

	signers, err := wallet.NewExternalProvider(cfg.Signer.Endpoint)
	if err != nil {
		logr.Sugar().Fatalw("failed to reach signer", "error", err)
	}
	locks := wallet.NewKeyedMutex()

	storage := lighthouse.New(lighthouse.Config{
		APIKey:        cfg.Storage.APIKey,
		APIURL:        cfg.Storage.APIURL,
		NodeURL:       cfg.Storage.NodeURL,
		EncryptionURL: cfg.Storage.EncryptionURL,
		GatewayURL:    cfg.Storage.GatewayURL,
	})

	ledgerParams := service.LedgerServiceParams{
		Binding: backend,
		Cache:   cacheSvc,
		Metrics: metricsSvc,
		Locks:   locks,
		Logger:  logr,
	}
	uploadParams := service.UploadServiceParams{
		Storage: storage,
		Metrics: metricsSvc,
		Locks:   locks,
		Logger:  logr,
		Config: service.UploadConfig{
			MaxFileSize: cfg.Storage.MaxFileSize,
			AllowedExts: cfg.Storage.AllowedExts,
		},
	}
	if db != nil {
		ledgerParams.Actions = repository.NewActionRepository(db)
		uploadParams.Journal = repository.NewUploadRepository(db)
	}

	ledgerSvc := service.NewLedgerService(ledgerParams)
	uploadParams.Ledger = ledgerSvc
	uploadSvc := service.NewUploadService(uploadParams)

	sessionSvc := service.NewSessionService(sessionStore, signers, validator.New(), logr, service.SessionConfig{
		Secret:          cfg.Session.Secret,
		Expiration:      cfg.Session.Expiration,
		ChallengeTTL:    cfg.Session.ChallengeTTL,
		Issuer:          cfg.Session.Issuer,
		WalletProjectID: cfg.Wallet.ProjectID,
	})
	dashboardSvc := service.NewDashboardService(service.DashboardServiceParams{
		Ledger:  ledgerSvc,
		Gateway: storage.GatewayURL,
		Cache:   cacheSvc,
		Logger:  logr,
		Config:  service.DashboardServiceConfig{CacheTTL: cfg.Dashboard.CacheTTL},
	})
	exportSvc := service.NewExportService(ledgerSvc, storage.GatewayURL, logr, &export.CSVExporter{BOM: true}, export.NewPDFExporter())

	if cfg.Watcher.Enabled {
		refresher := service.NewRefreshService(service.RefreshServiceParams{
			Events:  backend,
			Views:   ledgerSvc,
			Metrics: metricsSvc,
			Logger:  logr,
			Config: service.RefreshConfig{
				PollInterval: cfg.Watcher.PollInterval,
				StartBlock:   cfg.Watcher.StartBlock,
				Workers:      cfg.Refresh.Workers,
				MaxRetries:   cfg.Refresh.MaxRetries,
				RetryDelay:   cfg.Refresh.RetryDelay,
			},
		})
		refresher.Start(ctx)
		defer refresher.Stop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	handler.Register(r, cfg.APIPrefix, handler.Handlers{
		Session:   handler.NewSessionHandler(sessionSvc),
		Ledger:    handler.NewLedgerHandler(ledgerSvc, storage.GatewayURL),
		Dashboard: handler.NewDashboardHandler(dashboardSvc),
		Uploads:   handler.NewUploadHandler(uploadSvc, cfg.Storage.MaxFileSize),
		Export:    handler.NewExportHandler(exportSvc),
		Metrics:   handler.NewMetricsHandler(metricsSvc, checks),
	}, sessionSvc)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "ledger_mode", cfg.Ledger.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

func openLedger(ctx context.Context, cfg config.LedgerConfig, logr *zap.Logger, checks map[string]handler.ReadinessCheck) (ledgerBackend, error) {
	if cfg.Mode == config.LedgerModeMemory {
		stake, ok := new(big.Int).SetString(cfg.RequiredStakeWei, 10)
		if !ok {
			return nil, fmt.Errorf("invalid LEDGER_REQUIRED_STAKE_WEI %q", cfg.RequiredStakeWei)
		}
		logr.Sugar().Warnw("using in-memory ledger; state is lost on restart", "required_stake_wei", stake.String())
		return ledger.NewMemory(stake), nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	client, chainID, err := chain.Dial(dialCtx, cfg)
	if err != nil {
		return nil, err
	}
	checks["ledger"] = func(ctx context.Context) error {
		_, err := client.BlockNumber(ctx)
		return err
	}

	contract, err := ledger.NewContract(ledger.ContractParams{
		Address:        common.HexToAddress(cfg.ContractAddress),
		ChainID:        chainID,
		Backend:        client,
		ReceiptTimeout: cfg.ReceiptTimeout,
		MaxBlockRange:  cfg.MaxBlockRange,
		Logger:         logr,
	})
	if err != nil {
		client.Close()
		return nil, err
	}
	return contract, nil
}
