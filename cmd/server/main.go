package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/marketminder/internal/config"
	"github.com/mamadbah2/marketminder/internal/ledger"
	"github.com/mamadbah2/marketminder/internal/repository/mongodb"
	"github.com/mamadbah2/marketminder/internal/repository/sheets"
	"github.com/mamadbah2/marketminder/internal/repository/snapshot"
	"github.com/mamadbah2/marketminder/internal/scheduler"
	"github.com/mamadbah2/marketminder/internal/server/handlers"
	"github.com/mamadbah2/marketminder/internal/server/router"
	bookkeepingsvc "github.com/mamadbah2/marketminder/internal/service/bookkeeping"
	commandsvc "github.com/mamadbah2/marketminder/internal/service/commands"
	reportingsvc "github.com/mamadbah2/marketminder/internal/service/reporting"
	whatsappsvc "github.com/mamadbah2/marketminder/internal/service/whatsapp"
	"github.com/mamadbah2/marketminder/pkg/clients/anthropic"
	"github.com/mamadbah2/marketminder/pkg/clients/gemini"
	"github.com/mamadbah2/marketminder/pkg/clients/llm"
	whatsappclient "github.com/mamadbah2/marketminder/pkg/clients/whatsapp"
	"github.com/mamadbah2/marketminder/pkg/logger"
)

// assistant is what both model providers offer: transaction parsing and report insights.
type assistant interface {
	whatsappsvc.TransactionParser
	reportingsvc.InsightGenerator
}

func main() {
	cfg, err := config.Load(os.Getenv("ENV_FILE"))
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Server.LogLevel))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snapshotRepo := snapshot.NewFileRepository(cfg.Ledger.SnapshotPath, baseLogger.Named("repo.snapshot"))
	bookkeeping, err := bookkeepingsvc.NewService(ctx, snapshotRepo, ledger.Options{
		DefaultCurrency: cfg.Ledger.DefaultCurrency,
		DuplicateWindow: cfg.Ledger.DuplicateWindow,
		AmountTolerance: cfg.Ledger.AmountTolerance,
		UndoTTL:         cfg.Ledger.UndoTTL,
	}, baseLogger.Named("svc.bookkeeping"))
	if err != nil {
		baseLogger.Fatal("failed to load ledger", zap.Error(err))
	}

	ai := newAssistant(ctx, cfg, baseLogger)

	var sheetsRepo sheets.Repository
	if cfg.Sheets.Enabled() {
		repo, err := sheets.NewGoogleSheetRepository(ctx, cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		sheetsRepo = repo
	} else {
		baseLogger.Info("google sheets not configured, export disabled")
	}

	var insights reportingsvc.InsightGenerator
	if ai != nil {
		insights = ai
	}
	reportingSvc := reportingsvc.NewService(bookkeeping, sheetsRepo, insights, reportingsvc.Options{
		Shop:              cfg.Shop,
		Currency:          cfg.Ledger.DefaultCurrency,
		LowStockThreshold: cfg.Ledger.LowStockThreshold,
		Location:          cfg.Reporting.Location(),
		SheetTab:          cfg.Sheets.LedgerSheet,
	}, baseLogger.Named("svc.reporting"))

	var (
		mongoRepo *mongodb.MongoDBRepository
		archive   handlers.ReportArchive
		saver     scheduler.ReportArchive
	)
	if cfg.MongoDB.Enabled() {
		mongoRepo, err = mongodb.NewMongoDBRepository(ctx, cfg.MongoDB.URI, cfg.MongoDB.DBName)
		if err != nil {
			baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
		}
		defer func() {
			if err := mongoRepo.Close(context.Background()); err != nil {
				baseLogger.Error("failed to close mongodb connection", zap.Error(err))
			}
		}()
		archive, saver = mongoRepo, mongoRepo
	} else {
		baseLogger.Info("mongodb not configured, report archive disabled")
	}

	ledgerHandler := handlers.NewLedgerHandler(bookkeeping, reportingSvc, archive, handlers.LedgerHandlerOptions{
		Location:     cfg.Reporting.Location(),
		CashFlowDays: cfg.Reporting.CashFlowDays,
	}, baseLogger.Named("handlers.ledger"))

	var (
		webhookHandler *handlers.WebhookHandler
		notifier       scheduler.Notifier
	)
	if cfg.WhatsApp.Enabled() {
		commandDispatcher := commandsvc.NewService(bookkeeping, reportingSvc, cfg.Ledger.DefaultCurrency, baseLogger.Named("svc.commands"))

		var parser whatsappsvc.TransactionParser
		if ai != nil {
			parser = ai
		}
		whatsClient := whatsappclient.NewClient(cfg.WhatsApp)
		messagingSvc := whatsappsvc.NewMetaWhatsAppService(cfg.WhatsApp, whatsClient, commandDispatcher, parser, bookkeeping,
			whatsappsvc.NewSessionManager(0), baseLogger.Named("svc.whatsapp"))
		webhookHandler = handlers.NewWebhookHandler(messagingSvc, baseLogger.Named("handlers.whatsapp"))
		notifier = messagingSvc
	} else {
		baseLogger.Warn("whatsapp not configured, chat front end disabled")
	}

	engine := router.New(webhookHandler, ledgerHandler, cfg.Server.AllowedOrigins, baseLogger.Named("router"))

	sched := scheduler.NewScheduler(cfg.Reporting, cfg.WhatsApp.OwnerNumber, reportingSvc, notifier, saver, baseLogger.Named("scheduler"))
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port), zap.String("shop", cfg.Shop.Name))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// newAssistant builds the configured model client, or nil when none is configured.
func newAssistant(ctx context.Context, cfg *config.Config, baseLogger *zap.Logger) assistant {
	shop := llm.Shop{
		Name:     cfg.Shop.Name,
		Location: cfg.Shop.Location,
		Language: cfg.Shop.PreferredLanguage,
		Currency: cfg.Ledger.DefaultCurrency,
	}

	switch cfg.AI.Provider {
	case "gemini":
		client, err := gemini.NewClient(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiModel, shop, cfg.AI.Timeout, baseLogger.Named("ai.gemini"))
		if err != nil {
			baseLogger.Fatal("failed to init gemini client", zap.Error(err))
		}
		baseLogger.Info("gemini parser enabled", zap.String("model", cfg.AI.GeminiModel))
		return client
	case "anthropic":
		baseLogger.Info("anthropic parser enabled", zap.String("model", cfg.AI.AnthropicModel))
		return anthropic.NewClient(cfg.AI.AnthropicKey, anthropic.Options{
			Model:   cfg.AI.AnthropicModel,
			Timeout: cfg.AI.Timeout,
			Shop:    shop,
		}, baseLogger.Named("ai.anthropic"))
	default:
		baseLogger.Warn("no ai provider configured, natural language parsing disabled")
		return nil
	}
}
