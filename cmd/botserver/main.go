// cmd/botserver/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"shopbot-core/internal/audit"
	"shopbot-core/internal/channel"
	"shopbot-core/internal/clarification"
	"shopbot-core/internal/classifier"
	"shopbot-core/internal/commerce"
	"shopbot-core/internal/common/aws"
	"shopbot-core/internal/common/config"
	"shopbot-core/internal/common/database"
	"shopbot-core/internal/common/logger"
	"shopbot-core/internal/common/observability"
	"shopbot-core/internal/contextstore"
	"shopbot-core/internal/engine"
	"shopbot-core/internal/faq"
	"shopbot-core/internal/handlers"
	"shopbot-core/internal/handoff"
	"shopbot-core/internal/notify"
	"shopbot-core/internal/pipeline"
	"shopbot-core/internal/repository"
	"shopbot-core/internal/scheduler"
	"shopbot-core/internal/templates"
	"shopbot-core/pkg/registry"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting bot server...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("botserver")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Intent manifest & response templates ---
	manifest := registry.Default()
	validator, err := registry.Compile(manifest)
	if err != nil {
		zapLog.Fatal("intent manifest compile failed", zap.Error(err))
	}

	tmpl, err := templates.NewRegistry()
	if err != nil {
		zapLog.Fatal("template registry failed", zap.Error(err))
	}

	// --- External service clients ---
	classifierClient := classifier.NewClient(&classifier.Config{
		BaseURL:    cfg.Classifier.BaseURL,
		APIKey:     cfg.Classifier.APIKey,
		Timeout:    config.GetDuration(cfg.Classifier.Timeout),
		MaxRetries: cfg.Classifier.MaxRetries,
	}, log)

	commerceClient := commerce.NewClient(&commerce.Config{
		BaseURL: cfg.Commerce.BaseURL,
		APIKey:  cfg.Commerce.APIKey,
		Timeout: config.GetDuration(cfg.Commerce.Timeout),
	}, log)

	var emailSender notify.EmailSender
	if cfg.Notifications.Email.Enabled {
		ses, err := aws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Warn("ses client failed, email notifications disabled", zap.Error(err))
		} else {
			emailSender = ses
		}
	}

	var smsSender notify.SMSSender
	if cfg.Notifications.SMS.Enabled {
		sns, err := aws.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Warn("sns client failed, sms notifications disabled", zap.Error(err))
		} else {
			smsSender = sns
		}
	}

	notifier := notify.NewNotifier(emailSender, smsSender, notify.Config{
		FromAddress: cfg.Notifications.Email.FromEmail,
	}, log)

	// --- Conversation core ---
	repo := repository.NewMerchantRepository(pg.DB, log)

	contextTTL := time.Duration(cfg.Conversation.ContextTTLHours) * time.Hour
	store := contextstore.New(rdb.Client, contextTTL, cfg.Conversation.HistoryLimit, log)

	detector := handoff.NewDetector(rdb.Client, handoff.Config{
		ConfidenceThreshold: cfg.Conversation.Handoff.ConfidenceThreshold,
		ConfidenceStreak:    cfg.Conversation.Handoff.ConfidenceStreak,
		LoopStreak:          cfg.Conversation.Handoff.LoopStreak,
		Keywords:            cfg.Conversation.Handoff.Keywords,
	}, log)

	clarEngine := clarification.NewEngine(classifierClient, cfg.Conversation.Clarification.MaxAttempts, log)

	handlerRegistry := handlers.NewDefaultRegistry(commerceClient, tmpl, cfg.Conversation.MaxSearchResults, log)
	if err := registry.CheckHandlers(manifest, handlerRegistry.Intents()); err != nil {
		zapLog.Fatal("handler registration does not match intent manifest", zap.Error(err))
	}

	pauseCache := pipeline.NewPauseCache(rdb.Client, time.Duration(cfg.Scheduler.PauseRefreshInterval)*time.Second*2, log)

	runner := pipeline.NewRunner(log,
		pipeline.NewFAQStage(repo, faq.NewMatcher(cfg.Conversation.FAQMatchThreshold), log),
		pipeline.NewBudgetStage(pauseCache, tmpl, log),
		pipeline.NewClassifyStage(classifierClient, clarEngine, tmpl, log),
		pipeline.NewClarifyStage(clarEngine, store, log),
		pipeline.NewHandoffStage(detector, tmpl, notifier, log),
		pipeline.NewDispatchStage(handlerRegistry, tmpl, log),
	)

	auditor := audit.NewIndexer(esClient.Client, "bot-turns", log)

	graphSender := channel.NewGraphSender(
		cfg.Channels.Messenger.SendAPIURL,
		cfg.Channels.Messenger.PageToken,
		config.GetDuration(cfg.Channels.Messenger.Timeout),
		log,
	)
	channels := channel.NewRegistry(
		channel.NewMessengerAdapter(graphSender, log),
		channel.NewWidgetAdapter(),
	)

	eng := engine.New(repo, store, runner, detector, channels, auditor, engine.Options{
		TurnCostCents: int64(cfg.Conversation.TurnCostCents),
	}, log)

	zapLog.Info("Conversation engine assembled")

	// --- Background jobs ---
	sched := scheduler.New(log)
	sched.Add(scheduler.Job{
		Name:     "hybrid-sweep",
		Interval: time.Duration(cfg.Scheduler.HybridSweepInterval) * time.Second,
		Run: func(ctx context.Context) {
			store.SweepExpiredHybrid(ctx)
		},
	})
	sched.Add(scheduler.Job{
		Name:     "pause-refresh",
		Interval: time.Duration(cfg.Scheduler.PauseRefreshInterval) * time.Second,
		Run: func(ctx context.Context) {
			ids, err := repo.ListUnavailableMerchantIDs(ctx)
			if err != nil {
				log.WithError(err).Warn("pause refresh query failed", nil)
				return
			}
			pauseCache.RefreshAll(ctx, ids)
		},
	})
	sched.Start(ctx)
	defer sched.Stop()

	// --- Metrics & pprof server ---
	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsMux.Handle("/debug/pprof/", http.DefaultServeMux)
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		zapLog.Info("Metrics server listening", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, metricsMux); err != nil {
			zapLog.Error("Metrics server failed", zap.Error(err))
		}
	}()

	// --- API server ---
	api := &apiServer{
		engine:      eng,
		validator:   validator,
		sender:      graphSender,
		verifyToken: cfg.Channels.Messenger.VerifyToken,
		logger:      log,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		zapLog.Info("API server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("API server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("API server shutdown failed", zap.Error(err))
	}

	zapLog.Info("Bot server stopped gracefully")
}
