package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"growth-automation/domain/model"
	"growth-automation/domain/repository"
	"growth-automation/domain/service"
	"growth-automation/infrastructure/cache"
	"growth-automation/infrastructure/clients/platform"
	"growth-automation/infrastructure/configuration"
	"growth-automation/infrastructure/credstore"
	"growth-automation/infrastructure/events"
	"growth-automation/infrastructure/logger"
	"growth-automation/infrastructure/notifier"
	"growth-automation/infrastructure/persistence"
	"growth-automation/infrastructure/pubsub"
	"growth-automation/infrastructure/realtime"
	"growth-automation/infrastructure/security"
	"growth-automation/infrastructure/servicebus"
	"growth-automation/infrastructure/worker"
	httpHandler "growth-automation/interfaces/http"
	"growth-automation/server"
	"growth-automation/usecase"

	gpubsub "cloud.google.com/go/pubsub"
	"golang.org/x/sync/errgroup"
)

var httpServer *http.Server

func recoverPanic() {
	if err := recover(); err != nil {
		logger.GetLogger().WithField("error", err).Error("Application panic recovered")
	}
}

// stores groups the persistence chosen at startup. Any nil store falls back to memory.
type stores struct {
	connections repository.IPlatformConnection
	items       repository.IScheduledItem
	campaigns   repository.ICampaign
	snapshots   repository.IMetricsSnapshot
	checks      map[string]httpHandler.HealthCheck
}

func main() {
	defer recoverPanic()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	g, ctx := errgroup.WithContext(ctx)

	cfg := configuration.C
	app := cfg.App

	st := initiateStores(ctx, cfg)

	cipher, err := security.NewAESGCMCipher(cfg.Credentials.EncryptionKey)
	if err != nil {
		logger.GetLogger().WithField("error", err).Fatal("Credential cipher unavailable")
	}
	credentialStore := credstore.NewStore(st.connections, cipher)

	var states repository.IStateStore
	redisClient, err := cache.NewCache(
		ctx,
		fmt.Sprintf("%s:%s", cfg.RedisClient.Host, cfg.RedisClient.Port),
		cfg.RedisClient.Username,
		cfg.RedisClient.Password,
	)
	if err != nil {
		logger.GetLogger().WithField("error", err).Warn("Redis not available - authorization states kept in memory")
		states = cache.NewMemoryStateStore()
	} else {
		states = cache.NewRedisStateStore(redisClient)
		st.checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		logger.GetLogger().Info("Redis client initialized successfully.")
	}

	hub := realtime.NewHub()
	fanout := events.NewFanout(hub)
	if cfg.Pubsub.ProjectID != "" {
		pubSubClient, err := gpubsub.NewClient(ctx, cfg.Pubsub.ProjectID)
		if err != nil {
			logger.GetLogger().WithField("error", err).Error("Error while instantiate PubSub")
		} else {
			defer pubSubClient.Close()
			fanout.Add(pubsub.NewEventPublisher(pubSubClient, cfg.Pubsub.Topic))
		}
	}
	if cfg.ServiceBus.Namespace != "" {
		azServiceBusClient, err := servicebus.NewClient(cfg.ServiceBus.Namespace)
		if err != nil {
			logger.GetLogger().WithField("error", err).Warn("Azure Service Bus not available - continuing without Service Bus events")
		} else {
			defer azServiceBusClient.Close(context.Background())
			fanout.Add(servicebus.NewEventPublisher(azServiceBusClient, cfg.ServiceBus.Topic))
		}
	}
	logger.GetLogger().WithField("sinks", fanout.Len()).Info("Event sinks configured")

	var notify repository.INotifier = notifier.Nop{}
	if cfg.Slack.Token != "" && cfg.Slack.Channel != "" {
		notify = notifier.NewSlackNotifier(cfg.Slack.Token, cfg.Slack.Channel)
	}

	registry := platform.NewRegistryFromConfig(cfg.Providers, cfg.Credentials.CallTimeout)

	credentialUsecase := usecase.NewCredentialUsecase(
		registry,
		credentialStore,
		states,
		security.NewStateSigner(app.SecretKey),
		fanout,
		notify,
		usecase.CredentialConfig{
			RefreshMargin:       cfg.Credentials.RefreshMargin,
			StateTTL:            cfg.Credentials.StateTTL,
			ProviderConcurrency: cfg.Credentials.ProviderConcurrency,
			CallTimeout:         cfg.Credentials.CallTimeout,
		},
	)
	publisher := usecase.NewPublisher(registry, credentialUsecase, st.campaigns, usecase.RetryPolicy{
		MaxRetries:  cfg.Scheduler.MaxRetries,
		BaseBackoff: cfg.Scheduler.BaseBackoff,
		MaxBackoff:  cfg.Scheduler.MaxBackoff,
	})
	schedulerUsecase := usecase.NewSchedulerUsecase(st.items, registry, credentialUsecase, publisher, fanout, notify, usecase.SchedulerConfig{
		BatchSize:      cfg.Scheduler.BatchSize,
		Workers:        cfg.Scheduler.Workers,
		LeaseTimeout:   cfg.Scheduler.LeaseTimeout,
		MaxClaims:      cfg.Scheduler.MaxAttempts,
		PublishTimeout: cfg.Scheduler.PublishTimeout,
		Timezone:       cfg.Scheduler.Timezone,
		PreferredTimes: cfg.Scheduler.PreferredTimes,
		MinSpacing:     minSpacing(cfg.Scheduler.MinSpacing),
	})
	campaignUsecase := usecase.NewCampaignUsecase(st.campaigns, st.snapshots, registry, credentialUsecase, schedulerUsecase, fanout, usecase.CampaignConfig{
		Optimizer: service.OptimizerConfig{
			LearningSpendThreshold: cfg.Optimizer.LearningSpendThreshold,
			LearningDays:           cfg.Optimizer.LearningDays,
			MaxIncrease:            cfg.Optimizer.MaxIncrease,
			MinDailyBudget:         cfg.Optimizer.MinDailyBudget,
		},
		WindowDays: cfg.Optimizer.WindowDays,
		Workers:    cfg.Optimizer.Workers,
	})
	insightsUsecase := usecase.NewInsightsUsecase(registry, credentialUsecase, st.snapshots)

	router := server.InitiateRouter(
		app.SecretKey,
		app.AllowedOrigins,
		httpHandler.NewConnectionHandler(credentialUsecase, app.ConfirmationURL),
		httpHandler.NewScheduleHandler(schedulerUsecase),
		httpHandler.NewCampaignHandler(campaignUsecase),
		httpHandler.NewInsightsHandler(insightsUsecase, registry),
		httpHandler.NewHealthHandler(st.checks),
		hub,
	)

	g.Go(func() error {
		return worker.RunEvery(ctx, cfg.Scheduler.TickInterval, "scheduler", func(ctx context.Context) error {
			_, err := schedulerUsecase.Tick(ctx)
			return err
		})
	})
	g.Go(func() error {
		return worker.RunEvery(ctx, cfg.Optimizer.Interval, "optimizer", campaignUsecase.RunCycle)
	})

	port := app.Port
	logger.GetLogger().WithFields(map[string]interface{}{"port": port, "tls": app.TLSEnabled}).Info("Starting application")
	g.Go(func() error {
		httpServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		if app.TLSEnabled {
			cert := app.TLSCertFile
			key := app.TLSKeyFile
			if cert == "" || key == "" {
				logger.GetLogger().Error("TLS enabled but cert or key path empty; falling back to HTTP")
				if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			} else {
				logger.GetLogger().WithFields(map[string]interface{}{"cert": cert, "key": key}).Info("Serving HTTPS")
				if err := httpServer.ListenAndServeTLS(cert, key); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			}
		} else {
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		}
		return nil
	})

	select {
	case <-interrupt:
		logger.GetLogger().Info("Application shutdown requested")
	case <-ctx.Done():
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.GetLogger().WithField("error", err).Error("Server returned an error")
		os.Exit(2)
	}
	logger.GetLogger().Info("Application stopped")
}

// initiateStores picks persistence per concern. Connections live in MSSQL in production
// (or with DB_VENDOR=mssql) and in PostgreSQL otherwise; scheduled items need PostgreSQL;
// campaigns live in the MySQL analytics database; snapshots go to MongoDB when configured.
func initiateStores(ctx context.Context, cfg configuration.Config) stores {
	st := stores{checks: map[string]httpHandler.HealthCheck{}}

	env := os.Getenv("ENV")
	useMSSQL := os.Getenv("DB_VENDOR") == "mssql" || env == "production" || env == "prod"
	if useMSSQL {
		if mssql, err := openSQL("mssql", func() (*sql.DB, error) { return persistence.NewMSSQLDB(cfg.Database.Mssql) }); err == nil {
			if err := persistence.EnsureConnectionSchemaMSSQL(mssql); err != nil {
				logger.GetLogger().WithField("error", err).Error("failed ensuring connection schema (mssql)")
			}
			st.connections = persistence.NewConnectionRepositoryMSSQL(mssql)
			st.checks["mssql"] = mssql.PingContext
		}
	}

	if psqlDb, err := openSQL("postgres", func() (*sql.DB, error) { return persistence.NewPostgreSQLDB(cfg.Database.Psql) }); err == nil {
		if st.connections == nil {
			if err := persistence.EnsureConnectionSchema(psqlDb); err != nil {
				logger.GetLogger().WithField("error", err).Error("failed ensuring connection schema")
			}
			st.connections = persistence.NewConnectionRepository(psqlDb)
		}
		if err := persistence.EnsureScheduledItemSchema(psqlDb); err != nil {
			logger.GetLogger().WithField("error", err).Error("failed ensuring scheduled item schema")
		}
		st.items = persistence.NewScheduledItemRepository(psqlDb)
		st.checks["postgres"] = psqlDb.PingContext
	}

	if analyticsDb, err := persistence.NewAnalyticsDB(cfg.Database.MySql); err != nil {
		logger.GetLogger().WithField("error", err).Warn("MySQL analytics database not available")
	} else {
		if err := persistence.EnsureCampaignSchema(analyticsDb); err != nil {
			logger.GetLogger().WithField("error", err).Error("failed ensuring campaign schema")
		}
		st.campaigns = persistence.NewCampaignRepository(analyticsDb)
		if sqlDB, err := analyticsDb.DB(); err == nil {
			st.checks["mysql"] = sqlDB.PingContext
		}
	}

	mongoCfg := cfg.Database.Mongo
	if mongoDb, err := persistence.NewMongoDb(mongoCfg.Host, mongoCfg.Port, mongoCfg.User, mongoCfg.Password); err != nil {
		logger.GetLogger().WithField("error", err).Warn("MongoDB not available - continuing without metrics archive")
	} else if err := mongoDb.Ping(ctx, nil); err != nil {
		logger.GetLogger().WithField("error", err).Warn("MongoDB ping failed - continuing without metrics archive")
	} else {
		logger.GetLogger().Info("MongoDB connected successfully")
		st.snapshots = persistence.NewMetricsSnapshotRepository(mongoDb, mongoCfg.Name)
		st.checks["mongo"] = func(ctx context.Context) error { return mongoDb.Ping(ctx, nil) }
	}

	if st.connections == nil {
		logger.GetLogger().Warn("No SQL database for connections - using in-memory store, connections are lost on restart")
		st.connections = persistence.NewMemoryConnectionRepository()
	}
	if st.items == nil {
		logger.GetLogger().Warn("PostgreSQL not available - scheduled items kept in memory")
		st.items = persistence.NewMemoryScheduledItemRepository()
	}
	if st.campaigns == nil {
		st.campaigns = persistence.NewMemoryCampaignRepository()
	}
	return st
}

func openSQL(name string, open func() (*sql.DB, error)) (*sql.DB, error) {
	db, err := open()
	if err == nil {
		err = db.Ping()
	}
	if err != nil {
		logger.GetLogger().WithFields(map[string]interface{}{"database": name, "error": err}).Error("Cannot connect to the database")
		return nil, err
	}
	logger.GetLogger().WithField("database", name).Info("Database connected.")
	return db, nil
}

func minSpacing(raw map[string]time.Duration) map[model.Platform]time.Duration {
	out := make(map[model.Platform]time.Duration, len(raw))
	for key, d := range raw {
		p, ok := model.ParsePlatform(key)
		if !ok {
			logger.GetLogger().WithField("platform", key).Warn("Ignoring spacing for unknown platform")
			continue
		}
		out[p] = d
	}
	return out
}
