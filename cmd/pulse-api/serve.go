package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/app"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/config"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/database"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/jobs"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, live-event stream and scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

// environment bundles what every subcommand opens from configuration.
type environment struct {
	config config.AppConfig
	logger *zap.Logger
	db     *gorm.DB
}

func openEnvironment() (*environment, func(), error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	db, err := database.Open(database.Config{
		Driver:       appConfig.DatabaseDriver,
		DSN:          appConfig.DatabaseDSN,
		MaxOpenConns: appConfig.DatabaseMaxOpenConns,
		Logger:       logger,
	})
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}

	cleanup := func() {
		_ = sqlDB.Close()
		_ = logger.Sync()
	}
	return &environment{config: appConfig, logger: logger, db: db}, cleanup, nil
}

func runServer(ctx context.Context) error {
	rt, cleanup, err := openEnvironment()
	if err != nil {
		return err
	}
	defer cleanup()
	appConfig, logger := rt.config, rt.logger

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher := realtime.NewDispatcher(appConfig.RealtimeBufferSize)
	var broadcasters realtime.Fanout
	var relay *realtime.RedisRelay
	if appConfig.RedisEnabled() {
		redisClient, err := realtime.OpenRedis(signalCtx, appConfig.RedisAddress, appConfig.RedisPassword, appConfig.RedisDB)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		broadcasters = append(broadcasters, realtime.NewRedisBroadcaster(redisClient))
		relay = realtime.NewRedisRelay(redisClient, dispatcher, logger.Named("redis_relay"))
	} else {
		broadcasters = append(broadcasters, dispatcher)
	}
	if appConfig.KafkaEnabled() {
		kafkaBroadcaster := realtime.NewKafkaBroadcaster(realtime.NewKafkaWriter(appConfig.KafkaBrokers, appConfig.KafkaTopic))
		defer kafkaBroadcaster.Close()
		broadcasters = append(broadcasters, kafkaBroadcaster)
	}

	services, err := app.New(app.Config{
		Database:    rt.db,
		Broadcaster: broadcasters,
		Clock:       time.Now,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	sessions, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SessionSigningKey),
		Issuer:        appConfig.SessionIssuer,
		CookieName:    appConfig.SessionCookieName,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:       sessions,
		Services:       services,
		Realtime:       dispatcher,
		AllowedOrigins: appConfig.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	scheduler, err := jobs.NewScheduler(jobs.Config{
		HashtagSweepSchedule: appConfig.HashtagSweepSchedule,
		Sweeper:              services.Hashtags,
		Logger:               logger.Named("jobs"),
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		return scheduler.Run(groupCtx)
	})
	if relay != nil {
		group.Go(func() error {
			return relay.Run(groupCtx)
		})
	}

	return group.Wait()
}
