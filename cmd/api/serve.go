package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/noah-isme/students-api/internal/config"
	"github.com/noah-isme/students-api/internal/database"
	"github.com/noah-isme/students-api/internal/graphql"
	"github.com/noah-isme/students-api/internal/handler"
	"github.com/noah-isme/students-api/internal/middleware"
	"github.com/noah-isme/students-api/internal/repository"
	"github.com/noah-isme/students-api/internal/router"
	"github.com/noah-isme/students-api/internal/service"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run migrations and start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := newLogger(cfg)

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	store, err := database.NewStore(db, cfg.DatabaseDriver)
	if err != nil {
		return err
	}
	defer store.Close()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(parent, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			return err
		}
		defer natsConn.Drain() //nolint:errcheck
	}

	app, err := buildApp(cfg, logger, db, store, redisClient, natsConn)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listenErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddress()).Str("driver", cfg.DatabaseDriver).Msg("http server listening")
		listenErr <- app.Listen(cfg.HTTPAddress())
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}

func buildApp(cfg config.Config, logger zerolog.Logger, db *gorm.DB, store *sqlx.DB, redisClient *redis.Client, natsConn *nats.Conn) (*fiber.App, error) {
	var events service.StudentEventPublisher
	if redisClient != nil || natsConn != nil {
		events = service.NewStudentEventPublisher(redisClient, natsConn, cfg.EventsChannel)
	}

	activityService := service.NewActivityService(repository.NewActivityLogRepository(db), logger)
	studentService := service.NewStudentService(
		repository.NewStudentRepository(store, database.QueryDialect(cfg.DatabaseDriver)),
		service.NewStudentValidator(nil),
		activityService,
		events,
		logger,
	)

	schema, err := graphql.LoadSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to load graphql schema: %w", err)
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
		BodyLimit:    graphql.MaxRequestBodySize,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLog: cfg.AppEnv == "development"})
	router.Register(app, cfg, router.Dependencies{
		StudentHandler:  handler.NewStudentHandler(studentService, logger),
		ActivityHandler: handler.NewActivityHandler(activityService, logger),
		GraphQLHandler:  graphql.NewHandler(graphql.NewExecutor(schema, studentService, logger), logger),
		Database:        store,
		Logger:          logger,
	})

	return app, nil
}
